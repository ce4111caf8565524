package sql

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"regexp"
	"strings"
	"syscall"

	"github.com/lib/pq"
	mssql "github.com/microsoft/go-mssqldb"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/syssam/dbx"
)

// errorCoder is an interface for database errors that provide string codes.
type errorCoder interface {
	Code() string
}

// sqlStateError is an interface for errors that provide SQLSTATE codes.
// Implemented by pgx and other SQLSTATE-aware drivers.
type sqlStateError interface {
	SQLState() string
}

// errorNumberer is an interface for errors that carry a SQL Server error number.
type errorNumberer interface {
	SQLErrorNumber() int32
}

// PostgreSQL SQLSTATE codes.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgNotNullViolation    = "23502"
	pgConnectionClass     = "08"
	pgAdminShutdown       = "57P01"
	pgCrashShutdown       = "57P02"
	pgCannotConnectNow    = "57P03"
	pgTooManyConnections  = "53300"
)

// SQL Server error numbers.
const (
	mssqlUniqueConstraint = 2627
	mssqlUniqueIndex      = 2601
	mssqlConstraintFailed = 547 // foreign key and check constraints
	mssqlNotNull          = 515
)

// mssqlTransient lists SQL Server error numbers for dropped or unavailable
// connections, including the Azure SQL throttling and failover numbers.
var mssqlTransient = map[int32]struct{}{
	233:   {}, // no process on the other end of the pipe
	4060:  {}, // cannot open database
	10053: {}, // connection aborted
	10054: {}, // connection reset
	10060: {}, // connection timed out
	40197: {}, // service error processing request
	40501: {}, // service busy
	40613: {}, // database unavailable
}

// transientRe matches driver messages of transient network failures for
// drivers that do not expose typed errors.
var transientRe = regexp.MustCompile(`(?i)` + strings.Join([]string{
	`ssl`,
	`tls`,
	`connection.*(closed|reset|refused|lost|terminated|broken)`,
	`server closed`,
	`eof detected`,
	`broken pipe`,
	`timeout`,
	`timed out`,
	`could not connect`,
	`no route to host`,
	`network.*(unreachable|error)`,
	`host.*(unreachable|down)`,
	`database.*unavailable`,
	`too many connections`,
	`connection pool`,
}, "|"))

// pgCode extracts a SQLSTATE code from the error chain.
func pgCode(err error) (string, bool) {
	var pe *pq.Error
	if errors.As(err, &pe) {
		return string(pe.Code), true
	}
	if e, ok := asError[sqlStateError](err); ok {
		return e.SQLState(), true
	}
	if e, ok := asError[errorCoder](err); ok {
		return e.Code(), true
	}
	return "", false
}

// sqliteCode extracts an extended SQLite result code from the error chain.
func sqliteCode(err error) (int, bool) {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code(), true
	}
	return 0, false
}

// mssqlNumber extracts a SQL Server error number from the error chain.
func mssqlNumber(err error) (int32, string, bool) {
	var me mssql.Error
	if errors.As(err, &me) {
		return me.Number, me.Message, true
	}
	if e, ok := asError[errorNumberer](err); ok {
		return e.SQLErrorNumber(), err.Error(), true
	}
	return 0, "", false
}

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := pgCode(err); ok && code == pgUniqueViolation {
		return true
	}
	if code, ok := sqliteCode(err); ok &&
		(code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY) {
		return true
	}
	if num, _, ok := mssqlNumber(err); ok && (num == mssqlUniqueConstraint || num == mssqlUniqueIndex) {
		return true
	}
	return containsAny(err.Error(),
		"violates unique constraint", // Postgres
		"UNIQUE constraint failed",   // SQLite
		"Violation of UNIQUE KEY",    // SQL Server
		"Violation of PRIMARY KEY",   // SQL Server
		"Cannot insert duplicate key",
	)
}

// IsForeignKeyConstraintError reports if the error resulted from a database foreign-key constraint violation.
func IsForeignKeyConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := pgCode(err); ok && code == pgForeignKeyViolation {
		return true
	}
	if code, ok := sqliteCode(err); ok && code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
		return true
	}
	if num, msg, ok := mssqlNumber(err); ok && num == mssqlConstraintFailed && strings.Contains(msg, "FOREIGN KEY") {
		return true
	}
	return containsAny(err.Error(),
		"violates foreign key constraint", // Postgres
		"FOREIGN KEY constraint failed",   // SQLite
		"conflicted with the FOREIGN KEY", // SQL Server
	)
}

// IsCheckConstraintError reports if the error resulted from a database check constraint violation.
func IsCheckConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := pgCode(err); ok && code == pgCheckViolation {
		return true
	}
	if code, ok := sqliteCode(err); ok && code == sqlite3.SQLITE_CONSTRAINT_CHECK {
		return true
	}
	if num, msg, ok := mssqlNumber(err); ok && num == mssqlConstraintFailed && strings.Contains(msg, "CHECK") {
		return true
	}
	return containsAny(err.Error(),
		"violates check constraint", // Postgres
		"CHECK constraint failed",   // SQLite
		"conflicted with the CHECK", // SQL Server
	)
}

// IsNotNullConstraintError reports if the error resulted from a NOT NULL violation.
func IsNotNullConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := pgCode(err); ok && code == pgNotNullViolation {
		return true
	}
	if code, ok := sqliteCode(err); ok && code == sqlite3.SQLITE_CONSTRAINT_NOTNULL {
		return true
	}
	if num, _, ok := mssqlNumber(err); ok && num == mssqlNotNull {
		return true
	}
	return containsAny(err.Error(),
		"violates not-null constraint", // Postgres
		"NOT NULL constraint failed",   // SQLite
		"Cannot insert the value NULL", // SQL Server
	)
}

// IsConstraintError returns true if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	return dbx.IsIntegrityError(err) ||
		IsUniqueConstraintError(err) ||
		IsForeignKeyConstraintError(err) ||
		IsCheckConstraintError(err) ||
		IsNotNullConstraintError(err)
}

// IsTransient reports whether the error is a connection-level failure that
// is expected to succeed when retried on a fresh connection. Constraint
// violations, syntax errors and canceled contexts are never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if dbx.IsTransient(err) {
		return true
	}
	if IsConstraintError(err) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	if code, ok := pgCode(err); ok {
		switch {
		case strings.HasPrefix(code, pgConnectionClass),
			code == pgAdminShutdown, code == pgCrashShutdown,
			code == pgCannotConnectNow, code == pgTooManyConnections:
			return true
		}
	}
	if code, ok := sqliteCode(err); ok {
		switch code & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	if num, _, ok := mssqlNumber(err); ok {
		if _, ok := mssqlTransient[num]; ok {
			return true
		}
	}
	return transientRe.MatchString(err.Error())
}

// Classify wraps constraint violations into dbx integrity errors, keeping
// the driver error as the cause. Other errors are returned unchanged.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case dbx.IsIntegrityError(err):
		return err
	case IsUniqueConstraintError(err):
		return dbx.NewUniqueViolationError(err)
	case IsForeignKeyConstraintError(err):
		return dbx.NewIntegrityError("foreign_key", err)
	case IsCheckConstraintError(err):
		return dbx.NewIntegrityError("check", err)
	case IsNotNullConstraintError(err):
		return dbx.NewIntegrityError("not_null", err)
	default:
		return err
	}
}

// asError attempts to extract an error implementing interface T from the error chain.
func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}

// containsAny returns true if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
