package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/syssam/dbx"
	"github.com/syssam/dbx/dialect"
)

// TxOption configures Tx.
type TxOption func(*txOptions)

type txOptions struct {
	nested bool
}

// Nested lets Tx run inside an enclosing transaction. The inner unit of
// work joins the outer transaction; it commits or rolls back with it.
func Nested() TxOption {
	return func(o *txOptions) {
		o.nested = true
	}
}

type txCtxKey struct{}

// txState is the transaction carried by a context.
type txState struct {
	client *Client
	tx     dialect.Tx
	done   atomic.Bool

	mu sync.Mutex
	// committed runs after a successful commit, outside the transaction.
	committed []func(context.Context) error
}

// afterCommit registers fn to run once the transaction committed.
func (st *txState) afterCommit(fn func(context.Context) error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.committed = append(st.committed, fn)
}

// txFromContext returns the transaction c started in ctx, if any.
func (c *Client) txFromContext(ctx context.Context) *txState {
	st, _ := ctx.Value(txCtxKey{}).(*txState)
	if st == nil || st.client != c {
		return nil
	}
	return st
}

// InTx reports whether ctx carries an open transaction of c.
func (c *Client) InTx(ctx context.Context) bool {
	st := c.txFromContext(ctx)
	return st != nil && !st.done.Load()
}

// Tx runs fn in a transaction. Calls made with the context passed to fn
// run in that transaction. The transaction commits when fn returns nil
// and rolls back when fn fails or panics.
//
// Starting a transaction inside another one fails with dbx.ErrTxStarted
// unless Nested is given. Using the context after the transaction ended
// fails with dbx.ErrTxDone.
func (c *Client) Tx(ctx context.Context, fn func(ctx context.Context) error, opts ...TxOption) error {
	var o txOptions
	for _, opt := range opts {
		opt(&o)
	}
	if st := c.txFromContext(ctx); st != nil {
		if st.done.Load() {
			return dbx.NewTransactionError("begin", dbx.ErrTxDone)
		}
		if !o.nested {
			return dbx.NewTransactionError("begin", dbx.ErrTxStarted)
		}
		return fn(ctx)
	}
	tx, err := c.drv.Tx(ctx)
	if err != nil {
		return err
	}
	st := &txState{client: c, tx: tx}
	parent := ctx
	ctx = context.WithValue(ctx, txCtxKey{}, st)
	defer func() {
		if v := recover(); v != nil {
			st.done.Store(true)
			_ = tx.Rollback()
			panic(v)
		}
	}()
	if err := fn(ctx); err != nil {
		st.done.Store(true)
		return dbx.Rollback(err, tx.Rollback())
	}
	st.done.Store(true)
	if err := tx.Commit(); err != nil {
		return dbx.NewTransactionError("commit", err)
	}
	st.mu.Lock()
	hooks := st.committed
	st.mu.Unlock()
	var errs []error
	for _, fn := range hooks {
		errs = append(errs, fn(parent))
	}
	return errors.Join(errs...)
}

// conn returns what statements in ctx run on, and whether that is a
// transaction.
func (c *Client) conn(ctx context.Context) (*txDriver, bool, error) {
	st := c.txFromContext(ctx)
	if st == nil {
		return &txDriver{drv: c.drv}, false, nil
	}
	if st.done.Load() {
		return nil, true, dbx.NewTransactionError("statement", dbx.ErrTxDone)
	}
	return &txDriver{drv: c.drv, tx: st.tx}, true, nil
}

// txDriver runs statements on the client driver or, inside Tx, on the
// open transaction. Transactions started through it while one is open
// are the open one, with no-op Commit and Rollback.
type txDriver struct {
	drv dialect.Driver
	tx  dialect.Tx
}

func (d *txDriver) Exec(ctx context.Context, query string, args, v any) error {
	if d.tx != nil {
		return d.tx.Exec(ctx, query, args, v)
	}
	return d.drv.Exec(ctx, query, args, v)
}

func (d *txDriver) Query(ctx context.Context, query string, args, v any) error {
	if d.tx != nil {
		return d.tx.Query(ctx, query, args, v)
	}
	return d.drv.Query(ctx, query, args, v)
}

func (d *txDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	if d.tx != nil {
		return nopTx{d.tx}, nil
	}
	return d.drv.Tx(ctx)
}

// nopTx leaves Commit and Rollback to the owner of the transaction.
type nopTx struct {
	dialect.Tx
}

func (nopTx) Commit() error   { return nil }
func (nopTx) Rollback() error { return nil }
