package sqltype

import (
	"fmt"
	"strings"
)

// Type is the engine-independent semantic type of a column or value.
type Type uint8

// Canonical semantic types.
const (
	Unknown Type = iota
	Integer
	Float
	Boolean
	Text
	Bytes
	Date
	Time
	DateTime
	DateTimeTZ
	JSON
	Array
	Decimal
	Null
)

var typeNames = [...]string{
	Unknown:    "unknown",
	Integer:    "integer",
	Float:      "float",
	Boolean:    "boolean",
	Text:       "text",
	Bytes:      "bytes",
	Date:       "date",
	Time:       "time",
	DateTime:   "datetime",
	DateTimeTZ: "datetimetz",
	JSON:       "json",
	Array:      "array",
	Decimal:    "decimal",
	Null:       "null",
}

// typeAliases accepts the spellings used in mapping files.
var typeAliases = map[string]Type{
	"int":                  Integer,
	"bigint":               Integer,
	"bool":                 Boolean,
	"bit":                  Boolean,
	"str":                  Text,
	"string":               Text,
	"blob":                 Bytes,
	"binary":               Bytes,
	"timestamp":            DateTime,
	"timestamptz":          DateTimeTZ,
	"datetime-with-offset": DateTimeTZ,
	"numeric":              Decimal,
	"real":                 Float,
	"double":               Float,
}

// String returns the canonical name of the type.
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// ParseType parses a canonical type name or one of its aliases.
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range typeNames {
		if name == s {
			return Type(i), nil
		}
	}
	if t, ok := typeAliases[s]; ok {
		return t, nil
	}
	return Unknown, fmt.Errorf("sqltype: unknown type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
