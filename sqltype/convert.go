package sqltype

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/syssam/dbx"
	"github.com/syssam/dbx/dialect"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// nullMarkers are strings treated as absent values.
var nullMarkers = map[string]struct{}{
	"":     {},
	"null": {},
	"none": {},
	"nan":  {},
	"na":   {},
	"nat":  {},
}

// Converter coerces application values into driver-native values. It is
// applied once, at parameter binding time. Values read from the database
// are never passed through it.
type Converter struct {
	// KeepEmptyStrings binds empty strings and textual null markers such
	// as "NaN" as-is instead of as NULL.
	KeepEmptyStrings bool
}

// DefaultConverter is the converter used by the parameter processor
// unless one is configured.
var DefaultConverter = &Converter{}

// Convert returns the driver-native form of v for dialect d.
func (c *Converter) Convert(d dialect.Descriptor, v any) (any, error) {
	if IsNull(v) {
		return nil, nil
	}
	switch v := v.(type) {
	case string:
		if !c.KeepEmptyStrings && isNullMarker(v) {
			return nil, nil
		}
		return v, nil
	case []byte:
		return v, nil
	case bool, int, int8, int16, int32, int64, uint8, uint16, uint32:
		return v, nil
	case uint:
		return convertUint(d, v, uint64(v))
	case uint64:
		return convertUint(d, v, v)
	case float32:
		return convertFloat(float64(v))
	case float64:
		return convertFloat(v)
	case time.Time:
		return v, nil
	case decimal.Decimal:
		return v.String(), nil
	case decimal.NullDecimal:
		return v.Decimal.String(), nil
	case uuid.UUID:
		return v.String(), nil
	case json.RawMessage:
		return encodedJSON(d, v), nil
	case driver.Valuer:
		// Already driver-native, including values converted earlier.
		return v, nil
	case map[string]any:
		return c.jsonValue(d, v)
	}
	return c.convertReflect(d, v)
}

// IsNull reports whether v is a null marker: nil, a nil pointer, slice or
// map, dbx.Null, an invalid sql.Null* value, or the zero time.
func IsNull(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case time.Time:
		return v.IsZero()
	case decimal.NullDecimal:
		return !v.Valid
	case sql.NullString:
		return !v.Valid
	case sql.NullInt64:
		return !v.Valid
	case sql.NullInt32:
		return !v.Valid
	case sql.NullInt16:
		return !v.Valid
	case sql.NullFloat64:
		return !v.Valid
	case sql.NullBool:
		return !v.Valid
	case sql.NullTime:
		return !v.Valid
	case sql.NullByte:
		return !v.Valid
	case uuid.NullUUID:
		return !v.Valid
	}
	if v == dbx.Null {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

// BindsNull reports whether v converts to NULL, without converting it.
func (c *Converter) BindsNull(v any) bool {
	if IsNull(v) {
		return true
	}
	switch v := v.(type) {
	case string:
		return !c.KeepEmptyStrings && isNullMarker(v)
	case float64:
		return math.IsNaN(v) || math.IsInf(v, 0)
	case float32:
		return math.IsNaN(float64(v)) || math.IsInf(float64(v), 0)
	}
	return false
}

func isNullMarker(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) > 4 {
		return false
	}
	_, ok := nullMarkers[strings.ToLower(s)]
	return ok
}

func convertUint(d dialect.Descriptor, orig any, v uint64) (any, error) {
	if v > math.MaxInt64 {
		return nil, dbx.NewTypeConversionError(orig, d.Name(), "value overflows int64")
	}
	return int64(v), nil
}

func convertFloat(v float64) (any, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, nil
	}
	return v, nil
}

func (c *Converter) convertReflect(d dialect.Descriptor, v any) (any, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		return c.Convert(d, rv.Elem().Interface())
	case reflect.String:
		return c.Convert(d, rv.String())
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return convertUint(d, v, rv.Uint())
	case reflect.Float32, reflect.Float64:
		return convertFloat(rv.Float())
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 && rv.Kind() == reflect.Slice {
			return rv.Bytes(), nil
		}
		return c.sequence(d, rv)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, dbx.NewTypeConversionError(v, d.Name(), "map keys must be strings")
		}
		return c.jsonValue(d, v)
	}
	return nil, dbx.NewTypeConversionError(v, d.Name(), "no coercion for "+rv.Kind().String())
}

// sequence binds a slice that did not expand into an IN list. Homogeneous
// scalar slices become native arrays where the dialect supports them.
func (c *Converter) sequence(d dialect.Descriptor, rv reflect.Value) (any, error) {
	kind, ok := elemKind(rv)
	if ok && d.SupportsArrayInClause {
		elems := make([]any, rv.Len())
		for i := range elems {
			elems[i] = rv.Index(i).Interface()
		}
		switch kind {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint8, reflect.Uint16, reflect.Uint32:
			ints := make([]int64, len(elems))
			for i := range elems {
				ints[i] = reflect.ValueOf(elems[i]).Convert(reflect.TypeOf(int64(0))).Int()
			}
			return pq.Array(ints), nil
		case reflect.Float32, reflect.Float64:
			floats := make([]float64, len(elems))
			for i := range elems {
				floats[i] = reflect.ValueOf(elems[i]).Float()
			}
			return pq.Array(floats), nil
		case reflect.String:
			strs := make([]string, len(elems))
			for i := range elems {
				strs[i] = reflect.ValueOf(elems[i]).String()
			}
			return pq.Array(strs), nil
		case reflect.Bool:
			bools := make([]bool, len(elems))
			for i := range elems {
				bools[i] = reflect.ValueOf(elems[i]).Bool()
			}
			return pq.Array(bools), nil
		}
	}
	return c.jsonValue(d, rv.Interface())
}

// elemKind returns the common scalar kind of a sequence's elements.
func elemKind(rv reflect.Value) (reflect.Kind, bool) {
	if rv.Len() == 0 {
		k := rv.Type().Elem().Kind()
		return k, isScalarKind(k)
	}
	var kind reflect.Kind
	for i := 0; i < rv.Len(); i++ {
		e := rv.Index(i)
		for e.Kind() == reflect.Interface && !e.IsNil() {
			e = e.Elem()
		}
		k := e.Kind()
		if !isScalarKind(k) || (i > 0 && k != kind) {
			return reflect.Invalid, false
		}
		kind = k
	}
	return kind, true
}

func isScalarKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func (c *Converter) jsonValue(d dialect.Descriptor, v any) (any, error) {
	b, err := jsonAPI.Marshal(v)
	if err != nil {
		return nil, dbx.NewTypeConversionError(v, d.Name(), err.Error())
	}
	return encodedJSON(d, b), nil
}

func encodedJSON(d dialect.Descriptor, b []byte) any {
	if d.NativeJSON {
		return json.RawMessage(b)
	}
	return string(b)
}
