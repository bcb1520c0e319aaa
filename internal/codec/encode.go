package codec

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// EncodeArg turns a query argument into its wire text form, applying these
// rules in order: nil -> NULL, []byte -> \x-hex, time.Time -> ISO-8601 with
// millisecond precision and an explicit numeric offset, any fmt.Stringer ->
// its String(), slice/array -> a {...} array literal with quoting and
// escaping, map/struct -> JSON, and everything else via fmt's %v. A value
// implementing fmt.Stringer is therefore never encoded as an array or JSON.
// The bool return is false for nil (the caller sends a SQL NULL rather than
// a text value).
func EncodeArg(v interface{}) (string, bool, error) {
	if v == nil {
		return "", false, nil
	}

	switch t := v.(type) {
	case []byte:
		return "\\x" + hex.EncodeToString(t), true, nil
	case time.Time:
		return encodeTime(t), true, nil
	case fmt.Stringer:
		return t.String(), true, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return "", false, nil
		}
		return EncodeArg(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return "\\x" + hex.EncodeToString(rv.Bytes()), true, nil
		}
		s, err := encodeArrayLiteral(rv)
		return s, true, err
	case reflect.Map, reflect.Struct:
		b, err := json.Marshal(v)
		if err != nil {
			return "", false, fmt.Errorf("codec: cannot encode %T as JSON: %w", v, err)
		}
		return string(b), true, nil
	default:
		return fmt.Sprintf("%v", v), true, nil
	}
}

// encodeTime formats with millisecond precision and an explicit +HH:MM /
// -HH:MM offset, never the "Z" shorthand, per §4.5.
func encodeTime(t time.Time) string {
	return t.Format("2006-01-02T15:04:05.000-07:00")
}

func encodeArrayLiteral(rv reflect.Value) (string, error) {
	n := rv.Len()
	elems := make([]string, n)
	for i := 0; i < n; i++ {
		elemVal := rv.Index(i).Interface()
		text, nonNull, err := EncodeArg(elemVal)
		if err != nil {
			return "", err
		}
		if !nonNull {
			elems[i] = "NULL"
			continue
		}
		elems[i] = quoteArrayElement(text)
	}
	return "{" + strings.Join(elems, ",") + "}", nil
}

// quoteArrayElement quotes and escapes a scalar's text form for embedding
// in an array literal, unless it is itself a nested array literal (which
// is embedded unquoted) or a bare token needing no special characters.
func quoteArrayElement(s string) string {
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		return s
	}
	if s == "" || needsArrayQuoting(s) {
		var b strings.Builder
		b.WriteByte('"')
		for _, c := range s {
			if c == '"' || c == '\\' {
				b.WriteByte('\\')
			}
			b.WriteRune(c)
		}
		b.WriteByte('"')
		return b.String()
	}
	return s
}

func needsArrayQuoting(s string) bool {
	if strings.EqualFold(s, "NULL") {
		return true
	}
	for _, c := range s {
		switch c {
		case ',', '{', '}', '"', '\\', ' ':
			return true
		}
	}
	return false
}
