package value

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Value is a sealed interface for filter values bound into generated queries.
// Only String, Int, Bool, List and NonBinding implement it.
// There is no Float: floats make generated text and fingerprints unstable.
type Value interface {
	value() // Sealed - only these types implement it
}

// String is a textual filter value. Strings are matched with LIKE.
type String string

func (String) value() {}

// Int is an integer filter value. Always int64, never float64.
type Int int64

func (Int) value() {}

// Bool is a boolean filter value.
type Bool bool

func (Bool) value() {}

// List is a collection filter value, bound as an IN list or element-wise
// into numbered override placeholders.
type List []Value

func (List) value() {}

// NonBinding marks a filter that binds no parameter. A filter whose value is
// Off is skipped entirely; On keeps an override fragment that has no
// placeholder.
type NonBinding uint8

const (
	Off NonBinding = iota
	On
)

func (NonBinding) value() {}

// String returns "ON" or "OFF".
func (n NonBinding) String() string {
	if n == On {
		return "ON"
	}
	return "OFF"
}

// Strings builds a List of String values.
func Strings(ss ...string) List {
	l := make(List, len(ss))
	for i, s := range ss {
		l[i] = String(s)
	}
	return l
}

// Ints builds a List of Int values.
func Ints(ns ...int64) List {
	l := make(List, len(ns))
	for i, n := range ns {
		l[i] = Int(n)
	}
	return l
}

// IsText reports whether v is a String.
func IsText(v Value) bool {
	_, ok := v.(String)
	return ok
}

// Native converts a Value into the Go type handed to database/sql.
// Lists convert element-wise into []any.
func Native(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Bool:
		return bool(val)
	case List:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Native(elem)
		}
		return out
	case NonBinding:
		return val.String()
	default:
		return nil
	}
}

// FromAny converts a decoded Go value (YAML or JSON) into a Value.
// Rejects nil, floats with a fractional part, and maps.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a filter value")
	case Value:
		return val, nil
	case string:
		switch strings.ToUpper(val) {
		case "$OFF":
			return Off, nil
		case "$ON":
			return On, nil
		}
		return String(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		return Int(int64(val)), nil
	case bool:
		return Bool(val), nil
	case float64:
		if val != float64(int64(val)) {
			return nil, fmt.Errorf("floats are not filter values: %v", val)
		}
		return Int(int64(val)), nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("floats are not filter values: %s", val)
		}
		return Int(n), nil
	case []any:
		l := make(List, len(val))
		for i, elem := range val {
			ev, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			if _, nested := ev.(List); nested {
				return nil, fmt.Errorf("[%d]: nested lists are not filter values", i)
			}
			l[i] = ev
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unsupported filter value type: %T", v)
	}
}

// Format renders v the way it appears in an inlined debug query:
// strings single-quoted with quotes doubled, lists comma separated.
func Format(v Value) string {
	switch val := v.(type) {
	case String:
		return "'" + strings.ReplaceAll(string(val), "'", "''") + "'"
	case Int:
		return fmt.Sprintf("%d", int64(val))
	case Bool:
		if val {
			return "true"
		}
		return "false"
	case List:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = Format(elem)
		}
		return strings.Join(parts, ", ")
	case NonBinding:
		return val.String()
	default:
		return "NULL"
	}
}
