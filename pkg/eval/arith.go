package eval

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/orneryd/nornicproj/pkg/storage"
)

// Add is the generic "+" used when operand types are only known at runtime.
//
//   - list + x appends (or concatenates when x is a list); x + list prepends
//   - null on either side yields null
//   - int + int stays integer, any other numeric pairing is float
//   - string + scalar concatenates the text form of the scalar
func Add(a, b any) (any, error) {
	if la, ok := asList(a); ok {
		if lb, ok := asList(b); ok {
			out := make([]any, 0, len(la)+len(lb))
			out = append(out, la...)
			return append(out, lb...), nil
		}
		out := make([]any, 0, len(la)+1)
		out = append(out, la...)
		return append(out, b), nil
	}
	if lb, ok := asList(b); ok {
		out := make([]any, 0, len(lb)+1)
		out = append(out, a)
		return append(out, lb...), nil
	}

	if a == nil || b == nil {
		return nil, nil
	}

	if ia, ok := toInt64(a); ok {
		if ib, ok := toInt64(b); ok {
			return ia + ib, nil
		}
	}
	if fa, ok := ToFloat64(a); ok {
		if fb, ok := ToFloat64(b); ok {
			return fa + fb, nil
		}
	}

	_, aText := a.(string)
	_, bText := b.(string)
	if (aText || bText) && isScalar(a) && isScalar(b) {
		return Text(a) + Text(b), nil
	}

	return nil, incompatible("add", a, b)
}

// Subtract is the generic "-" used when operand types are only known at
// runtime. Only numbers can be subtracted; null propagates.
func Subtract(a, b any) (any, error) {
	if a == nil || b == nil {
		return nil, nil
	}
	if ia, ok := toInt64(a); ok {
		if ib, ok := toInt64(b); ok {
			return ia - ib, nil
		}
	}
	if fa, ok := ToFloat64(a); ok {
		if fb, ok := ToFloat64(b); ok {
			return fa - fb, nil
		}
	}
	return nil, incompatible("subtract", a, b)
}

// Int returns v. Generated code wraps integer literals in it to keep literal
// arithmetic a run-time int64 operation.
func Int(v int64) int64 { return v }

// Float returns v. It is the float64 counterpart of Int.
func Float(v float64) float64 { return v }

// Text renders a value for string concatenation. Floats always carry a
// fractional part ("3.0"), null renders as the empty string.
func Text(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case float64:
		return formatFloat(val)
	case float32:
		return formatFloat(float64(val))
	default:
		return fmt.Sprint(val)
	}
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

// ToFloat64 converts any Go numeric type to float64.
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	}
	return 0, false
}

func toInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	}
	return 0, false
}

func asList(v any) ([]any, bool) {
	switch val := v.(type) {
	case []any:
		return val, true
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, true
	case []int64:
		out := make([]any, len(val))
		for i, n := range val {
			out[i] = n
		}
		return out, true
	case []float64:
		out := make([]any, len(val))
		for i, f := range val {
			out[i] = f
		}
		return out, true
	}
	return nil, false
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int32, int64, float32, float64:
		return true
	}
	return false
}

// TypeName returns the query-language name of a runtime value's type.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "NULL"
	case string:
		return "STRING"
	case bool:
		return "BOOLEAN"
	case int, int32, int64:
		return "INTEGER"
	case float32, float64:
		return "FLOAT"
	case []any, []string, []int64, []float64:
		return "LIST"
	case map[string]any:
		return "MAP"
	case NodeRef, *storage.Node:
		return "NODE"
	case RelationshipRef, *storage.Edge:
		return "RELATIONSHIP"
	}
	return fmt.Sprintf("%T", v)
}
