package sandbox

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Values flowing through a program are decimal.Decimal, bool, string, nil,
// time.Time, []any, or one of the interfaces below.

// Object exposes named attributes (employee.wage).
type Object interface {
	Attr(name string) (any, error)
}

// Indexable supports subscripting (inputs["BONUS"]).
type Indexable interface {
	Index(key any) (any, error)
}

// Container supports the "in" operator.
type Container interface {
	Contains(key any) (bool, error)
}

type Callable interface {
	Call(args []any, kwargs map[string]any) (any, error)
}

// Func adapts a plain function to Callable.
type Func func(args []any, kwargs map[string]any) (any, error)

func (fn Func) Call(args []any, kwargs map[string]any) (any, error) {
	return fn(args, kwargs)
}

// Env resolves the free names of a program.
type Env interface {
	Lookup(name string) (any, bool)
}

type MapEnv map[string]any

func (m MapEnv) Lookup(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// ChainEnv looks names up in each Env in turn.
type ChainEnv []Env

func (c ChainEnv) Lookup(name string) (any, bool) {
	for _, env := range c {
		if env == nil {
			continue
		}
		if v, ok := env.Lookup(name); ok {
			return v, true
		}
	}
	return nil, false
}

// MapObject is a read-only record; missing keys are an error.
type MapObject map[string]any

func (m MapObject) Attr(name string) (any, error) {
	v, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("object has no attribute %q", name)
	}
	return v, nil
}

func (m MapObject) Index(key any) (any, error) {
	s, ok := key.(string)
	if !ok {
		return nil, fmt.Errorf("record keys must be strings, got %s", TypeName(key))
	}
	return m.Attr(s)
}

func (m MapObject) Contains(key any) (bool, error) {
	s, ok := key.(string)
	if !ok {
		return false, nil
	}
	_, found := m[s]
	return found, nil
}

// Normalize converts Go and JSON values into sandbox values. Integers and
// floats become decimals, maps become MapObjects, slices become []any.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil, bool, string, decimal.Decimal, time.Time:
		return x
	case *decimal.Decimal:
		if x == nil {
			return nil
		}
		return *x
	case int:
		return decimal.NewFromInt(int64(x))
	case int32:
		return decimal.NewFromInt32(x)
	case int64:
		return decimal.NewFromInt(x)
	case float32:
		return decimal.NewFromFloat32(x)
	case float64:
		return decimal.NewFromFloat(x)
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return x.String()
		}
		return d
	case map[string]any:
		out := make(MapObject, len(x))
		for k, val := range x {
			out[k] = Normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = Normalize(val)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = val
		}
		return out
	}
	return v
}

func toNumber(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, true
	case bool:
		if x {
			return decimal.NewFromInt(1), true
		}
		return decimal.Zero, true
	}
	return decimal.Decimal{}, false
}

// ToDecimal converts a numeric sandbox value, bools included, to a decimal.
func ToDecimal(v any) (decimal.Decimal, bool) {
	return toNumber(v)
}

func isInteger(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(0))
}

// Truthy follows Python truthiness: zero, empty and None are false.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case decimal.Decimal:
		return !x.IsZero()
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case MapObject:
		return len(x) > 0
	}
	return true
}

// Equal compares by value; numbers compare numerically across bool and
// decimal, as Python does.
func Equal(x, y any) bool {
	if a, ok := toNumber(x); ok {
		if b, ok := toNumber(y); ok {
			return a.Equal(b)
		}
		return false
	}
	switch a := x.(type) {
	case nil:
		return y == nil
	case string:
		b, ok := y.(string)
		return ok && a == b
	case time.Time:
		b, ok := y.(time.Time)
		return ok && a.Equal(b)
	case []any:
		b, ok := y.([]any)
		if !ok || len(a) != len(b) {
			return false
		}
		for i := range a {
			if !Equal(a[i], b[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "NoneType"
	case bool:
		return "bool"
	case decimal.Decimal:
		return "number"
	case string:
		return "str"
	case time.Time:
		return "date"
	case []any:
		return "list"
	case Callable:
		return "function"
	case Object, Indexable:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

// Repr renders a value the way str() does.
func Repr(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case decimal.Decimal:
		return x.String()
	case string:
		return x
	case time.Time:
		return x.Format(time.DateOnly)
	case []any:
		parts := make([]string, len(x))
		for i, el := range x {
			if s, ok := el.(string); ok {
				parts[i] = fmt.Sprintf("'%s'", s)
				continue
			}
			parts[i] = Repr(el)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case MapObject:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("'%s': %s", k, Repr(x[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return fmt.Sprintf("<%s>", TypeName(v))
}

func containsString(s, sub string) bool {
	return strings.Contains(s, sub)
}

func daysBetween(from, to time.Time) decimal.Decimal {
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	to = time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return decimal.NewFromInt(int64(to.Sub(from).Hours() / 24))
}
