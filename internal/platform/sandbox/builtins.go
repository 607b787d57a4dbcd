package sandbox

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// MaxRange caps range() so a script cannot allocate unbounded lists.
	MaxRange = 10000
	// MaxLength caps lists and strings built by concatenation.
	MaxLength = MaxRange
	// MaxDigits caps both the coefficient digits and the exponent of a number.
	MaxDigits = 1000
	// MaxPlaces bounds the precision argument of the rounding helpers.
	MaxPlaces = 28
)

var builtins map[string]Callable

func init() {
	builtins = map[string]Callable{
		"abs":           Func(builtinAbs),
		"bool":          Func(builtinBool),
		"ceil":          Func(builtinCeil),
		"date":          Func(builtinDate),
		"add_days":      Func(builtinAddDays),
		"add_months":    Func(builtinAddMonths),
		"days_between":  Func(builtinDaysBetween),
		"float":         Func(builtinFloat),
		"float_compare": Func(builtinFloatCompare),
		"float_is_zero": Func(builtinFloatIsZero),
		"float_round":   Func(builtinFloatRound),
		"floor":         Func(builtinFloor),
		"int":           Func(builtinInt),
		"len":           Func(builtinLen),
		"max":           Func(builtinMax),
		"min":           Func(builtinMin),
		"range":         Func(builtinRange),
		"round":         Func(builtinRound),
		"str":           Func(builtinStr),
		"sum":           Func(builtinSum),
	}
}

// Builtins lists the helper names available to every program.
func Builtins() []string {
	out := make([]string, 0, len(builtins))
	for name := range builtins {
		out = append(out, name)
	}
	return out
}

func arity(name string, args []any, kwargs map[string]any, min, max int) error {
	if len(args) < min || len(args) > max {
		if min == max {
			return fmt.Errorf("%s() takes %d argument(s), got %d", name, min, len(args))
		}
		return fmt.Errorf("%s() takes %d to %d arguments, got %d", name, min, max, len(args))
	}
	return nil
}

func noKwargs(name string, kwargs map[string]any) error {
	if len(kwargs) > 0 {
		return fmt.Errorf("%s() takes no keyword arguments", name)
	}
	return nil
}

// arg picks a positional argument, falling back to a keyword one.
func arg(args []any, kwargs map[string]any, i int, name string) (any, bool) {
	if i < len(args) {
		return args[i], true
	}
	v, ok := kwargs[name]
	return v, ok
}

func number(fn string, v any) (decimal.Decimal, error) {
	d, ok := toNumber(v)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%s() expects a number, got %s", fn, TypeName(v))
	}
	return d, nil
}

func integer(fn string, v any) (int64, error) {
	d, err := number(fn, v)
	if err != nil {
		return 0, err
	}
	if !isInteger(d) {
		return 0, fmt.Errorf("%s() expects an integer, got %s", fn, d)
	}
	return d.IntPart(), nil
}

// places reads a rounding precision and keeps it within MaxPlaces.
func places(fn string, v any) (int32, error) {
	n, err := integer(fn, v)
	if err != nil {
		return 0, err
	}
	if n > MaxPlaces || n < -MaxPlaces {
		return 0, fmt.Errorf("%s() precision must be between %d and %d, got %d", fn, -MaxPlaces, MaxPlaces, n)
	}
	return int32(n), nil
}

// parseNumber converts script text to a decimal within the MaxDigits bounds.
func parseNumber(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if err := checkNumber(Pos{}, d); err != nil {
		return decimal.Decimal{}, err
	}
	return d, nil
}

func dateArg(fn string, v any) (time.Time, error) {
	t, ok := v.(time.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("%s() expects a date, got %s", fn, TypeName(v))
	}
	return t, nil
}

func builtinAbs(args []any, kwargs map[string]any) (any, error) {
	if err := arity("abs", args, kwargs, 1, 1); err != nil {
		return nil, err
	}
	d, err := number("abs", args[0])
	if err != nil {
		return nil, err
	}
	return d.Abs(), nil
}

func builtinBool(args []any, kwargs map[string]any) (any, error) {
	if err := arity("bool", args, kwargs, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return false, nil
	}
	return Truthy(args[0]), nil
}

func builtinCeil(args []any, kwargs map[string]any) (any, error) {
	if err := arity("ceil", args, kwargs, 1, 1); err != nil {
		return nil, err
	}
	d, err := number("ceil", args[0])
	if err != nil {
		return nil, err
	}
	return d.Ceil(), nil
}

func builtinFloor(args []any, kwargs map[string]any) (any, error) {
	if err := arity("floor", args, kwargs, 1, 1); err != nil {
		return nil, err
	}
	d, err := number("floor", args[0])
	if err != nil {
		return nil, err
	}
	return d.Floor(), nil
}

func builtinInt(args []any, kwargs map[string]any) (any, error) {
	if err := arity("int", args, kwargs, 1, 1); err != nil {
		return nil, err
	}
	if s, ok := args[0].(string); ok {
		d, err := parseNumber(s)
		if errors.Is(err, ErrViolation) {
			return nil, err
		}
		if err != nil || !isInteger(d) {
			return nil, fmt.Errorf("invalid literal for int(): %q", s)
		}
		return d, nil
	}
	d, err := number("int", args[0])
	if err != nil {
		return nil, err
	}
	return d.Truncate(0), nil
}

func builtinFloat(args []any, kwargs map[string]any) (any, error) {
	if err := arity("float", args, kwargs, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return decimal.Zero, nil
	}
	if s, ok := args[0].(string); ok {
		d, err := parseNumber(s)
		if errors.Is(err, ErrViolation) {
			return nil, err
		}
		if err != nil {
			return nil, fmt.Errorf("could not convert string to float: %q", s)
		}
		return d, nil
	}
	return number("float", args[0])
}

func builtinStr(args []any, kwargs map[string]any) (any, error) {
	if err := arity("str", args, kwargs, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return "", nil
	}
	if d, ok := args[0].(decimal.Decimal); ok {
		if err := checkNumber(Pos{}, d); err != nil {
			return nil, err
		}
	}
	return Repr(args[0]), nil
}

func builtinLen(args []any, kwargs map[string]any) (any, error) {
	if err := arity("len", args, kwargs, 1, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case string:
		return decimal.NewFromInt(int64(len([]rune(x)))), nil
	case []any:
		return decimal.NewFromInt(int64(len(x))), nil
	case MapObject:
		return decimal.NewFromInt(int64(len(x))), nil
	}
	return nil, fmt.Errorf("object of type %s has no len()", TypeName(args[0]))
}

// spread accepts either a single list or several positional values.
func spread(args []any) []any {
	if len(args) == 1 {
		if list, ok := args[0].([]any); ok {
			return list
		}
	}
	return args
}

func extreme(name string, args []any, kwargs map[string]any, want int) (any, error) {
	if err := noKwargs(name, kwargs); err != nil {
		return nil, err
	}
	items := spread(args)
	if len(items) == 0 {
		return nil, fmt.Errorf("%s() arg is an empty sequence", name)
	}
	best := items[0]
	for _, item := range items[1:] {
		c, err := order(Pos{}, item, best)
		if err != nil {
			var rt *RuntimeError
			if errors.As(err, &rt) {
				return nil, rt.Err
			}
			return nil, err
		}
		if c == want {
			best = item
		}
	}
	return best, nil
}

func builtinMin(args []any, kwargs map[string]any) (any, error) {
	return extreme("min", args, kwargs, -1)
}

func builtinMax(args []any, kwargs map[string]any) (any, error) {
	return extreme("max", args, kwargs, 1)
}

func builtinSum(args []any, kwargs map[string]any) (any, error) {
	if err := arity("sum", args, kwargs, 1, 2); err != nil {
		return nil, err
	}
	list, ok := args[0].([]any)
	if !ok {
		return nil, fmt.Errorf("sum() expects a list, got %s", TypeName(args[0]))
	}
	total := decimal.Zero
	if len(args) == 2 {
		start, err := number("sum", args[1])
		if err != nil {
			return nil, err
		}
		total = start
	}
	for _, item := range list {
		d, err := number("sum", item)
		if err != nil {
			return nil, err
		}
		total = total.Add(d)
		if err := checkNumber(Pos{}, total); err != nil {
			return nil, err
		}
	}
	return total, nil
}

func builtinRange(args []any, kwargs map[string]any) (any, error) {
	if err := arity("range", args, kwargs, 1, 3); err != nil {
		return nil, err
	}
	bounds := make([]int64, len(args))
	for i, a := range args {
		n, err := integer("range", a)
		if err != nil {
			return nil, err
		}
		bounds[i] = n
	}
	start, stop, step := int64(0), bounds[0], int64(1)
	if len(bounds) >= 2 {
		start, stop = bounds[0], bounds[1]
	}
	if len(bounds) == 3 {
		step = bounds[2]
	}
	if step == 0 {
		return nil, errors.New("range() step must not be zero")
	}
	var out []any
	for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
		if len(out) >= MaxRange {
			return nil, &Violation{Construct: fmt.Sprintf("range larger than %d", MaxRange)}
		}
		out = append(out, decimal.NewFromInt(i))
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

// round uses banker's rounding like Python 3's round().
func builtinRound(args []any, kwargs map[string]any) (any, error) {
	if err := arity("round", args, kwargs, 1, 2); err != nil {
		return nil, err
	}
	d, err := number("round", args[0])
	if err != nil {
		return nil, err
	}
	ndigits := int32(0)
	if v, ok := arg(args, kwargs, 1, "ndigits"); ok && v != nil {
		if ndigits, err = places("round", v); err != nil {
			return nil, err
		}
	}
	return d.RoundBank(ndigits), nil
}

// float_round(value, precision_digits=2, rounding_method='HALF-UP')
func builtinFloatRound(args []any, kwargs map[string]any) (any, error) {
	if err := arity("float_round", args, kwargs, 1, 3); err != nil {
		return nil, err
	}
	d, err := number("float_round", args[0])
	if err != nil {
		return nil, err
	}
	precision := int32(2)
	if v, ok := arg(args, kwargs, 1, "precision_digits"); ok {
		if precision, err = places("float_round", v); err != nil {
			return nil, err
		}
	}
	method := "HALF-UP"
	if v, ok := arg(args, kwargs, 2, "rounding_method"); ok {
		s, isStr := v.(string)
		if !isStr {
			return nil, fmt.Errorf("float_round() rounding_method must be a string")
		}
		method = s
	}
	return RoundWith(d, precision, method)
}

// RoundWith rounds d to precision places with one of HALF-UP, HALF-EVEN, UP or DOWN.
// UP and DOWN round away from and toward zero.
func RoundWith(d decimal.Decimal, precision int32, method string) (decimal.Decimal, error) {
	switch method {
	case "HALF-UP":
		return d.Round(precision), nil
	case "HALF-EVEN":
		return d.RoundBank(precision), nil
	case "UP":
		return d.RoundUp(precision), nil
	case "DOWN":
		return d.RoundDown(precision), nil
	}
	return decimal.Decimal{}, fmt.Errorf("unknown rounding method %q", method)
}

// float_compare(a, b, precision_digits=2) returns -1, 0 or 1 after rounding
// the difference.
func builtinFloatCompare(args []any, kwargs map[string]any) (any, error) {
	if err := arity("float_compare", args, kwargs, 2, 3); err != nil {
		return nil, err
	}
	a, err := number("float_compare", args[0])
	if err != nil {
		return nil, err
	}
	b, err := number("float_compare", args[1])
	if err != nil {
		return nil, err
	}
	precision := int32(2)
	if v, ok := arg(args, kwargs, 2, "precision_digits"); ok {
		if precision, err = places("float_compare", v); err != nil {
			return nil, err
		}
	}
	diff := a.Round(precision).Sub(b.Round(precision))
	return decimal.NewFromInt(int64(diff.Sign())), nil
}

func builtinFloatIsZero(args []any, kwargs map[string]any) (any, error) {
	if err := arity("float_is_zero", args, kwargs, 1, 2); err != nil {
		return nil, err
	}
	d, err := number("float_is_zero", args[0])
	if err != nil {
		return nil, err
	}
	precision := int32(2)
	if v, ok := arg(args, kwargs, 1, "precision_digits"); ok {
		if precision, err = places("float_is_zero", v); err != nil {
			return nil, err
		}
	}
	return d.Round(precision).IsZero(), nil
}

// date(year, month, day) or date("YYYY-MM-DD").
func builtinDate(args []any, kwargs map[string]any) (any, error) {
	if err := noKwargs("date", kwargs); err != nil {
		return nil, err
	}
	if len(args) == 1 {
		s, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("date() expects a YYYY-MM-DD string")
		}
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return nil, fmt.Errorf("date(): invalid date %q", s)
		}
		return t, nil
	}
	if err := arity("date", args, kwargs, 3, 3); err != nil {
		return nil, err
	}
	var parts [3]int64
	for i := range parts {
		n, err := integer("date", args[i])
		if err != nil {
			return nil, err
		}
		parts[i] = n
	}
	t := time.Date(int(parts[0]), time.Month(parts[1]), int(parts[2]), 0, 0, 0, 0, time.UTC)
	if t.Year() != int(parts[0]) || int64(t.Month()) != parts[1] || int64(t.Day()) != parts[2] {
		return nil, fmt.Errorf("date(): day is out of range for month")
	}
	return t, nil
}

func builtinAddDays(args []any, kwargs map[string]any) (any, error) {
	if err := arity("add_days", args, kwargs, 2, 2); err != nil {
		return nil, err
	}
	t, err := dateArg("add_days", args[0])
	if err != nil {
		return nil, err
	}
	n, err := integer("add_days", args[1])
	if err != nil {
		return nil, err
	}
	return t.AddDate(0, 0, int(n)), nil
}

// add_months clamps to the last day of the target month, so Jan 31 plus one
// month is Feb 28 (or 29).
func builtinAddMonths(args []any, kwargs map[string]any) (any, error) {
	if err := arity("add_months", args, kwargs, 2, 2); err != nil {
		return nil, err
	}
	t, err := dateArg("add_months", args[0])
	if err != nil {
		return nil, err
	}
	n, err := integer("add_months", args[1])
	if err != nil {
		return nil, err
	}
	return AddMonths(t, int(n)), nil
}

func AddMonths(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	last := first.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

func builtinDaysBetween(args []any, kwargs map[string]any) (any, error) {
	if err := arity("days_between", args, kwargs, 2, 2); err != nil {
		return nil, err
	}
	from, err := dateArg("days_between", args[0])
	if err != nil {
		return nil, err
	}
	to, err := dateArg("days_between", args[1])
	if err != nil {
		return nil, err
	}
	return daysBetween(from, to), nil
}
