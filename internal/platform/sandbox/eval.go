package sandbox

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	errBreak    = errors.New("break")
	errContinue = errors.New("continue")
)

type frame struct {
	env    Env
	locals map[string]any
	steps  int
	budget int
}

func (f *frame) tick(pos Pos) error {
	return f.charge(pos, 1)
}

func (f *frame) charge(pos Pos, n int) error {
	f.steps += n
	if f.steps > f.budget {
		return &Violation{Pos: pos, Construct: "step budget exhausted"}
	}
	return nil
}

// sizeCost is the extra step cost of producing v: one step per 100 list
// elements, string bytes or decimal digits.
func sizeCost(v any) int {
	switch x := v.(type) {
	case []any:
		return len(x) / 100
	case string:
		return len(x) / 100
	case decimal.Decimal:
		return x.NumDigits() / 100
	}
	return 0
}

func (f *frame) lookup(pos Pos, name string) (any, error) {
	if f.locals != nil {
		if v, ok := f.locals[name]; ok {
			return v, nil
		}
	}
	if f.env != nil {
		if v, ok := f.env.Lookup(name); ok {
			return v, nil
		}
	}
	if fn, ok := builtins[name]; ok {
		return fn, nil
	}
	return nil, runtimeErr(pos, "name %q is not defined", name)
}

func execBody(f *frame, body []stmt) error {
	for _, s := range body {
		if err := s.exec(f); err != nil {
			return err
		}
	}
	return nil
}

func (s *exprStmt) exec(f *frame) error {
	_, err := s.x.eval(f)
	return err
}

func (s *assignStmt) exec(f *frame) error {
	if err := f.tick(s.pos); err != nil {
		return err
	}
	value, err := s.value.eval(f)
	if err != nil {
		return err
	}
	if s.op != "" {
		current, err := f.lookup(s.pos, s.name)
		if err != nil {
			return err
		}
		value, err = binary(s.pos, s.op, current, value)
		if err != nil {
			return err
		}
		if err := f.charge(s.pos, sizeCost(value)); err != nil {
			return err
		}
	}
	f.locals[s.name] = value
	return nil
}

func (s *ifStmt) exec(f *frame) error {
	for i, cond := range s.conds {
		v, err := cond.eval(f)
		if err != nil {
			return err
		}
		if Truthy(v) {
			return execBody(f, s.bodies[i])
		}
	}
	return execBody(f, s.els)
}

func (s *forStmt) exec(f *frame) error {
	v, err := s.iter.eval(f)
	if err != nil {
		return err
	}
	items, ok := v.([]any)
	if !ok {
		return runtimeErr(s.pos, "%s is not iterable", TypeName(v))
	}
	for _, item := range items {
		if err := f.tick(s.pos); err != nil {
			return err
		}
		f.locals[s.name] = item
		err := execBody(f, s.body)
		if errors.Is(err, errBreak) {
			break
		}
		if errors.Is(err, errContinue) {
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (passStmt) exec(*frame) error     { return nil }
func (breakStmt) exec(*frame) error    { return errBreak }
func (continueStmt) exec(*frame) error { return errContinue }

func (e *literal) eval(*frame) (any, error) {
	return e.val, nil
}

func (e *nameExpr) eval(f *frame) (any, error) {
	if err := f.tick(e.pos); err != nil {
		return nil, err
	}
	return f.lookup(e.pos, e.name)
}

func (e *attrExpr) eval(f *frame) (any, error) {
	if err := f.tick(e.pos); err != nil {
		return nil, err
	}
	obj, err := e.obj.eval(f)
	if err != nil {
		return nil, err
	}
	return attr(e.pos, obj, e.name)
}

func attr(pos Pos, obj any, name string) (any, error) {
	switch o := obj.(type) {
	case Object:
		v, err := o.Attr(name)
		if err != nil {
			return nil, wrapAt(pos, err)
		}
		return v, nil
	case time.Time:
		switch name {
		case "year":
			return decimal.NewFromInt(int64(o.Year())), nil
		case "month":
			return decimal.NewFromInt(int64(o.Month())), nil
		case "day":
			return decimal.NewFromInt(int64(o.Day())), nil
		}
	}
	return nil, runtimeErr(pos, "%s has no attribute %q", TypeName(obj), name)
}

func (e *indexExpr) eval(f *frame) (any, error) {
	if err := f.tick(e.pos); err != nil {
		return nil, err
	}
	obj, err := e.obj.eval(f)
	if err != nil {
		return nil, err
	}
	key, err := e.key.eval(f)
	if err != nil {
		return nil, err
	}
	if s, ok := key.(string); ok {
		if err := checkIdent(token{kind: tokName, text: s, pos: e.pos}); err != nil {
			return nil, err
		}
	}
	switch o := obj.(type) {
	case []any:
		n, ok := key.(decimal.Decimal)
		if !ok || !isInteger(n) {
			return nil, runtimeErr(e.pos, "list index must be an integer")
		}
		i := int(n.IntPart())
		if i < 0 {
			i += len(o)
		}
		if i < 0 || i >= len(o) {
			return nil, runtimeErr(e.pos, "list index out of range")
		}
		return o[i], nil
	case Indexable:
		v, err := o.Index(key)
		if err != nil {
			return nil, wrapAt(e.pos, err)
		}
		return v, nil
	case Object:
		s, ok := key.(string)
		if !ok {
			return nil, runtimeErr(e.pos, "%s keys must be strings", TypeName(obj))
		}
		return attr(e.pos, o, s)
	}
	return nil, runtimeErr(e.pos, "%s is not subscriptable", TypeName(obj))
}

func (e *callExpr) eval(f *frame) (any, error) {
	if err := f.tick(e.pos); err != nil {
		return nil, err
	}
	fn, err := e.fn.eval(f)
	if err != nil {
		return nil, err
	}
	callable, ok := fn.(Callable)
	if !ok {
		return nil, runtimeErr(e.pos, "%s is not callable", TypeName(fn))
	}
	args := make([]any, 0, len(e.args))
	for _, a := range e.args {
		v, err := a.eval(f)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	var kwargs map[string]any
	if len(e.kwargs) > 0 {
		kwargs = make(map[string]any, len(e.kwargs))
		for _, kw := range e.kwargs {
			v, err := kw.val.eval(f)
			if err != nil {
				return nil, err
			}
			kwargs[kw.name] = v
		}
	}
	out, err := callable.Call(args, kwargs)
	if err != nil {
		return nil, wrapAt(e.pos, err)
	}
	return out, nil
}

func (e *unaryExpr) eval(f *frame) (any, error) {
	x, err := e.x.eval(f)
	if err != nil {
		return nil, err
	}
	if e.op == "not" {
		return !Truthy(x), nil
	}
	n, ok := toNumber(x)
	if !ok {
		return nil, runtimeErr(e.pos, "bad operand type for unary %s: %s", e.op, TypeName(x))
	}
	if e.op == "-" {
		return n.Neg(), nil
	}
	return n, nil
}

func (e *binaryExpr) eval(f *frame) (any, error) {
	if err := f.tick(e.pos); err != nil {
		return nil, err
	}
	x, err := e.x.eval(f)
	if err != nil {
		return nil, err
	}
	y, err := e.y.eval(f)
	if err != nil {
		return nil, err
	}
	out, err := binary(e.pos, e.op, x, y)
	if err != nil {
		return nil, err
	}
	if err := f.charge(e.pos, sizeCost(out)); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *logicExpr) eval(f *frame) (any, error) {
	x, err := e.x.eval(f)
	if err != nil {
		return nil, err
	}
	if e.op == "and" && !Truthy(x) {
		return x, nil
	}
	if e.op == "or" && Truthy(x) {
		return x, nil
	}
	return e.y.eval(f)
}

func (e *compareExpr) eval(f *frame) (any, error) {
	left, err := e.first.eval(f)
	if err != nil {
		return nil, err
	}
	for i, op := range e.ops {
		right, err := e.rest[i].eval(f)
		if err != nil {
			return nil, err
		}
		ok, err := compare(e.pos, op, left, right)
		if err != nil {
			return nil, err
		}
		if !ok {
			return false, nil
		}
		left = right
	}
	return true, nil
}

func (e *condExpr) eval(f *frame) (any, error) {
	c, err := e.cond.eval(f)
	if err != nil {
		return nil, err
	}
	if Truthy(c) {
		return e.then.eval(f)
	}
	return e.els.eval(f)
}

func (e *listExpr) eval(f *frame) (any, error) {
	out := make([]any, 0, len(e.elems))
	for _, el := range e.elems {
		v, err := el.eval(f)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func binary(pos Pos, op string, x, y any) (any, error) {
	if op == "+" {
		switch a := x.(type) {
		case string:
			if b, ok := y.(string); ok {
				if len(a)+len(b) > MaxLength {
					return nil, &Violation{Pos: pos, Construct: fmt.Sprintf("string longer than %d", MaxLength)}
				}
				return a + b, nil
			}
		case []any:
			if b, ok := y.([]any); ok {
				if len(a)+len(b) > MaxLength {
					return nil, &Violation{Pos: pos, Construct: fmt.Sprintf("list longer than %d", MaxLength)}
				}
				out := make([]any, 0, len(a)+len(b))
				return append(append(out, a...), b...), nil
			}
		}
	}
	if op == "-" {
		if a, ok := x.(time.Time); ok {
			if b, ok := y.(time.Time); ok {
				return daysBetween(b, a), nil
			}
		}
	}
	a, okA := toNumber(x)
	b, okB := toNumber(y)
	if !okA || !okB {
		return nil, runtimeErr(pos, "unsupported operand types for %s: %s and %s", op, TypeName(x), TypeName(y))
	}
	if err := checkNumber(pos, a); err != nil {
		return nil, err
	}
	if err := checkNumber(pos, b); err != nil {
		return nil, err
	}
	out, err := arithmetic(pos, op, a, b)
	if err != nil {
		return nil, err
	}
	if err := checkNumber(pos, out); err != nil {
		return nil, err
	}
	return out, nil
}

func arithmetic(pos Pos, op string, a, b decimal.Decimal) (decimal.Decimal, error) {
	switch op {
	case "+":
		return a.Add(b), nil
	case "-":
		return a.Sub(b), nil
	case "*":
		return a.Mul(b), nil
	case "/":
		if b.IsZero() {
			return decimal.Decimal{}, runtimeErr(pos, "division by zero")
		}
		return a.Div(b), nil
	case "//":
		if b.IsZero() {
			return decimal.Decimal{}, runtimeErr(pos, "division by zero")
		}
		return a.Div(b).Floor(), nil
	case "%":
		if b.IsZero() {
			return decimal.Decimal{}, runtimeErr(pos, "modulo by zero")
		}
		r := a.Mod(b)
		if !r.IsZero() && r.Sign() != b.Sign() {
			r = r.Add(b)
		}
		return r, nil
	case "**":
		if !isInteger(b) {
			return decimal.Decimal{}, runtimeErr(pos, "exponent must be an integer")
		}
		if a.IsZero() && b.Sign() < 0 {
			return decimal.Decimal{}, runtimeErr(pos, "zero cannot be raised to a negative power")
		}
		if b.Abs().GreaterThan(decimal.NewFromInt(1024)) {
			return decimal.Decimal{}, runtimeErr(pos, "exponent too large")
		}
		return power(pos, a, b.IntPart())
	}
	return decimal.Decimal{}, runtimeErr(pos, "unknown operator %s", op)
}

// power raises x to an integer exponent by repeated squaring, refusing
// intermediate values checkNumber rejects.
func power(pos Pos, x decimal.Decimal, n int64) (decimal.Decimal, error) {
	neg := n < 0
	if neg {
		n = -n
	}
	out := decimal.NewFromInt(1)
	for n > 0 {
		if n&1 == 1 {
			out = out.Mul(x)
			if err := checkNumber(pos, out); err != nil {
				return decimal.Decimal{}, err
			}
		}
		n >>= 1
		if n == 0 {
			break
		}
		x = x.Mul(x)
		if err := checkNumber(pos, x); err != nil {
			return decimal.Decimal{}, err
		}
	}
	if neg {
		return decimal.NewFromInt(1).Div(out), nil
	}
	return out, nil
}

// checkNumber refuses decimals too large or too precise for payroll
// arithmetic, keeping every operation bounded in memory and time.
func checkNumber(pos Pos, d decimal.Decimal) error {
	if d.NumDigits() > MaxDigits {
		return &Violation{Pos: pos, Construct: fmt.Sprintf("number with more than %d digits", MaxDigits)}
	}
	if e := d.Exponent(); e > MaxDigits || e < -MaxDigits {
		return &Violation{Pos: pos, Construct: fmt.Sprintf("number exponent beyond %d", MaxDigits)}
	}
	return nil
}

func compare(pos Pos, op string, x, y any) (bool, error) {
	switch op {
	case "==":
		return Equal(x, y), nil
	case "!=":
		return !Equal(x, y), nil
	case "is":
		return identical(x, y), nil
	case "is not":
		return !identical(x, y), nil
	case "in", "not in":
		found, err := contains(pos, y, x)
		if err != nil {
			return false, err
		}
		if op == "in" {
			return found, nil
		}
		return !found, nil
	}
	c, err := order(pos, x, y)
	if err != nil {
		return false, err
	}
	switch op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	}
	return false, runtimeErr(pos, "unknown comparison %s", op)
}

func identical(x, y any) bool {
	if x == nil || y == nil {
		return x == nil && y == nil
	}
	if a, ok := x.(bool); ok {
		b, ok := y.(bool)
		return ok && a == b
	}
	return Equal(x, y)
}

func contains(pos Pos, container, item any) (bool, error) {
	switch c := container.(type) {
	case []any:
		for _, el := range c {
			if Equal(el, item) {
				return true, nil
			}
		}
		return false, nil
	case string:
		s, ok := item.(string)
		if !ok {
			return false, runtimeErr(pos, "'in <string>' requires a string operand")
		}
		return containsString(c, s), nil
	case Container:
		ok, err := c.Contains(item)
		if err != nil {
			return false, wrapAt(pos, err)
		}
		return ok, nil
	}
	return false, runtimeErr(pos, "argument of type %s is not a container", TypeName(container))
}

func order(pos Pos, x, y any) (int, error) {
	if a, ok := toNumber(x); ok {
		if b, ok := toNumber(y); ok {
			return a.Cmp(b), nil
		}
	}
	switch a := x.(type) {
	case string:
		if b, ok := y.(string); ok {
			switch {
			case a < b:
				return -1, nil
			case a > b:
				return 1, nil
			}
			return 0, nil
		}
	case time.Time:
		if b, ok := y.(time.Time); ok {
			return a.Compare(b), nil
		}
	}
	return 0, runtimeErr(pos, "cannot order %s and %s", TypeName(x), TypeName(y))
}
