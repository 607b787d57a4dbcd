package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"

	"salaryrules/internal/platform/sandbox"
)

var hundred = decimal.NewFromInt(100)

type predicateState int8

const (
	predicateUnknown predicateState = iota
	predicateHeld
	predicateFailed
)

// evaluator runs the rules of one catalog against one environment.
type evaluator struct {
	catalog *Catalog
	env     *environment
	held    []predicateState
}

func newEvaluator(c *Catalog, env *environment) *evaluator {
	return &evaluator{catalog: c, env: env, held: make([]predicateState, c.Len())}
}

// holds reports whether rule i applies: it is active, every ancestor
// applies, and its own condition holds. Results are memoized, and parents
// always precede children, so each condition runs at most once.
func (ev *evaluator) holds(i int) (bool, error) {
	switch ev.held[i] {
	case predicateHeld:
		return true, nil
	case predicateFailed:
		return false, nil
	}
	cr := &ev.catalog.rules[i]
	ok := cr.rule.IsActive()
	if ok && cr.parent >= 0 {
		parentOK, err := ev.holds(cr.parent)
		if err != nil {
			return false, err
		}
		ok = parentOK
	}
	if ok {
		var err error
		if ok, err = ev.condition(cr); err != nil {
			return false, err
		}
	}
	if ok {
		ev.held[i] = predicateHeld
	} else {
		ev.held[i] = predicateFailed
	}
	return ok, nil
}

func (ev *evaluator) condition(cr *compiledRule) (bool, error) {
	r := cr.rule
	switch r.ConditionMode {
	case ConditionRange:
		v, err := ev.evalNumber(r.Code, cr.condition)
		if err != nil {
			return false, err
		}
		return inRange(v, r.ConditionRangeMin, r.ConditionRangeMax), nil
	case ConditionScripted:
		locals, err := ev.exec(r.Code, cr.condition)
		if err != nil {
			return false, err
		}
		return sandbox.Truthy(locals[bindResult]), nil
	}
	return true, nil
}

// evaluate computes rule i. It returns false when the rule does not apply.
func (ev *evaluator) evaluate(i int) (PayslipLine, bool, error) {
	ok, err := ev.holds(i)
	if err != nil || !ok {
		return PayslipLine{}, false, err
	}
	cr := &ev.catalog.rules[i]
	r := cr.rule
	line := PayslipLine{
		RuleCode:         r.Code,
		Name:             r.Name(),
		CategoryCode:     r.CategoryCode,
		Sequence:         r.Sequence,
		Rate:             hundred,
		AppearsOnPayslip: r.ShowsOnPayslip(),
	}

	switch r.AmountMode {
	case AmountFix:
		if line.Quantity, err = ev.evalNumber(r.Code, cr.quantity); err != nil {
			return PayslipLine{}, false, err
		}
		line.Amount = r.AmountFix
	case AmountPercentage:
		if line.Quantity, err = ev.evalNumber(r.Code, cr.quantity); err != nil {
			return PayslipLine{}, false, err
		}
		if line.Amount, err = ev.evalNumber(r.Code, cr.amount); err != nil {
			return PayslipLine{}, false, err
		}
		line.Rate = r.AmountPercentage
	case AmountCode:
		if err := ev.script(cr, &line); err != nil {
			return PayslipLine{}, false, err
		}
	}

	line.Total = line.Amount.Mul(line.Quantity).Mul(line.Rate).Div(hundred)
	ev.env.categories.add(r.CategoryCode, line.Amount)
	ev.env.record(r.Code, RuleTotals{
		Amount:   line.Amount,
		Quantity: line.Quantity,
		Rate:     line.Rate,
		Total:    line.Total,
	})
	return line, true, nil
}

// script runs a code-mode amount. result is required; result_qty wins over
// quantity_expr, which is not evaluated.
func (ev *evaluator) script(cr *compiledRule, line *PayslipLine) error {
	code := cr.rule.Code
	locals, err := ev.exec(code, cr.amount)
	if err != nil {
		return err
	}
	raw := locals[bindResult]
	if raw == nil {
		return &MissingResultError{RuleCode: code}
	}
	if line.Amount, err = scratchNumber(code, cr.amount, bindResult, raw); err != nil {
		return err
	}
	line.Quantity = decimal.NewFromInt(1)
	if v := locals[bindResultQty]; v != nil {
		if line.Quantity, err = scratchNumber(code, cr.amount, bindResultQty, v); err != nil {
			return err
		}
	}
	if v := locals[bindResultRate]; v != nil {
		if line.Rate, err = scratchNumber(code, cr.amount, bindResultRate, v); err != nil {
			return err
		}
	}
	if v := locals[bindResultName]; v != nil {
		name, ok := v.(string)
		if !ok {
			return expressionError(code, cr.amount, fmt.Errorf("%s must be a string, got %s", bindResultName, sandbox.TypeName(v)))
		}
		if name != "" {
			line.Name = name
		}
	}
	return nil
}

func scratchNumber(code string, p *program, name string, v any) (decimal.Decimal, error) {
	d, ok := sandbox.ToDecimal(v)
	if !ok {
		return decimal.Decimal{}, expressionError(code, p, fmt.Errorf("%s must be a number, got %s", name, sandbox.TypeName(v)))
	}
	return d, nil
}

// scratch returns fresh script locals with the scratch bindings reset.
func scratch() map[string]any {
	return map[string]any{
		bindResult:     nil,
		bindResultQty:  decimal.NewFromInt(1),
		bindResultRate: hundred,
		bindResultName: nil,
	}
}

func (ev *evaluator) exec(code string, p *program) (map[string]any, error) {
	if p.err != nil {
		return nil, expressionError(code, p, p.err)
	}
	locals := scratch()
	if err := p.prog.Exec(ev.env, locals); err != nil {
		return nil, expressionError(code, p, err)
	}
	return locals, nil
}

func (ev *evaluator) evalNumber(code string, p *program) (decimal.Decimal, error) {
	if p.err != nil {
		return decimal.Decimal{}, expressionError(code, p, p.err)
	}
	v, err := p.prog.Eval(ev.env)
	if err != nil {
		return decimal.Decimal{}, expressionError(code, p, err)
	}
	d, ok := sandbox.ToDecimal(v)
	if !ok {
		return decimal.Decimal{}, expressionError(code, p, fmt.Errorf("expression must be a number, got %s", sandbox.TypeName(v)))
	}
	return d, nil
}
