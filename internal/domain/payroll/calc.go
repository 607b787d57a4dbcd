package payroll

import (
	"github.com/shopspring/decimal"
)

// Compute evaluates every rule of catalog, in order, against input. It is a
// pure function: input and catalog are not modified, and any failure
// returns a *PayslipComputationError with no partial result. rounding is
// applied to the amount and total of emitted lines; nil leaves them as is.
func Compute(catalog *Catalog, input PayslipInput, rounding Rounding) (Result, error) {
	if catalog == nil {
		catalog = &Catalog{}
	}
	env, err := newEnvironment(catalog, input)
	if err != nil {
		return Result{}, &PayslipComputationError{Err: err}
	}
	ev := newEvaluator(catalog, env)
	lines := []PayslipLine{}
	for i := range catalog.rules {
		line, applied, err := ev.evaluate(i)
		if err != nil {
			return Result{}, &PayslipComputationError{RuleCode: catalog.rules[i].rule.Code, Err: err}
		}
		if !applied || !line.AppearsOnPayslip {
			continue
		}
		if rounding != nil {
			line.Amount = rounding(line.Amount)
			line.Total = rounding(line.Total)
		}
		lines = append(lines, line)
	}
	return Result{Lines: lines, Environment: env.snapshot()}, nil
}

// Summary totals a payslip: positive line totals are earnings, negative
// ones deductions.
type Summary struct {
	Gross      decimal.Decimal `json:"gross"`
	Deductions decimal.Decimal `json:"deductions"`
	Net        decimal.Decimal `json:"net"`
}

func Summarize(lines []PayslipLine) Summary {
	var s Summary
	for _, line := range lines {
		switch line.Total.Sign() {
		case 1:
			s.Gross = s.Gross.Add(line.Total)
		case -1:
			s.Deductions = s.Deductions.Add(line.Total.Neg())
		}
	}
	s.Net = s.Gross.Sub(s.Deductions)
	return s
}
