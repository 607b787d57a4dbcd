package payroll

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SalaryRule is one declarative computation step. The JSON names are the
// ones rule authors see, so they stay snake_case.
type SalaryRule struct {
	Code                     string          `json:"code"`
	DisplayName              string          `json:"display_name,omitempty"`
	Sequence                 int             `json:"sequence"`
	CategoryCode             string          `json:"category_code,omitempty"`
	Active                   *bool           `json:"active,omitempty"`
	AppearsOnPayslip         *bool           `json:"appears_on_payslip,omitempty"`
	ParentCode               string          `json:"parent_code,omitempty"`
	ConditionMode            string          `json:"condition_mode,omitempty"`
	ConditionRangeExpr       string          `json:"condition_range_expr,omitempty"`
	ConditionRangeMin        decimal.Decimal `json:"condition_range_min"`
	ConditionRangeMax        decimal.Decimal `json:"condition_range_max"`
	ConditionScript          string          `json:"condition_script,omitempty"`
	AmountMode               string          `json:"amount_mode,omitempty"`
	QuantityExpr             string          `json:"quantity_expr,omitempty"`
	AmountFix                decimal.Decimal `json:"amount_fix"`
	AmountPercentage         decimal.Decimal `json:"amount_percentage"`
	AmountPercentageBaseExpr string          `json:"amount_percentage_base_expr,omitempty"`
	AmountScript             string          `json:"amount_script,omitempty"`
}

func (r SalaryRule) IsActive() bool {
	return r.Active == nil || *r.Active
}

func (r SalaryRule) ShowsOnPayslip() bool {
	return r.AppearsOnPayslip == nil || *r.AppearsOnPayslip
}

// Name is the display name, falling back to the code.
func (r SalaryRule) Name() string {
	if r.DisplayName != "" {
		return r.DisplayName
	}
	return r.Code
}

// withDefaults fills the optional fields the way an absent value reads.
func (r SalaryRule) withDefaults() SalaryRule {
	if r.ConditionMode == "" {
		r.ConditionMode = ConditionAlways
	}
	if r.AmountMode == "" {
		r.AmountMode = AmountFix
	}
	if r.QuantityExpr == "" {
		r.QuantityExpr = DefaultQuantityExpr
	}
	return r.clone()
}

// clone copies r with flag pointers of its own.
func (r SalaryRule) clone() SalaryRule {
	active, shows := r.IsActive(), r.ShowsOnPayslip()
	r.Active, r.AppearsOnPayslip = &active, &shows
	return r
}

// Category groups rule amounts. A category with a parent also adds into the
// parent's total.
type Category struct {
	Code       string `json:"code"`
	Name       string `json:"name,omitempty"`
	ParentCode string `json:"parent_code,omitempty"`
}

// Record is an opaque employee or contract binding. Numbers decode as
// json.Number so amounts keep their exact decimal digits.
type Record map[string]any

func (r *Record) UnmarshalJSON(data []byte) error {
	m, err := decodeObject(data)
	if err != nil {
		return err
	}
	*r = m
	return nil
}

// Bucket is a worked-days tally or a manual input line. Fields other than
// the three well-known ones are kept in Extra and readable by scripts.
type Bucket struct {
	NumberOfDays  decimal.Decimal `json:"number_of_days"`
	NumberOfHours decimal.Decimal `json:"number_of_hours"`
	Amount        decimal.Decimal `json:"amount"`
	Extra         map[string]any  `json:"-"`
}

func (b *Bucket) UnmarshalJSON(data []byte) error {
	m, err := decodeObject(data)
	if err != nil {
		return err
	}
	var out Bucket
	for k, v := range m {
		var target *decimal.Decimal
		switch k {
		case "number_of_days":
			target = &out.NumberOfDays
		case "number_of_hours":
			target = &out.NumberOfHours
		case "amount":
			target = &out.Amount
		default:
			if out.Extra == nil {
				out.Extra = map[string]any{}
			}
			out.Extra[k] = v
			continue
		}
		d, err := decimalFrom(v)
		if err != nil {
			return fmt.Errorf("bucket field %s: %w", k, err)
		}
		*target = d
	}
	*b = out
	return nil
}

func (b Bucket) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(b.Extra)+3)
	for k, v := range b.Extra {
		m[k] = v
	}
	m["number_of_days"] = b.NumberOfDays
	m["number_of_hours"] = b.NumberOfHours
	m["amount"] = b.Amount
	return json.Marshal(m)
}

// PayrollMeta carries the period and other scalars a payslip is computed
// for. Unknown fields are kept in Extra and exposed under payroll.
type PayrollMeta struct {
	DateFrom string         `json:"date_from,omitempty"`
	DateTo   string         `json:"date_to,omitempty"`
	Currency string         `json:"currency,omitempty"`
	Extra    map[string]any `json:"-"`
}

func (m *PayrollMeta) UnmarshalJSON(data []byte) error {
	raw, err := decodeObject(data)
	if err != nil {
		return err
	}
	var out PayrollMeta
	for k, v := range raw {
		switch k {
		case "date_from", "date_to", "currency":
			s, ok := v.(string)
			if !ok && v != nil {
				return fmt.Errorf("payroll_meta.%s must be a string", k)
			}
			switch k {
			case "date_from":
				out.DateFrom = s
			case "date_to":
				out.DateTo = s
			default:
				out.Currency = s
			}
		default:
			if out.Extra == nil {
				out.Extra = map[string]any{}
			}
			out.Extra[k] = v
		}
	}
	*m = out
	return nil
}

func (m PayrollMeta) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+3)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.DateFrom != "" {
		out["date_from"] = m.DateFrom
	}
	if m.DateTo != "" {
		out["date_to"] = m.DateTo
	}
	if m.Currency != "" {
		out["currency"] = m.Currency
	}
	return json.Marshal(out)
}

// ParameterValue is one dated value of a rule parameter.
type ParameterValue struct {
	DateFrom string `json:"date_from"`
	Value    any    `json:"value"`
}

// PayslipInput is everything one computation reads. Compute never mutates
// it.
type PayslipInput struct {
	Employee   Record                      `json:"employee"`
	Contract   Record                      `json:"contract"`
	WorkedDays map[string]Bucket           `json:"worked_days"`
	Inputs     map[string]Bucket           `json:"inputs"`
	Payroll    PayrollMeta                 `json:"payroll_meta"`
	Parameters map[string][]ParameterValue `json:"parameters,omitempty"`
}

// Validate checks the parts of an input the engine parses itself.
func (in PayslipInput) Validate() error {
	for field, value := range map[string]string{"date_from": in.Payroll.DateFrom, "date_to": in.Payroll.DateTo} {
		if value == "" {
			continue
		}
		if _, err := time.Parse(time.DateOnly, value); err != nil {
			return fmt.Errorf("%w: payroll_meta.%s must be YYYY-MM-DD", ErrInvalidInput, field)
		}
	}
	if in.Payroll.DateFrom != "" && in.Payroll.DateTo != "" && in.Payroll.DateTo < in.Payroll.DateFrom {
		return fmt.Errorf("%w: payroll_meta.date_to is before date_from", ErrInvalidInput)
	}
	for code, values := range in.Parameters {
		for _, v := range values {
			if _, err := time.Parse(time.DateOnly, v.DateFrom); err != nil {
				return fmt.Errorf("%w: parameter %s has an invalid date_from", ErrInvalidInput, code)
			}
		}
	}
	return nil
}

// PayslipLine is one computed output row. Total is
// quantity * rate * amount / 100.
type PayslipLine struct {
	RuleCode         string          `json:"rule_code"`
	Name             string          `json:"name"`
	CategoryCode     string          `json:"category_code,omitempty"`
	Sequence         int             `json:"sequence"`
	Quantity         decimal.Decimal `json:"quantity"`
	Rate             decimal.Decimal `json:"rate"`
	Amount           decimal.Decimal `json:"amount"`
	Total            decimal.Decimal `json:"total"`
	AppearsOnPayslip bool            `json:"appears_on_payslip"`
}

// RuleTotals is what rules.CODE exposes for an evaluated rule.
type RuleTotals struct {
	Amount   decimal.Decimal `json:"amount"`
	Quantity decimal.Decimal `json:"quantity"`
	Rate     decimal.Decimal `json:"rate"`
	Total    decimal.Decimal `json:"total"`
}

// Environment is the final state of a computation, for introspection.
type Environment struct {
	Categories map[string]decimal.Decimal `json:"categories"`
	Rules      map[string]RuleTotals      `json:"rules"`
	Evaluated  []string                   `json:"evaluated"`
}

type Result struct {
	Lines       []PayslipLine `json:"lines"`
	Environment Environment   `json:"environment"`
}

// Category returns the final total of a category, zero when unknown.
func (r Result) Category(code string) decimal.Decimal {
	return r.Environment.Categories[code]
}

// Structure is a stored, named rule set.
type Structure struct {
	ID         string       `json:"id"`
	Code       string       `json:"code"`
	Name       string       `json:"name"`
	Rules      []SalaryRule `json:"rules"`
	Categories []Category   `json:"categories,omitempty"`
	CreatedAt  time.Time    `json:"createdAt"`
}

type StructureSummary struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	RuleCount int       `json:"ruleCount"`
	CreatedAt time.Time `json:"createdAt"`
}

// Payslip is a stored computation.
type Payslip struct {
	ID           string        `json:"id"`
	StructureID  string        `json:"structureId"`
	EmployeeRef  string        `json:"employeeRef"`
	EmployeeName string        `json:"employeeName"`
	DateFrom     string        `json:"dateFrom,omitempty"`
	DateTo       string        `json:"dateTo,omitempty"`
	Currency     string        `json:"currency,omitempty"`
	Summary      Summary       `json:"summary"`
	Lines        []PayslipLine `json:"lines,omitempty"`
	Environment  *Environment  `json:"environment,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// BatchItem is the outcome of one payslip in a batch run.
type BatchItem struct {
	Index     int      `json:"index"`
	PayslipID string   `json:"payslipId,omitempty"`
	Summary   *Summary `json:"summary,omitempty"`
	Error     string   `json:"error,omitempty"`
	ErrorCode string   `json:"errorCode,omitempty"`
}

// RegisterRow is one payslip line flattened for the register export.
type RegisterRow struct {
	PayslipID    string
	EmployeeRef  string
	EmployeeName string
	DateFrom     string
	DateTo       string
	Line         PayslipLine
}

func decodeObject(data []byte) (map[string]any, error) {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

func decimalFrom(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, nil
	case json.Number:
		return decimal.NewFromString(x.String())
	case string:
		return decimal.NewFromString(x)
	case float64:
		return decimal.NewFromFloat(x), nil
	}
	return decimal.Decimal{}, fmt.Errorf("expected a number, got %T", v)
}
