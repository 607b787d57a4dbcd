package payroll

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"salaryrules/internal/platform/sandbox"
)

// reserved names are never shadowed by a rule code bound to its total.
var reserved = map[string]bool{
	"employee": true, "contract": true, "payroll": true, "payslip": true,
	"worked_days": true, "inputs": true, "categories": true, "rules": true,
	"rule_parameter": true,
	bindResult: true, bindResultQty: true, bindResultRate: true, bindResultName: true,
}

func init() {
	for _, name := range sandbox.Builtins() {
		reserved[name] = true
	}
}

// environment is the binding a rule expression evaluates against.
type environment struct {
	employee   sandbox.MapObject
	contract   sandbox.MapObject
	payroll    sandbox.MapObject
	workedDays bucketSet
	inputs     bucketSet
	categories *categoryTotals
	rules      rulesView
	totals     map[string]decimal.Decimal
	evaluated  []string
	parameter  sandbox.Func
}

func newEnvironment(catalog *Catalog, in PayslipInput) (*environment, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	payroll, err := payrollObject(in.Payroll)
	if err != nil {
		return nil, err
	}
	var parents map[string]string
	if catalog != nil {
		parents = catalog.catParent
	}
	env := &environment{
		employee:   recordObject(in.Employee),
		contract:   recordObject(in.Contract),
		payroll:    payroll,
		workedDays: newBucketSet(in.WorkedDays),
		inputs:     newBucketSet(in.Inputs),
		categories: newCategoryTotals(parents),
		rules:      rulesView{},
		totals:     map[string]decimal.Decimal{},
	}
	env.parameter = ruleParameter(in.Parameters, in.Payroll.DateTo)
	return env, nil
}

func (e *environment) Lookup(name string) (any, bool) {
	switch name {
	case "employee":
		return e.employee, true
	case "contract":
		return e.contract, true
	case "payroll", "payslip":
		return e.payroll, true
	case "worked_days":
		return e.workedDays, true
	case "inputs":
		return e.inputs, true
	case "categories":
		return e.categories, true
	case "rules":
		return e.rules, true
	case "rule_parameter":
		return e.parameter, true
	}
	if total, ok := e.totals[name]; ok {
		return total, true
	}
	return nil, false
}

// record stores a rule's outcome so later rules can read it.
func (e *environment) record(code string, t RuleTotals) {
	e.rules[code] = t
	e.evaluated = append(e.evaluated, code)
	if bindable(code) {
		e.totals[code] = t.Total
	}
}

func (e *environment) snapshot() Environment {
	rules := make(map[string]RuleTotals, len(e.rules))
	for k, v := range e.rules {
		rules[k] = v
	}
	evaluated := append([]string{}, e.evaluated...)
	return Environment{Categories: e.categories.snapshot(), Rules: rules, Evaluated: evaluated}
}

// bindable reports whether a rule code can also be read as a bare name.
func bindable(code string) bool {
	if code == "" || reserved[code] {
		return false
	}
	if code[0] == '_' || code[len(code)-1] == '_' || (code[0] >= '0' && code[0] <= '9') {
		return false
	}
	for _, c := range code {
		if c != '_' && !(c >= 'a' && c <= 'z') && !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

func recordObject(r Record) sandbox.MapObject {
	out := make(sandbox.MapObject, len(r))
	for k, v := range r {
		out[k] = sandbox.Normalize(v)
	}
	return out
}

func payrollObject(m PayrollMeta) (sandbox.MapObject, error) {
	out := recordObject(Record(m.Extra))
	for field, value := range map[string]string{"date_from": m.DateFrom, "date_to": m.DateTo} {
		if value == "" {
			out[field] = nil
			continue
		}
		t, err := time.Parse(time.DateOnly, value)
		if err != nil {
			return nil, fmt.Errorf("%w: payroll_meta.%s", ErrInvalidInput, field)
		}
		out[field] = t
	}
	out["currency"] = m.Currency
	return out, nil
}

// bucketSet backs worked_days and inputs. Unknown codes read as a zero
// bucket so rules need no existence checks.
type bucketSet map[string]bucketView

func newBucketSet(in map[string]Bucket) bucketSet {
	out := make(bucketSet, len(in))
	for code, b := range in {
		out[code] = newBucketView(code, b)
	}
	return out
}

func (s bucketSet) Attr(code string) (any, error) {
	if b, ok := s[code]; ok {
		return b, nil
	}
	return newBucketView(code, Bucket{}), nil
}

func (s bucketSet) Index(key any) (any, error) {
	code, ok := key.(string)
	if !ok {
		return nil, fmt.Errorf("bucket codes are strings, got %s", sandbox.TypeName(key))
	}
	return s.Attr(code)
}

func (s bucketSet) Contains(key any) (bool, error) {
	code, _ := key.(string)
	_, ok := s[code]
	return ok, nil
}

type bucketView struct {
	code   string
	fields sandbox.MapObject
}

func newBucketView(code string, b Bucket) bucketView {
	fields := recordObject(Record(b.Extra))
	fields["number_of_days"] = b.NumberOfDays
	fields["number_of_hours"] = b.NumberOfHours
	fields["amount"] = b.Amount
	fields["code"] = code
	return bucketView{code: code, fields: fields}
}

func (b bucketView) Attr(name string) (any, error) {
	if v, ok := b.fields[name]; ok {
		return v, nil
	}
	return decimal.Zero, nil
}

func (b bucketView) Index(key any) (any, error) {
	name, _ := key.(string)
	return b.Attr(name)
}

// rulesView backs rules.CODE; rules not evaluated yet read as zeros.
type rulesView map[string]RuleTotals

func (v rulesView) Attr(code string) (any, error) {
	return ruleView(v[code]), nil
}

func (v rulesView) Index(key any) (any, error) {
	code, _ := key.(string)
	return v.Attr(code)
}

func (v rulesView) Contains(key any) (bool, error) {
	code, _ := key.(string)
	_, ok := v[code]
	return ok, nil
}

type ruleView RuleTotals

func (r ruleView) Attr(name string) (any, error) {
	switch name {
	case "amount":
		return r.Amount, nil
	case "quantity":
		return r.Quantity, nil
	case "rate":
		return r.Rate, nil
	case "total":
		return r.Total, nil
	}
	return nil, fmt.Errorf("rule has no field %q", name)
}

// ruleParameter returns the rule_parameter helper: the value of a
// parameter with the latest date_from on or before the period end.
func ruleParameter(params map[string][]ParameterValue, dateTo string) sandbox.Func {
	return func(args []any, kwargs map[string]any) (any, error) {
		if len(args) != 1 || len(kwargs) > 0 {
			return nil, fmt.Errorf("rule_parameter() takes exactly one argument")
		}
		code, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("rule_parameter() expects a parameter code")
		}
		values := append([]ParameterValue(nil), params[code]...)
		sort.SliceStable(values, func(i, j int) bool { return values[i].DateFrom < values[j].DateFrom })
		var found *ParameterValue
		for i := range values {
			if dateTo != "" && values[i].DateFrom > dateTo {
				break
			}
			found = &values[i]
		}
		if found == nil {
			return nil, fmt.Errorf("no value for rule parameter %q at %s", code, dateTo)
		}
		return sandbox.Normalize(found.Value), nil
	}
}
