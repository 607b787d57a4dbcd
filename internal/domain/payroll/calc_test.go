package payroll

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salaryrules/internal/platform/sandbox"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func boolPtr(v bool) *bool { return &v }

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Truef(t, d(want).Equal(got), "expected %s, got %s %v", want, got, msgAndArgs)
}

func mustCatalog(t *testing.T, rules []SalaryRule, cats ...Category) *Catalog {
	t.Helper()
	c, err := BuildCatalog(rules, cats...)
	require.NoError(t, err)
	return c
}

func compute(t *testing.T, rules []SalaryRule, in PayslipInput) Result {
	t.Helper()
	res, err := Compute(mustCatalog(t, rules), in, nil)
	require.NoError(t, err)
	return res
}

func TestScenarioBasicFixedSalary(t *testing.T) {
	res := compute(t, []SalaryRule{
		{Code: "BASIC", Sequence: 10, CategoryCode: "BASIC", AmountMode: AmountFix, AmountFix: d("1000"), QuantityExpr: "1"},
	}, PayslipInput{})

	require.Len(t, res.Lines, 1)
	line := res.Lines[0]
	assert.Equal(t, "BASIC", line.RuleCode)
	assertDec(t, "1", line.Quantity)
	assertDec(t, "100", line.Rate)
	assertDec(t, "1000", line.Amount)
	assertDec(t, "1000", line.Total)
	assertDec(t, "1000", res.Category("BASIC"))
}

func TestScenarioPercentageOfPriorRule(t *testing.T) {
	res := compute(t, []SalaryRule{
		{Code: "BASIC", Sequence: 10, CategoryCode: "BASIC", AmountMode: AmountFix, AmountFix: d("1000")},
		{Code: "TAX", Sequence: 20, CategoryCode: "DED", AmountMode: AmountPercentage, AmountPercentage: d("-10"), AmountPercentageBaseExpr: "categories.BASIC"},
	}, PayslipInput{})

	require.Len(t, res.Lines, 2)
	assert.Equal(t, "BASIC", res.Lines[0].RuleCode)
	assertDec(t, "1000", res.Lines[0].Amount)
	assertDec(t, "100", res.Lines[0].Rate)
	assert.Equal(t, "TAX", res.Lines[1].RuleCode)
	assertDec(t, "1000", res.Lines[1].Amount)
	assertDec(t, "-10", res.Lines[1].Rate)
	assertDec(t, "-100", res.Lines[1].Total)

	// The base amount, not the computed product, goes into the category.
	assert.Len(t, res.Environment.Categories, 2)
	assertDec(t, "1000", res.Category("BASIC"))
	assertDec(t, "1000", res.Category("DED"))
}

func TestScenarioConditionRangeSkip(t *testing.T) {
	rules := []SalaryRule{{
		Code: "BONUS", Sequence: 10, AmountMode: AmountFix, AmountFix: d("500"),
		ConditionMode: ConditionRange, ConditionRangeExpr: "contract.wage",
		ConditionRangeMin: d("2000"), ConditionRangeMax: d("9999"),
	}}

	res := compute(t, rules, PayslipInput{Contract: Record{"wage": 1500}})
	assert.Empty(t, res.Lines)
	assert.Empty(t, res.Environment.Categories)

	res = compute(t, rules, PayslipInput{Contract: Record{"wage": 2000}})
	assert.Len(t, res.Lines, 1, "range is inclusive at the lower bound")

	res = compute(t, rules, PayslipInput{Contract: Record{"wage": 9999}})
	assert.Len(t, res.Lines, 1, "range is inclusive at the upper bound")
}

func TestScenarioParentSkipCascades(t *testing.T) {
	res := compute(t, []SalaryRule{
		{Code: "P", Sequence: 10, AmountMode: AmountFix, AmountFix: d("0"), ConditionMode: ConditionScripted, ConditionScript: "result = False"},
		{Code: "C", Sequence: 20, ParentCode: "P", AmountMode: AmountFix, AmountFix: d("100")},
	}, PayslipInput{})
	assert.Empty(t, res.Lines)
	assert.Empty(t, res.Environment.Rules)
}

func TestScenarioScriptedAmountWithName(t *testing.T) {
	in := PayslipInput{WorkedDays: map[string]Bucket{"WORK100": {NumberOfDays: d("20")}}}
	res := compute(t, []SalaryRule{{
		Code: "ALLOW", Sequence: 10, AmountMode: AmountCode,
		AmountScript: "result = worked_days.WORK100.number_of_days * 5; result_name = 'Meal Voucher'",
	}}, in)

	require.Len(t, res.Lines, 1)
	line := res.Lines[0]
	assert.Equal(t, "ALLOW", line.RuleCode)
	assert.Equal(t, "Meal Voucher", line.Name)
	assertDec(t, "100", line.Amount)
	assertDec(t, "1", line.Quantity)
	assertDec(t, "100", line.Rate)
}

func TestScenarioCycleDetection(t *testing.T) {
	_, err := BuildCatalog([]SalaryRule{
		{Code: "A", Sequence: 10, ParentCode: "B"},
		{Code: "B", Sequence: 20, ParentCode: "A"},
	})
	var cycle *RuleCycleError
	require.ErrorAs(t, err, &cycle)
	assert.ErrorIs(t, err, ErrRuleCycle)
	assert.Equal(t, CycleKindRule, cycle.Kind)
	assert.Equal(t, []string{"A", "B", "A"}, cycle.Chain)
}

func TestComputeIsDeterministic(t *testing.T) {
	rules := []SalaryRule{
		{Code: "BASIC", Sequence: 1, CategoryCode: "GROSS", AmountMode: AmountCode, AmountScript: "result = contract.wage / 3"},
		{Code: "HRA", Sequence: 2, CategoryCode: "GROSS", AmountMode: AmountPercentage, AmountPercentage: d("40"), AmountPercentageBaseExpr: "BASIC"},
		{Code: "NET", Sequence: 3, CategoryCode: "NET", AmountMode: AmountCode, AmountScript: "result = categories.GROSS"},
	}
	c := mustCatalog(t, rules)
	in := PayslipInput{Contract: Record{"wage": json.Number("1000")}}

	first, err := Compute(c, in, RoundHalfUp(2))
	require.NoError(t, err)
	second, err := Compute(c, in, RoundHalfUp(2))
	require.NoError(t, err)

	a, err := json.Marshal(first.Lines)
	require.NoError(t, err)
	b, err := json.Marshal(second.Lines)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, first.Environment.Categories, second.Environment.Categories)
}

func TestEqualSequenceKeepsInputOrder(t *testing.T) {
	res := compute(t, []SalaryRule{
		{Code: "Z", Sequence: 5, AmountFix: d("1")},
		{Code: "A", Sequence: 5, AmountFix: d("2")},
		{Code: "M", Sequence: 1, AmountFix: d("3")},
		{Code: "B", Sequence: 5, AmountFix: d("4")},
	}, PayslipInput{})

	var codes []string
	for _, l := range res.Lines {
		codes = append(codes, l.RuleCode)
	}
	assert.Equal(t, []string{"M", "Z", "A", "B"}, codes)
}

func TestInactiveRuleIgnored(t *testing.T) {
	res := compute(t, []SalaryRule{
		{Code: "OFF", Sequence: 1, CategoryCode: "GROSS", Active: boolPtr(false), AmountFix: d("50")},
		{Code: "READ", Sequence: 2, AmountMode: AmountCode, AmountScript: "result = rules.OFF.total + categories.GROSS"},
	}, PayslipInput{})

	require.Len(t, res.Lines, 1)
	assertDec(t, "0", res.Lines[0].Amount)
	_, ok := res.Environment.Rules["OFF"]
	assert.False(t, ok)
}

func TestInactiveParentSkipsChildren(t *testing.T) {
	res := compute(t, []SalaryRule{
		{Code: "P", Sequence: 1, Active: boolPtr(false), AmountFix: d("1")},
		{Code: "C", Sequence: 2, ParentCode: "P", AmountFix: d("1")},
	}, PayslipInput{})
	assert.Empty(t, res.Lines)
}

func TestHiddenRuleStillUpdatesCategoriesAndRules(t *testing.T) {
	res := compute(t, []SalaryRule{
		{Code: "HIDDEN", Sequence: 1, CategoryCode: "BASE", AppearsOnPayslip: boolPtr(false), AmountFix: d("300")},
		{Code: "SHOWN", Sequence: 2, AmountMode: AmountCode, AmountScript: "result = rules.HIDDEN.amount + categories.BASE"},
	}, PayslipInput{})

	require.Len(t, res.Lines, 1)
	assert.Equal(t, "SHOWN", res.Lines[0].RuleCode)
	assertDec(t, "600", res.Lines[0].Amount)
	assertDec(t, "300", res.Category("BASE"))
}

func TestZeroResultIsEmitted(t *testing.T) {
	res := compute(t, []SalaryRule{
		{Code: "ZERO", Sequence: 1, AmountMode: AmountCode, AmountScript: "result = 0"},
	}, PayslipInput{})
	require.Len(t, res.Lines, 1)
	assertDec(t, "0", res.Lines[0].Amount)
}

func TestRangeWithEqualBounds(t *testing.T) {
	rules := []SalaryRule{{
		Code: "EXACT", Sequence: 1, AmountFix: d("10"),
		ConditionMode: ConditionRange, ConditionRangeExpr: "inputs.DAYS.amount",
		ConditionRangeMin: d("5"), ConditionRangeMax: d("5"),
	}}
	for amount, want := range map[string]int{"5": 1, "5.0": 1, "4.99": 0, "6": 0} {
		res := compute(t, rules, PayslipInput{Inputs: map[string]Bucket{"DAYS": {Amount: d(amount)}}})
		assert.Len(t, res.Lines, want, "amount %s", amount)
	}
}

func TestUnknownCodesReadAsZero(t *testing.T) {
	res := compute(t, []SalaryRule{{
		Code: "PROBE", Sequence: 1, AmountMode: AmountCode,
		AmountScript: `
result = categories.NOPE + rules.NOPE.amount + rules.NOPE.total + rules.NOPE.quantity + rules.NOPE.rate
result += worked_days.NOPE.number_of_days + worked_days.NOPE.number_of_hours + worked_days.NOPE.amount
result += inputs.NOPE.amount + inputs['ALSO_NOPE'].amount + categories['X']
`,
	}}, PayslipInput{})
	require.Len(t, res.Lines, 1)
	assertDec(t, "0", res.Lines[0].Amount)
}

func TestResultQtyWinsOverQuantityExpr(t *testing.T) {
	res := compute(t, []SalaryRule{{
		Code: "OT", Sequence: 1, AmountMode: AmountCode, QuantityExpr: "undefined_name * 2",
		AmountScript: "result = 12.5\nresult_qty = 8\nresult_rate = 150",
	}}, PayslipInput{})
	require.Len(t, res.Lines, 1)
	line := res.Lines[0]
	assertDec(t, "8", line.Quantity)
	assertDec(t, "150", line.Rate)
	assertDec(t, "150", line.Total)
	assertDec(t, "150", res.Environment.Rules["OT"].Total)
}

func TestScratchBindingsResetBetweenRules(t *testing.T) {
	res := compute(t, []SalaryRule{
		{Code: "A", Sequence: 1, AmountMode: AmountCode, AmountScript: "result = 1\nresult_qty = 3\nresult_name = 'First'"},
		{Code: "B", Sequence: 2, DisplayName: "Second rule", AmountMode: AmountCode, AmountScript: "result = result_qty + result_rate"},
	}, PayslipInput{})
	require.Len(t, res.Lines, 2)
	assert.Equal(t, "Second rule", res.Lines[1].Name)
	assertDec(t, "1", res.Lines[1].Quantity)
	assertDec(t, "101", res.Lines[1].Amount)
}

func TestRuleCodeBoundToTotal(t *testing.T) {
	res := compute(t, []SalaryRule{
		{Code: "BASIC", Sequence: 1, AmountMode: AmountCode, AmountScript: "result = 100\nresult_qty = 2"},
		{Code: "DOUBLE", Sequence: 2, AmountMode: AmountCode, AmountScript: "result = BASIC * 2"},
	}, PayslipInput{})
	assertDec(t, "400", res.Lines[1].Amount)
}

func TestCategoryHierarchy(t *testing.T) {
	c := mustCatalog(t, []SalaryRule{
		{Code: "BASIC", Sequence: 1, CategoryCode: "BASIC", AmountFix: d("1000")},
		{Code: "HRA", Sequence: 2, CategoryCode: "ALW", AmountFix: d("200")},
		{Code: "GROSSUP", Sequence: 3, AmountMode: AmountCode, AmountScript: "result = categories.GROSS"},
	},
		Category{Code: "GROSS"},
		Category{Code: "BASIC", ParentCode: "GROSS"},
		Category{Code: "ALW", ParentCode: "GROSS"},
	)
	res, err := Compute(c, PayslipInput{}, nil)
	require.NoError(t, err)
	assertDec(t, "1200", res.Category("GROSS"))
	assertDec(t, "1000", res.Category("BASIC"))
	assertDec(t, "200", res.Category("ALW"))
	assertDec(t, "1200", res.Lines[2].Amount)
}

func TestCategorySumInvariant(t *testing.T) {
	rules := []SalaryRule{
		{Code: "A", Sequence: 1, CategoryCode: "X", AmountFix: d("10.5")},
		{Code: "B", Sequence: 2, CategoryCode: "X", AmountMode: AmountCode, AmountScript: "result = -3"},
		{Code: "C", Sequence: 3, CategoryCode: "X", ConditionMode: ConditionScripted, ConditionScript: "result = 0", AmountFix: d("99")},
		{Code: "D", Sequence: 4, CategoryCode: "Y", AmountMode: AmountPercentage, AmountPercentage: d("50"), AmountPercentageBaseExpr: "categories.X", QuantityExpr: "2"},
	}
	res := compute(t, rules, PayslipInput{})
	assertDec(t, "7.5", res.Category("X"))
	assertDec(t, "7.5", res.Category("Y"))
	assertDec(t, "7.5", res.Lines[2].Total)
}

func TestComputeDoesNotMutateInput(t *testing.T) {
	in := PayslipInput{
		Contract:   Record{"wage": json.Number("3000")},
		WorkedDays: map[string]Bucket{"WORK100": {NumberOfDays: d("20")}},
	}
	before, err := json.Marshal(in)
	require.NoError(t, err)
	c := mustCatalog(t, []SalaryRule{
		{Code: "S", Sequence: 1, AmountMode: AmountCode, AmountScript: "wage = contract.wage\nresult = wage"},
	})
	orderedBefore := c.Ordered()

	_, err = Compute(c, in, nil)
	require.NoError(t, err)

	after, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
	assert.Equal(t, orderedBefore, c.Ordered())
}

func TestEmptyCatalog(t *testing.T) {
	res, err := Compute(mustCatalog(t, nil), PayslipInput{}, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Lines)
	assert.NotNil(t, res.Lines)
	assert.Empty(t, res.Environment.Categories)
}

func TestRoundingAppliesToEmittedLinesOnly(t *testing.T) {
	rules := []SalaryRule{
		{Code: "THIRD", Sequence: 1, CategoryCode: "G", AmountMode: AmountCode, AmountScript: "result = 10 / 3"},
		{Code: "HALF", Sequence: 2, AmountMode: AmountCode, AmountScript: "result = 0.125"},
	}
	res, err := Compute(mustCatalog(t, rules), PayslipInput{}, RoundHalfUp(2))
	require.NoError(t, err)
	assertDec(t, "3.33", res.Lines[0].Amount)
	assertDec(t, "0.13", res.Lines[1].Amount)
	assert.True(t, res.Category("G").GreaterThan(d("3.333")), "categories keep full precision")

	res, err = Compute(mustCatalog(t, rules), PayslipInput{}, RoundBankers(2))
	require.NoError(t, err)
	assertDec(t, "0.12", res.Lines[1].Amount)
}

func TestComputeErrors(t *testing.T) {
	cases := []struct {
		name   string
		rule   SalaryRule
		target error
		kind   string
	}{
		{"missing result", SalaryRule{Code: "R", AmountMode: AmountCode, AmountScript: "x = 1"}, ErrMissingResult, ""},
		{"runtime failure", SalaryRule{Code: "R", AmountMode: AmountCode, AmountScript: "result = 1 / 0"}, ErrRuleExpression, ExprAmount},
		{"bad quantity", SalaryRule{Code: "R", QuantityExpr: "'two'"}, ErrRuleExpression, ExprQuantity},
		{"bad condition", SalaryRule{Code: "R", ConditionMode: ConditionRange, ConditionRangeExpr: "contract.missing"}, ErrRuleExpression, ExprCondition},
		{"syntax error", SalaryRule{Code: "R", AmountMode: AmountPercentage, AmountPercentageBaseExpr: "1 +"}, ErrRuleExpression, ExprAmount},
		{"import", SalaryRule{Code: "R", AmountMode: AmountCode, AmountScript: "import os\nresult = 1"}, ErrSandboxViolation, ExprAmount},
		{"dunder", SalaryRule{Code: "R", ConditionMode: ConditionScripted, ConditionScript: "result = contract.__class__"}, ErrSandboxViolation, ExprCondition},
		{"non-numeric result", SalaryRule{Code: "R", AmountMode: AmountCode, AmountScript: "result = 'x'"}, ErrRuleExpression, ExprAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Compute(mustCatalog(t, []SalaryRule{tc.rule}), PayslipInput{}, nil)
			require.Error(t, err)
			assert.Empty(t, res.Lines)

			var pce *PayslipComputationError
			require.ErrorAs(t, err, &pce)
			assert.Equal(t, "R", pce.RuleCode)
			assert.ErrorIs(t, err, tc.target)

			switch {
			case tc.target == ErrRuleExpression:
				var ree *RuleExpressionError
				require.ErrorAs(t, err, &ree)
				assert.Equal(t, tc.kind, ree.Kind)
			case tc.target == ErrSandboxViolation:
				var sve *SandboxViolationError
				require.ErrorAs(t, err, &sve)
				assert.Equal(t, tc.kind, sve.Kind)
				assert.ErrorIs(t, err, sandbox.ErrViolation)
			}
		})
	}
}

func TestNoPartialResultOnFailure(t *testing.T) {
	res, err := Compute(mustCatalog(t, []SalaryRule{
		{Code: "OK", Sequence: 1, AmountFix: d("1")},
		{Code: "BAD", Sequence: 2, AmountMode: AmountCode, AmountScript: "result = nope"},
	}), PayslipInput{}, nil)
	require.Error(t, err)
	assert.Nil(t, res.Lines)
	assert.Nil(t, res.Environment.Categories)
}

func TestRuleParameter(t *testing.T) {
	in := PayslipInput{
		Payroll: PayrollMeta{DateFrom: "2024-06-01", DateTo: "2024-06-30"},
		Parameters: map[string][]ParameterValue{
			"MIN_WAGE": {
				{DateFrom: "2024-07-01", Value: 1300},
				{DateFrom: "2023-01-01", Value: 1100},
				{DateFrom: "2024-01-01", Value: 1200},
			},
		},
	}
	res := compute(t, []SalaryRule{
		{Code: "FLOOR", Sequence: 1, AmountMode: AmountCode, AmountScript: "result = rule_parameter('MIN_WAGE')"},
		{Code: "DAYS", Sequence: 2, AmountMode: AmountCode, AmountScript: "result = payroll.date_to - payroll.date_from + 1"},
	}, in)
	assertDec(t, "1200", res.Lines[0].Amount)
	assertDec(t, "30", res.Lines[1].Amount)

	_, err := Compute(mustCatalog(t, []SalaryRule{
		{Code: "MISSING", AmountMode: AmountCode, AmountScript: "result = rule_parameter('NOPE')"},
	}), in, nil)
	assert.ErrorIs(t, err, ErrRuleExpression)
}

func TestInvalidInputRejected(t *testing.T) {
	_, err := Compute(mustCatalog(t, nil), PayslipInput{Payroll: PayrollMeta{DateFrom: "June"}}, nil)
	assert.ErrorIs(t, err, ErrPayslipComputation)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]PayslipLine{
		{Total: d("1000")},
		{Total: d("250")},
		{Total: d("-100")},
		{Total: d("0")},
	})
	if !s.Gross.Equal(d("1250")) {
		t.Fatalf("expected gross 1250, got %v", s.Gross)
	}
	if !s.Deductions.Equal(d("100")) {
		t.Fatalf("expected deductions 100, got %v", s.Deductions)
	}
	if !s.Net.Equal(d("1150")) {
		t.Fatalf("expected net 1150, got %v", s.Net)
	}
}

func TestPayslipInputDecodesBucketsAndRecords(t *testing.T) {
	raw := `{
		"employee": {"name": "Ana", "children": 2},
		"contract": {"wage": 3000.10},
		"worked_days": {"WORK100": {"number_of_days": 20, "number_of_hours": 160, "amount": "3000.10", "paid": true}},
		"inputs": {"BONUS": {"amount": 150}},
		"payroll_meta": {"date_from": "2024-06-01", "date_to": "2024-06-30", "currency": "EUR", "company": "ACME"}
	}`
	var in PayslipInput
	require.NoError(t, json.Unmarshal([]byte(raw), &in))
	assertDec(t, "20", in.WorkedDays["WORK100"].NumberOfDays)
	assert.Equal(t, true, in.WorkedDays["WORK100"].Extra["paid"])
	assert.Equal(t, "EUR", in.Payroll.Currency)
	assert.Equal(t, "ACME", in.Payroll.Extra["company"])

	res := compute(t, []SalaryRule{{
		Code: "ALL", Sequence: 1, AmountMode: AmountCode,
		AmountScript: `
if worked_days.WORK100.paid and payroll.company == 'ACME' and payroll.currency == 'EUR':
    result = contract.wage + inputs.BONUS.amount + employee.children
`,
	}}, in)
	assertDec(t, "3152.10", res.Lines[0].Amount)
}
