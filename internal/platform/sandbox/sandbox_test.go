package sandbox

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got any) {
	t.Helper()
	d, ok := got.(decimal.Decimal)
	require.Truef(t, ok, "expected decimal, got %T (%v)", got, got)
	assert.Truef(t, dec(want).Equal(d), "expected %s, got %s", want, d)
}

func TestEvalArithmetic(t *testing.T) {
	cases := map[string]string{
		"1 + 2 * 3":        "7",
		"(1 + 2) * 3":      "9",
		"10 / 4":           "2.5",
		"7 // 2":           "3",
		"-7 // 2":          "-4",
		"-7 % 3":           "2",
		"7 % -3":           "-2",
		"2 ** 10":          "1024",
		"2 ** -1":          "0.5",
		"-2 ** 2":          "-4",
		"0.1 + 0.2":        "0.3",
		"1e3 + .5":         "1000.5",
		"True + True":      "2",
		"abs(-3.5)":        "3.5",
		"3000 * 10 / 100":  "300",
		"round(2.5)":       "2",
		"round(3.5)":       "4",
		"round(2.675, 2)":  "2.68",
		"ceil(1.2)":        "2",
		"floor(-1.2)":      "-2",
		"int(-3.9)":        "-3",
		"min(3, 1, 2)":     "1",
		"max([1, 5, 2])":   "5",
		"sum([1, 2, 3.5])": "6.5",
		"len([1, 2, 3])":   "3",
	}
	for src, want := range cases {
		t.Run(src, func(t *testing.T) {
			got, err := Eval(src, nil)
			require.NoError(t, err)
			assertDecimal(t, want, got)
		})
	}
}

func TestEvalLogicReturnsOperand(t *testing.T) {
	got, err := Eval("0 or 5", nil)
	require.NoError(t, err)
	assertDecimal(t, "5", got)

	got, err = Eval("'' and 1", nil)
	require.NoError(t, err)
	assert.Equal(t, "", got)

	got, err = Eval("not 0", nil)
	require.NoError(t, err)
	assert.Equal(t, true, got)
}

func TestEvalComparisons(t *testing.T) {
	cases := map[string]bool{
		"1 < 2 < 3":          true,
		"1 < 3 < 2":          false,
		"2 == 2.00":          true,
		"1 == True":          true,
		"'a' != 'b'":         true,
		"3 in [1, 2, 3]":     true,
		"4 not in [1, 2, 3]": true,
		"'ell' in 'hello'":   true,
		"None is None":       true,
		"0 is not None":      true,
	}
	for src, want := range cases {
		t.Run(src, func(t *testing.T) {
			got, err := Eval(src, nil)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestEvalConditional(t *testing.T) {
	env := MapEnv{"wage": dec("2500")}
	got, err := Eval("wage * 0.1 if wage > 2000 else 0", env)
	require.NoError(t, err)
	assertDecimal(t, "250", got)
}

func TestEvalObjects(t *testing.T) {
	env := MapEnv{
		"employee": MapObject{"wage": dec("3000"), "name": "Ana", "children": dec("2")},
		"codes":    []any{"BASIC", "HRA"},
	}

	got, err := Eval("employee.wage * 0.1 + employee.children", env)
	require.NoError(t, err)
	assertDecimal(t, "302", got)

	got, err = Eval("employee['name']", env)
	require.NoError(t, err)
	assert.Equal(t, "Ana", got)

	got, err = Eval("codes[-1]", env)
	require.NoError(t, err)
	assert.Equal(t, "HRA", got)

	_, err = Eval("employee.missing", env)
	var rt *RuntimeError
	require.ErrorAs(t, err, &rt)
	assert.Equal(t, 1, rt.Pos.Line)
}

func TestEvalDates(t *testing.T) {
	got, err := Eval("date(2024, 3, 1) - date(2024, 2, 1)", nil)
	require.NoError(t, err)
	assertDecimal(t, "29", got)

	got, err = Eval("add_months(date(2024, 1, 31), 1)", nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), got)

	got, err = Eval("date('2024-05-17').month", nil)
	require.NoError(t, err)
	assertDecimal(t, "5", got)

	got, err = Eval("days_between(date(2024, 1, 1), add_days(date(2024, 1, 1), 10))", nil)
	require.NoError(t, err)
	assertDecimal(t, "10", got)

	got, err = Eval("date(2024, 1, 31) < date(2024, 2, 1)", nil)
	require.NoError(t, err)
	assert.Equal(t, true, got)

	_, err = Eval("date(2023, 2, 29)", nil)
	require.Error(t, err)
}

func TestFloatHelpers(t *testing.T) {
	got, err := Eval("float_round(2.675, 2)", nil)
	require.NoError(t, err)
	assertDecimal(t, "2.68", got)

	got, err = Eval("float_round(2.671, precision_digits=2, rounding_method='UP')", nil)
	require.NoError(t, err)
	assertDecimal(t, "2.68", got)

	got, err = Eval("float_round(2.679, 2, 'DOWN')", nil)
	require.NoError(t, err)
	assertDecimal(t, "2.67", got)

	got, err = Eval("float_compare(1.001, 1.004)", nil)
	require.NoError(t, err)
	assertDecimal(t, "0", got)

	got, err = Eval("float_compare(1.5, 1.2, precision_digits=1)", nil)
	require.NoError(t, err)
	assertDecimal(t, "1", got)

	got, err = Eval("float_is_zero(0.001)", nil)
	require.NoError(t, err)
	assert.Equal(t, true, got)

	_, err = Eval("float_round(1, 2, 'SIDEWAYS')", nil)
	require.Error(t, err)
}

func TestExecStatements(t *testing.T) {
	src := `
if wage > 2000:
    result = wage * 0.1
elif wage > 1000:
    result = wage * 0.05
else:
    result = 0
result_name = 'Tier ' + str(result)
`
	locals := map[string]any{"result": nil}
	err := Exec(src, MapEnv{"wage": dec("1500")}, locals)
	require.NoError(t, err)
	assertDecimal(t, "75", locals["result"])
	assert.Equal(t, "Tier 75", locals["result_name"])
}

func TestExecLoops(t *testing.T) {
	src := `
total = 0
for i in range(10):
    if i == 7:
        break
    if i % 2 == 0:
        continue
    total += i
result = total
`
	locals := map[string]any{}
	require.NoError(t, Exec(src, nil, locals))
	assertDecimal(t, "9", locals["result"])
}

func TestExecDedentsUniformIndent(t *testing.T) {
	locals := map[string]any{}
	err := Exec("    result = 1\n    result += 2  # three\n", nil, locals)
	require.NoError(t, err)
	assertDecimal(t, "3", locals["result"])
}

func TestExecInlineSuite(t *testing.T) {
	locals := map[string]any{}
	err := Exec("if True: result = 4; result_qty = 2", nil, locals)
	require.NoError(t, err)
	assertDecimal(t, "4", locals["result"])
	assertDecimal(t, "2", locals["result_qty"])
}

func TestViolations(t *testing.T) {
	cases := []struct {
		name string
		src  string
		mode Mode
	}{
		{"import", "import os", ModeExec},
		{"from import", "from os import path", ModeExec},
		{"dunder call", "__import__('os')", ModeExpr},
		{"dunder attribute", "employee.__class__", ModeExpr},
		{"private name", "_secret", ModeExpr},
		{"while loop", "while True:\n    pass", ModeExec},
		{"def", "def f():\n    pass", ModeExec},
		{"lambda", "lambda: 1", ModeExpr},
		{"comprehension", "[x for x in range(3)]", ModeExpr},
		{"eval", "eval('1')", ModeExpr},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(tc.src, tc.mode)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrViolation), "expected violation, got %v", err)
		})
	}
}

func TestRuntimeViolations(t *testing.T) {
	env := MapEnv{"inputs": MapObject{"BONUS": dec("1")}}
	_, err := Eval("inputs['__class__']", env)
	assert.ErrorIs(t, err, ErrViolation)

	_, err = Eval("len(range(20000))", nil)
	assert.ErrorIs(t, err, ErrViolation)
}

func TestStepBudget(t *testing.T) {
	src := `
x = 0
for i in range(1000):
    for j in range(1000):
        x += 1
`
	p, err := Compile(src, ModeExec, WithStepBudget(5000))
	require.NoError(t, err)
	err = p.Exec(nil, map[string]any{})
	assert.ErrorIs(t, err, ErrViolation)
}

func TestNestingLimit(t *testing.T) {
	deep := map[string]string{
		"parentheses": strings.Repeat("(", 10000) + "1" + strings.Repeat(")", 10000),
		"not chain":   strings.Repeat("not ", 10000) + "True",
		"unary chain": strings.Repeat("-", 10000) + "1",
		"power chain": "2" + strings.Repeat(" ** 1", 10000),
		"sum chain":   "1" + strings.Repeat(" + 1", 10000),
		"attributes":  "a" + strings.Repeat(".b", 10000),
		"lists":       strings.Repeat("[", 10000) + strings.Repeat("]", 10000),
	}
	for name, src := range deep {
		t.Run(name, func(t *testing.T) {
			_, err := Compile(src, ModeExpr)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrViolation)
		})
	}

	var block strings.Builder
	for i := 0; i < MaxDepth+10; i++ {
		block.WriteString(strings.Repeat(" ", i) + "if True:\n")
	}
	block.WriteString(strings.Repeat(" ", MaxDepth+10) + "pass\n")
	_, err := Compile(block.String(), ModeExec)
	assert.ErrorIs(t, err, ErrViolation)

	got, err := Eval(strings.Repeat("(", 50)+"1 + 2"+strings.Repeat(")", 50), nil)
	require.NoError(t, err)
	assertDecimal(t, "3", got)
}

func TestValueSizeLimits(t *testing.T) {
	growing := map[string]string{
		"list doubling":   "x = [0]\nfor i in range(24):\n    x = x + x",
		"string doubling": "x = 'ab'\nfor i in range(24):\n    x += x",
		"squaring":        "x = 10\nfor i in range(24):\n    x = x * x",
		"power":           "x = 2\nfor i in range(3):\n    x = x ** 1024",
		"parsed float":    "x = float('1e100000') + 1",
	}
	for name, src := range growing {
		t.Run(name, func(t *testing.T) {
			err := Exec(src, nil, map[string]any{})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrViolation)
		})
	}

	_, err := Compile("1e100000 + 1", ModeExpr)
	assert.ErrorIs(t, err, ErrViolation)

	_, err = Eval("str(huge)", MapEnv{"huge": dec("1e100000")})
	assert.ErrorIs(t, err, ErrViolation)

	got, err := Eval("10 ** 600", nil)
	require.NoError(t, err)
	assert.Equal(t, 601, got.(decimal.Decimal).NumDigits())

	p, err := Compile("x = range(5000) + range(5000)", ModeExec, WithStepBudget(50))
	require.NoError(t, err)
	assert.ErrorIs(t, p.Exec(nil, map[string]any{}), ErrViolation)
}

func TestRoundingPrecisionBounds(t *testing.T) {
	for _, src := range []string{
		"round(1.5, 2147483648)",
		"round(1.5, -29)",
		"float_round(1.5, 100)",
		"float_compare(1, 2, 4294967297)",
		"float_is_zero(0.001, 29)",
	} {
		t.Run(src, func(t *testing.T) {
			_, err := Eval(src, nil)
			var rt *RuntimeError
			require.ErrorAs(t, err, &rt)
			assert.Contains(t, err.Error(), "precision must be between")
		})
	}

	got, err := Eval("round(2.675, 28)", nil)
	require.NoError(t, err)
	assertDecimal(t, "2.675", got)
}

func TestSyntaxErrors(t *testing.T) {
	for _, src := range []string{"1 +", "(1, 2)", "a = = 1", "'open", "foo(", "x[1"} {
		t.Run(src, func(t *testing.T) {
			_, err := Compile(src, ModeExec)
			var se *SyntaxError
			assert.ErrorAs(t, err, &se)
		})
	}

	_, err := Compile("break", ModeExec)
	var se *SyntaxError
	assert.ErrorAs(t, err, &se)

	_, err = Compile("a.b = 1", ModeExec)
	assert.ErrorAs(t, err, &se)
}

func TestRuntimeErrors(t *testing.T) {
	for _, src := range []string{"1 / 0", "unknown + 1", "'a' + 1", "[1][5]", "2 ** 0.5", "abs('x')"} {
		t.Run(src, func(t *testing.T) {
			_, err := Eval(src, nil)
			var rt *RuntimeError
			assert.ErrorAs(t, err, &rt)
			assert.False(t, errors.Is(err, ErrViolation))
		})
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize(map[string]any{"wage": 3000, "rate": 0.5, "tags": []any{"a", 2}})
	obj, ok := v.(MapObject)
	require.True(t, ok)
	assertDecimal(t, "3000", obj["wage"])
	assertDecimal(t, "0.5", obj["rate"])
	tags := obj["tags"].([]any)
	assert.Equal(t, "a", tags[0])
	assertDecimal(t, "2", tags[1])
}

func TestProgramIsReusable(t *testing.T) {
	p, err := Compile("wage * 2", ModeExpr)
	require.NoError(t, err)
	for _, w := range []string{"1", "2", "3"} {
		got, err := p.Eval(MapEnv{"wage": dec(w)})
		require.NoError(t, err)
		assertDecimal(t, dec(w).Mul(decimal.NewFromInt(2)).String(), got)
	}
	assert.Equal(t, "wage * 2", p.Source())
	assert.Equal(t, ModeExpr, p.Mode())
}
