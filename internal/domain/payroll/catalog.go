package payroll

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"salaryrules/internal/platform/sandbox"
)

// program is a compiled rule expression. Compile errors are kept rather than
// returned from BuildCatalog; they surface when the rule runs, or from Check.
type program struct {
	kind   string
	source string
	prog   *sandbox.Program
	err    error
}

func compileProgram(kind, source string, mode sandbox.Mode) *program {
	p := &program{kind: kind, source: source}
	p.prog, p.err = sandbox.Compile(source, mode)
	return p
}

type compiledRule struct {
	rule      SalaryRule
	parent    int
	condition *program
	quantity  *program
	amount    *program
}

// Catalog is an immutable, ordered rule set. It is safe to share across
// concurrent computations.
type Catalog struct {
	rules      []compiledRule
	index      map[string]int
	categories []Category
	catParent  map[string]string
}

// BuildCatalog validates rules and fixes their execution order: ascending
// sequence, ties kept in input order. Categories are optional and only add
// a parent hierarchy for category totals.
func BuildCatalog(rules []SalaryRule, categories ...Category) (*Catalog, error) {
	normalized := make([]SalaryRule, len(rules))
	positions := make(map[string]int, len(rules))
	for i, r := range rules {
		r = r.withDefaults()
		if err := validateRule(r); err != nil {
			return nil, err
		}
		if _, dup := positions[r.Code]; dup {
			return nil, &CatalogError{Code: r.Code, Reason: "duplicate rule code"}
		}
		positions[r.Code] = i
		normalized[i] = r
	}

	order, err := resolveOrder(normalized, positions)
	if err != nil {
		return nil, err
	}

	catParent, err := buildCategoryTree(categories)
	if err != nil {
		return nil, err
	}

	c := &Catalog{
		rules:      make([]compiledRule, len(order)),
		index:      make(map[string]int, len(order)),
		categories: append([]Category(nil), categories...),
		catParent:  catParent,
	}
	for pos, src := range order {
		c.index[normalized[src].Code] = pos
	}
	for pos, src := range order {
		r := normalized[src]
		cr := compiledRule{rule: r, parent: -1}
		if r.ParentCode != "" {
			cr.parent = c.index[r.ParentCode]
		}
		switch r.ConditionMode {
		case ConditionRange:
			cr.condition = compileProgram(ExprCondition, r.ConditionRangeExpr, sandbox.ModeExpr)
		case ConditionScripted:
			cr.condition = compileProgram(ExprCondition, r.ConditionScript, sandbox.ModeExec)
		}
		switch r.AmountMode {
		case AmountFix:
			cr.quantity = compileProgram(ExprQuantity, r.QuantityExpr, sandbox.ModeExpr)
		case AmountPercentage:
			cr.quantity = compileProgram(ExprQuantity, r.QuantityExpr, sandbox.ModeExpr)
			cr.amount = compileProgram(ExprAmount, r.AmountPercentageBaseExpr, sandbox.ModeExpr)
		case AmountCode:
			cr.amount = compileProgram(ExprAmount, r.AmountScript, sandbox.ModeExec)
		}
		c.rules[pos] = cr
	}
	return c, nil
}

func validateRule(r SalaryRule) error {
	if r.Code == "" {
		return &CatalogError{Reason: "rule code is required"}
	}
	switch r.ConditionMode {
	case ConditionAlways, ConditionRange, ConditionScripted:
	default:
		return &CatalogError{Code: r.Code, Reason: fmt.Sprintf("unknown condition_mode %q", r.ConditionMode)}
	}
	switch r.AmountMode {
	case AmountFix, AmountPercentage, AmountCode:
	default:
		return &CatalogError{Code: r.Code, Reason: fmt.Sprintf("unknown amount_mode %q", r.AmountMode)}
	}
	if r.ConditionMode == ConditionRange && r.ConditionRangeMin.GreaterThan(r.ConditionRangeMax) {
		return &CatalogError{Code: r.Code, Reason: "condition_range_min is greater than condition_range_max"}
	}
	return nil
}

// Len is the number of rules.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.rules)
}

// ByCode looks a rule up in O(1).
func (c *Catalog) ByCode(code string) (SalaryRule, error) {
	if c != nil {
		if i, ok := c.index[code]; ok {
			return c.rules[i].rule.clone(), nil
		}
	}
	return SalaryRule{}, &UnknownRuleError{Code: code}
}

// Ordered returns the rules in execution order.
func (c *Catalog) Ordered() []SalaryRule {
	if c == nil {
		return nil
	}
	out := make([]SalaryRule, len(c.rules))
	for i, cr := range c.rules {
		out[i] = cr.rule.clone()
	}
	return out
}

func (c *Catalog) Categories() []Category {
	if c == nil {
		return nil
	}
	return append([]Category(nil), c.categories...)
}

// Check reports the first expression that does not compile, in execution
// order, without evaluating anything.
func (c *Catalog) Check() error {
	if c == nil {
		return nil
	}
	for _, cr := range c.rules {
		for _, p := range []*program{cr.condition, cr.quantity, cr.amount} {
			if p != nil && p.err != nil {
				return expressionError(cr.rule.Code, p, p.err)
			}
		}
	}
	return nil
}

// expressionError classifies a sandbox failure for one rule expression.
func expressionError(code string, p *program, err error) error {
	if errors.Is(err, sandbox.ErrViolation) {
		return &SandboxViolationError{RuleCode: code, Kind: p.kind, Expr: p.source, Err: err}
	}
	return &RuleExpressionError{RuleCode: code, Kind: p.kind, Expr: p.source, Err: err}
}

// inRange reports min <= v <= max.
func inRange(v, min, max decimal.Decimal) bool {
	return v.GreaterThanOrEqual(min) && v.LessThanOrEqual(max)
}
