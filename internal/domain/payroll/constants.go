package payroll

const (
	ConditionAlways   = "always"
	ConditionRange    = "range"
	ConditionScripted = "scripted"

	AmountFix        = "fix"
	AmountPercentage = "percentage"
	AmountCode       = "code"

	// Expression kinds reported by RuleExpressionError.
	ExprCondition = "condition"
	ExprQuantity  = "quantity"
	ExprAmount    = "amount"

	DefaultQuantityExpr = "1.0"

	CycleKindRule     = "rule"
	CycleKindCategory = "category"
)

// Scratch bindings a script may assign.
const (
	bindResult     = "result"
	bindResultQty  = "result_qty"
	bindResultRate = "result_rate"
	bindResultName = "result_name"
)
