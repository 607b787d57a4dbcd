package payroll

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownRule        = errors.New("unknown salary rule")
	ErrRuleOrdering       = errors.New("salary rule ordering violated")
	ErrRuleCycle          = errors.New("salary rule cycle")
	ErrRuleExpression     = errors.New("salary rule expression failed")
	ErrMissingResult      = errors.New("salary rule script did not set result")
	ErrSandboxViolation   = errors.New("salary rule uses a forbidden construct")
	ErrPayslipComputation = errors.New("payslip computation failed")
	ErrInvalidCatalog     = errors.New("invalid salary rule catalog")
	ErrInvalidInput       = errors.New("invalid payslip input")

	ErrStructureNotFound = errors.New("salary structure not found")
	ErrPayslipNotFound   = errors.New("payslip not found")
	ErrDuplicateCode     = errors.New("salary structure code already exists")
)

type UnknownRuleError struct {
	Code     string
	Referrer string
}

func (e *UnknownRuleError) Error() string {
	if e.Referrer != "" {
		return fmt.Sprintf("rule %s: parent rule %q does not exist", e.Referrer, e.Code)
	}
	return fmt.Sprintf("unknown salary rule %q", e.Code)
}

func (e *UnknownRuleError) Is(target error) bool { return target == ErrUnknownRule }

type RuleOrderingError struct {
	RuleCode       string
	Sequence       int
	ParentCode     string
	ParentSequence int
}

func (e *RuleOrderingError) Error() string {
	return fmt.Sprintf("rule %s (sequence %d) must come after its parent %s (sequence %d)",
		e.RuleCode, e.Sequence, e.ParentCode, e.ParentSequence)
}

func (e *RuleOrderingError) Is(target error) bool { return target == ErrRuleOrdering }

// RuleCycleError reports a parent chain that revisits a node. Kind tells rule
// chains from category chains.
type RuleCycleError struct {
	Kind  string
	Chain []string
}

func (e *RuleCycleError) Error() string {
	return fmt.Sprintf("%s parent cycle: %s", e.Kind, strings.Join(e.Chain, " -> "))
}

func (e *RuleCycleError) Is(target error) bool { return target == ErrRuleCycle }

type RuleExpressionError struct {
	RuleCode string
	Kind     string
	Expr     string
	Err      error
}

func (e *RuleExpressionError) Error() string {
	return fmt.Sprintf("rule %s: %s expression failed: %v", e.RuleCode, e.Kind, e.Err)
}

func (e *RuleExpressionError) Unwrap() error { return e.Err }

func (e *RuleExpressionError) Is(target error) bool { return target == ErrRuleExpression }

type MissingResultError struct {
	RuleCode string
}

func (e *MissingResultError) Error() string {
	return fmt.Sprintf("rule %s: amount script did not set result", e.RuleCode)
}

func (e *MissingResultError) Is(target error) bool { return target == ErrMissingResult }

// SandboxViolationError wraps a *sandbox.Violation raised by a rule.
type SandboxViolationError struct {
	RuleCode string
	Kind     string
	Expr     string
	Err      error
}

func (e *SandboxViolationError) Error() string {
	return fmt.Sprintf("rule %s: %s expression: %v", e.RuleCode, e.Kind, e.Err)
}

func (e *SandboxViolationError) Unwrap() error { return e.Err }

func (e *SandboxViolationError) Is(target error) bool { return target == ErrSandboxViolation }

// PayslipComputationError is the single error Compute returns.
type PayslipComputationError struct {
	RuleCode string
	Err      error
}

func (e *PayslipComputationError) Error() string {
	if e.RuleCode == "" {
		return fmt.Sprintf("payslip computation failed: %v", e.Err)
	}
	return fmt.Sprintf("payslip computation failed at rule %s: %v", e.RuleCode, e.Err)
}

func (e *PayslipComputationError) Unwrap() error { return e.Err }

func (e *PayslipComputationError) Is(target error) bool { return target == ErrPayslipComputation }

// CatalogError reports a malformed rule or category definition.
type CatalogError struct {
	Code   string
	Reason string
}

func (e *CatalogError) Error() string {
	if e.Code == "" {
		return "invalid catalog: " + e.Reason
	}
	return fmt.Sprintf("invalid catalog: %s: %s", e.Code, e.Reason)
}

func (e *CatalogError) Is(target error) bool { return target == ErrInvalidCatalog }

// ErrorCode maps an error to the stable code reported to API callers.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSandboxViolation):
		return "sandbox_violation"
	case errors.Is(err, ErrMissingResult):
		return "missing_result"
	case errors.Is(err, ErrRuleExpression):
		return "rule_expression_error"
	case errors.Is(err, ErrRuleCycle):
		return "rule_cycle_error"
	case errors.Is(err, ErrRuleOrdering):
		return "rule_ordering_error"
	case errors.Is(err, ErrUnknownRule):
		return "unknown_rule"
	case errors.Is(err, ErrInvalidCatalog), errors.Is(err, ErrInvalidInput):
		return "validation_error"
	case errors.Is(err, ErrStructureNotFound), errors.Is(err, ErrPayslipNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicateCode):
		return "conflict"
	case errors.Is(err, ErrPayslipComputation):
		return "computation_error"
	}
	return "internal_error"
}
