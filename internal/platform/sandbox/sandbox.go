// Package sandbox evaluates the small Python-like language that salary rule
// authors write conditions and amounts in.
//
// Programs see only the names bound in their Env plus a fixed set of helpers.
// There is no import, no function or class definition, no while loop and
// no access to underscore-prefixed names. Nesting is capped at MaxDepth when
// compiling. Every evaluation runs under a step budget that charges for the
// size of the values it builds, and lists, strings and numbers are capped
// by MaxLength and MaxDigits, so a program always terminates in bounded
// memory. Numbers are decimal.Decimal.
package sandbox

import (
	"errors"
	"fmt"
	"strings"
)

type Mode int

const (
	// ModeExpr compiles a single expression.
	ModeExpr Mode = iota
	// ModeExec compiles a block of statements.
	ModeExec
)

func (m Mode) String() string {
	if m == ModeExec {
		return "exec"
	}
	return "expr"
}

// DefaultStepBudget bounds the work a single evaluation may do.
const DefaultStepBudget = 100000

// Program is a compiled expression or statement block. It is immutable and
// safe for concurrent use.
type Program struct {
	source string
	mode   Mode
	expr   expr
	body   []stmt
	budget int
}

type Option func(*Program)

// WithStepBudget overrides DefaultStepBudget.
func WithStepBudget(n int) Option {
	return func(p *Program) {
		if n > 0 {
			p.budget = n
		}
	}
}

// Compile parses source. It returns a *SyntaxError for malformed input and a
// *Violation for forbidden constructs.
func Compile(source string, mode Mode, opts ...Option) (*Program, error) {
	p := &Program{source: source, mode: mode, budget: DefaultStepBudget}
	for _, opt := range opts {
		opt(p)
	}
	switch mode {
	case ModeExpr:
		toks, err := tokenize(strings.TrimSpace(source))
		if err != nil {
			return nil, err
		}
		x, err := parseExpression(toks)
		if err != nil {
			return nil, err
		}
		p.expr = x
	case ModeExec:
		toks, err := tokenize(dedent(source))
		if err != nil {
			return nil, err
		}
		body, err := parseBlock(toks)
		if err != nil {
			return nil, err
		}
		p.body = body
	default:
		return nil, fmt.Errorf("sandbox: unknown mode %d", mode)
	}
	return p, nil
}

func (p *Program) Source() string { return p.source }

func (p *Program) Mode() Mode { return p.mode }

// Eval evaluates an expression program against env.
func (p *Program) Eval(env Env) (any, error) {
	if p.mode != ModeExpr {
		return nil, errors.New("sandbox: Eval called on a statement program")
	}
	f := &frame{env: env, locals: map[string]any{}, budget: p.budget}
	return p.expr.eval(f)
}

// Exec runs a statement program. Assignments land in locals, which the
// caller seeds with any scratch bindings it wants to read back afterwards.
func (p *Program) Exec(env Env, locals map[string]any) error {
	if p.mode != ModeExec {
		return errors.New("sandbox: Exec called on an expression program")
	}
	if locals == nil {
		return errors.New("sandbox: Exec requires a locals map")
	}
	f := &frame{env: env, locals: locals, budget: p.budget}
	return execBody(f, p.body)
}

// Eval compiles and evaluates source in one step.
func Eval(source string, env Env) (any, error) {
	p, err := Compile(source, ModeExpr)
	if err != nil {
		return nil, err
	}
	return p.Eval(env)
}

// Exec compiles and runs source in one step.
func Exec(source string, env Env, locals map[string]any) error {
	p, err := Compile(source, ModeExec)
	if err != nil {
		return err
	}
	return p.Exec(env, locals)
}
