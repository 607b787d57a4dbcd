package sandbox

import (
	"errors"
	"fmt"
)

// ErrViolation matches every *Violation with errors.Is.
var ErrViolation = errors.New("sandbox violation")

type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

type SyntaxError struct {
	Pos Pos
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %s: %s", e.Pos, e.Msg)
}

// Violation reports a construct the sandbox refuses to run: imports,
// underscore names, unbounded loops, or an exhausted step budget.
type Violation struct {
	Pos       Pos
	Construct string
}

func (e *Violation) Error() string {
	return fmt.Sprintf("forbidden construct at %s: %s", e.Pos, e.Construct)
}

func (e *Violation) Is(target error) bool {
	return target == ErrViolation
}

type RuntimeError struct {
	Pos Pos
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Pos, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func runtimeErr(pos Pos, format string, args ...any) error {
	return &RuntimeError{Pos: pos, Err: fmt.Errorf(format, args...)}
}

// wrapAt attaches a position to errors raised by helpers and bindings
// unless they already carry one.
func wrapAt(pos Pos, err error) error {
	var rt *RuntimeError
	var v *Violation
	if errors.As(err, &rt) || errors.As(err, &v) {
		return err
	}
	return &RuntimeError{Pos: pos, Err: err}
}
