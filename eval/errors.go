package eval

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/smackem/redis-q-sub000/ast"
	"github.com/smackem/redis-q-sub000/val"
)

// RuntimeError is the only error kind produced by evaluation, apart from cancellation.
type RuntimeError struct {
	Pos ast.Pos
	Err error
	// Thrown holds the operand of a throw expression.
	Thrown val.Value
}

func (e *RuntimeError) Error() string {
	if e.Pos.Line == 0 {
		return fmt.Sprintf("runtime error: %v", e.Err)
	}
	return fmt.Sprintf("runtime error at %s: %v", e.Pos.Loc(), e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// Cancelled reports that the evaluation was aborted by its context.
type Cancelled struct {
	Err error
}

func (e *Cancelled) Error() string { return "evaluation cancelled: " + e.Err.Error() }
func (e *Cancelled) Unwrap() error { return e.Err }

// Errors the registry reports at call sites.
var (
	ErrNotFound = errors.New("function not found")
	ErrArity    = errors.New("wrong number of arguments")
)

// ErrUnresolved is reported for identifiers not bound in the scope chain.
var ErrUnresolved = errors.New("unresolved identifier")

// wrap normalizes err exactly once. Runtime errors and cancellations pass through unchanged,
// context errors become cancellations and all other errors runtime errors at pos.
func wrap(pos ast.Pos, err error) error {
	if err == nil || normalized(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Cancelled{Err: err}
	}
	return &RuntimeError{Pos: pos, Err: err}
}

func normalized(err error) bool {
	var re *RuntimeError
	var ce *Cancelled
	return errors.As(err, &re) || errors.As(err, &ce)
}

func errorf(pos ast.Pos, f string, args ...interface{}) error {
	return &RuntimeError{Pos: pos, Err: errors.Errorf(f, args...)}
}

// IsCancelled returns whether err reports a cancelled evaluation.
func IsCancelled(err error) bool {
	var ce *Cancelled
	return errors.As(err, &ce)
}
