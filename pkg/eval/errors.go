package eval

import (
	"errors"
	"fmt"
)

// Errors surfaced by compiled projections. None of them are retried here;
// they unwind to the caller of Execution.Next.
var (
	// ErrParameterNotFound is returned when a referenced parameter is not bound.
	ErrParameterNotFound = errors.New("parameter not found")

	// ErrEntityNotFound is returned when a node or relationship disappeared
	// between planning and the property read.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrIncompatibleTypes is returned by the generic arithmetic helpers.
	ErrIncompatibleTypes = errors.New("incompatible types")

	// ErrUnboundVariable is returned when a row lacks a variable the
	// projection reads.
	ErrUnboundVariable = errors.New("unbound variable")
)

// EntityKind names the kind of graph entity in an EntityNotFoundError.
type EntityKind string

const (
	KindNode         EntityKind = "node"
	KindRelationship EntityKind = "relationship"
)

// EntityNotFoundError reports a read against a deleted entity. It matches
// ErrEntityNotFound with errors.Is and unwraps to the storage error.
type EntityNotFoundError struct {
	Kind EntityKind
	ID   string
	Err  error
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Kind, e.ID, ErrEntityNotFound)
}

func (e *EntityNotFoundError) Is(target error) bool { return target == ErrEntityNotFound }

func (e *EntityNotFoundError) Unwrap() error { return e.Err }

func parameterNotFound(key string) error {
	return fmt.Errorf("%w: $%s", ErrParameterNotFound, key)
}

func incompatible(op string, a, b any) error {
	return fmt.Errorf("%w: cannot %s %s and %s", ErrIncompatibleTypes, op, TypeName(a), TypeName(b))
}
