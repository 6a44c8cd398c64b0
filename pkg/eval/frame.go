// Package eval is the runtime support library for compiled projections.
//
// Generated code (both the in-process compiled units built by package
// projection and rendered Go source) evaluates every expression against a
// *Frame. Expressions return a single value; failures are recorded on the
// frame and every helper becomes a no-op once an error has been recorded, so
// composite expressions need no error plumbing. Statements check Err().
package eval

import (
	"context"
	"errors"
	"fmt"

	"github.com/orneryd/nornicproj/pkg/profile"
	"github.com/orneryd/nornicproj/pkg/storage"
)

// Env is the execution environment a compiled unit is opened against.
type Env struct {
	Reader storage.PropertyReader
	Params ParameterStore
	Tracer profile.Tracer
}

// NodeRef is a lazy reference to a node by id.
type NodeRef struct {
	ID storage.NodeID
}

// RelationshipRef is a lazy reference to a relationship by id.
type RelationshipRef struct {
	ID storage.EdgeID
}

// Frame carries one execution's environment, the current row, the sticky
// error and the record emitted for the current row. A Frame is not safe for
// concurrent use.
type Frame struct {
	ctx    context.Context
	env    Env
	row    Row
	err    error
	record []any
}

// NewFrame creates a frame for one execution. Nil params and tracer are
// replaced with empty ones.
func NewFrame(ctx context.Context, env Env) *Frame {
	if env.Params == nil {
		env.Params = Params{}
	}
	if env.Tracer == nil {
		env.Tracer = profile.Noop
	}
	return &Frame{ctx: ctx, env: env}
}

// Context returns the execution context.
func (f *Frame) Context() context.Context { return f.ctx }

// Err returns the first error recorded on the frame.
func (f *Frame) Err() error { return f.err }

// Fail records err unless an error is already recorded.
func (f *Frame) Fail(err error) {
	if f.err == nil && err != nil {
		f.err = err
	}
}

// Reset binds the next row and clears the previous record. The sticky error
// survives: a failed execution stays failed.
func (f *Frame) Reset(row Row) {
	f.row = row
	f.record = nil
}

// Emit records the output values of the current row.
func (f *Frame) Emit(values ...any) {
	if f.err != nil {
		return
	}
	f.record = values
}

// Record returns the values emitted for the current row.
func (f *Frame) Record() []any { return f.record }

// NodeID reads a node variable from the current row.
func (f *Frame) NodeID(name string) storage.NodeID {
	if f.err != nil {
		return ""
	}
	id, ok := f.row.nodeID(name)
	if !ok {
		f.Fail(fmt.Errorf("%w: node %s", ErrUnboundVariable, name))
	}
	return id
}

// EdgeID reads a relationship variable from the current row.
func (f *Frame) EdgeID(name string) storage.EdgeID {
	if f.err != nil {
		return ""
	}
	id, ok := f.row.edgeID(name)
	if !ok {
		f.Fail(fmt.Errorf("%w: relationship %s", ErrUnboundVariable, name))
	}
	return id
}

// RequireParam fails the frame if key is not bound.
func (f *Frame) RequireParam(key string) {
	if f.err != nil {
		return
	}
	if _, ok := f.env.Params.Lookup(key); !ok {
		f.Fail(parameterNotFound(key))
	}
}

// Param reads a bound parameter.
func (f *Frame) Param(key string) any {
	if f.err != nil {
		return nil
	}
	v, ok := f.env.Params.Lookup(key)
	if !ok {
		f.Fail(parameterNotFound(key))
		return nil
	}
	return v
}

// ResolveToken resolves name into t unless t is already resolved.
func (f *Frame) ResolveToken(t *Token, name string) {
	if f.err != nil || t.Resolved() {
		return
	}
	id, err := f.env.Reader.ResolvePropertyKey(name)
	if err != nil {
		f.Fail(fmt.Errorf("resolve property key %q: %w", name, err))
		return
	}
	t.set(id)
}

// OpenScope opens an instrumentation scope for op.
func (f *Frame) OpenScope(op profile.OperatorID) profile.Scope {
	return f.env.Tracer.OpenScope(op)
}

// NodeProperty reads a node property by token. A missing property is nil; a
// missing node fails the frame with an EntityNotFoundError.
func (f *Frame) NodeProperty(id storage.NodeID, key int) any {
	if f.err != nil {
		return nil
	}
	v, _, err := f.env.Reader.NodeProperty(id, key)
	if err != nil {
		f.Fail(entityError(KindNode, string(id), err))
		return nil
	}
	return v
}

// RelationshipProperty reads a relationship property by token.
func (f *Frame) RelationshipProperty(id storage.EdgeID, key int) any {
	if f.err != nil {
		return nil
	}
	v, _, err := f.env.Reader.RelationshipProperty(id, key)
	if err != nil {
		f.Fail(entityError(KindRelationship, string(id), err))
		return nil
	}
	return v
}

// LoadNode materializes a node.
func (f *Frame) LoadNode(id storage.NodeID) any {
	if f.err != nil {
		return nil
	}
	node, err := f.env.Reader.GetNode(id)
	if err != nil {
		f.Fail(entityError(KindNode, string(id), err))
		return nil
	}
	return node
}

// LoadRelationship materializes a relationship.
func (f *Frame) LoadRelationship(id storage.EdgeID) any {
	if f.err != nil {
		return nil
	}
	edge, err := f.env.Reader.GetEdge(id)
	if err != nil {
		f.Fail(entityError(KindRelationship, string(id), err))
		return nil
	}
	return edge
}

// Add applies the generic "+" helper.
func (f *Frame) Add(a, b any) any {
	if f.err != nil {
		return nil
	}
	v, err := Add(a, b)
	f.Fail(err)
	return v
}

// Subtract applies the generic "-" helper.
func (f *Frame) Subtract(a, b any) any {
	if f.err != nil {
		return nil
	}
	v, err := Subtract(a, b)
	f.Fail(err)
	return v
}

func entityError(kind EntityKind, id string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return &EntityNotFoundError{Kind: kind, ID: id, Err: err}
	}
	return fmt.Errorf("read %s %q: %w", kind, id, err)
}
