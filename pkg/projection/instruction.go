// Package projection compiles trees of projection expressions into
// type-specialized, instrumented code.
//
// Every node of a tree is an Instruction exposing four parts: declared state
// (struct fields and helper methods that live as long as a compiled unit),
// one-time initialization, per-row evaluation statements, and the Symbol it
// produces. Emit walks a tree and collects the parts in dependency order;
// Compile turns the result into a Program, which can both render Go source
// and instantiate in-process Units.
//
// Arithmetic is specialized at compile time from the operands' static types.
// Only operands whose types are unknown until execution go through the
// generic runtime helpers in package eval.
package projection

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/orneryd/nornicproj/pkg/storage"
)

// ErrInvalidTree is returned for malformed projection trees.
var ErrInvalidTree = errors.New("invalid projection tree")

// Instruction is one node of a projection tree. The set of implementations
// is closed: Literal, Parameter, NodeProperty, RelationshipProperty, Node,
// Relationship, Addition, Subtraction, Collection, Map and Project.
type Instruction interface {
	// Declarations returns the state this node adds to a compiled unit.
	Declarations() []Decl
	// Init returns this node's one-time initialization. It must be
	// idempotent.
	Init() Stmt
	// Evaluate returns per-row statements. Expressions return an empty
	// statement; their code is inlined through Symbol.
	Evaluate() Stmt
	// Symbol returns the value this node produces.
	Symbol() Symbol
	// Children returns owned sub-instructions in evaluation order.
	Children() []Instruction

	instruction()
}

// PropertyToken is a property key known at plan time or still pending.
type PropertyToken struct {
	ID       int
	Resolved bool
}

// KnownToken is a token already resolved by the planner.
func KnownToken(id int) PropertyToken {
	return PropertyToken{ID: id, Resolved: true}
}

// PendingToken is a token resolved once at runtime.
func PendingToken() PropertyToken {
	return PropertyToken{ID: storage.NoSuchPropertyKey}
}

func (t PropertyToken) String() string {
	if !t.Resolved {
		return "pending"
	}
	return strconv.Itoa(t.ID)
}

// NodeVariable is the symbol of a node id bound in the input row.
func NodeVariable(name string) Symbol {
	s := NewSymbol(NewExpr(fmt.Sprintf("f.NodeID(%q)", name), func(c *Ctx) any {
		return c.NodeID(name)
	}), TypeObject)
	s.label = name
	return s
}

// RelationshipVariable is the symbol of a relationship id bound in the input
// row.
func RelationshipVariable(name string) Symbol {
	s := NewSymbol(NewExpr(fmt.Sprintf("f.EdgeID(%q)", name), func(c *Ctx) any {
		return c.EdgeID(name)
	}), TypeObject)
	s.label = name
	return s
}

// childEvaluate concatenates the per-row statements of children.
func childEvaluate(children []Instruction) Stmt {
	stmts := make([]Stmt, 0, len(children))
	for _, child := range children {
		stmts = append(stmts, child.Evaluate())
	}
	return Concat(stmts...)
}
