package projection

import (
	"github.com/orneryd/nornicproj/pkg/profile"
)

// TokenLookup reports property keys already known to the planner. It must
// not create keys.
type TokenLookup interface {
	LookupPropertyKey(name string) (int, bool)
}

// Builder assembles projection trees. Property reads use a planner-known
// token when tokens reports one and a pending token otherwise.
type Builder struct {
	namer  Namer
	tokens TokenLookup
}

// NewBuilder creates a builder with a fresh namer. tokens may be nil, in
// which case every property key is resolved at runtime.
func NewBuilder(tokens TokenLookup) *Builder {
	return &Builder{namer: NewNamer(), tokens: tokens}
}

func (b *Builder) token(name string) PropertyToken {
	if b.tokens != nil {
		if id, ok := b.tokens.LookupPropertyKey(name); ok {
			return KnownToken(id)
		}
	}
	return PendingToken()
}

// Literal creates a constant.
func (b *Builder) Literal(v any) (*Literal, error) { return NewLiteral(v) }

// Param reads $key.
func (b *Builder) Param(key string) *Parameter { return NewParameter(key) }

// NodeProperty reads variable.name attributed to op.
func (b *Builder) NodeProperty(op profile.OperatorID, variable, name string) *NodeProperty {
	return NewNodeProperty(b.namer, op, b.token(name), name, NodeVariable(variable))
}

// RelationshipProperty reads variable.name of a relationship.
func (b *Builder) RelationshipProperty(variable, name string) *RelationshipProperty {
	return NewRelationshipProperty(b.namer, b.token(name), name, RelationshipVariable(variable))
}

// Node references the node bound to variable.
func (b *Builder) Node(variable string) *Node { return NewNode(NodeVariable(variable)) }

// Relationship references the relationship bound to variable.
func (b *Builder) Relationship(variable string) *Relationship {
	return NewRelationship(RelationshipVariable(variable))
}

func (b *Builder) Add(lhs, rhs Instruction) *Addition    { return NewAddition(lhs, rhs) }
func (b *Builder) Sub(lhs, rhs Instruction) *Subtraction { return NewSubtraction(lhs, rhs) }

func (b *Builder) List(items ...Instruction) *Collection { return NewCollection(items...) }

func (b *Builder) Map(entries map[string]Instruction) *Map { return NewMap(entries) }

// Project creates the root projection emitting one record per row.
func (b *Builder) Project(columns ...Column) (*Project, error) {
	return NewProject(columns, nil)
}
