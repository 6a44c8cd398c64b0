package projection

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/orneryd/nornicproj/pkg/eval"
	"github.com/orneryd/nornicproj/pkg/storage"
)

// Literal is a constant.
type Literal struct {
	Value any
	typ   Type
}

// NewLiteral creates a literal. Integers, floats and strings get their own
// static type; booleans and null are Objects.
func NewLiteral(value any) (*Literal, error) {
	switch v := value.(type) {
	case int:
		return &Literal{Value: int64(v), typ: TypeInteger}, nil
	case int32:
		return &Literal{Value: int64(v), typ: TypeInteger}, nil
	case int64:
		return &Literal{Value: v, typ: TypeInteger}, nil
	case float32:
		return NewLiteral(float64(v))
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite float literal", ErrInvalidTree)
		}
		return &Literal{Value: v, typ: TypeFloat}, nil
	case string:
		return &Literal{Value: v, typ: TypeText}, nil
	case bool, nil:
		return &Literal{Value: v, typ: TypeObject}, nil
	}
	return nil, fmt.Errorf("%w: unsupported literal %T", ErrInvalidTree, value)
}

func (l *Literal) Declarations() []Decl    { return nil }
func (l *Literal) Init() Stmt              { return Stmt{} }
func (l *Literal) Evaluate() Stmt          { return Stmt{} }
func (l *Literal) Children() []Instruction { return nil }
func (l *Literal) instruction()            {}

func (l *Literal) Symbol() Symbol {
	v := l.Value
	return NewSymbol(NewExpr(literalExpr(v), func(*Ctx) any { return v }), l.typ)
}

// literalExpr renders numbers through eval.Int and eval.Float so that the Go
// compiler never constant-folds literal arithmetic. Rendered code then wraps
// on overflow exactly like the in-process unit.
func literalExpr(v any) string {
	switch val := v.(type) {
	case int64:
		return "eval.Int(" + strconv.FormatInt(val, 10) + ")"
	case float64:
		return "eval.Float(" + floatSource(val) + ")"
	}
	return literalSource(v)
}

func literalSource(v any) string {
	switch val := v.(type) {
	case int64:
		return "int64(" + strconv.FormatInt(val, 10) + ")"
	case float64:
		return "float64(" + floatSource(val) + ")"
	case string:
		return strconv.Quote(val)
	case bool:
		return strconv.FormatBool(val)
	}
	return "nil"
}

func floatSource(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// Parameter reads a bound query parameter.
type Parameter struct {
	Key string
}

// NewParameter creates a parameter read.
func NewParameter(key string) *Parameter {
	return &Parameter{Key: key}
}

func (p *Parameter) Declarations() []Decl    { return nil }
func (p *Parameter) Evaluate() Stmt          { return Stmt{} }
func (p *Parameter) Children() []Instruction { return nil }
func (p *Parameter) instruction()            {}

// Init fails with eval.ErrParameterNotFound when the key is not bound.
func (p *Parameter) Init() Stmt {
	key := p.Key
	return NewStmt(fmt.Sprintf("f.RequireParam(%q)", key), func(c *Ctx) {
		c.RequireParam(key)
	})
}

func (p *Parameter) Symbol() Symbol {
	key := p.Key
	return NewSymbol(NewExpr(fmt.Sprintf("f.Param(%q)", key), func(c *Ctx) any {
		return c.Param(key)
	}), TypeObject)
}

// Node wraps a node id into a node reference. Its materialized form loads
// the node from storage.
type Node struct {
	ID Symbol
}

// NewNode creates a node reference.
func NewNode(id Symbol) *Node {
	return &Node{ID: id}
}

func (n *Node) Declarations() []Decl    { return nil }
func (n *Node) Init() Stmt              { return Stmt{} }
func (n *Node) Evaluate() Stmt          { return Stmt{} }
func (n *Node) Children() []Instruction { return nil }
func (n *Node) instruction()            {}

func (n *Node) Symbol() Symbol {
	id := n.ID.Expr
	ref := NewExpr(fmt.Sprintf("eval.NodeRef{ID: %s}", id.Source), func(c *Ctx) any {
		return eval.NodeRef{ID: nodeIDOf(id.Eval(c))}
	})
	load := NewExpr(fmt.Sprintf("f.LoadNode(%s)", id.Source), func(c *Ctx) any {
		return c.LoadNode(nodeIDOf(id.Eval(c)))
	})
	return NewSymbol(ref, TypeObject).WithMaterialized(load)
}

// Relationship wraps a relationship id into a relationship reference.
type Relationship struct {
	ID Symbol
}

// NewRelationship creates a relationship reference.
func NewRelationship(id Symbol) *Relationship {
	return &Relationship{ID: id}
}

func (r *Relationship) Declarations() []Decl    { return nil }
func (r *Relationship) Init() Stmt              { return Stmt{} }
func (r *Relationship) Evaluate() Stmt          { return Stmt{} }
func (r *Relationship) Children() []Instruction { return nil }
func (r *Relationship) instruction()            {}

func (r *Relationship) Symbol() Symbol {
	id := r.ID.Expr
	ref := NewExpr(fmt.Sprintf("eval.RelationshipRef{ID: %s}", id.Source), func(c *Ctx) any {
		return eval.RelationshipRef{ID: edgeIDOf(id.Eval(c))}
	})
	load := NewExpr(fmt.Sprintf("f.LoadRelationship(%s)", id.Source), func(c *Ctx) any {
		return c.LoadRelationship(edgeIDOf(id.Eval(c)))
	})
	return NewSymbol(ref, TypeObject).WithMaterialized(load)
}

func nodeIDOf(v any) storage.NodeID {
	id, _ := v.(storage.NodeID)
	return id
}

func edgeIDOf(v any) storage.EdgeID {
	id, _ := v.(storage.EdgeID)
	return id
}
