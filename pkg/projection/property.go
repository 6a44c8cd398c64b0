package projection

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/orneryd/nornicproj/pkg/eval"
	"github.com/orneryd/nornicproj/pkg/profile"
)

const (
	importEval    = "github.com/orneryd/nornicproj/pkg/eval"
	importStorage = "github.com/orneryd/nornicproj/pkg/storage"
)

// propertyKey is the state shared by node and relationship property reads:
// either a token known at plan time or a cached token field resolved by
// Init.
type propertyKey struct {
	token PropertyToken
	name  string
	field string
}

func newPropertyKey(namer Namer, token PropertyToken, name string) propertyKey {
	key := propertyKey{token: token, name: name}
	if !token.Resolved {
		key.field = namer.StateName()
	}
	return key
}

func (k propertyKey) declarations() []Decl {
	if k.token.Resolved {
		return nil
	}
	field := k.field
	return []Decl{{
		Kind:    FieldDecl,
		Name:    field,
		Type:    "*eval.Token",
		Initial: "eval.NewToken()",
		Imports: []string{importEval},
		alloc: func(s *State) {
			s.tokens[field] = eval.NewToken()
		},
	}}
}

func (k propertyKey) init() Stmt {
	if k.token.Resolved {
		return Stmt{}
	}
	field, name := k.field, k.name
	return NewStmt(fmt.Sprintf("f.ResolveToken(p.%s, %q)", field, name), func(c *Ctx) {
		c.ResolveToken(c.state.Token(field), name)
	})
}

// source is the Go expression for the token id.
func (k propertyKey) source() string {
	if k.token.Resolved {
		return strconv.Itoa(k.token.ID)
	}
	return "p." + k.field + ".ID()"
}

// id returns the executable form of source.
func (k propertyKey) id() func(*Ctx) int {
	if k.token.Resolved {
		id := k.token.ID
		return func(*Ctx) int { return id }
	}
	field := k.field
	return func(c *Ctx) int { return c.state.Token(field).ID() }
}

// NodeProperty reads a property of a node through a generated accessor that
// attributes a database hit and a row to Operator.
type NodeProperty struct {
	Operator profile.OperatorID
	Name     string
	NodeID   Symbol

	key      propertyKey
	accessor string
}

// NewNodeProperty creates a node property read. A pending token gets a
// cached state field.
func NewNodeProperty(namer Namer, op profile.OperatorID, token PropertyToken, name string, nodeID Symbol) *NodeProperty {
	key := newPropertyKey(namer, token, name)
	return &NodeProperty{
		Operator: op,
		Name:     name,
		NodeID:   nodeID,
		key:      key,
		accessor: namer.AccessorName(),
	}
}

// Token returns the plan-time token.
func (n *NodeProperty) Token() PropertyToken { return n.key.token }

func (n *NodeProperty) Declarations() []Decl {
	body := []string{
		"if f.Err() != nil {",
		"\treturn nil",
		"}",
		fmt.Sprintf("scope := f.OpenScope(%d)", n.Operator),
		"defer scope.Close()",
		"scope.DBHit()",
		"scope.Row()",
		fmt.Sprintf("return f.NodeProperty(node, %s)", n.key.source()),
	}
	accessor := Decl{
		Kind:    MethodDecl,
		Name:    n.accessor,
		Params:  "f *eval.Frame, node storage.NodeID",
		Result:  "any",
		Body:    strings.Join(body, "\n"),
		Imports: []string{importEval, importStorage},
	}
	return append(n.key.declarations(), accessor)
}

func (n *NodeProperty) Init() Stmt              { return n.key.init() }
func (n *NodeProperty) Evaluate() Stmt          { return Stmt{} }
func (n *NodeProperty) Children() []Instruction { return nil }
func (n *NodeProperty) instruction()            {}

func (n *NodeProperty) Symbol() Symbol {
	op := n.Operator
	nodeID := n.NodeID.Expr
	key := n.key.id()

	source := fmt.Sprintf("p.%s(f, %s)", n.accessor, nodeID.Source)
	return NewSymbol(NewExpr(source, func(c *Ctx) any {
		id := nodeIDOf(nodeID.Eval(c))
		if c.Err() != nil {
			return nil
		}
		scope := c.OpenScope(op)
		defer scope.Close()
		scope.DBHit()
		scope.Row()
		return c.NodeProperty(id, key(c))
	}), TypeObject)
}

// RelationshipProperty reads a property of a relationship. It is not
// instrumented.
type RelationshipProperty struct {
	Name           string
	RelationshipID Symbol

	key propertyKey
}

// NewRelationshipProperty creates a relationship property read.
func NewRelationshipProperty(namer Namer, token PropertyToken, name string, relID Symbol) *RelationshipProperty {
	return &RelationshipProperty{
		Name:           name,
		RelationshipID: relID,
		key:            newPropertyKey(namer, token, name),
	}
}

// Token returns the plan-time token.
func (r *RelationshipProperty) Token() PropertyToken { return r.key.token }

func (r *RelationshipProperty) Declarations() []Decl    { return r.key.declarations() }
func (r *RelationshipProperty) Init() Stmt              { return r.key.init() }
func (r *RelationshipProperty) Evaluate() Stmt          { return Stmt{} }
func (r *RelationshipProperty) Children() []Instruction { return nil }
func (r *RelationshipProperty) instruction()            {}

func (r *RelationshipProperty) Symbol() Symbol {
	relID := r.RelationshipID.Expr
	key := r.key.id()

	source := fmt.Sprintf("f.RelationshipProperty(%s, %s)", relID.Source, r.key.source())
	return NewSymbol(NewExpr(source, func(c *Ctx) any {
		id := edgeIDOf(relID.Eval(c))
		return c.RelationshipProperty(id, key(c))
	}), TypeObject)
}
