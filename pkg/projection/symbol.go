package projection

import (
	"strings"

	"github.com/orneryd/nornicproj/pkg/eval"
)

// Type is the static type of a compiled expression.
type Type int

const (
	TypeInteger Type = iota + 1
	TypeFloat
	TypeText
	TypeNumber
	TypeObject
	TypeList
	TypeMap
)

func (t Type) String() string {
	switch t {
	case TypeInteger:
		return "Integer"
	case TypeFloat:
		return "Float"
	case TypeText:
		return "Text"
	case TypeNumber:
		return "Number"
	case TypeObject:
		return "Object"
	case TypeList:
		return "List"
	case TypeMap:
		return "Map"
	}
	return "Unknown"
}

// GoType is the Go type an expression of this static type evaluates to in
// rendered source.
func (t Type) GoType() string {
	switch t {
	case TypeInteger:
		return "int64"
	case TypeFloat:
		return "float64"
	case TypeText:
		return "string"
	}
	return "any"
}

// Ctx is what executable fragments run against: the execution frame plus
// the declared state of the unit instance. It plays the role of the frame f
// and receiver p in rendered source.
type Ctx struct {
	*eval.Frame
	state *State
}

// Expr is an expression fragment. Source is a Go expression over the frame
// f and receiver p; the executable half evaluates the same expression.
type Expr struct {
	Source string
	eval   func(*Ctx) any
}

// NewExpr pairs source text with its executable form.
func NewExpr(source string, fn func(*Ctx) any) Expr {
	return Expr{Source: source, eval: fn}
}

// Eval evaluates the expression.
func (e Expr) Eval(c *Ctx) any { return e.eval(c) }

// Symbol is a compiled value reference: an expression plus its static type.
// A symbol may carry a separate materialized form used where a concrete
// value must be stored, such as a list element.
type Symbol struct {
	Expr Expr
	Type Type

	materialized *Expr
	label        string
}

// NewSymbol creates a symbol whose materialized form is the expression itself.
func NewSymbol(expr Expr, typ Type) Symbol {
	return Symbol{Expr: expr, Type: typ}
}

// WithMaterialized returns a copy of s with a distinct materialized form.
func (s Symbol) WithMaterialized(expr Expr) Symbol {
	s.materialized = &expr
	return s
}

// String returns the variable name for row variables and the source
// otherwise.
func (s Symbol) String() string {
	if s.label != "" {
		return s.label
	}
	return s.Expr.Source
}

// Materialize returns the expression that forces s into a storable value.
func (s Symbol) Materialize() Expr {
	if s.materialized != nil {
		return *s.materialized
	}
	return s.Expr
}

// Stmt is a statement fragment: zero or more source lines and the code that
// runs them.
type Stmt struct {
	Source string
	run    func(*Ctx)
}

// NewStmt pairs statement source with its executable form.
func NewStmt(source string, fn func(*Ctx)) Stmt {
	return Stmt{Source: source, run: fn}
}

// Empty reports whether the statement has no code.
func (s Stmt) Empty() bool { return s.run == nil && s.Source == "" }

// Run executes the statement. Empty statements do nothing.
func (s Stmt) Run(c *Ctx) {
	if s.run != nil {
		s.run(c)
	}
}

// Concat joins statements in order, skipping empty ones. Execution stops at
// the first statement that leaves an error on the frame.
func Concat(stmts ...Stmt) Stmt {
	var parts []Stmt
	for _, s := range stmts {
		if !s.Empty() {
			parts = append(parts, s)
		}
	}
	switch len(parts) {
	case 0:
		return Stmt{}
	case 1:
		return parts[0]
	}

	lines := make([]string, 0, len(parts))
	for _, s := range parts {
		if s.Source != "" {
			lines = append(lines, s.Source)
		}
	}
	return Stmt{
		Source: strings.Join(lines, "\n"),
		run: func(c *Ctx) {
			for _, s := range parts {
				if c.Err() != nil {
					return
				}
				s.Run(c)
			}
		},
	}
}

// DeclKind distinguishes declared struct fields from generated methods.
type DeclKind int

const (
	FieldDecl DeclKind = iota
	MethodDecl
)

// Decl is declared state of a compiled unit: a struct field that persists
// across rows, or a helper method.
type Decl struct {
	Kind DeclKind
	Name string

	// Fields
	Type    string
	Initial string

	// Methods
	Params string
	Result string
	Body   string

	// Imports lists packages the declaration's source refers to.
	Imports []string

	alloc func(*State)
}

// State holds the declared fields of one unit instance.
type State struct {
	tokens map[string]*eval.Token
}

func newState() *State {
	return &State{tokens: make(map[string]*eval.Token)}
}

// Token returns the token field with the given name, or nil.
func (s *State) Token(name string) *eval.Token {
	return s.tokens[name]
}
