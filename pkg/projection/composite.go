package projection

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Addition is lhs + rhs.
type Addition struct {
	Lhs, Rhs Instruction
}

// NewAddition creates lhs + rhs.
func NewAddition(lhs, rhs Instruction) *Addition {
	return &Addition{Lhs: lhs, Rhs: rhs}
}

func (a *Addition) Declarations() []Decl    { return nil }
func (a *Addition) Init() Stmt              { return Stmt{} }
func (a *Addition) Evaluate() Stmt          { return childEvaluate(a.Children()) }
func (a *Addition) Children() []Instruction { return []Instruction{a.Lhs, a.Rhs} }
func (a *Addition) Symbol() Symbol          { return CoerceAdd(a.Lhs.Symbol(), a.Rhs.Symbol()) }
func (a *Addition) instruction()            {}

// Subtraction is lhs - rhs.
type Subtraction struct {
	Lhs, Rhs Instruction
}

// NewSubtraction creates lhs - rhs.
func NewSubtraction(lhs, rhs Instruction) *Subtraction {
	return &Subtraction{Lhs: lhs, Rhs: rhs}
}

func (s *Subtraction) Declarations() []Decl    { return nil }
func (s *Subtraction) Init() Stmt              { return Stmt{} }
func (s *Subtraction) Evaluate() Stmt          { return childEvaluate(s.Children()) }
func (s *Subtraction) Children() []Instruction { return []Instruction{s.Lhs, s.Rhs} }
func (s *Subtraction) Symbol() Symbol          { return CoerceSub(s.Lhs.Symbol(), s.Rhs.Symbol()) }
func (s *Subtraction) instruction()            {}

// Collection builds a fixed-size list from the materialized values of its
// items.
type Collection struct {
	Items []Instruction
}

// NewCollection creates a list expression.
func NewCollection(items ...Instruction) *Collection {
	return &Collection{Items: items}
}

func (l *Collection) Declarations() []Decl    { return nil }
func (l *Collection) Init() Stmt              { return Stmt{} }
func (l *Collection) Evaluate() Stmt          { return childEvaluate(l.Items) }
func (l *Collection) Children() []Instruction { return l.Items }
func (l *Collection) instruction()            {}

func (l *Collection) Symbol() Symbol {
	exprs := make([]Expr, len(l.Items))
	sources := make([]string, len(l.Items))
	for i, item := range l.Items {
		exprs[i] = item.Symbol().Materialize()
		sources[i] = exprs[i].Source
	}

	source := "[]any{" + strings.Join(sources, ", ") + "}"
	return NewSymbol(NewExpr(source, func(c *Ctx) any {
		out := make([]any, len(exprs))
		for i, e := range exprs {
			out[i] = e.Eval(c)
		}
		return out
	}), TypeList)
}

// Map builds a string-keyed map from the materialized values of its
// entries. Entries are emitted in key order so identical trees render
// identical code.
type Map struct {
	Entries map[string]Instruction
}

// NewMap creates a map expression.
func NewMap(entries map[string]Instruction) *Map {
	return &Map{Entries: entries}
}

// Keys returns the entry keys in emission order.
func (m *Map) Keys() []string {
	keys := make([]string, 0, len(m.Entries))
	for k := range m.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Map) Declarations() []Decl { return nil }
func (m *Map) Init() Stmt           { return Stmt{} }
func (m *Map) Evaluate() Stmt       { return childEvaluate(m.Children()) }
func (m *Map) instruction()         {}

func (m *Map) Children() []Instruction {
	keys := m.Keys()
	children := make([]Instruction, len(keys))
	for i, k := range keys {
		children[i] = m.Entries[k]
	}
	return children
}

func (m *Map) Symbol() Symbol {
	keys := m.Keys()
	exprs := make([]Expr, len(keys))
	pairs := make([]string, len(keys))
	for i, k := range keys {
		exprs[i] = m.Entries[k].Symbol().Materialize()
		pairs[i] = strconv.Quote(k) + ": " + exprs[i].Source
	}

	source := "map[string]any{" + strings.Join(pairs, ", ") + "}"
	return NewSymbol(NewExpr(source, func(c *Ctx) any {
		out := make(map[string]any, len(keys))
		for i, k := range keys {
			out[k] = exprs[i].Eval(c)
		}
		return out
	}), TypeMap)
}

// Parent consumes the projected symbols of a Project.
type Parent interface {
	Emit(symbols []Symbol) Stmt
}

// EmitRow is the Parent that emits one output record per input row.
type EmitRow struct{}

// Emit implements Parent.
func (EmitRow) Emit(symbols []Symbol) Stmt {
	exprs := make([]Expr, len(symbols))
	sources := make([]string, len(symbols))
	for i, s := range symbols {
		exprs[i] = s.Materialize()
		sources[i] = exprs[i].Source
	}

	source := "f.Emit(" + strings.Join(sources, ", ") + ")"
	return NewStmt(source, func(c *Ctx) {
		values := make([]any, len(exprs))
		for i, e := range exprs {
			values[i] = e.Eval(c)
		}
		c.Emit(values...)
	})
}

// Column is one named projection.
type Column struct {
	Name string
	Expr Instruction
}

// Project is the root statement of a projection tree: it evaluates each
// column in order and hands the projected symbols to its parent.
type Project struct {
	Columns []Column
	Parent  Parent
}

// NewProject creates a projection. Column names must be unique and non-empty.
// A nil parent defaults to EmitRow.
func NewProject(columns []Column, parent Parent) (*Project, error) {
	if parent == nil {
		parent = EmitRow{}
	}
	p := &Project{Columns: columns, Parent: parent}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// validate checks the column list. Column names end up in generated
// comments and string literals, so control characters are rejected.
func (p *Project) validate() error {
	if len(p.Columns) == 0 {
		return fmt.Errorf("%w: no columns", ErrInvalidTree)
	}
	seen := make(map[string]bool, len(p.Columns))
	for _, col := range p.Columns {
		if col.Name == "" {
			return fmt.Errorf("%w: empty column name", ErrInvalidTree)
		}
		if strings.ContainsFunc(col.Name, unicode.IsControl) {
			return fmt.Errorf("%w: column %q contains control characters", ErrInvalidTree, col.Name)
		}
		if seen[col.Name] {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidTree, col.Name)
		}
		if col.Expr == nil {
			return fmt.Errorf("%w: column %q has no expression", ErrInvalidTree, col.Name)
		}
		seen[col.Name] = true
	}
	return nil
}

// Names returns the column names in order.
func (p *Project) Names() []string {
	names := make([]string, len(p.Columns))
	for i, col := range p.Columns {
		names[i] = col.Name
	}
	return names
}

func (p *Project) Declarations() []Decl { return nil }
func (p *Project) Init() Stmt           { return Stmt{} }
func (p *Project) instruction()         {}

func (p *Project) Children() []Instruction {
	children := make([]Instruction, len(p.Columns))
	for i, col := range p.Columns {
		children[i] = col.Expr
	}
	return children
}

// Evaluate runs each column's statements in order, then the parent.
func (p *Project) Evaluate() Stmt {
	children := p.Children()
	symbols := make([]Symbol, len(children))
	for i, child := range children {
		symbols[i] = child.Symbol()
	}
	return Concat(childEvaluate(children), p.Parent.Emit(symbols))
}

// Symbol is the record emitted for the current row.
func (p *Project) Symbol() Symbol {
	return NewSymbol(NewExpr("f.Record()", func(c *Ctx) any {
		return c.Record()
	}), TypeList)
}
