// Package plan decodes YAML plan documents into projection trees.
//
// A plan document names the projected columns, the expression tree of each
// column, and optionally the parameters, input rows and graph fixture to
// evaluate it against:
//
//	columns:
//	  - name: greeting
//	    expr:
//	      add:
//	        - literal: "hello "
//	        - property: {node: n, key: name, operator: 1}
//	params:
//	  x: 5
//	rows:
//	  - {n: alice}
//	graph:
//	  nodes:
//	    - {id: alice, labels: [Person], properties: {name: Alice}}
//
// Expression nodes have exactly one of the keys literal, param, property,
// relationshipProperty, node, relationship, add, sub, list or map.
package plan

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/orneryd/nornicproj/pkg/eval"
	"github.com/orneryd/nornicproj/pkg/profile"
	"github.com/orneryd/nornicproj/pkg/projection"
)

// ErrInvalidPlan is returned for documents that do not describe a tree.
var ErrInvalidPlan = errors.New("invalid plan")

// Document is a decoded plan file.
type Document struct {
	Columns []ColumnSpec     `yaml:"columns"`
	Params  map[string]any   `yaml:"params,omitempty"`
	Rows    []map[string]any `yaml:"rows,omitempty"`
	Graph   *Graph           `yaml:"graph,omitempty"`
}

// ColumnSpec is one projected column.
type ColumnSpec struct {
	Name string `yaml:"name"`
	Expr *Expr  `yaml:"expr"`
}

// PropertySpec reads node.key, attributed to operator.
type PropertySpec struct {
	Node     string `yaml:"node"`
	Key      string `yaml:"key"`
	Operator int    `yaml:"operator"`
}

// RelationshipPropertySpec reads relationship.key.
type RelationshipPropertySpec struct {
	Relationship string `yaml:"relationship"`
	Key          string `yaml:"key"`
}

// Expr is one expression node.
type Expr struct {
	Literal              yaml.Node                 `yaml:"literal,omitempty"`
	Param                string                    `yaml:"param,omitempty"`
	Property             *PropertySpec             `yaml:"property,omitempty"`
	RelationshipProperty *RelationshipPropertySpec `yaml:"relationshipProperty,omitempty"`
	Node                 string                    `yaml:"node,omitempty"`
	Relationship         string                    `yaml:"relationship,omitempty"`
	Add                  []*Expr                   `yaml:"add,omitempty"`
	Sub                  []*Expr                   `yaml:"sub,omitempty"`
	List                 *[]*Expr                  `yaml:"list,omitempty"`
	Map                  map[string]*Expr          `yaml:"map,omitempty"`
}

// Parse decodes a plan document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	if len(doc.Columns) == 0 {
		return nil, fmt.Errorf("%w: no columns", ErrInvalidPlan)
	}
	return &doc, nil
}

// Load reads and decodes a plan file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	return Parse(data)
}

// Build turns the document into a projection tree using b.
func (d *Document) Build(b *projection.Builder) (*projection.Project, error) {
	columns := make([]projection.Column, 0, len(d.Columns))
	for _, col := range d.Columns {
		if col.Expr == nil {
			return nil, fmt.Errorf("%w: column %q has no expr", ErrInvalidPlan, col.Name)
		}
		inst, err := col.Expr.build(b)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col.Name, err)
		}
		columns = append(columns, projection.Column{Name: col.Name, Expr: inst})
	}
	return b.Project(columns...)
}

// Bindings returns the document's parameters and rows in evaluation form.
// Integers decoded from YAML are widened to int64.
func (d *Document) Bindings() (eval.Params, []eval.Row) {
	params := make(eval.Params, len(d.Params))
	for k, v := range d.Params {
		params[k] = normalize(v)
	}
	rows := make([]eval.Row, len(d.Rows))
	for i, r := range d.Rows {
		row := make(eval.Row, len(r))
		for k, v := range r {
			row[k] = normalize(v)
		}
		rows[i] = row
	}
	if len(rows) == 0 {
		rows = []eval.Row{{}}
	}
	return params, rows
}

func (e *Expr) kinds() []string {
	var kinds []string
	add := func(set bool, name string) {
		if set {
			kinds = append(kinds, name)
		}
	}
	add(e.Literal.Kind != 0, "literal")
	add(e.Param != "", "param")
	add(e.Property != nil, "property")
	add(e.RelationshipProperty != nil, "relationshipProperty")
	add(e.Node != "", "node")
	add(e.Relationship != "", "relationship")
	add(e.Add != nil, "add")
	add(e.Sub != nil, "sub")
	add(e.List != nil, "list")
	add(e.Map != nil, "map")
	return kinds
}

func (e *Expr) build(b *projection.Builder) (projection.Instruction, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidPlan)
	}
	switch kinds := e.kinds(); len(kinds) {
	case 0:
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidPlan)
	case 1:
	default:
		return nil, fmt.Errorf("%w: expression sets %s", ErrInvalidPlan, strings.Join(kinds, ", "))
	}

	switch {
	case e.Literal.Kind != 0:
		var v any
		if err := e.Literal.Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: literal: %v", ErrInvalidPlan, err)
		}
		return b.Literal(v)

	case e.Param != "":
		return b.Param(e.Param), nil

	case e.Property != nil:
		p := e.Property
		if p.Node == "" || p.Key == "" {
			return nil, fmt.Errorf("%w: property needs node and key", ErrInvalidPlan)
		}
		return b.NodeProperty(profile.OperatorID(p.Operator), p.Node, p.Key), nil

	case e.RelationshipProperty != nil:
		p := e.RelationshipProperty
		if p.Relationship == "" || p.Key == "" {
			return nil, fmt.Errorf("%w: relationshipProperty needs relationship and key", ErrInvalidPlan)
		}
		return b.RelationshipProperty(p.Relationship, p.Key), nil

	case e.Node != "":
		return b.Node(e.Node), nil

	case e.Relationship != "":
		return b.Relationship(e.Relationship), nil

	case e.Add != nil, e.Sub != nil:
		operands, op := e.Add, "add"
		if e.Sub != nil {
			operands, op = e.Sub, "sub"
		}
		if len(operands) != 2 {
			return nil, fmt.Errorf("%w: %s takes 2 operands, got %d", ErrInvalidPlan, op, len(operands))
		}
		lhs, err := operands[0].build(b)
		if err != nil {
			return nil, err
		}
		rhs, err := operands[1].build(b)
		if err != nil {
			return nil, err
		}
		if op == "add" {
			return b.Add(lhs, rhs), nil
		}
		return b.Sub(lhs, rhs), nil

	case e.List != nil:
		items := make([]projection.Instruction, 0, len(*e.List))
		for _, item := range *e.List {
			inst, err := item.build(b)
			if err != nil {
				return nil, err
			}
			items = append(items, inst)
		}
		return b.List(items...), nil
	}

	// Entries are built in key order so generated names are stable.
	keys := make([]string, 0, len(e.Map))
	for k := range e.Map {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	entries := make(map[string]projection.Instruction, len(keys))
	for _, k := range keys {
		inst, err := e.Map[k].build(b)
		if err != nil {
			return nil, fmt.Errorf("map entry %q: %w", k, err)
		}
		entries[k] = inst
	}
	return b.Map(entries), nil
}

// normalize widens YAML-decoded ints so values match what compiled code and
// storage produce.
func normalize(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	}
	return v
}

// ParseValue decodes a single YAML scalar or flow value, such as a
// command-line parameter.
func ParseValue(s string) (any, error) {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("failed to parse value %q: %w", s, err)
	}
	return normalize(v), nil
}
