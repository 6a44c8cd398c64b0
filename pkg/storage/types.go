// Package storage provides the property-graph storage engines that compiled
// projections read from.
//
// Two engines are provided:
//   - MemoryEngine: thread-safe maps, used by tests and small fixtures
//   - BadgerEngine: persistent storage on BadgerDB
//
// Both expose the read path used by generated projection code: property keys
// are resolved once to integer tokens and then properties are read by
// (entity id, token). A read distinguishes "entity absent" (ErrNotFound) from
// "property absent" (found == false, no error).
package storage

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidID     = errors.New("invalid id")
	ErrInvalidData   = errors.New("invalid data")
	ErrStorageClosed = errors.New("storage closed")
)

// NoSuchPropertyKey is the token value of a property key that has not been
// resolved.
const NoSuchPropertyKey = -1

// NodeID uniquely identifies a node.
type NodeID string

// EdgeID uniquely identifies a relationship.
type EdgeID string

// Node is a graph node with labels and properties.
type Node struct {
	ID         NodeID         `yaml:"id"`
	Labels     []string       `yaml:"labels"`
	Properties map[string]any `yaml:"properties"`
	CreatedAt  time.Time      `yaml:"-"`
	UpdatedAt  time.Time      `yaml:"-"`
}

// Edge is a directed, typed relationship between two nodes.
type Edge struct {
	ID         EdgeID         `yaml:"id"`
	StartNode  NodeID         `yaml:"start"`
	EndNode    NodeID         `yaml:"end"`
	Type       string         `yaml:"type"`
	Properties map[string]any `yaml:"properties"`
	CreatedAt  time.Time      `yaml:"-"`
}

// PropertyReader is the read API consumed by compiled projections.
type PropertyReader interface {
	// ResolvePropertyKey returns the token for a property name, allocating
	// one if the name has never been seen.
	ResolvePropertyKey(name string) (int, error)

	// NodeProperty reads a node property by token. ErrNotFound is returned
	// when the node does not exist; a missing property is found == false.
	NodeProperty(id NodeID, key int) (value any, found bool, err error)

	// RelationshipProperty reads a relationship property by token.
	RelationshipProperty(id EdgeID, key int) (value any, found bool, err error)

	GetNode(id NodeID) (*Node, error)
	GetEdge(id EdgeID) (*Edge, error)
}

// Engine is the full storage engine contract.
type Engine interface {
	PropertyReader

	CreateNode(node *Node) error
	UpdateNode(node *Node) error
	DeleteNode(id NodeID) error

	CreateEdge(edge *Edge) error
	DeleteEdge(id EdgeID) error

	// PropertyKeyName returns the name registered for a token.
	PropertyKeyName(key int) (string, error)
	// LookupPropertyKey returns the token for name without allocating.
	LookupPropertyKey(name string) (int, bool)

	NodeCount() (int64, error)
	EdgeCount() (int64, error)

	Close() error
}

// copyNode creates a deep copy of a node.
func copyNode(n *Node) *Node {
	if n == nil {
		return nil
	}

	copied := &Node{
		ID:         n.ID,
		Labels:     make([]string, len(n.Labels)),
		Properties: make(map[string]any, len(n.Properties)),
		CreatedAt:  n.CreatedAt,
		UpdatedAt:  n.UpdatedAt,
	}

	copy(copied.Labels, n.Labels)
	for k, v := range n.Properties {
		copied.Properties[k] = v
	}

	return copied
}

// copyEdge creates a deep copy of an edge.
func copyEdge(e *Edge) *Edge {
	if e == nil {
		return nil
	}

	copied := &Edge{
		ID:         e.ID,
		StartNode:  e.StartNode,
		EndNode:    e.EndNode,
		Type:       e.Type,
		Properties: make(map[string]any, len(e.Properties)),
		CreatedAt:  e.CreatedAt,
	}

	for k, v := range e.Properties {
		copied.Properties[k] = v
	}

	return copied
}
