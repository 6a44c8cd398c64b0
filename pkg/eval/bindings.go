package eval

import "github.com/orneryd/nornicproj/pkg/storage"

// ParameterStore holds the parameters bound to one query execution.
type ParameterStore interface {
	Lookup(key string) (any, bool)
}

// Params is a map-backed ParameterStore.
type Params map[string]any

// Lookup implements ParameterStore.
func (p Params) Lookup(key string) (any, bool) {
	v, ok := p[key]
	return v, ok
}

// Row binds query variables to the entities of one input row. Node variables
// hold a storage.NodeID (or string), relationship variables a storage.EdgeID.
type Row map[string]any

func (r Row) nodeID(name string) (storage.NodeID, bool) {
	switch v := r[name].(type) {
	case storage.NodeID:
		return v, true
	case string:
		return storage.NodeID(v), true
	case NodeRef:
		return v.ID, true
	case *storage.Node:
		if v != nil {
			return v.ID, true
		}
	}
	return "", false
}

func (r Row) edgeID(name string) (storage.EdgeID, bool) {
	switch v := r[name].(type) {
	case storage.EdgeID:
		return v, true
	case string:
		return storage.EdgeID(v), true
	case RelationshipRef:
		return v.ID, true
	case *storage.Edge:
		if v != nil {
			return v.ID, true
		}
	}
	return "", false
}
