package plan

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/orneryd/nornicproj/pkg/storage"
)

// Graph is a fixture of nodes and relationships to load before evaluation.
type Graph struct {
	Nodes []storage.Node `yaml:"nodes"`
	Edges []storage.Edge `yaml:"edges"`
}

// Load creates the fixture's nodes, then its relationships. Entities without
// an id get a random one.
func (g *Graph) Load(engine storage.Engine) error {
	for i := range g.Nodes {
		node := g.Nodes[i]
		if node.ID == "" {
			node.ID = storage.NodeID(uuid.NewString())
		}
		node.Properties = normalizeProps(node.Properties)
		if err := engine.CreateNode(&node); err != nil {
			return fmt.Errorf("load node %s: %w", node.ID, err)
		}
	}
	for i := range g.Edges {
		edge := g.Edges[i]
		if edge.ID == "" {
			edge.ID = storage.EdgeID(uuid.NewString())
		}
		edge.Properties = normalizeProps(edge.Properties)
		if err := engine.CreateEdge(&edge); err != nil {
			return fmt.Errorf("load relationship %s: %w", edge.ID, err)
		}
	}
	return nil
}

func normalizeProps(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	return normalize(props).(map[string]any)
}
