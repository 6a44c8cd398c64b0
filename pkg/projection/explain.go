package projection

import (
	"fmt"
	"strconv"
	"strings"
)

// Explain renders a projection tree, one node per line, indented by depth.
func Explain(root Instruction) string {
	var sb strings.Builder
	explain(&sb, root, 0)
	return sb.String()
}

func explain(sb *strings.Builder, inst Instruction, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	if inst == nil {
		sb.WriteString("<nil>\n")
		return
	}

	switch n := inst.(type) {
	case *Project:
		fmt.Fprintf(sb, "Project [%s]\n", strings.Join(n.Names(), ", "))
	case *Literal:
		fmt.Fprintf(sb, "Literal %s :: %s\n", literalSource(n.Value), n.typ)
	case *Parameter:
		fmt.Fprintf(sb, "Parameter $%s :: %s\n", n.Key, TypeObject)
	case *NodeProperty:
		fmt.Fprintf(sb, "NodeProperty %s.%s op=%d token=%s :: %s\n",
			n.NodeID, n.Name, n.Operator, n.key.token, TypeObject)
	case *RelationshipProperty:
		fmt.Fprintf(sb, "RelationshipProperty %s.%s token=%s :: %s\n",
			n.RelationshipID, n.Name, n.key.token, TypeObject)
	case *Node:
		fmt.Fprintf(sb, "Node %s :: %s\n", n.ID, TypeObject)
	case *Relationship:
		fmt.Fprintf(sb, "Relationship %s :: %s\n", n.ID, TypeObject)
	case *Addition:
		fmt.Fprintf(sb, "Addition :: %s\n", binaryType(n.Lhs, n.Rhs, AddType))
	case *Subtraction:
		fmt.Fprintf(sb, "Subtraction :: %s\n", binaryType(n.Lhs, n.Rhs, SubType))
	case *Collection:
		fmt.Fprintf(sb, "Collection(%d) :: %s\n", len(n.Items), TypeList)
	case *Map:
		quoted := make([]string, 0, len(n.Entries))
		for _, k := range n.Keys() {
			quoted = append(quoted, strconv.Quote(k))
		}
		fmt.Fprintf(sb, "Map {%s} :: %s\n", strings.Join(quoted, ", "), TypeMap)
	default:
		panic(fmt.Sprintf("projection: unhandled instruction %T", inst))
	}

	for _, child := range inst.Children() {
		explain(sb, child, depth+1)
	}
}

func binaryType(lhs, rhs Instruction, result func(Type, Type) Type) string {
	if lhs == nil || rhs == nil {
		return "?"
	}
	return result(lhs.Symbol().Type, rhs.Symbol().Type).String()
}
