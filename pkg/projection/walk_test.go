package projection

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedNamer struct{}

func (fixedNamer) StateName() string    { return "key" }
func (fixedNamer) AccessorName() string { return "read" }

func declNames(decls []Decl) []string {
	names := make([]string, len(decls))
	for i, d := range decls {
		names[i] = d.Name
	}
	return names
}

func TestWalk_PostOrder(t *testing.T) {
	b := NewBuilder(nil)
	one, two := mustLiteral(t, 1), mustLiteral(t, 2)
	sum := b.Add(one, two)
	param := b.Param("p")
	list := b.List(sum, param)
	root := mustProject(t, column("l", list))

	var visited []Instruction
	require.NoError(t, Walk(root, func(inst Instruction) error {
		visited = append(visited, inst)
		return nil
	}))
	assert.Equal(t, []Instruction{one, two, sum, param, list, root}, visited)
}

func TestEmit(t *testing.T) {
	b := NewBuilder(nil)
	root := mustProject(t,
		column("name", b.NodeProperty(1, "n", "name")),
		column("p", b.Param("p")),
		column("since", b.RelationshipProperty("r", "since")),
	)

	em, err := Emit(root)
	require.NoError(t, err)

	if diff := cmp.Diff([]string{"name", "p", "since"}, em.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"propKey0", "nodeProp1", "propKey2"}, declNames(em.Decls)); diff != "" {
		t.Errorf("declarations mismatch (-want +got):\n%s", diff)
	}

	inits := make([]string, len(em.Inits))
	for i, s := range em.Inits {
		inits[i] = s.Source
	}
	want := []string{
		`f.ResolveToken(p.propKey0, "name")`,
		`f.RequireParam("p")`,
		`f.ResolveToken(p.propKey2, "since")`,
	}
	if diff := cmp.Diff(want, inits); diff != "" {
		t.Errorf("inits mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t,
		`f.Emit(p.nodeProp1(f, f.NodeID("n")), f.Param("p"), f.RelationshipProperty(f.EdgeID("r"), p.propKey2.ID()))`,
		em.Eval.Source)
}

func TestEmit_DuplicateDeclarations(t *testing.T) {
	a := NewNodeProperty(fixedNamer{}, 1, PendingToken(), "a", NodeVariable("n"))
	b := NewNodeProperty(fixedNamer{}, 1, PendingToken(), "b", NodeVariable("n"))
	root := mustProject(t, column("a", a), column("b", b))

	_, err := Emit(root)
	assert.ErrorIs(t, err, ErrInvalidTree)
}

func TestNodeProperty_Declarations(t *testing.T) {
	known := NewNodeProperty(NewNamer(), 4, KnownToken(9), "age", NodeVariable("m"))
	decls := known.Declarations()
	require.Len(t, decls, 1)
	assert.Equal(t, MethodDecl, decls[0].Kind)
	assert.Contains(t, decls[0].Body, "scope := f.OpenScope(4)")
	assert.Contains(t, decls[0].Body, "defer scope.Close()")
	assert.Contains(t, decls[0].Body, "return f.NodeProperty(node, 9)")
	assert.True(t, known.Init().Empty())
	assert.True(t, known.Evaluate().Empty())

	pending := NewNodeProperty(NewNamer(), 4, PendingToken(), "age", NodeVariable("m"))
	decls = pending.Declarations()
	require.Len(t, decls, 2)
	assert.Equal(t, FieldDecl, decls[0].Kind)
	assert.Equal(t, "*eval.Token", decls[0].Type)
	assert.Equal(t, "eval.NewToken()", decls[0].Initial)
	assert.Contains(t, decls[1].Body, "return f.NodeProperty(node, p.propKey0.ID())")
}

func TestExplain(t *testing.T) {
	b := NewBuilder(nil)
	root := mustProject(t,
		column("name", b.NodeProperty(1, "n", "name")),
		column("total", b.Sub(b.Add(mustLiteral(t, 1), mustLiteral(t, 2.5)), b.Param("x"))),
		column("m", b.Map(map[string]Instruction{
			"r": b.Relationship("r"),
			"l": b.List(mustLiteral(t, "a")),
		})),
	)

	want := `Project [name, total, m]
  NodeProperty n.name op=1 token=pending :: Object
  Subtraction :: Number
    Addition :: Float
      Literal int64(1) :: Integer
      Literal float64(2.5) :: Float
    Parameter $x :: Object
  Map {"l", "r"} :: Map
    Collection(1) :: List
      Literal "a" :: Text
    Relationship r :: Object
`
	assert.Equal(t, want, Explain(root))
}
