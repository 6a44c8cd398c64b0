package projection

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/nornicproj/pkg/eval"
	"github.com/orneryd/nornicproj/pkg/profile"
	"github.com/orneryd/nornicproj/pkg/storage"
)

type countingReader struct {
	storage.PropertyReader
	resolves atomic.Int64
}

func (c *countingReader) ResolvePropertyKey(name string) (int, error) {
	c.resolves.Add(1)
	return c.PropertyReader.ResolvePropertyKey(name)
}

func newGraph(t *testing.T) *storage.MemoryEngine {
	t.Helper()
	engine := storage.NewMemoryEngine()
	require.NoError(t, engine.CreateNode(&storage.Node{
		ID:         "alice",
		Labels:     []string{"Person"},
		Properties: map[string]any{"name": "Alice", "age": int64(34)},
	}))
	require.NoError(t, engine.CreateNode(&storage.Node{
		ID:         "bob",
		Labels:     []string{"Person"},
		Properties: map[string]any{"name": "Bob"},
	}))
	require.NoError(t, engine.CreateEdge(&storage.Edge{
		ID:         "knows",
		StartNode:  "alice",
		EndNode:    "bob",
		Type:       "KNOWS",
		Properties: map[string]any{"since": int64(2011)},
	}))
	return engine
}

func column(name string, expr Instruction) Column {
	return Column{Name: name, Expr: expr}
}

func mustProject(t *testing.T, columns ...Column) *Project {
	t.Helper()
	p, err := NewProject(columns, nil)
	require.NoError(t, err)
	return p
}

func mustLiteral(t *testing.T, v any) *Literal {
	t.Helper()
	l, err := NewLiteral(v)
	require.NoError(t, err)
	return l
}

// evaluate compiles root, opens a fresh unit against env and evaluates row.
func evaluate(t *testing.T, root *Project, env eval.Env, row eval.Row) ([]any, error) {
	t.Helper()
	prog, err := Compile(root)
	require.NoError(t, err)
	if env.Reader == nil {
		env.Reader = storage.NewMemoryEngine()
	}
	exec, err := prog.NewUnit().Open(context.Background(), env)
	if err != nil {
		return nil, err
	}
	return exec.Next(row)
}

func TestCompile_Arithmetic(t *testing.T) {
	tests := []struct {
		name string
		expr func(t *testing.T) Instruction
		want any
	}{
		{"integer sum", func(t *testing.T) Instruction {
			return NewAddition(mustLiteral(t, 2), mustLiteral(t, 3))
		}, int64(5)},
		{"integer plus float", func(t *testing.T) Instruction {
			return NewAddition(mustLiteral(t, 2), mustLiteral(t, 3.0))
		}, 5.0},
		{"text concatenation", func(t *testing.T) Instruction {
			return NewAddition(mustLiteral(t, "a"), mustLiteral(t, 1))
		}, "a1"},
		{"float renders with fraction", func(t *testing.T) Instruction {
			return NewAddition(mustLiteral(t, 2.0), mustLiteral(t, "x"))
		}, "2.0x"},
		{"text plus null", func(t *testing.T) Instruction {
			return NewAddition(mustLiteral(t, "a"), mustLiteral(t, nil))
		}, "a"},
		{"integer difference", func(t *testing.T) Instruction {
			return NewSubtraction(mustLiteral(t, 2), mustLiteral(t, 5))
		}, int64(-3)},
		{"float difference", func(t *testing.T) Instruction {
			return NewSubtraction(mustLiteral(t, 2.5), mustLiteral(t, 1))
		}, 1.5},
		{"generic null", func(t *testing.T) Instruction {
			return NewAddition(mustLiteral(t, nil), mustLiteral(t, 1))
		}, nil},
		{"list append", func(t *testing.T) Instruction {
			return NewAddition(NewCollection(mustLiteral(t, 1)), mustLiteral(t, 2))
		}, []any{int64(1), int64(2)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := evaluate(t, mustProject(t, column("x", tt.expr(t))), eval.Env{}, eval.Row{})
			require.NoError(t, err)
			require.Len(t, rec, 1)
			assert.Equal(t, tt.want, rec[0])
		})
	}
}

func TestCompile_LiteralOverflowWraps(t *testing.T) {
	b := NewBuilder(nil)
	root := mustProject(t,
		column("inc", b.Add(mustLiteral(t, int64(math.MaxInt64)), mustLiteral(t, 1))),
		column("dec", b.Sub(mustLiteral(t, int64(math.MinInt64)), mustLiteral(t, 1))),
		column("big", b.Add(mustLiteral(t, 1e308), mustLiteral(t, 1e308))),
	)
	rec, err := evaluate(t, root, eval.Env{}, eval.Row{})
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64), rec[0])
	assert.Equal(t, int64(math.MaxInt64), rec[1])
	assert.True(t, math.IsInf(rec[2].(float64), 1))
}

func TestCompile_IncompatibleSubtraction(t *testing.T) {
	root := mustProject(t, column("x", NewSubtraction(mustLiteral(t, "a"), mustLiteral(t, 1))))
	rec, err := evaluate(t, root, eval.Env{}, eval.Row{})
	assert.ErrorIs(t, err, eval.ErrIncompatibleTypes)
	assert.Nil(t, rec)
}

func TestCompile_Parameters(t *testing.T) {
	root := mustProject(t, column("x", NewAddition(NewParameter("x"), mustLiteral(t, 2))))

	t.Run("bound", func(t *testing.T) {
		rec, err := evaluate(t, root, eval.Env{Params: eval.Params{"x": int64(3)}}, eval.Row{})
		require.NoError(t, err)
		assert.Equal(t, []any{int64(5)}, rec)
	})

	t.Run("missing fails initialization", func(t *testing.T) {
		prog, err := Compile(root)
		require.NoError(t, err)
		exec, err := prog.NewUnit().Open(context.Background(), eval.Env{Reader: storage.NewMemoryEngine()})
		assert.ErrorIs(t, err, eval.ErrParameterNotFound)
		assert.Nil(t, exec)
	})

	t.Run("null parameter is bound", func(t *testing.T) {
		rec, err := evaluate(t, mustProject(t, column("x", NewParameter("x"))), eval.Env{Params: eval.Params{"x": nil}}, eval.Row{})
		require.NoError(t, err)
		assert.Equal(t, []any{nil}, rec)
	})
}

func TestCompile_Collections(t *testing.T) {
	graph := newGraph(t)
	b := NewBuilder(nil)

	list := b.List(mustLiteral(t, 1), mustLiteral(t, "a"), mustLiteral(t, nil), b.Node("n"))
	m := b.Map(map[string]Instruction{
		"b":    mustLiteral(t, 1.5),
		"a":    b.Add(mustLiteral(t, 1), mustLiteral(t, 1)),
		"self": b.Node("n"),
	})
	root := mustProject(t, column("list", list), column("map", m))

	rec, err := evaluate(t, root, eval.Env{Reader: graph}, eval.Row{"n": storage.NodeID("alice")})
	require.NoError(t, err)
	require.Len(t, rec, 2)

	got := rec[0].([]any)
	require.Len(t, got, 4)
	assert.Equal(t, []any{int64(1), "a", nil}, got[:3])
	node, ok := got[3].(*storage.Node)
	require.True(t, ok, "list elements hold materialized nodes, got %T", got[3])
	assert.Equal(t, storage.NodeID("alice"), node.ID)

	gotMap := rec[1].(map[string]any)
	assert.Equal(t, int64(2), gotMap["a"])
	assert.Equal(t, 1.5, gotMap["b"])
	assert.IsType(t, &storage.Node{}, gotMap["self"])
}

func TestCompile_EntityReferences(t *testing.T) {
	graph := newGraph(t)
	b := NewBuilder(nil)

	t.Run("projected entities are materialized", func(t *testing.T) {
		root := mustProject(t, column("n", b.Node("n")), column("r", b.Relationship("r")))
		rec, err := evaluate(t, root, eval.Env{Reader: graph}, eval.Row{"n": "bob", "r": storage.EdgeID("knows")})
		require.NoError(t, err)
		assert.Equal(t, storage.NodeID("bob"), rec[0].(*storage.Node).ID)
		assert.Equal(t, "KNOWS", rec[1].(*storage.Edge).Type)
	})

	t.Run("references stay lazy inside arithmetic", func(t *testing.T) {
		sym := b.Node("n").Symbol()
		assert.Equal(t, `eval.NodeRef{ID: f.NodeID("n")}`, sym.Expr.Source)
		assert.Equal(t, `f.LoadNode(f.NodeID("n"))`, sym.Materialize().Source)
	})

	t.Run("missing entity", func(t *testing.T) {
		root := mustProject(t, column("n", b.Node("n")))
		_, err := evaluate(t, root, eval.Env{Reader: graph}, eval.Row{"n": "nobody"})
		assert.ErrorIs(t, err, eval.ErrEntityNotFound)
	})

	t.Run("unbound variable", func(t *testing.T) {
		root := mustProject(t, column("n", b.Node("n")))
		_, err := evaluate(t, root, eval.Env{Reader: graph}, eval.Row{})
		assert.ErrorIs(t, err, eval.ErrUnboundVariable)
	})
}

func TestCompile_NodeProperty(t *testing.T) {
	graph := newGraph(t)
	rec := profile.NewRecorder()
	b := NewBuilder(graph)
	root := mustProject(t,
		column("name", b.NodeProperty(3, "n", "name")),
		column("age", b.Add(b.NodeProperty(3, "n", "age"), mustLiteral(t, 1))),
	)

	prog, err := Compile(root)
	require.NoError(t, err)
	exec, err := prog.NewUnit().Open(context.Background(), eval.Env{Reader: graph, Tracer: rec})
	require.NoError(t, err)

	got, err := exec.Next(eval.Row{"n": "alice"})
	require.NoError(t, err)
	assert.Equal(t, []any{"Alice", int64(35)}, got)

	// absent property is null, not an error
	got, err = exec.Next(eval.Row{"n": "bob"})
	require.NoError(t, err)
	assert.Equal(t, []any{"Bob", nil}, got)

	stats := rec.Stats(3)
	assert.Equal(t, int64(4), stats.DBHits)
	assert.Equal(t, int64(4), stats.Rows)
	assert.Equal(t, int64(0), stats.Open())
}

func TestCompile_PendingTokenResolvesOnce(t *testing.T) {
	graph := newGraph(t)
	reader := &countingReader{PropertyReader: graph}

	// The planner knows no keys, so the token is resolved at runtime
	b := NewBuilder(graph)
	prop := b.NodeProperty(1, "n", "name")
	require.False(t, prop.Token().Resolved)
	root := mustProject(t, column("name", prop))

	prog, err := Compile(root)
	require.NoError(t, err)
	unit := prog.NewUnit()
	require.False(t, unit.State().Token("propKey0").Resolved())

	rows, err := unit.Run(context.Background(), eval.Env{Reader: reader}, []eval.Row{
		{"n": "alice"}, {"n": "bob"}, {"n": "alice"},
	})
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"Alice"}, {"Bob"}, {"Alice"}}, rows)
	assert.Equal(t, int64(1), reader.resolves.Load())

	// reopening the same unit keeps the cached token
	_, err = unit.Open(context.Background(), eval.Env{Reader: reader})
	require.NoError(t, err)
	assert.Equal(t, int64(1), reader.resolves.Load())

	id, ok := graph.LookupPropertyKey("name")
	require.True(t, ok)
	assert.Equal(t, id, unit.State().Token("propKey0").ID())

	// a fresh unit has its own state
	_, err = prog.NewUnit().Open(context.Background(), eval.Env{Reader: reader})
	require.NoError(t, err)
	assert.Equal(t, int64(2), reader.resolves.Load())
}

func TestCompile_KnownTokenNeedsNoState(t *testing.T) {
	graph := newGraph(t)
	id, err := graph.ResolvePropertyKey("since")
	require.NoError(t, err)

	b := NewBuilder(graph)
	prop := b.RelationshipProperty("r", "since")
	assert.Equal(t, KnownToken(id), prop.Token())
	assert.Empty(t, prop.Declarations())
	assert.True(t, prop.Init().Empty())

	reader := &countingReader{PropertyReader: graph}
	got, err := evaluate(t, mustProject(t, column("since", prop)), eval.Env{Reader: reader}, eval.Row{"r": storage.EdgeID("knows")})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(2011)}, got)
	assert.Zero(t, reader.resolves.Load())
}

func TestCompile_DeletedNode(t *testing.T) {
	graph := newGraph(t)
	rec := profile.NewRecorder()
	b := NewBuilder(nil)
	root := mustProject(t, column("name", b.NodeProperty(7, "n", "name")))

	prog, err := Compile(root)
	require.NoError(t, err)
	exec, err := prog.NewUnit().Open(context.Background(), eval.Env{Reader: graph, Tracer: rec})
	require.NoError(t, err)

	require.NoError(t, graph.DeleteNode("alice"))
	got, err := exec.Next(eval.Row{"n": "alice"})
	assert.Nil(t, got)

	var notFound *eval.EntityNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, eval.KindNode, notFound.Kind)
	assert.Equal(t, "alice", notFound.ID)

	stats := rec.Stats(7)
	assert.Equal(t, int64(1), stats.Opened)
	assert.Equal(t, int64(1), stats.Closed)
	assert.Equal(t, int64(1), stats.DBHits)

	// the execution stays failed
	_, err = exec.Next(eval.Row{"n": "bob"})
	assert.ErrorIs(t, err, eval.ErrEntityNotFound)
	assert.Equal(t, int64(1), rec.Stats(7).Opened)
}

func TestCompile_DeletedRelationship(t *testing.T) {
	graph := newGraph(t)
	b := NewBuilder(nil)
	root := mustProject(t, column("since", b.RelationshipProperty("r", "since")))
	require.NoError(t, graph.DeleteEdge("knows"))

	_, err := evaluate(t, root, eval.Env{Reader: graph}, eval.Row{"r": storage.EdgeID("knows")})
	var notFound *eval.EntityNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, eval.KindRelationship, notFound.Kind)
}

func TestCompile_ColumnOrder(t *testing.T) {
	graph := newGraph(t)
	row := eval.Row{"n": "alice"}

	build := func(order ...string) *Project {
		b := NewBuilder(nil)
		cols := map[string]Instruction{
			"name": b.NodeProperty(1, "n", "name"),
			"sum":  b.Add(mustLiteral(t, 1), mustLiteral(t, 2)),
		}
		var columns []Column
		for _, name := range order {
			columns = append(columns, column(name, cols[name]))
		}
		return mustProject(t, columns...)
	}

	a, err := evaluate(t, build("name", "sum"), eval.Env{Reader: graph}, row)
	require.NoError(t, err)
	b, err := evaluate(t, build("sum", "name"), eval.Env{Reader: graph}, row)
	require.NoError(t, err)
	assert.Equal(t, []any{"Alice", int64(3)}, a)
	assert.Equal(t, []any{int64(3), "Alice"}, b)
}

func TestCompile_ConcurrentExecutions(t *testing.T) {
	graph := newGraph(t)
	reader := &countingReader{PropertyReader: graph}
	rec := profile.NewRecorder()
	b := NewBuilder(nil)
	root := mustProject(t, column("name", b.NodeProperty(2, "n", "name")))

	prog, err := Compile(root)
	require.NoError(t, err)
	unit := prog.NewUnit()

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows, err := unit.Run(context.Background(), eval.Env{Reader: reader, Tracer: rec}, []eval.Row{
				{"n": "alice"}, {"n": "bob"},
			})
			if err != nil {
				errs <- err
				return
			}
			if rows[0][0] != "Alice" || rows[1][0] != "Bob" {
				errs <- errors.New("unexpected rows")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	id, ok := graph.LookupPropertyKey("name")
	require.True(t, ok)
	assert.Equal(t, id, unit.State().Token("propKey0").ID())
	assert.Equal(t, int64(2*workers), rec.Stats(2).Rows)
	assert.Zero(t, rec.Stats(2).Open())
}

func TestCompile_CanceledContext(t *testing.T) {
	root := mustProject(t, column("x", mustLiteral(t, 1)))
	prog, err := Compile(root)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	exec, err := prog.NewUnit().Open(ctx, eval.Env{Reader: storage.NewMemoryEngine()})
	require.NoError(t, err)

	_, err = exec.Next(eval.Row{})
	require.NoError(t, err)

	cancel()
	_, err = exec.Next(eval.Row{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompile_InvalidTrees(t *testing.T) {
	_, err := Compile(nil)
	assert.ErrorIs(t, err, ErrInvalidTree)

	_, err = NewProject(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidTree)

	one := mustLiteral(t, 1)
	_, err = NewProject([]Column{column("a", one), column("a", one)}, nil)
	assert.ErrorIs(t, err, ErrInvalidTree)

	_, err = NewProject([]Column{column("", one)}, nil)
	assert.ErrorIs(t, err, ErrInvalidTree)

	_, err = NewProject([]Column{column("a", nil)}, nil)
	assert.ErrorIs(t, err, ErrInvalidTree)

	_, err = NewProject([]Column{column("first\nsecond", one)}, nil)
	assert.ErrorIs(t, err, ErrInvalidTree)

	_, err = Compile(&Project{Columns: []Column{column("tab\tname", one)}, Parent: EmitRow{}})
	assert.ErrorIs(t, err, ErrInvalidTree)

	root := mustProject(t, column("a", NewAddition(one, nil)))
	_, err = Compile(root)
	assert.ErrorIs(t, err, ErrInvalidTree)

	_, err = NewLiteral(math.NaN())
	assert.ErrorIs(t, err, ErrInvalidTree)
}

func TestUnit_OpenRequiresReader(t *testing.T) {
	prog, err := Compile(mustProject(t, column("x", mustLiteral(t, 1))))
	require.NoError(t, err)
	unit := prog.NewUnit()
	assert.NotEqual(t, unit.ID(), prog.NewUnit().ID())

	_, err = unit.Open(context.Background(), eval.Env{})
	assert.Error(t, err)
}
