package projection

import (
	"fmt"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/nornicproj/pkg/storage"
)

const modulePath = "github.com/orneryd/nornicproj"

// sourceImporter checks module packages from source and the standard library
// from export data. Third-party imports inside module packages stay
// unresolved; generated code only calls into eval and storage.
type sourceImporter struct {
	fset *token.FileSet
	std  types.Importer
	pkgs map[string]*types.Package
}

func (s *sourceImporter) Import(path string) (*types.Package, error) {
	if pkg, ok := s.pkgs[path]; ok {
		return pkg, nil
	}
	rel, ok := strings.CutPrefix(path, modulePath+"/")
	if !ok {
		if first, _, _ := strings.Cut(path, "/"); strings.Contains(first, ".") {
			return nil, fmt.Errorf("%s: third-party package not loaded", path)
		}
		return s.std.Import(path)
	}

	dir := filepath.Join("..", "..", filepath.FromSlash(rel))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []*ast.File
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(s.fset, filepath.Join(dir, name), nil, 0)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	conf := types.Config{Importer: s, Error: func(error) {}}
	pkg, _ := conf.Check(path, s.fset, files, nil)
	s.pkgs[path] = pkg
	return pkg, nil
}

// typeCheck fails the test if src does not type-check as a Go file.
func typeCheck(t *testing.T, src []byte) {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "projection_gen.go", src, 0)
	require.NoError(t, err)

	var errs []string
	conf := types.Config{
		Importer: &sourceImporter{fset: fset, std: importer.Default(), pkgs: map[string]*types.Package{}},
		Error:    func(err error) { errs = append(errs, err.Error()) },
	}
	_, _ = conf.Check("compiled", fset, []*ast.File{file}, nil)
	assert.Empty(t, errs, "generated source:\n%s", src)
}

func newGolden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestSource_NodeProperty(t *testing.T) {
	b := NewBuilder(nil)
	root := mustProject(t, column("name", b.NodeProperty(1, "n", "name")))
	prog, err := Compile(root)
	require.NoError(t, err)

	out, err := prog.Source(SourceOptions{Package: "compiled", TypeName: "PersonNames", Format: true})
	require.NoError(t, err)
	newGolden(t).Assert(t, "person_names", out)
}

func TestSource_Arithmetic(t *testing.T) {
	b := NewBuilder(nil)
	root := mustProject(t,
		column("sum", b.Add(mustLiteral(t, 2), mustLiteral(t, 3.0))),
		column("label", b.Add(mustLiteral(t, "a"), b.Param("x"))),
	)
	prog, err := Compile(root)
	require.NoError(t, err)

	out, err := prog.Source(SourceOptions{Format: true})
	require.NoError(t, err)
	newGolden(t).Assert(t, "arithmetic", out)
}

func TestSource_TypeChecks(t *testing.T) {
	graph := storage.NewMemoryEngine()
	_, err := graph.ResolvePropertyKey("age")
	require.NoError(t, err)
	b := NewBuilder(graph)

	tests := []struct {
		name    string
		columns func() []Column
	}{
		{"literal overflow", func() []Column {
			return []Column{
				column("inc", b.Add(mustLiteral(t, int64(math.MaxInt64)), mustLiteral(t, 1))),
				column("dec", b.Sub(mustLiteral(t, int64(math.MinInt64)), mustLiteral(t, 1))),
				column("big", b.Add(mustLiteral(t, 1e308), mustLiteral(t, 1e308))),
				column("mixed", b.Sub(mustLiteral(t, 1e308), mustLiteral(t, int64(math.MinInt64)))),
			}
		}},
		{"every instruction", func() []Column {
			return []Column{
				column("m", b.Map(map[string]Instruction{
					"name":  b.NodeProperty(1, "n", "name"),
					"age":   b.NodeProperty(2, "n", "age"),
					"since": b.RelationshipProperty("r", "since"),
					"items": b.List(mustLiteral(t, 1), mustLiteral(t, nil), b.Node("n"), b.Relationship("r")),
				})),
				column("diff", b.Sub(b.Param("x"), mustLiteral(t, 2.5))),
				column("text", b.Add(mustLiteral(t, "v"), mustLiteral(t, 1.5))),
				column("flag", b.Add(mustLiteral(t, true), b.Param("x"))),
				column("sum", b.Add(b.Add(mustLiteral(t, 1), mustLiteral(t, 2)), mustLiteral(t, "!"))),
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := Compile(mustProject(t, tt.columns()...))
			require.NoError(t, err)
			out, err := prog.Source(SourceOptions{Format: true})
			require.NoError(t, err)
			typeCheck(t, out)
		})
	}
}

func TestSource_Deterministic(t *testing.T) {
	build := func() []byte {
		b := NewBuilder(nil)
		root := mustProject(t,
			column("m", b.Map(map[string]Instruction{
				"z": b.NodeProperty(1, "n", "name"),
				"a": b.RelationshipProperty("r", "since"),
				"k": b.List(mustLiteral(t, 1), b.Node("n")),
			})),
		)
		prog, err := Compile(root)
		require.NoError(t, err)
		out, err := prog.Source(SourceOptions{Format: true})
		require.NoError(t, err)
		return out
	}

	first := build()
	for i := 0; i < 5; i++ {
		assert.Equal(t, string(first), string(build()))
	}
}

func TestSource_InvalidOptions(t *testing.T) {
	prog, err := Compile(mustProject(t, column("x", mustLiteral(t, 1))))
	require.NoError(t, err)

	_, err = prog.Source(SourceOptions{Package: "not a package"})
	assert.Error(t, err)
	_, err = prog.Source(SourceOptions{TypeName: "1x"})
	assert.Error(t, err)
}
