package projection

import (
	"bytes"
	"fmt"
	"go/format"
	"go/token"
	"sort"
	"strconv"
	"strings"
)

// SourceOptions controls Program.Source.
type SourceOptions struct {
	// Package is the package clause of the generated file. Defaults to
	// "compiled".
	Package string
	// TypeName is the name of the generated struct. Defaults to
	// "Projection".
	TypeName string
	// Format runs the output through gofmt.
	Format bool
}

func (o SourceOptions) withDefaults() SourceOptions {
	if o.Package == "" {
		o.Package = "compiled"
	}
	if o.TypeName == "" {
		o.TypeName = "Projection"
	}
	return o
}

// Source renders the program as a standalone Go file. The generated type has
// one field per declared state, a constructor, Init and Evaluate methods over
// an *eval.Frame, and the generated accessors.
func (p *Program) Source(opts SourceOptions) ([]byte, error) {
	opts = opts.withDefaults()
	if !token.IsIdentifier(opts.Package) {
		return nil, fmt.Errorf("invalid package name %q", opts.Package)
	}
	if !token.IsIdentifier(opts.TypeName) {
		return nil, fmt.Errorf("invalid type name %q", opts.TypeName)
	}

	var fields, methods []Decl
	imports := map[string]bool{importEval: true}
	for _, d := range p.emission.Decls {
		for _, imp := range d.Imports {
			imports[imp] = true
		}
		if d.Kind == FieldDecl {
			fields = append(fields, d)
		} else {
			methods = append(methods, d)
		}
	}

	var buf bytes.Buffer
	w := func(tmpl string, args ...any) { fmt.Fprintf(&buf, tmpl, args...) }
	typ := opts.TypeName

	w("// Code generated by nornicproj. DO NOT EDIT.\n\n")
	w("package %s\n\n", opts.Package)
	writeImports(&buf, imports)

	w("// %s is a compiled projection of %s.\n", typ, strings.Join(p.emission.Columns, ", "))
	if len(fields) == 0 {
		w("type %s struct{}\n\n", typ)
	} else {
		w("type %s struct {\n", typ)
		for _, d := range fields {
			w("\t%s %s\n", d.Name, d.Type)
		}
		w("}\n\n")
	}

	w("// New%s allocates a %s with unresolved property keys.\n", typ, typ)
	w("func New%s() *%s {\n", typ, typ)
	if len(fields) == 0 {
		w("\treturn &%s{}\n", typ)
	} else {
		w("\treturn &%s{\n", typ)
		for _, d := range fields {
			w("\t\t%s: %s,\n", d.Name, d.Initial)
		}
		w("\t}\n")
	}
	w("}\n\n")

	quoted := make([]string, len(p.emission.Columns))
	for i, c := range p.emission.Columns {
		quoted[i] = strconv.Quote(c)
	}
	w("// Columns returns the projected column names.\n")
	w("func (p *%s) Columns() []string {\n", typ)
	w("\treturn []string{%s}\n", strings.Join(quoted, ", "))
	w("}\n\n")

	w("// Init resolves declared state. It may be called more than once.\n")
	w("func (p *%s) Init(f *eval.Frame) error {\n", typ)
	writeBody(&buf, Concat(p.emission.Inits...).Source)
	w("\treturn f.Err()\n")
	w("}\n\n")

	w("// Evaluate projects the current row of f.\n")
	w("func (p *%s) Evaluate(f *eval.Frame) error {\n", typ)
	writeBody(&buf, p.emission.Eval.Source)
	w("\treturn f.Err()\n")
	w("}\n")

	for _, d := range methods {
		w("\nfunc (p *%s) %s(%s) %s {\n", typ, d.Name, d.Params, d.Result)
		writeBody(&buf, d.Body)
		w("}\n")
	}

	if !opts.Format {
		return buf.Bytes(), nil
	}
	out, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("format generated source: %w", err)
	}
	return out, nil
}

func writeImports(buf *bytes.Buffer, imports map[string]bool) {
	paths := make([]string, 0, len(imports))
	for path := range imports {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	if len(paths) == 1 {
		fmt.Fprintf(buf, "import %q\n\n", paths[0])
		return
	}
	buf.WriteString("import (\n")
	for _, path := range paths {
		fmt.Fprintf(buf, "\t%q\n", path)
	}
	buf.WriteString(")\n\n")
}

func writeBody(buf *bytes.Buffer, source string) {
	if source == "" {
		return
	}
	for _, line := range strings.Split(source, "\n") {
		buf.WriteString("\t")
		buf.WriteString(line)
		buf.WriteString("\n")
	}
}
