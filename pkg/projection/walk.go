package projection

import (
	"fmt"
)

// Emission is the output of the tree walk: declared state, initialization
// and per-row evaluation, in that order.
type Emission struct {
	Columns []string
	Decls   []Decl
	Inits   []Stmt
	Eval    Stmt
}

// Walk visits every node of the tree once, children before parents, left to
// right. It stops at the first error returned by fn.
func Walk(root Instruction, fn func(Instruction) error) error {
	if root == nil {
		return fmt.Errorf("%w: nil instruction", ErrInvalidTree)
	}
	for _, child := range root.Children() {
		if err := Walk(child, fn); err != nil {
			return err
		}
	}
	return fn(root)
}

// Emit collects the declared state and initialization of every reachable
// node in post-order, and the evaluation of the root. Declaration names must
// be unique across the tree.
func Emit(root *Project) (Emission, error) {
	if root == nil {
		return Emission{}, fmt.Errorf("%w: nil projection", ErrInvalidTree)
	}
	if err := root.validate(); err != nil {
		return Emission{}, err
	}

	var em Emission
	names := make(map[string]bool)
	err := Walk(root, func(inst Instruction) error {
		for _, d := range inst.Declarations() {
			if names[d.Name] {
				return fmt.Errorf("%w: duplicate declaration %q", ErrInvalidTree, d.Name)
			}
			names[d.Name] = true
			em.Decls = append(em.Decls, d)
		}
		if init := inst.Init(); !init.Empty() {
			em.Inits = append(em.Inits, init)
		}
		return nil
	})
	if err != nil {
		return Emission{}, err
	}

	em.Columns = root.Names()
	em.Eval = root.Evaluate()
	return em, nil
}
