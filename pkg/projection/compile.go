package projection

import (
	"context"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/orneryd/nornicproj/pkg/eval"
)

// Option configures Compile.
type Option func(*Program)

// WithLogger sets the logger used by the program and its units.
func WithLogger(logger log.Logger) Option {
	return func(p *Program) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Program is a compiled projection tree. It is immutable and safe to share.
type Program struct {
	emission Emission
	logger   log.Logger
}

// Compile walks root once and returns the compiled program.
func Compile(root *Project, opts ...Option) (*Program, error) {
	em, err := Emit(root)
	if err != nil {
		return nil, err
	}

	p := &Program{emission: em, logger: log.NewNopLogger()}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = log.With(p.logger, "component", "projection")

	level.Debug(p.logger).Log(
		"msg", "compiled projection",
		"columns", len(em.Columns),
		"decls", len(em.Decls),
		"inits", len(em.Inits),
	)
	return p, nil
}

// Columns returns the projected column names.
func (p *Program) Columns() []string {
	return append([]string(nil), p.emission.Columns...)
}

// Emission returns the collected declarations, initializations and
// evaluation.
func (p *Program) Emission() Emission { return p.emission }

// NewUnit allocates a compiled unit with fresh declared state. Tokens cached
// by one unit are not visible to another.
func (p *Program) NewUnit() *Unit {
	state := newState()
	for _, d := range p.emission.Decls {
		if d.alloc != nil {
			d.alloc(state)
		}
	}
	id := uuid.New()
	return &Unit{
		id:      id,
		program: p,
		state:   state,
		logger:  log.With(p.logger, "unit", id.String()),
	}
}

// Unit is an instance of a compiled projection holding its own declared
// state. A Unit may be shared by concurrent executions.
type Unit struct {
	id      uuid.UUID
	program *Program
	state   *State
	logger  log.Logger
}

// ID returns the unit's instance id.
func (u *Unit) ID() uuid.UUID { return u.id }

// State returns the unit's declared state.
func (u *Unit) State() *State { return u.state }

// Open runs every initialization fragment against env and returns an
// execution. Initialization is idempotent: resolved tokens stay resolved
// across executions of the same unit.
func (u *Unit) Open(ctx context.Context, env eval.Env) (*Execution, error) {
	if env.Reader == nil {
		return nil, fmt.Errorf("open unit %s: no storage reader", u.id)
	}
	c := &Ctx{Frame: eval.NewFrame(ctx, env), state: u.state}
	for _, init := range u.program.emission.Inits {
		init.Run(c)
		if err := c.Err(); err != nil {
			level.Debug(u.logger).Log("msg", "initialization failed", "err", err)
			return nil, err
		}
	}
	level.Debug(u.logger).Log("msg", "opened execution")
	return &Execution{c: c, eval: u.program.emission.Eval}, nil
}

// Run opens an execution and evaluates rows in order.
func (u *Unit) Run(ctx context.Context, env eval.Env, rows []eval.Row) ([][]any, error) {
	exec, err := u.Open(ctx, env)
	if err != nil {
		return nil, err
	}
	out := make([][]any, 0, len(rows))
	for _, row := range rows {
		rec, err := exec.Next(row)
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Execution evaluates rows against one environment. It is not safe for
// concurrent use; open one execution per goroutine.
type Execution struct {
	c    *Ctx
	eval Stmt
}

// Next evaluates one row and returns the emitted record. Once a row fails,
// every later call returns the same error.
func (e *Execution) Next(row eval.Row) ([]any, error) {
	if err := e.c.Err(); err != nil {
		return nil, err
	}
	if err := e.c.Context().Err(); err != nil {
		e.c.Fail(err)
		return nil, err
	}

	e.c.Reset(row)
	e.eval.Run(e.c)
	if err := e.c.Err(); err != nil {
		return nil, err
	}
	return e.c.Record(), nil
}
