// Package profile collects per-operator execution counters for compiled
// projections.
//
// Generated property accessors open a Scope for their operator on every call,
// record a database hit and a processed row, and close the scope on every exit
// path. Counters are attributed by OperatorID, which the planner assigns when
// it builds the projection tree.
package profile

// OperatorID identifies the plan operator a counter is attributed to.
type OperatorID int

// Tracer opens instrumentation scopes.
type Tracer interface {
	OpenScope(op OperatorID) Scope
}

// Scope is one instrumented call. Close must be called exactly once.
type Scope interface {
	DBHit()
	Row()
	Close()
}

// Noop is a Tracer that records nothing.
var Noop Tracer = noopTracer{}

type noopTracer struct{}

func (noopTracer) OpenScope(OperatorID) Scope { return noopScope{} }

type noopScope struct{}

func (noopScope) DBHit() {}
func (noopScope) Row()   {}
func (noopScope) Close() {}

// Multi fans every scope out to all tracers.
func Multi(tracers ...Tracer) Tracer {
	switch len(tracers) {
	case 0:
		return Noop
	case 1:
		return tracers[0]
	}
	return multiTracer(tracers)
}

type multiTracer []Tracer

func (m multiTracer) OpenScope(op OperatorID) Scope {
	scopes := make(multiScope, len(m))
	for i, t := range m {
		scopes[i] = t.OpenScope(op)
	}
	return scopes
}

type multiScope []Scope

func (m multiScope) DBHit() {
	for _, s := range m {
		s.DBHit()
	}
}

func (m multiScope) Row() {
	for _, s := range m {
		s.Row()
	}
}

func (m multiScope) Close() {
	for _, s := range m {
		s.Close()
	}
}
