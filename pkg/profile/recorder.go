package profile

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Stats is a snapshot of one operator's counters.
type Stats struct {
	DBHits int64
	Rows   int64
	Opened int64
	Closed int64
}

// Open returns the number of scopes opened but not yet closed.
func (s Stats) Open() int64 { return s.Opened - s.Closed }

type counters struct {
	dbHits atomic.Int64
	rows   atomic.Int64
	opened atomic.Int64
	closed atomic.Int64
}

// Recorder is an in-memory Tracer, safe for concurrent use.
type Recorder struct {
	mu  sync.RWMutex
	ops map[OperatorID]*counters
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{ops: make(map[OperatorID]*counters)}
}

func (r *Recorder) counters(op OperatorID) *counters {
	r.mu.RLock()
	c, ok := r.ops[op]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.ops[op]; !ok {
		c = &counters{}
		r.ops[op] = c
	}
	return c
}

// OpenScope implements Tracer.
func (r *Recorder) OpenScope(op OperatorID) Scope {
	c := r.counters(op)
	c.opened.Add(1)
	return &recorderScope{c: c}
}

// Stats returns the counters recorded for op.
func (r *Recorder) Stats(op OperatorID) Stats {
	r.mu.RLock()
	c, ok := r.ops[op]
	r.mu.RUnlock()
	if !ok {
		return Stats{}
	}
	return Stats{
		DBHits: c.dbHits.Load(),
		Rows:   c.rows.Load(),
		Opened: c.opened.Load(),
		Closed: c.closed.Load(),
	}
}

// Operators returns every operator that opened a scope, ascending.
func (r *Recorder) Operators() []OperatorID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ops := make([]OperatorID, 0, len(r.ops))
	for op := range r.ops {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

type recorderScope struct {
	c      *counters
	closed atomic.Bool
}

func (s *recorderScope) DBHit() { s.c.dbHits.Add(1) }
func (s *recorderScope) Row()   { s.c.rows.Add(1) }

func (s *recorderScope) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.c.closed.Add(1)
	}
}
