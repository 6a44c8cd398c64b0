package eval

import (
	"sync/atomic"

	"github.com/orneryd/nornicproj/pkg/storage"
)

// Token caches a property key token for the lifetime of one compiled unit.
//
// It starts at storage.NoSuchPropertyKey and moves to the resolved id exactly
// once. Resolution is check-then-set without a lock: two goroutines may both
// resolve the name, but the registry hands both the same id and only the
// first store wins.
type Token struct {
	id atomic.Int64
}

// NewToken returns an unresolved token.
func NewToken() *Token {
	t := &Token{}
	t.id.Store(storage.NoSuchPropertyKey)
	return t
}

// ID returns the cached token, or storage.NoSuchPropertyKey.
func (t *Token) ID() int { return int(t.id.Load()) }

// Resolved reports whether the token has been set.
func (t *Token) Resolved() bool { return t.id.Load() != storage.NoSuchPropertyKey }

// set stores id if the token is still unresolved and returns the cached value.
func (t *Token) set(id int) int {
	t.id.CompareAndSwap(storage.NoSuchPropertyKey, int64(id))
	return t.ID()
}
