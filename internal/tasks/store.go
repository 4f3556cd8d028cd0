// Package tasks is a keyed store for background job results with a defined
// lifecycle: a result is inserted once on completion, readable many times,
// and evicted after a TTL. It replaces the usual grow-forever map of task
// results with explicit backends.
package tasks

import (
	"context"
	"sync"
	"time"
)

// State describes a completed task's outcome. Absence of a result means the
// task is still pending.
type State string

const (
	StateSuccess State = "success"
	StateFailure State = "failure"
)

// Result is the stored outcome of one task.
type Result struct {
	State State  `json:"state"`
	Value string `json:"value"`
}

// Store holds task results keyed by task id.
type Store interface {
	Put(ctx context.Context, id string, result Result) error
	// Get reports the result and whether it exists; a missing id is not an
	// error, it means the task is still pending or already evicted.
	Get(ctx context.Context, id string) (Result, bool, error)
}

// MemoryStore is an in-process Store with TTL eviction.
type MemoryStore struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	result    Result
	expiresAt time.Time
}

// NewMemoryStore creates a MemoryStore. A non-positive ttl keeps results
// until process exit.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Put stores the result for id, resetting its TTL.
func (s *MemoryStore) Put(_ context.Context, id string, result Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := memoryEntry{result: result}
	if s.ttl > 0 {
		entry.expiresAt = s.now().Add(s.ttl)
	}
	s.entries[id] = entry
	return nil
}

// Get returns the stored result for id, evicting it first when expired.
func (s *MemoryStore) Get(_ context.Context, id string) (Result, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return Result{}, false, nil
	}
	if !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt) {
		delete(s.entries, id)
		return Result{}, false, nil
	}
	return entry.result, true, nil
}
