package frontier

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultRunCacheSize is how many runs a RunStore keeps before evicting the oldest.
const DefaultRunCacheSize = 32

// RunStore keeps the most recent runs in memory so the display layer can fetch results and
// charts after the run request returned. Nothing is written to disk.
type RunStore struct {
	mu       sync.RWMutex
	capacity int
	runs     map[string]*Run
	order    []string
}

// NewRunStore creates a store holding at most capacity runs.
func NewRunStore(capacity int) *RunStore {
	if capacity <= 0 {
		capacity = DefaultRunCacheSize
	}
	return &RunStore{
		capacity: capacity,
		runs:     make(map[string]*Run, capacity),
	}
}

// Put assigns the run a fresh ID and stores it, evicting the oldest run when full.
func (s *RunStore) Put(run *Run) string {
	id := uuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	run.ID = id
	s.runs[id] = run
	s.order = append(s.order, id)
	for len(s.order) > s.capacity {
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
	return id
}

// Get returns the run with the given ID.
func (s *RunStore) Get(id string) (*Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok
}

// Len is the number of runs currently held.
func (s *RunStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}
