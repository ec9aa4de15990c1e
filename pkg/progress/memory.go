package progress

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used in tests and in single-node
// deployments without Redis. Entries honor the same TTL as the Redis store.
type MemoryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]memoryEntry
	locks   map[uuid.UUID]time.Time
	now     func() time.Time
}

type memoryEntry struct {
	rec       Record
	expiresAt time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-process progress store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[uuid.UUID]memoryEntry),
		locks:   make(map[uuid.UUID]time.Time),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, solutionID uuid.UUID) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.records[solutionID]
	if !ok || s.now().After(entry.expiresAt) {
		delete(s.records, solutionID)
		return Record{}, false, nil
	}
	return entry.rec, true, nil
}

func (s *MemoryStore) Set(_ context.Context, solutionID uuid.UUID, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[solutionID] = memoryEntry{rec: rec, expiresAt: s.now().Add(TTL)}
	return nil
}

func (s *MemoryStore) Acquire(_ context.Context, solutionID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expiry, held := s.locks[solutionID]; held && s.now().Before(expiry) {
		return false, nil
	}
	s.locks[solutionID] = s.now().Add(TTL)
	return true, nil
}

func (s *MemoryStore) Release(_ context.Context, solutionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.locks, solutionID)
	return nil
}
