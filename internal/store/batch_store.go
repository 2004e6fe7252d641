package store

import (
	"sync"

	"github.com/infogenhq/infogen-engine/internal/domain"
)

// BatchStore is a keyed in-memory batch collection. Batch mutations touch
// the item list and the aggregate progress together, so the store exposes
// a single Update critical section instead of per-field setters.
type BatchStore struct {
	mu      sync.RWMutex
	batches map[string]*domain.Batch
	order   []string
}

func NewBatchStore() *BatchStore {
	return &BatchStore{
		batches: make(map[string]*domain.Batch),
	}
}

func (s *BatchStore) Put(batch *domain.Batch) {
	if batch == nil || batch.ID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.batches[batch.ID]; exists {
		return
	}
	stored := cloneBatch(batch)
	s.batches[batch.ID] = stored
	s.order = append(s.order, batch.ID)
}

// Get returns a deep snapshot of the batch, or ErrNotFound.
func (s *BatchStore) Get(id string) (domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch, ok := s.batches[id]
	if !ok {
		return domain.Batch{}, domain.ErrNotFound
	}
	return *cloneBatch(batch), nil
}

// Update runs fn against the live record under the store lock. The
// progress counts are recomputed after fn returns, keeping the sum
// invariant regardless of what fn changed. Returns ErrNotFound for an
// unknown id; an error from fn aborts the update and restores the record,
// so partial mutations never become visible.
func (s *BatchStore) Update(id string, fn func(*domain.Batch) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[id]
	if !ok {
		return domain.ErrNotFound
	}
	backup := cloneBatch(batch)
	if err := fn(batch); err != nil {
		*batch = *backup
		return err
	}
	batch.RecountProgress()
	return nil
}

// Len returns the number of stored batches.
func (s *BatchStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func cloneBatch(b *domain.Batch) *domain.Batch {
	clone := *b
	clone.Items = make([]domain.BatchItem, len(b.Items))
	copy(clone.Items, b.Items)
	return &clone
}
