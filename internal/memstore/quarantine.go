package memstore

import (
	"context"
	"sync"

	"github.com/fyrsmithlabs/knowledged/internal/domain"
)

// Quarantine is the in-memory ports.Quarantine. Quarantined content is held
// out of the resource record so downstream stages never see infected bytes.
type Quarantine struct {
	mu   sync.RWMutex
	held map[string][]byte
}

func NewQuarantine() *Quarantine {
	return &Quarantine{held: make(map[string][]byte)}
}

func (q *Quarantine) QuarantineResource(_ context.Context, r *domain.Resource) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.held[r.ID] = append([]byte(nil), r.File...)
	r.File = nil
	return nil
}

func (q *Quarantine) IsQuarantined(_ context.Context, resourceID string) (bool, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.held[resourceID]
	return ok, nil
}
