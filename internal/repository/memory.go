package repository

import (
	"context"
	"sync"

	"github.com/crowsnest-systems/crowsnest/internal/models"
)

// MemoryRepository is an in-memory Repository used in tests and when
// the engine runs without a database.
type MemoryRepository struct {
	mu          sync.RWMutex
	indicators  map[string]*models.ThreatIntelRecord
	quarantines map[string]*models.QuarantineRecord
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		indicators:  make(map[string]*models.ThreatIntelRecord),
		quarantines: make(map[string]*models.QuarantineRecord),
	}
}

func (r *MemoryRepository) LoadIndicators(ctx context.Context) (map[string]*models.ThreatIntelRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*models.ThreatIntelRecord, len(r.indicators))
	for k, v := range r.indicators {
		c := *v
		out[k] = &c
	}
	return out, nil
}

func (r *MemoryRepository) SaveIndicator(ctx context.Context, rec *models.ThreatIntelRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *rec
	r.indicators[rec.Indicator] = &c
	return nil
}

func (r *MemoryRepository) SaveIndicators(ctx context.Context, recs map[string]*models.ThreatIntelRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range recs {
		c := *v
		r.indicators[k] = &c
	}
	return nil
}

func (r *MemoryRepository) LoadQuarantines(ctx context.Context) ([]*models.QuarantineRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.QuarantineRecord, 0, len(r.quarantines))
	for _, v := range r.quarantines {
		c := *v
		out = append(out, &c)
	}
	return out, nil
}

func (r *MemoryRepository) SaveQuarantine(ctx context.Context, rec *models.QuarantineRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *rec
	r.quarantines[rec.ID] = &c
	return nil
}

func (r *MemoryRepository) DeleteQuarantine(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.quarantines, id)
	return nil
}

func (r *MemoryRepository) Close() {}
