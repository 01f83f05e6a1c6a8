package engine

import (
	"sync"
	"time"

	"github.com/crowsnest-systems/crowsnest/internal/models"
)

// FindingFilters narrows a findings query.
type FindingFilters struct {
	Status   models.FindingStatus
	Severity models.Severity
	Entity   string
}

// FindingStore holds the findings raised by the scorer and the window
// detectors.
type FindingStore struct {
	mu   sync.RWMutex
	byID map[string]*models.ThreatFinding
}

// NewFindingStore creates an empty store.
func NewFindingStore() *FindingStore {
	return &FindingStore{byID: make(map[string]*models.ThreatFinding)}
}

// Add inserts a finding.
func (s *FindingStore) Add(f *models.ThreatFinding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[f.ID] = f
}

// Get returns a copy of the finding with the given ID, or nil.
func (s *FindingStore) Get(id string) *models.ThreatFinding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.byID[id]
	if !ok {
		return nil
	}
	c := *f
	return &c
}

// List returns copies of findings matching the filters.
func (s *FindingStore) List(filters FindingFilters) []*models.ThreatFinding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ThreatFinding
	for _, f := range s.byID {
		if filters.Status != "" && f.Status != filters.Status {
			continue
		}
		if filters.Severity != "" && f.Severity != filters.Severity {
			continue
		}
		if filters.Entity != "" && f.Entity != filters.Entity {
			continue
		}
		c := *f
		out = append(out, &c)
	}
	return out
}

// Unresolved returns the number of findings not yet resolved.
func (s *FindingStore) Unresolved() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, f := range s.byID {
		if f.Status != models.FindingResolved {
			n++
		}
	}
	return n
}

// Resolve transitions a finding to resolved. Returns false if the
// finding does not exist or is already resolved.
func (s *FindingStore) Resolve(id string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.byID[id]
	if !ok || f.Status == models.FindingResolved {
		return false
	}
	f.Status = models.FindingResolved
	f.ResolvedAt = &at
	return true
}

// EvictResolvedBefore deletes resolved findings whose resolution is
// older than the cutoff. Only the retention manager calls this.
func (s *FindingStore) EvictResolvedBefore(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, f := range s.byID {
		if f.Status == models.FindingResolved && f.ResolvedAt != nil && f.ResolvedAt.Before(cutoff) {
			delete(s.byID, id)
			removed++
		}
	}
	return removed
}
