// Package intel maintains the threat intelligence indicator map with
// write-through persistence.
package intel

import (
	"context"
	"sync"
	"time"

	"github.com/crowsnest-systems/crowsnest/internal/logging"
	"github.com/crowsnest-systems/crowsnest/internal/models"
	"github.com/crowsnest-systems/crowsnest/internal/repository"
)

// Store owns the in-memory indicator map. Lookups on the scoring path
// take a read lock only; mutations write through to the repository in
// a background goroutine so persistence never backpressures scoring.
type Store struct {
	mu         sync.RWMutex
	indicators map[string]*models.ThreatIntelRecord

	repo   repository.Repository
	logger *logging.Logger

	// dirty marks indicators whose last write-through failed, retried
	// on the next refresh cycle.
	dirtyMu sync.Mutex
	dirty   map[string]struct{}

	writeTimeout time.Duration

	// decayAge is how long an auto-blocked indicator may go unseen
	// before its reputation is downgraded.
	decayAge time.Duration
}

// NewStore creates a store backed by repo. Pass seed records to start
// with a known indicator set before the first Load.
func NewStore(repo repository.Repository, logger *logging.Logger, seed []*models.ThreatIntelRecord) *Store {
	s := &Store{
		indicators:   make(map[string]*models.ThreatIntelRecord),
		repo:         repo,
		logger:       logger,
		dirty:        make(map[string]struct{}),
		writeTimeout: 5 * time.Second,
		decayAge:     7 * 24 * time.Hour,
	}
	for _, rec := range seed {
		s.indicators[rec.Indicator] = rec
	}
	return s
}

// Load replaces the in-memory map with the repository contents.
// In-memory records newer than the stored copy win, so an auto-block
// applied between refreshes is never lost.
func (s *Store) Load(ctx context.Context) error {
	stored, err := s.repo.LoadIndicators(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for indicator, rec := range stored {
		if existing, ok := s.indicators[indicator]; ok && existing.LastSeen.After(rec.LastSeen) {
			continue
		}
		s.indicators[indicator] = rec
	}
	return nil
}

// Lookup returns the record for an indicator, or nil if unknown.
// Read-only: the scoring path never mutates the map.
func (s *Store) Lookup(indicator string) *models.ThreatIntelRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.indicators[indicator]
	if !ok {
		return nil
	}
	c := *rec
	return &c
}

// Upsert merges a record into the map and writes it through to the
// repository. An existing record keeps the higher confidence value.
func (s *Store) Upsert(rec *models.ThreatIntelRecord) {
	s.mu.Lock()
	if existing, ok := s.indicators[rec.Indicator]; ok {
		if rec.Confidence < existing.Confidence {
			rec.Confidence = existing.Confidence
		}
	}
	c := *rec
	s.indicators[rec.Indicator] = &c
	s.mu.Unlock()

	s.persist(&c)
}

// AutoBlock marks an indicator as blocked with auto_blocked provenance.
func (s *Store) AutoBlock(indicator string, indicatorType models.IndicatorType, category string) *models.ThreatIntelRecord {
	rec := &models.ThreatIntelRecord{
		Indicator:  indicator,
		Type:       indicatorType,
		Reputation: models.ReputationBlocked,
		Category:   category,
		Severity:   models.SeverityCritical,
		Confidence: 1.0,
		LastSeen:   time.Now().UTC(),
		Provenance: models.ProvenanceAutoBlocked,
	}
	s.Upsert(rec)
	return rec
}

// Touch updates LastSeen for a known indicator without changing its
// reputation. Misses are ignored.
func (s *Store) Touch(indicator string, at time.Time) {
	s.mu.Lock()
	rec, ok := s.indicators[indicator]
	if ok && at.After(rec.LastSeen) {
		rec.LastSeen = at
	}
	s.mu.Unlock()
}

// Snapshot returns a copy of every record, optionally filtered to one
// indicator.
func (s *Store) Snapshot(indicator string) []*models.ThreatIntelRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if indicator != "" {
		if rec, ok := s.indicators[indicator]; ok {
			c := *rec
			return []*models.ThreatIntelRecord{&c}
		}
		return nil
	}

	out := make([]*models.ThreatIntelRecord, 0, len(s.indicators))
	for _, rec := range s.indicators {
		c := *rec
		out = append(out, &c)
	}
	return out
}

// Len returns the number of known indicators.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.indicators)
}

// Refresh reloads from the repository, retries any write-throughs
// that failed since the last cycle, and decays auto-blocks that have
// gone quiet.
func (s *Store) Refresh(ctx context.Context) error {
	s.retryDirty(ctx)
	if err := s.Load(ctx); err != nil {
		return err
	}
	s.decayStale(time.Now().UTC())
	return nil
}

// decayStale downgrades auto-blocked indicators not seen within the
// decay age to suspicious. Manual and feed entries are an operator or
// upstream decision and never decay here.
func (s *Store) decayStale(now time.Time) {
	cutoff := now.Add(-s.decayAge)

	s.mu.Lock()
	var decayed []*models.ThreatIntelRecord
	for _, rec := range s.indicators {
		if rec.Provenance != models.ProvenanceAutoBlocked ||
			rec.Reputation != models.ReputationBlocked ||
			rec.LastSeen.After(cutoff) {
			continue
		}
		rec.Reputation = models.ReputationSuspicious
		rec.Severity = models.SeverityMedium
		rec.Confidence = rec.Confidence / 2
		c := *rec
		decayed = append(decayed, &c)
	}
	s.mu.Unlock()

	for _, rec := range decayed {
		s.logger.Info("auto-block decayed", "indicator", rec.Indicator)
		s.persist(rec)
	}
}

// persist writes a record through to the repository without blocking
// the caller. A failed write is queued for retry on the next refresh.
func (s *Store) persist(rec *models.ThreatIntelRecord) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
		defer cancel()

		if err := s.repo.SaveIndicator(ctx, rec); err != nil {
			s.logger.Error("indicator write-through failed",
				"indicator", rec.Indicator, "error", err)
			s.dirtyMu.Lock()
			s.dirty[rec.Indicator] = struct{}{}
			s.dirtyMu.Unlock()
		}
	}()
}

func (s *Store) retryDirty(ctx context.Context) {
	s.dirtyMu.Lock()
	pending := make([]string, 0, len(s.dirty))
	for indicator := range s.dirty {
		pending = append(pending, indicator)
	}
	s.dirty = make(map[string]struct{})
	s.dirtyMu.Unlock()

	for _, indicator := range pending {
		rec := s.Lookup(indicator)
		if rec == nil {
			continue
		}
		if err := s.repo.SaveIndicator(ctx, rec); err != nil {
			s.logger.Error("indicator retry failed", "indicator", indicator, "error", err)
			s.dirtyMu.Lock()
			s.dirty[indicator] = struct{}{}
			s.dirtyMu.Unlock()
		}
	}
}
