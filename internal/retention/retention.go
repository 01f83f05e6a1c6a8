// Package retention implements the age-based eviction sweep. It is
// the only component that deletes records; everything else only
// creates them or transitions status.
package retention

import (
	"context"
	"sync"
	"time"

	"github.com/crowsnest-systems/crowsnest/internal/logging"
	"github.com/crowsnest-systems/crowsnest/internal/metrics"
	"github.com/crowsnest-systems/crowsnest/internal/models"
)

// EventStore is the event buffer interface consumed by the sweep.
type EventStore interface {
	EvictOlderThan(cutoff time.Time) int
}

// FindingStore is the findings map interface consumed by the sweep.
type FindingStore interface {
	EvictResolvedBefore(cutoff time.Time) int
}

// QuarantineStore is the quarantine interface consumed by the sweep.
type QuarantineStore interface {
	ExpireStale(now time.Time) []*models.QuarantineRecord
	RemoveExpired(ctx context.Context, cutoff time.Time) int
}

// BaselineStore is the baseline tracker interface consumed by the
// sweep.
type BaselineStore interface {
	Evict(cutoff time.Time) int
}

// LifecycleNotifier receives informational quarantine-expiry records.
// Delivery is best-effort.
type LifecycleNotifier interface {
	QuarantineExpired(ctx context.Context, rec *models.QuarantineRecord)
}

// Config holds the retention ages.
type Config struct {
	DataRetentionDays  int
	ResolvedFindingAge time.Duration
	BaselineIdleAge    time.Duration

	// ExpiredQuarantineAge is how long an expired quarantine record
	// stays visible before it is deleted.
	ExpiredQuarantineAge time.Duration
}

// DefaultConfig returns the default retention ages.
func DefaultConfig() Config {
	return Config{
		DataRetentionDays:    30,
		ResolvedFindingAge:   7 * 24 * time.Hour,
		BaselineIdleAge:      14 * 24 * time.Hour,
		ExpiredQuarantineAge: 24 * time.Hour,
	}
}

// Manager runs the periodic cleanup sweep.
type Manager struct {
	mu          sync.Mutex
	cfg         Config
	events      EventStore
	findings    FindingStore
	quarantines QuarantineStore
	baselines   BaselineStore
	notifier    LifecycleNotifier
	logger      *logging.Logger
}

// NewManager creates a retention manager. notifier may be nil.
func NewManager(cfg Config, events EventStore, findings FindingStore, quarantines QuarantineStore, baselines BaselineStore, notifier LifecycleNotifier, logger *logging.Logger) *Manager {
	return &Manager{
		cfg:         cfg,
		events:      events,
		findings:    findings,
		quarantines: quarantines,
		baselines:   baselines,
		notifier:    notifier,
		logger:      logger,
	}
}

// SetConfig replaces the retention ages for subsequent sweeps.
func (m *Manager) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}

// Sweep performs one cleanup pass at the given time.
func (m *Manager) Sweep(ctx context.Context, now time.Time) {
	m.mu.Lock()
	cfg := m.cfg
	m.mu.Unlock()

	eventCutoff := now.AddDate(0, 0, -cfg.DataRetentionDays)
	evicted := m.events.EvictOlderThan(eventCutoff)
	if evicted > 0 {
		metrics.RecordsEvicted.WithLabelValues("event").Add(float64(evicted))
	}

	findingCutoff := now.Add(-cfg.ResolvedFindingAge)
	resolved := m.findings.EvictResolvedBefore(findingCutoff)
	if resolved > 0 {
		metrics.RecordsEvicted.WithLabelValues("finding").Add(float64(resolved))
	}

	expired := m.quarantines.ExpireStale(now)
	for _, rec := range expired {
		m.logger.Info("quarantine expired", "entity", rec.Entity, "id", rec.ID)
		if m.notifier != nil {
			m.notifier.QuarantineExpired(ctx, rec)
		}
	}
	removed := m.quarantines.RemoveExpired(ctx, now.Add(-cfg.ExpiredQuarantineAge))
	if removed > 0 {
		metrics.RecordsEvicted.WithLabelValues("quarantine").Add(float64(removed))
	}

	if m.baselines != nil {
		stale := m.baselines.Evict(now.Add(-cfg.BaselineIdleAge))
		if stale > 0 {
			metrics.RecordsEvicted.WithLabelValues("baseline").Add(float64(stale))
		}
	}

	m.logger.Debug("retention sweep complete",
		"events_evicted", evicted,
		"findings_evicted", resolved,
		"quarantines_expired", len(expired),
		"quarantines_removed", removed)
}
