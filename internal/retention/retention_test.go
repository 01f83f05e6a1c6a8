package retention

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/crowsnest-systems/crowsnest/internal/logging"
	"github.com/crowsnest-systems/crowsnest/internal/models"
)

type mockEventStore struct {
	cutoff  time.Time
	evicted int
}

func (m *mockEventStore) EvictOlderThan(cutoff time.Time) int {
	m.cutoff = cutoff
	return m.evicted
}

type mockFindingStore struct {
	cutoff  time.Time
	evicted int
}

func (m *mockFindingStore) EvictResolvedBefore(cutoff time.Time) int {
	m.cutoff = cutoff
	return m.evicted
}

type mockQuarantineStore struct {
	expired       []*models.QuarantineRecord
	removed       int
	removeCutoff  time.Time
	expireStaleAt time.Time
}

func (m *mockQuarantineStore) ExpireStale(now time.Time) []*models.QuarantineRecord {
	m.expireStaleAt = now
	return m.expired
}

func (m *mockQuarantineStore) RemoveExpired(ctx context.Context, cutoff time.Time) int {
	m.removeCutoff = cutoff
	return m.removed
}

type mockBaselineStore struct {
	cutoff  time.Time
	evicted int
}

func (m *mockBaselineStore) Evict(cutoff time.Time) int {
	m.cutoff = cutoff
	return m.evicted
}

type mockNotifier struct {
	expired []*models.QuarantineRecord
}

func (m *mockNotifier) QuarantineExpired(ctx context.Context, rec *models.QuarantineRecord) {
	m.expired = append(m.expired, rec)
}

func TestSweepCutoffs(t *testing.T) {
	events := &mockEventStore{evicted: 3}
	findings := &mockFindingStore{evicted: 2}
	quarantines := &mockQuarantineStore{removed: 1}
	baselines := &mockBaselineStore{evicted: 4}

	cfg := DefaultConfig()
	m := NewManager(cfg, events, findings, quarantines, baselines, nil, logging.Default())

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	m.Sweep(context.Background(), now)

	assert.Equal(t, now.AddDate(0, 0, -cfg.DataRetentionDays), events.cutoff)
	assert.Equal(t, now.Add(-cfg.ResolvedFindingAge), findings.cutoff)
	assert.Equal(t, now, quarantines.expireStaleAt)
	assert.Equal(t, now.Add(-cfg.ExpiredQuarantineAge), quarantines.removeCutoff)
	assert.Equal(t, now.Add(-cfg.BaselineIdleAge), baselines.cutoff)
}

func TestSweepNotifiesQuarantineExpiry(t *testing.T) {
	expired := []*models.QuarantineRecord{
		{ID: "q1", Entity: "10.0.0.8", Status: models.QuarantineExpired},
		{ID: "q2", Entity: "10.0.0.9", Status: models.QuarantineExpired},
	}
	quarantines := &mockQuarantineStore{expired: expired}
	notifier := &mockNotifier{}

	m := NewManager(DefaultConfig(), &mockEventStore{}, &mockFindingStore{}, quarantines, &mockBaselineStore{}, notifier, logging.Default())
	m.Sweep(context.Background(), time.Now().UTC())

	assert.Equal(t, expired, notifier.expired)
}

func TestSweepNilNotifierAndBaselines(t *testing.T) {
	quarantines := &mockQuarantineStore{expired: []*models.QuarantineRecord{{ID: "q1"}}}
	m := NewManager(DefaultConfig(), &mockEventStore{}, &mockFindingStore{}, quarantines, nil, nil, logging.Default())

	assert.NotPanics(t, func() {
		m.Sweep(context.Background(), time.Now().UTC())
	})
}

func TestSetConfigAppliesToNextSweep(t *testing.T) {
	events := &mockEventStore{}
	m := NewManager(DefaultConfig(), events, &mockFindingStore{}, &mockQuarantineStore{}, &mockBaselineStore{}, nil, logging.Default())

	cfg := DefaultConfig()
	cfg.DataRetentionDays = 7
	m.SetConfig(cfg)

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	m.Sweep(context.Background(), now)
	assert.Equal(t, now.AddDate(0, 0, -7), events.cutoff)
}
