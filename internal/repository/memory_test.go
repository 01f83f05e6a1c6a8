package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowsnest-systems/crowsnest/internal/models"
)

func TestMemoryRepository_Indicators(t *testing.T) {
	repo := NewMemoryRepository()
	defer repo.Close()
	ctx := context.Background()

	recs, err := repo.LoadIndicators(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)

	rec := &models.ThreatIntelRecord{
		Indicator:  "203.0.113.50",
		Type:       models.IndicatorAddress,
		Reputation: models.ReputationMalicious,
		Severity:   models.SeverityHigh,
		Confidence: 0.9,
		LastSeen:   time.Now().UTC(),
		Provenance: models.ProvenanceFeed,
	}
	require.NoError(t, repo.SaveIndicator(ctx, rec))

	recs, err = repo.LoadIndicators(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, models.ReputationMalicious, recs["203.0.113.50"].Reputation)

	// Loaded records are copies, mutating them must not leak back.
	recs["203.0.113.50"].Reputation = models.ReputationBlocked
	recs, err = repo.LoadIndicators(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ReputationMalicious, recs["203.0.113.50"].Reputation)
}

func TestMemoryRepository_SaveIndicatorsBatch(t *testing.T) {
	repo := NewMemoryRepository()
	defer repo.Close()
	ctx := context.Background()

	batch := map[string]*models.ThreatIntelRecord{
		"198.51.100.1": {Indicator: "198.51.100.1", Type: models.IndicatorAddress, Reputation: models.ReputationSuspicious},
		"198.51.100.2": {Indicator: "198.51.100.2", Type: models.IndicatorAddress, Reputation: models.ReputationMalicious},
	}
	require.NoError(t, repo.SaveIndicators(ctx, batch))

	recs, err := repo.LoadIndicators(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	// Saving an updated record for an existing indicator overwrites it.
	batch["198.51.100.1"].Reputation = models.ReputationBlocked
	require.NoError(t, repo.SaveIndicators(ctx, batch))

	recs, err = repo.LoadIndicators(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Equal(t, models.ReputationBlocked, recs["198.51.100.1"].Reputation)
}

func TestMemoryRepository_Quarantines(t *testing.T) {
	repo := NewMemoryRepository()
	defer repo.Close()
	ctx := context.Background()

	qs, err := repo.LoadQuarantines(ctx)
	require.NoError(t, err)
	assert.Empty(t, qs)

	rec := &models.QuarantineRecord{
		ID:         uuid.New().String(),
		Entity:     "10.0.0.5",
		EntityType: "ip",
		Reason:     "threat score 82",
		CreatedAt:  time.Now().UTC(),
		ExpiresAt:  time.Now().UTC().Add(time.Hour),
		Status:     models.QuarantineActive,
	}
	require.NoError(t, repo.SaveQuarantine(ctx, rec))

	qs, err = repo.LoadQuarantines(ctx)
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.Equal(t, "10.0.0.5", qs[0].Entity)

	// Saving the same ID again updates in place.
	rec.Status = models.QuarantineExpired
	require.NoError(t, repo.SaveQuarantine(ctx, rec))

	qs, err = repo.LoadQuarantines(ctx)
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.Equal(t, models.QuarantineExpired, qs[0].Status)

	require.NoError(t, repo.DeleteQuarantine(ctx, rec.ID))
	qs, err = repo.LoadQuarantines(ctx)
	require.NoError(t, err)
	assert.Empty(t, qs)

	// Deleting a missing record is not an error.
	assert.NoError(t, repo.DeleteQuarantine(ctx, "no-such-id"))
}
