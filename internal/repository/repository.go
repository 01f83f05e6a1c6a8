// Package repository provides durable storage for threat intelligence
// indicators and quarantine records.
package repository

import (
	"context"

	"github.com/crowsnest-systems/crowsnest/internal/models"
)

// Repository is the persistence backend consumed by the engine. All
// operations are idempotent and best-effort: callers log failures and
// retry on the next scheduled cycle rather than blocking.
type Repository interface {
	LoadIndicators(ctx context.Context) (map[string]*models.ThreatIntelRecord, error)
	SaveIndicator(ctx context.Context, rec *models.ThreatIntelRecord) error
	SaveIndicators(ctx context.Context, recs map[string]*models.ThreatIntelRecord) error

	LoadQuarantines(ctx context.Context) ([]*models.QuarantineRecord, error)
	SaveQuarantine(ctx context.Context, rec *models.QuarantineRecord) error
	DeleteQuarantine(ctx context.Context, id string) error

	Close()
}
