// Package responder maps findings to containment actions and
// escalation notifications. Scoring is pure; everything effectful
// happens here.
package responder

import (
	"context"
	"time"

	"github.com/crowsnest-systems/crowsnest/internal/enforcement"
	"github.com/crowsnest-systems/crowsnest/internal/intel"
	"github.com/crowsnest-systems/crowsnest/internal/logging"
	"github.com/crowsnest-systems/crowsnest/internal/metrics"
	"github.com/crowsnest-systems/crowsnest/internal/models"
	"github.com/crowsnest-systems/crowsnest/internal/notification"
)

// Config holds the response thresholds.
type Config struct {
	EnableAutoResponse  bool
	AutoBlockThreshold  int
	QuarantineThreshold int
	EscalationThreshold int
	QuarantineTTL       time.Duration
	ActionTimeout       time.Duration
}

// DefaultConfig returns the default response thresholds.
func DefaultConfig() Config {
	return Config{
		EnableAutoResponse:  true,
		AutoBlockThreshold:  90,
		QuarantineThreshold: 80,
		EscalationThreshold: 85,
		QuarantineTTL:       time.Hour,
		ActionTimeout:       5 * time.Second,
	}
}

// Action names recorded in response records.
const (
	ActionBlocked     = "blocked"
	ActionQuarantined = "quarantined"
	ActionRateLimited = "rate_limited"
	ActionEscalated   = "escalated"
)

// Orchestrator executes the threshold-driven response state machine
// for each finding: active -> (contained | escalated) -> resolved.
type Orchestrator struct {
	cfg         Config
	intel       *intel.Store
	quarantines *QuarantineStore
	enforcer    enforcement.Enforcer
	channels    []notification.Channel
	logger      *logging.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg Config, store *intel.Store, quarantines *QuarantineStore, enforcer enforcement.Enforcer, channels []notification.Channel, logger *logging.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		intel:       store,
		quarantines: quarantines,
		enforcer:    enforcer,
		channels:    channels,
		logger:      logger,
	}
}

// Quarantines exposes the quarantine store for the query surface and
// the retention sweep.
func (o *Orchestrator) Quarantines() *QuarantineStore {
	return o.quarantines
}

// Enforcer exposes the configured enforcer.
func (o *Orchestrator) Enforcer() enforcement.Enforcer {
	return o.enforcer
}

// Channels exposes the configured escalation channels.
func (o *Orchestrator) Channels() []notification.Channel {
	return o.channels
}

// Respond applies the response rules to a newly raised finding,
// mutating its status and response record in place. External calls
// degrade to "logged but not delivered": a slow or failed enforcement
// or notification call never halts the orchestrator.
func (o *Orchestrator) Respond(ctx context.Context, finding *models.ThreatFinding) {
	record := &models.ResponseRecord{ExecutedAt: time.Now().UTC()}
	blocked := false

	if o.cfg.EnableAutoResponse && finding.Score >= o.cfg.AutoBlockThreshold {
		o.intel.AutoBlock(finding.Entity, models.IndicatorAddress, primaryThreatType(finding))
		o.withTimeout(ctx, func(c context.Context) error {
			return o.enforcer.Block(c, finding.Entity)
		}, "block", finding.Entity)

		record.Actions = append(record.Actions, ActionBlocked)
		finding.Status = models.FindingContained
		blocked = true
		metrics.ResponsesExecuted.WithLabelValues(ActionBlocked).Inc()
		o.logger.Warn("entity auto-blocked",
			"entity", finding.Entity, "score", finding.Score, "finding", finding.ID)
	}

	if !blocked && finding.Score >= o.cfg.QuarantineThreshold {
		rec, created := o.quarantines.Quarantine(
			finding.Entity, string(models.IndicatorAddress), primaryThreatType(finding), o.cfg.QuarantineTTL)
		record.Actions = append(record.Actions, ActionQuarantined)
		finding.Status = models.FindingContained
		if created {
			metrics.ResponsesExecuted.WithLabelValues(ActionQuarantined).Inc()
			o.logger.Warn("entity quarantined",
				"entity", finding.Entity, "until", rec.ExpiresAt, "finding", finding.ID)
		}
	}

	if needsRateLimit(finding) {
		o.withTimeout(ctx, func(c context.Context) error {
			return o.enforcer.RateLimit(c, finding.Entity)
		}, "rate_limit", finding.Entity)
		record.Actions = append(record.Actions, ActionRateLimited)
		metrics.ResponsesExecuted.WithLabelValues(ActionRateLimited).Inc()
	}

	if finding.Score >= o.cfg.EscalationThreshold {
		o.escalate(ctx, finding, record)
		record.Actions = append(record.Actions, ActionEscalated)
		finding.Status = models.FindingEscalated
	}

	finding.Response = record
}

// escalate dispatches the finding to every configured channel. Each
// channel is best-effort: a failure is recorded and the remaining
// channels still run.
func (o *Orchestrator) escalate(ctx context.Context, finding *models.ThreatFinding, record *models.ResponseRecord) {
	for _, ch := range o.channels {
		err := func() error {
			c, cancel := context.WithTimeout(ctx, o.cfg.ActionTimeout)
			defer cancel()
			return ch.Notify(c, finding)
		}()
		if err != nil {
			o.logger.Error("escalation delivery failed",
				"channel", ch.Type(), "finding", finding.ID, "error", err)
			record.FailedChannels = append(record.FailedChannels, ch.Type())
			metrics.NotificationFailures.WithLabelValues(ch.Type()).Inc()
			continue
		}
		record.NotifiedVia = append(record.NotifiedVia, ch.Type())
	}
}

func (o *Orchestrator) withTimeout(ctx context.Context, fn func(context.Context) error, action, entity string) {
	c, cancel := context.WithTimeout(ctx, o.cfg.ActionTimeout)
	defer cancel()
	if err := fn(c); err != nil {
		o.logger.Error("enforcement call failed", "action", action, "entity", entity, "error", err)
	}
}

// needsRateLimit reports whether the finding's threat types indicate
// scanning or brute-force behavior.
func needsRateLimit(finding *models.ThreatFinding) bool {
	for _, t := range finding.ThreatTypes {
		if t == models.ThreatBruteForce || t == models.ThreatAutomatedTool {
			return true
		}
	}
	return false
}

func primaryThreatType(finding *models.ThreatFinding) string {
	if len(finding.ThreatTypes) > 0 {
		return finding.ThreatTypes[0]
	}
	return "unknown"
}
