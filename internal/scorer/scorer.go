// Package scorer computes threat and anomaly scores for single events.
//
// Scoring is an additive point model so every result is explainable:
// the final score is exactly the sum of the listed factors, and each
// factor appears as a human-readable indicator string.
package scorer

import (
	"fmt"

	"github.com/crowsnest-systems/crowsnest/internal/baseline"
	"github.com/crowsnest-systems/crowsnest/internal/models"
	"github.com/crowsnest-systems/crowsnest/internal/signature"
)

// Factor point values. These are part of the scoring contract and are
// covered by tests; change them deliberately.
const (
	PointsMaliciousSource  = 50
	PointsSuspiciousSource = 25
	PointsAutomatedTool    = 40
	PointsHighRiskGeo      = 10
	PointsFailedOutcome    = 5

	PointsSlowResponse     = 20
	PointsOversizedPayload = 15
	PointsOffHoursActivity = 10
)

// Intel is the read-only intelligence lookup consumed while scoring.
type Intel interface {
	Lookup(indicator string) *models.ThreatIntelRecord
}

// Config holds the scoring thresholds.
type Config struct {
	DetectionThreshold int
	AnomalyThreshold   int
	HighRiskCountries  map[string]bool
	ResponseTimeWarnMs int64
	PayloadWarnBytes   int64
	BusinessHourStart  int // inclusive, UTC hour of day
	BusinessHourEnd    int // exclusive
}

// DefaultConfig returns the default scoring thresholds.
func DefaultConfig() Config {
	return Config{
		DetectionThreshold: 75,
		AnomalyThreshold:   25,
		HighRiskCountries:  map[string]bool{},
		ResponseTimeWarnMs: 5000,
		PayloadWarnBytes:   1 << 20, // 1 MB
		BusinessHourStart:  8,
		BusinessHourEnd:    18,
	}
}

// ScoreResult is the outcome of scoring one event.
type ScoreResult struct {
	Score       int
	ThreatTypes []string
	Indicators  []string
	Confidence  float64
	IsThreshold bool
}

// AnomalyResult is the outcome of anomaly scoring for one event.
type AnomalyResult struct {
	Score      int
	Indicators []string
	IsAnomaly  bool
}

// Scorer scores events against the signature library, the
// intelligence store and the behavioral baselines. It is deterministic
// and side-effect free; the only external call is a read-only
// intelligence lookup.
type Scorer struct {
	cfg        Config
	signatures *signature.Library
	intel      Intel
	baselines  *baseline.Tracker
}

// New creates a scorer. intel and baselines may be nil: scoring then
// degrades to the remaining factors with reduced confidence.
func New(cfg Config, signatures *signature.Library, intel Intel, baselines *baseline.Tracker) *Scorer {
	return &Scorer{cfg: cfg, signatures: signatures, intel: intel, baselines: baselines}
}

// Score computes the threat score for one event.
func (s *Scorer) Score(ev *models.SecurityEvent) ScoreResult {
	var (
		score      int
		types      []string
		indicators []string
	)
	degraded := false

	if s.intel != nil {
		if rec := s.intel.Lookup(ev.SourceIdentity); rec != nil {
			switch rec.Reputation {
			case models.ReputationMalicious:
				score += PointsMaliciousSource
				types = append(types, models.ThreatMaliciousSource)
				indicators = append(indicators, fmt.Sprintf(
					"source %s has malicious reputation (+%d)", ev.SourceIdentity, PointsMaliciousSource))
			case models.ReputationSuspicious:
				score += PointsSuspiciousSource
				types = append(types, models.ThreatSuspiciousSource)
				indicators = append(indicators, fmt.Sprintf(
					"source %s has suspicious reputation (+%d)", ev.SourceIdentity, PointsSuspiciousSource))
			}
		}
	} else {
		degraded = true
	}

	for _, m := range s.signatures.Match(ev.Payload) {
		pts := m.Signature.Points()
		score += pts
		types = append(types, m.Signature.Name)
		indicators = append(indicators, fmt.Sprintf(
			"signature %s matched field %s (+%d)", m.Signature.Name, m.Field, pts))
	}

	if tool, ok := s.signatures.MatchTool(ev.Payload); ok {
		score += PointsAutomatedTool
		types = append(types, models.ThreatAutomatedTool)
		indicators = append(indicators, fmt.Sprintf(
			"automated tool fingerprint %q (+%d)", tool, PointsAutomatedTool))
	}

	if ev.GeoCountry != "" && s.cfg.HighRiskCountries[ev.GeoCountry] {
		score += PointsHighRiskGeo
		types = append(types, models.ThreatHighRiskGeo)
		indicators = append(indicators, fmt.Sprintf(
			"origin country %s is high risk (+%d)", ev.GeoCountry, PointsHighRiskGeo))
	}

	if ev.Outcome == models.OutcomeFailure {
		score += PointsFailedOutcome
		indicators = append(indicators, fmt.Sprintf(
			"operation failed (+%d)", PointsFailedOutcome))
	}

	confidence := float64(score) / 100
	if confidence > 1 {
		confidence = 1
	}
	if degraded {
		// Intelligence unavailable: keep scoring but flag it.
		confidence *= 0.8
		indicators = append(indicators, "intelligence lookup unavailable, confidence reduced")
	}

	return ScoreResult{
		Score:       score,
		ThreatTypes: types,
		Indicators:  indicators,
		Confidence:  confidence,
		IsThreshold: score >= s.cfg.DetectionThreshold,
	}
}

// ScoreAnomaly computes the anomaly score for one event. The result is
// advisory: anomalies never trigger containment by themselves.
func (s *Scorer) ScoreAnomaly(ev *models.SecurityEvent) AnomalyResult {
	var (
		score      int
		indicators []string
	)

	if ev.ResponseTimeMs > s.cfg.ResponseTimeWarnMs {
		score += PointsSlowResponse
		indicators = append(indicators, fmt.Sprintf(
			"response time %dms exceeds %dms (+%d)", ev.ResponseTimeMs, s.cfg.ResponseTimeWarnMs, PointsSlowResponse))
	}

	if ev.DataSizeBytes > s.cfg.PayloadWarnBytes {
		score += PointsOversizedPayload
		indicators = append(indicators, fmt.Sprintf(
			"payload %d bytes exceeds %d (+%d)", ev.DataSizeBytes, s.cfg.PayloadWarnBytes, PointsOversizedPayload))
	}

	hour := ev.Timestamp.UTC().Hour()
	if hour < s.cfg.BusinessHourStart || hour >= s.cfg.BusinessHourEnd {
		score += PointsOffHoursActivity
		indicators = append(indicators, fmt.Sprintf(
			"activity at hour %02d is outside business hours (+%d)", hour, PointsOffHoursActivity))

		// Baseline context is advisory and carries no points.
		if s.baselines != nil {
			if b := s.baselines.Get(ev.SourceIdentity); b != nil && len(b.ActiveHours) > 0 && !b.ActiveHours[hour] {
				indicators = append(indicators, fmt.Sprintf(
					"hour %02d never observed in entity baseline", hour))
			}
		}
	}

	return AnomalyResult{
		Score:      score,
		Indicators: indicators,
		IsAnomaly:  score >= s.cfg.AnomalyThreshold,
	}
}
