package engine

import (
	"fmt"
	"time"

	"github.com/crowsnest-systems/crowsnest/internal/detector"
	"github.com/crowsnest-systems/crowsnest/internal/models"
	"github.com/crowsnest-systems/crowsnest/internal/responder"
	"github.com/crowsnest-systems/crowsnest/internal/scorer"
)

// Status is the operational snapshot served by the status endpoint.
type Status struct {
	Running          bool                 `json:"running"`
	BufferedEvents   int                  `json:"buffered_events"`
	WindowEntries    int                  `json:"window_entries"`
	ActiveFindings   int                  `json:"active_findings"`
	TotalFindings    int                  `json:"total_findings"`
	Anomalies        int                  `json:"anomalies"`
	Indicators       int                  `json:"indicators"`
	TrackedBaselines int                  `json:"tracked_baselines"`
	Quarantined      int                  `json:"quarantined"`
	Cycles           map[string]cycleStat `json:"cycles"`
}

// Status returns the current operational snapshot.
func (s *Service) Status() Status {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()

	now := time.Now().UTC()

	s.statsMu.Lock()
	cycles := make(map[string]cycleStat, len(s.stats))
	for name, st := range s.stats {
		cycles[name] = *st
	}
	s.statsMu.Unlock()

	s.anomaliesMu.RLock()
	anomalies := len(s.anomalies)
	s.anomaliesMu.RUnlock()

	return Status{
		Running:          running,
		BufferedEvents:   s.buffer.Len(),
		WindowEntries:    s.windows.Len(),
		ActiveFindings:   s.findings.Unresolved(),
		TotalFindings:    len(s.findings.List(FindingFilters{})),
		Anomalies:        anomalies,
		Indicators:       s.intel.Len(),
		TrackedBaselines: s.baselines.Len(),
		Quarantined:      len(s.responder.Quarantines().Active(now)),
		Cycles:           cycles,
	}
}

// Findings returns findings matching the filters, newest first.
func (s *Service) Findings(filters FindingFilters) []*models.ThreatFinding {
	return s.findings.List(filters)
}

// Finding returns one finding by ID, or nil.
func (s *Service) Finding(id string) *models.ThreatFinding {
	return s.findings.Get(id)
}

// ResolveFinding marks a finding resolved. Resolved findings stay
// queryable until the retention sweep evicts them.
func (s *Service) ResolveFinding(id string) error {
	if !s.findings.Resolve(id, time.Now().UTC()) {
		return fmt.Errorf("finding %s not found or already resolved", id)
	}
	return nil
}

// Anomalies returns the recorded advisory anomalies, oldest first.
func (s *Service) Anomalies() []*models.AnomalyFinding {
	s.anomaliesMu.RLock()
	defer s.anomaliesMu.RUnlock()
	out := make([]*models.AnomalyFinding, len(s.anomalies))
	copy(out, s.anomalies)
	return out
}

// Intelligence returns indicator records, optionally filtered to one
// indicator value.
func (s *Service) Intelligence(indicator string) []*models.ThreatIntelRecord {
	return s.intel.Snapshot(indicator)
}

// AddIndicator inserts or updates a manually curated indicator.
func (s *Service) AddIndicator(rec *models.ThreatIntelRecord) error {
	if rec.Indicator == "" {
		return fmt.Errorf("indicator value required")
	}
	if rec.Provenance == "" {
		rec.Provenance = models.ProvenanceManual
	}
	if rec.LastSeen.IsZero() {
		rec.LastSeen = time.Now().UTC()
	}
	s.intel.Upsert(rec)
	return nil
}

// Quarantined returns the active quarantine records.
func (s *Service) Quarantined() []*models.QuarantineRecord {
	return s.responder.Quarantines().Active(time.Now().UTC())
}

// Baseline returns the behavioral baseline for an entity, or nil.
func (s *Service) Baseline(entity string) *models.BehavioralBaseline {
	return s.baselines.Get(entity)
}

// SignatureNames returns the loaded signature names.
func (s *Service) SignatureNames() []string {
	return s.signatures.Names()
}

// ConfigUpdate is a partial runtime reconfiguration. Nil fields keep
// their current value. Interval changes require a restart and are not
// accepted here.
type ConfigUpdate struct {
	DetectionThreshold  *int           `json:"detection_threshold,omitempty"`
	AnomalyThreshold    *int           `json:"anomaly_threshold,omitempty"`
	EnableAutoResponse  *bool          `json:"enable_auto_response,omitempty"`
	AutoBlockThreshold  *int           `json:"auto_block_threshold,omitempty"`
	QuarantineThreshold *int           `json:"quarantine_threshold,omitempty"`
	EscalationThreshold *int           `json:"escalation_threshold,omitempty"`
	QuarantineTTL       *time.Duration `json:"quarantine_ttl,omitempty"`
	BruteForceCount     *int           `json:"brute_force_count,omitempty"`
	VolumetricRate      *int           `json:"volumetric_rate,omitempty"`
	ExfiltrationBytes   *int64         `json:"exfiltration_bytes,omitempty"`
	PrivEscCount        *int           `json:"priv_esc_count,omitempty"`
	DataRetentionDays   *int           `json:"data_retention_days,omitempty"`
}

func (u *ConfigUpdate) validate() error {
	for name, v := range map[string]*int{
		"detection_threshold":  u.DetectionThreshold,
		"anomaly_threshold":    u.AnomalyThreshold,
		"auto_block_threshold": u.AutoBlockThreshold,
		"quarantine_threshold": u.QuarantineThreshold,
		"escalation_threshold": u.EscalationThreshold,
		"brute_force_count":    u.BruteForceCount,
		"volumetric_rate":      u.VolumetricRate,
		"priv_esc_count":       u.PrivEscCount,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if u.ExfiltrationBytes != nil && *u.ExfiltrationBytes <= 0 {
		return fmt.Errorf("exfiltration_bytes must be positive")
	}
	if u.QuarantineTTL != nil && *u.QuarantineTTL <= 0 {
		return fmt.Errorf("quarantine_ttl must be positive")
	}
	if u.DataRetentionDays != nil && *u.DataRetentionDays <= 0 {
		return fmt.Errorf("data_retention_days must be positive")
	}
	return nil
}

// UpdateConfig applies a partial configuration change at runtime. The
// update is atomic: it either fully applies or fully rejects.
func (s *Service) UpdateConfig(u ConfigUpdate) (Options, error) {
	if err := u.validate(); err != nil {
		return Options{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	opts := s.opts
	if u.DetectionThreshold != nil {
		opts.Scoring.DetectionThreshold = *u.DetectionThreshold
	}
	if u.AnomalyThreshold != nil {
		opts.Scoring.AnomalyThreshold = *u.AnomalyThreshold
	}
	if u.EnableAutoResponse != nil {
		opts.Response.EnableAutoResponse = *u.EnableAutoResponse
	}
	if u.AutoBlockThreshold != nil {
		opts.Response.AutoBlockThreshold = *u.AutoBlockThreshold
	}
	if u.QuarantineThreshold != nil {
		opts.Response.QuarantineThreshold = *u.QuarantineThreshold
	}
	if u.EscalationThreshold != nil {
		opts.Response.EscalationThreshold = *u.EscalationThreshold
	}
	if u.QuarantineTTL != nil {
		opts.Response.QuarantineTTL = *u.QuarantineTTL
	}
	if u.BruteForceCount != nil {
		opts.Detection.BruteForceCount = *u.BruteForceCount
	}
	if u.VolumetricRate != nil {
		opts.Detection.VolumetricRate = *u.VolumetricRate
	}
	if u.ExfiltrationBytes != nil {
		opts.Detection.ExfiltrationBytes = *u.ExfiltrationBytes
	}
	if u.PrivEscCount != nil {
		opts.Detection.PrivEscCount = *u.PrivEscCount
	}
	if u.DataRetentionDays != nil {
		opts.Retention.DataRetentionDays = *u.DataRetentionDays
	}

	s.opts = opts
	s.scorer = scorer.New(opts.Scoring, s.signatures, s.intel, s.baselines)
	s.responder = responder.NewOrchestrator(
		opts.Response, s.intel, s.responder.Quarantines(), s.responder.Enforcer(),
		s.responder.Channels(), s.logger)
	s.windows.SetMaxWindow(opts.Detection.MaxWindow())
	s.detectors = detector.All(s.windows, opts.Detection)
	s.retention.SetConfig(opts.Retention)

	s.logger.Info("configuration updated")
	return opts, nil
}

// Config returns a copy of the current options.
func (s *Service) Config() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}
