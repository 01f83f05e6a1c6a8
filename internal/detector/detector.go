package detector

import (
	"fmt"
	"time"

	"github.com/crowsnest-systems/crowsnest/internal/models"
)

// Detector is one sliding-window aggregate detector.
type Detector interface {
	Name() string
	Evaluate(now time.Time) []*models.ThreatFinding
}

// Config holds the per-detector thresholds.
type Config struct {
	BruteForceWindow   time.Duration
	BruteForceCount    int
	VolumetricWindow   time.Duration
	VolumetricRate     int
	ExfiltrationWindow time.Duration
	ExfiltrationBytes  int64
	PrivEscWindow      time.Duration
	PrivEscCount       int
}

// DefaultConfig returns the default detector thresholds.
func DefaultConfig() Config {
	return Config{
		BruteForceWindow:   15 * time.Minute,
		BruteForceCount:    5,
		VolumetricWindow:   5 * time.Minute,
		VolumetricRate:     100,
		ExfiltrationWindow: 30 * time.Minute,
		ExfiltrationBytes:  10 << 20, // 10 MB
		PrivEscWindow:      60 * time.Minute,
		PrivEscCount:       5,
	}
}

// MaxWindow returns the longest configured window, which bounds how
// long the window store must retain entries.
func (c Config) MaxWindow() time.Duration {
	max := c.BruteForceWindow
	for _, w := range []time.Duration{c.VolumetricWindow, c.ExfiltrationWindow, c.PrivEscWindow} {
		if w > max {
			max = w
		}
	}
	return max
}

// firing tracks which entities a detector has already fired for, so a
// sustained condition produces one finding per window crossing instead
// of one per evaluation cycle. The flag clears once the entity drops
// back below threshold.
type firing struct {
	entities map[string]bool
}

func newFiring() *firing {
	return &firing{entities: make(map[string]bool)}
}

// shouldFire reports whether a finding should be emitted for the
// entity given whether its threshold is currently exceeded.
func (f *firing) shouldFire(entity string, over bool) bool {
	if !over {
		delete(f.entities, entity)
		return false
	}
	if f.entities[entity] {
		return false
	}
	f.entities[entity] = true
	return true
}

func newFinding(entity, threatType string, severity models.Severity, score int, now time.Time, indicator string) *models.ThreatFinding {
	confidence := float64(score) / 100
	if confidence > 1 {
		confidence = 1
	}
	return &models.ThreatFinding{
		ID:          models.NewID(),
		Entity:      entity,
		Timestamp:   now,
		ThreatTypes: []string{threatType},
		Severity:    severity,
		Score:       score,
		Confidence:  confidence,
		Indicators:  []string{indicator},
		Status:      models.FindingActive,
	}
}

// BruteForce detects repeated failed login attempts from one entity.
type BruteForce struct {
	store  *WindowStore
	window time.Duration
	count  int
	fired  *firing
}

// NewBruteForce creates a brute force detector.
func NewBruteForce(store *WindowStore, cfg Config) *BruteForce {
	return &BruteForce{
		store:  store,
		window: cfg.BruteForceWindow,
		count:  cfg.BruteForceCount,
		fired:  newFiring(),
	}
}

func (d *BruteForce) Name() string { return models.ThreatBruteForce }

func (d *BruteForce) Evaluate(now time.Time) []*models.ThreatFinding {
	cutoff := now.Add(-d.window)
	var findings []*models.ThreatFinding

	for _, entity := range d.store.entities() {
		failures := 0
		for _, e := range d.store.entriesSince(entity, cutoff) {
			if e.category == models.CategoryLoginAttempt && e.outcome == models.OutcomeFailure {
				failures++
			}
		}

		if !d.fired.shouldFire(entity, failures >= d.count) {
			continue
		}

		score := failures * 10
		if score > 100 {
			score = 100
		}
		findings = append(findings, newFinding(
			entity, models.ThreatBruteForce, models.SeverityHigh, score, now,
			fmt.Sprintf("%d failed login attempts within %s (threshold %d)", failures, d.window, d.count),
		))
	}
	return findings
}

// Volumetric detects abnormal request volume from one entity.
type Volumetric struct {
	store  *WindowStore
	window time.Duration
	rate   int
	fired  *firing
}

// NewVolumetric creates a volumetric abuse detector.
func NewVolumetric(store *WindowStore, cfg Config) *Volumetric {
	return &Volumetric{
		store:  store,
		window: cfg.VolumetricWindow,
		rate:   cfg.VolumetricRate,
		fired:  newFiring(),
	}
}

func (d *Volumetric) Name() string { return models.ThreatVolumetricAbuse }

func (d *Volumetric) Evaluate(now time.Time) []*models.ThreatFinding {
	cutoff := now.Add(-d.window)
	var findings []*models.ThreatFinding

	for _, entity := range d.store.entities() {
		count := len(d.store.entriesSince(entity, cutoff))

		if !d.fired.shouldFire(entity, count >= d.rate) {
			continue
		}

		score := count / 2
		if score > 100 {
			score = 100
		}
		findings = append(findings, newFinding(
			entity, models.ThreatVolumetricAbuse, models.SeverityHigh, score, now,
			fmt.Sprintf("%d events within %s (threshold %d)", count, d.window, d.rate),
		))
	}
	return findings
}

// Exfiltration detects abnormal outbound data volume from one entity.
type Exfiltration struct {
	store  *WindowStore
	window time.Duration
	bytes  int64
	fired  *firing
}

// NewExfiltration creates a data exfiltration detector.
func NewExfiltration(store *WindowStore, cfg Config) *Exfiltration {
	return &Exfiltration{
		store:  store,
		window: cfg.ExfiltrationWindow,
		bytes:  cfg.ExfiltrationBytes,
		fired:  newFiring(),
	}
}

func (d *Exfiltration) Name() string { return models.ThreatDataExfiltration }

func (d *Exfiltration) Evaluate(now time.Time) []*models.ThreatFinding {
	cutoff := now.Add(-d.window)
	var findings []*models.ThreatFinding

	for _, entity := range d.store.entities() {
		var total int64
		for _, e := range d.store.entriesSince(entity, cutoff) {
			total += e.bytes
		}

		if !d.fired.shouldFire(entity, total >= d.bytes) {
			continue
		}

		score := int(total / 100000)
		if score > 100 {
			score = 100
		}
		findings = append(findings, newFinding(
			entity, models.ThreatDataExfiltration, models.SeverityCritical, score, now,
			fmt.Sprintf("%d bytes transferred within %s (threshold %d)", total, d.window, d.bytes),
		))
	}
	return findings
}

// PrivilegeEscalation detects bursts of administrative actions from
// one entity.
type PrivilegeEscalation struct {
	store  *WindowStore
	window time.Duration
	count  int
	fired  *firing
}

// NewPrivilegeEscalation creates a privilege escalation detector.
func NewPrivilegeEscalation(store *WindowStore, cfg Config) *PrivilegeEscalation {
	return &PrivilegeEscalation{
		store:  store,
		window: cfg.PrivEscWindow,
		count:  cfg.PrivEscCount,
		fired:  newFiring(),
	}
}

func (d *PrivilegeEscalation) Name() string { return models.ThreatPrivilegeEscalation }

func (d *PrivilegeEscalation) Evaluate(now time.Time) []*models.ThreatFinding {
	cutoff := now.Add(-d.window)
	var findings []*models.ThreatFinding

	for _, entity := range d.store.entities() {
		actions := 0
		for _, e := range d.store.entriesSince(entity, cutoff) {
			if e.category == models.CategoryAdminAction {
				actions++
			}
		}

		if !d.fired.shouldFire(entity, actions >= d.count) {
			continue
		}

		score := actions * 15
		if score > 100 {
			score = 100
		}
		findings = append(findings, newFinding(
			entity, models.ThreatPrivilegeEscalation, models.SeverityHigh, score, now,
			fmt.Sprintf("%d admin actions within %s (threshold %d)", actions, d.window, d.count),
		))
	}
	return findings
}

// All constructs the standard detector set sharing one window store.
func All(store *WindowStore, cfg Config) []Detector {
	return []Detector{
		NewBruteForce(store, cfg),
		NewVolumetric(store, cfg),
		NewExfiltration(store, cfg),
		NewPrivilegeEscalation(store, cfg),
	}
}
