// Package models defines the core data types shared by the scoring,
// detection, response and retention components.
package models

import (
	"time"

	"github.com/google/uuid"
)

// NewID returns a time-ordered unique identifier (UUID v7), falling
// back to a random UUID if the clock source is unavailable.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// EventCategory classifies a security event by its origin.
type EventCategory string

const (
	CategoryLoginAttempt      EventCategory = "login_attempt"
	CategoryAPIRequest        EventCategory = "api_request"
	CategoryFileAccess        EventCategory = "file_access"
	CategoryNetworkConnection EventCategory = "network_connection"
	CategoryAdminAction       EventCategory = "admin_action"
)

// Valid reports whether the category is one of the recognized values.
func (c EventCategory) Valid() bool {
	switch c {
	case CategoryLoginAttempt, CategoryAPIRequest, CategoryFileAccess,
		CategoryNetworkConnection, CategoryAdminAction:
		return true
	}
	return false
}

// Outcome is the result of the action an event describes.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// SecurityEvent is one normalized security-relevant event. Events are
// immutable once created and live only inside the retention window.
type SecurityEvent struct {
	ID             string            `json:"id"`
	Timestamp      time.Time         `json:"timestamp"`
	Category       EventCategory     `json:"category"`
	SourceIdentity string            `json:"source_identity"`
	Payload        map[string]string `json:"payload,omitempty"`
	Outcome        Outcome           `json:"outcome"`
	ResponseTimeMs int64             `json:"response_time_ms"`
	DataSizeBytes  int64             `json:"data_size_bytes"`
	GeoCountry     string            `json:"geo_country,omitempty"`
}

// Severity of a finding or intelligence record.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityForScore maps a 0-100 threat score onto a severity class.
// The mapping is monotonic: a higher score never yields a lower class.
func SeverityForScore(score int) Severity {
	switch {
	case score >= 90:
		return SeverityCritical
	case score >= 75:
		return SeverityHigh
	case score >= 50:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Reputation of a threat intelligence indicator.
type Reputation string

const (
	ReputationMalicious  Reputation = "malicious"
	ReputationSuspicious Reputation = "suspicious"
	ReputationBlocked    Reputation = "blocked"
	ReputationUnknown    Reputation = "unknown"
)

// Provenance records how an intelligence entry came to exist.
type Provenance string

const (
	ProvenanceManual      Provenance = "manual"
	ProvenanceAutoBlocked Provenance = "auto_blocked"
	ProvenanceFeed        Provenance = "feed"
)

// IndicatorType classifies an intelligence indicator.
type IndicatorType string

const (
	IndicatorAddress IndicatorType = "address"
	IndicatorHash    IndicatorType = "hash"
	IndicatorOther   IndicatorType = "other"
)

// ThreatIntelRecord is one indicator with its reputation. Owned by the
// intelligence store; every mutation is written through to persistence.
type ThreatIntelRecord struct {
	Indicator  string        `json:"indicator"`
	Type       IndicatorType `json:"type"`
	Reputation Reputation    `json:"reputation"`
	Category   string        `json:"category,omitempty"`
	Severity   Severity      `json:"severity"`
	Confidence float64       `json:"confidence"`
	LastSeen   time.Time     `json:"last_seen"`
	Provenance Provenance    `json:"provenance"`
}

// Threat type labels attached to findings.
const (
	ThreatBruteForce          = "brute_force"
	ThreatVolumetricAbuse     = "volumetric_abuse"
	ThreatDataExfiltration    = "data_exfiltration"
	ThreatPrivilegeEscalation = "privilege_escalation"
	ThreatMaliciousSource     = "malicious_source"
	ThreatSuspiciousSource    = "suspicious_source"
	ThreatAutomatedTool       = "automated_tool"
	ThreatHighRiskGeo         = "high_risk_geo"
)

// FindingStatus is the lifecycle state of a threat finding.
type FindingStatus string

const (
	FindingActive    FindingStatus = "active"
	FindingContained FindingStatus = "contained"
	FindingEscalated FindingStatus = "escalated"
	FindingResolved  FindingStatus = "resolved"
)

// ResponseRecord documents the automated actions taken for a finding.
type ResponseRecord struct {
	Actions        []string  `json:"actions"`
	NotifiedVia    []string  `json:"notified_via,omitempty"`
	FailedChannels []string  `json:"failed_channels,omitempty"`
	ExecutedAt     time.Time `json:"executed_at"`
}

// ThreatFinding is raised when an event or aggregate crosses a
// detection threshold. Score is always the exact sum of the factors
// listed in Indicators; there are no hidden terms.
type ThreatFinding struct {
	ID            string          `json:"id"`
	SourceEventID string          `json:"source_event_id,omitempty"`
	Entity        string          `json:"entity"`
	Timestamp     time.Time       `json:"timestamp"`
	ThreatTypes   []string        `json:"threat_types"`
	Severity      Severity        `json:"severity"`
	Score         int             `json:"score"`
	Confidence    float64         `json:"confidence"`
	Indicators    []string        `json:"indicators"`
	Status        FindingStatus   `json:"status"`
	Response      *ResponseRecord `json:"response,omitempty"`
	ResolvedAt    *time.Time      `json:"resolved_at,omitempty"`
}

// AnomalyFinding records a statistical deviation. Advisory only: it
// never triggers automated containment by itself.
type AnomalyFinding struct {
	ID            string    `json:"id"`
	SourceEventID string    `json:"source_event_id"`
	Entity        string    `json:"entity"`
	Timestamp     time.Time `json:"timestamp"`
	Score         int       `json:"score"`
	Indicators    []string  `json:"indicators"`
}

// QuarantineStatus is the lifecycle state of a quarantine record.
type QuarantineStatus string

const (
	QuarantineActive  QuarantineStatus = "active"
	QuarantineExpired QuarantineStatus = "expired"
)

// QuarantineRecord is a time-bounded containment applied to an entity.
// At most one record per entity is active at any time.
type QuarantineRecord struct {
	ID         string           `json:"id"`
	Entity     string           `json:"entity"`
	EntityType string           `json:"entity_type"`
	Reason     string           `json:"reason"`
	CreatedAt  time.Time        `json:"created_at"`
	ExpiresAt  time.Time        `json:"expires_at"`
	Status     QuarantineStatus `json:"status"`
}

// Expired reports whether the record's TTL has elapsed at now.
func (q *QuarantineRecord) Expired(now time.Time) bool {
	return now.After(q.ExpiresAt)
}

// BehavioralBaseline is the rolling statistical profile of one entity.
type BehavioralBaseline struct {
	Entity      string       `json:"entity"`
	RequestRate float64      `json:"request_rate"`
	DataVolume  float64      `json:"data_volume"`
	ErrorRate   float64      `json:"error_rate"`
	ActiveHours map[int]bool `json:"active_hours"`
	SampleCount int64        `json:"sample_count"`
	UpdatedAt   time.Time    `json:"updated_at"`
}
