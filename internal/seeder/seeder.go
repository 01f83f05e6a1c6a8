// Package seeder generates synthetic security events for testing and
// development and pushes them into a running engine over the API.
package seeder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/crowsnest-systems/crowsnest/internal/models"
)

// Options controls what the seeder generates.
type Options struct {
	Count      int
	TimeSpread time.Duration
	// Attacks are scenario names mixed into the benign traffic.
	Attacks []string
}

// ListScenarios returns the supported attack scenario names.
func ListScenarios() []string {
	return []string{"brute_force", "exfiltration", "sql_injection", "tool_scan", "priv_esc"}
}

// Generate produces a mixed stream of benign events plus the requested
// attack scenarios, ordered oldest first.
func Generate(opts Options) ([]models.SecurityEvent, error) {
	now := time.Now().UTC()
	events := make([]models.SecurityEvent, 0, opts.Count)

	for i := 0; i < opts.Count; i++ {
		ev := benignEvent()
		if opts.TimeSpread > 0 {
			// Jittered distribution going backwards from now
			offset := time.Duration(float64(opts.TimeSpread) * float64(i) / float64(opts.Count))
			jitter := time.Duration(rand.Int63n(int64(time.Minute)))
			ev.Timestamp = now.Add(-opts.TimeSpread + offset + jitter)
		} else {
			ev.Timestamp = now
		}
		events = append(events, ev)
	}

	for _, name := range opts.Attacks {
		attack, err := attackEvents(name, now)
		if err != nil {
			return nil, err
		}
		events = append(events, attack...)
	}

	return events, nil
}

func benignEvent() models.SecurityEvent {
	categories := []models.EventCategory{
		models.CategoryLoginAttempt,
		models.CategoryAPIRequest,
		models.CategoryFileAccess,
		models.CategoryNetworkConnection,
	}
	cat := categories[rand.Intn(len(categories))]

	outcome := models.OutcomeSuccess
	if rand.Float32() < 0.05 {
		outcome = models.OutcomeFailure
	}

	return models.SecurityEvent{
		ID:             models.NewID(),
		Category:       cat,
		SourceIdentity: gofakeit.IPv4Address(),
		Payload: map[string]string{
			"user_agent": gofakeit.UserAgent(),
			"path":       "/" + gofakeit.Word(),
			"user":       gofakeit.Username(),
		},
		Outcome:        outcome,
		ResponseTimeMs: int64(rand.Intn(800)),
		DataSizeBytes:  int64(rand.Intn(64 * 1024)),
		GeoCountry:     gofakeit.CountryAbr(),
	}
}

func attackEvents(name string, now time.Time) ([]models.SecurityEvent, error) {
	switch name {
	case "brute_force":
		return bruteForce(now), nil
	case "exfiltration":
		return exfiltration(now), nil
	case "sql_injection":
		return sqlInjection(now), nil
	case "tool_scan":
		return toolScan(now), nil
	case "priv_esc":
		return privEsc(now), nil
	default:
		return nil, fmt.Errorf("unknown attack scenario %q", name)
	}
}

func bruteForce(now time.Time) []models.SecurityEvent {
	attacker := gofakeit.IPv4Address()
	victim := gofakeit.Username()
	events := make([]models.SecurityEvent, 0, 8)
	for i := 0; i < 8; i++ {
		events = append(events, models.SecurityEvent{
			ID:             models.NewID(),
			Timestamp:      now.Add(-time.Duration(8-i) * 30 * time.Second),
			Category:       models.CategoryLoginAttempt,
			SourceIdentity: attacker,
			Payload:        map[string]string{"user": victim},
			Outcome:        models.OutcomeFailure,
			ResponseTimeMs: int64(rand.Intn(200)),
			GeoCountry:     gofakeit.CountryAbr(),
		})
	}
	return events
}

func exfiltration(now time.Time) []models.SecurityEvent {
	insider := gofakeit.Username()
	events := make([]models.SecurityEvent, 0, 6)
	for i := 0; i < 6; i++ {
		events = append(events, models.SecurityEvent{
			ID:             models.NewID(),
			Timestamp:      now.Add(-time.Duration(6-i) * 2 * time.Minute),
			Category:       models.CategoryFileAccess,
			SourceIdentity: insider,
			Payload:        map[string]string{"path": "/exports/" + gofakeit.Word() + ".csv"},
			Outcome:        models.OutcomeSuccess,
			DataSizeBytes:  int64(2+rand.Intn(3)) * 1024 * 1024,
			GeoCountry:     gofakeit.CountryAbr(),
		})
	}
	return events
}

func sqlInjection(now time.Time) []models.SecurityEvent {
	payloads := []string{
		"id=1 UNION SELECT username, password FROM users--",
		"q='; DROP TABLE accounts;--",
		"name=admin' OR '1'='1",
	}
	attacker := gofakeit.IPv4Address()
	events := make([]models.SecurityEvent, 0, len(payloads))
	for i, p := range payloads {
		events = append(events, models.SecurityEvent{
			ID:             models.NewID(),
			Timestamp:      now.Add(-time.Duration(len(payloads)-i) * time.Minute),
			Category:       models.CategoryAPIRequest,
			SourceIdentity: attacker,
			Payload:        map[string]string{"query": p},
			Outcome:        models.OutcomeFailure,
			ResponseTimeMs: int64(rand.Intn(400)),
			GeoCountry:     gofakeit.CountryAbr(),
		})
	}
	return events
}

func toolScan(now time.Time) []models.SecurityEvent {
	attacker := gofakeit.IPv4Address()
	return []models.SecurityEvent{{
		ID:             models.NewID(),
		Timestamp:      now.Add(-time.Minute),
		Category:       models.CategoryAPIRequest,
		SourceIdentity: attacker,
		Payload: map[string]string{
			"user_agent": "sqlmap/1.7.2#stable (https://sqlmap.org)",
			"path":       "/login",
		},
		Outcome:    models.OutcomeFailure,
		GeoCountry: gofakeit.CountryAbr(),
	}}
}

func privEsc(now time.Time) []models.SecurityEvent {
	user := gofakeit.Username()
	actions := []string{"grant_role", "create_user", "modify_policy", "disable_audit", "rotate_keys", "grant_role"}
	events := make([]models.SecurityEvent, 0, len(actions))
	for i, action := range actions {
		events = append(events, models.SecurityEvent{
			ID:             models.NewID(),
			Timestamp:      now.Add(-time.Duration(len(actions)-i) * 5 * time.Minute),
			Category:       models.CategoryAdminAction,
			SourceIdentity: user,
			Payload:        map[string]string{"action": action},
			Outcome:        models.OutcomeSuccess,
			GeoCountry:     gofakeit.CountryAbr(),
		})
	}
	return events
}

// Sender pushes generated events to a running engine.
type Sender struct {
	client  *http.Client
	baseURL string
	token   string
}

// NewSender creates a sender for the given API base URL. token may be
// empty when the target runs without authentication.
func NewSender(baseURL, token string) *Sender {
	return &Sender{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
		token:   token,
	}
}

// Send posts each event to the ingest endpoint.
func (s *Sender) Send(ctx context.Context, events []models.SecurityEvent) error {
	for i := range events {
		body, err := json.Marshal(&events[i])
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/v1/events", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if s.token != "" {
			req.Header.Set("Authorization", "Bearer "+s.token)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send event: %w", err)
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("ingest endpoint returned status %d", resp.StatusCode)
		}
	}
	return nil
}
