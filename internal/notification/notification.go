// Package notification delivers escalation alerts for threat findings.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/crowsnest-systems/crowsnest/internal/models"
)

// Channel defines the interface for finding notification delivery.
// Delivery is best-effort: a failed channel is logged by the caller
// and never blocks the remaining channels.
type Channel interface {
	Notify(ctx context.Context, finding *models.ThreatFinding) error
	Type() string
}

// WebhookChannel sends finding notifications via HTTP POST.
type WebhookChannel struct {
	URL     string
	Timeout time.Duration
	client  *http.Client
}

// NewWebhookChannel creates a webhook notification channel.
func NewWebhookChannel(url string, timeout time.Duration) *WebhookChannel {
	return &WebhookChannel{
		URL:     url,
		Timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (w *WebhookChannel) Type() string {
	return "webhook"
}

func (w *WebhookChannel) Notify(ctx context.Context, finding *models.ThreatFinding) error {
	payload := map[string]interface{}{
		"finding_id":   finding.ID,
		"entity":       finding.Entity,
		"severity":     finding.Severity,
		"score":        finding.Score,
		"threat_types": finding.ThreatTypes,
		"indicators":   finding.Indicators,
		"status":       finding.Status,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "CrowsNest-Engine/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// SlackChannel sends finding notifications to Slack via webhook.
type SlackChannel struct {
	WebhookURL string
	Timeout    time.Duration
	client     *http.Client
}

// NewSlackChannel creates a Slack notification channel.
func NewSlackChannel(webhookURL string, timeout time.Duration) *SlackChannel {
	return &SlackChannel{
		WebhookURL: webhookURL,
		Timeout:    timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (s *SlackChannel) Type() string {
	return "slack"
}

func (s *SlackChannel) Notify(ctx context.Context, finding *models.ThreatFinding) error {
	payload := map[string]interface{}{
		"text": fmt.Sprintf("🚨 Threat finding: %s", finding.Entity),
		"attachments": []map[string]interface{}{
			{
				"color": s.severityColor(finding.Severity),
				"fields": []map[string]interface{}{
					{
						"title": "Entity",
						"value": finding.Entity,
						"short": true,
					},
					{
						"title": "Severity",
						"value": string(finding.Severity),
						"short": true,
					},
					{
						"title": "Score",
						"value": fmt.Sprintf("%d", finding.Score),
						"short": true,
					},
					{
						"title": "Threat Types",
						"value": fmt.Sprintf("%v", finding.ThreatTypes),
						"short": false,
					},
				},
				"footer": "Crow's Nest",
				"ts":     time.Now().Unix(),
			},
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send slack notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}

	return nil
}

func (s *SlackChannel) severityColor(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "#d50000"
	case models.SeverityHigh:
		return "#ff6d00"
	case models.SeverityMedium:
		return "#ffd600"
	default:
		return "#2962ff"
	}
}
