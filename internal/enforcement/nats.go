package enforcement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subjects for enforcement commands.
const (
	SubjectBlock     = "crowsnest.enforce.block"
	SubjectRateLimit = "crowsnest.enforce.ratelimit"
)

// Command is the payload published for each enforcement action.
type Command struct {
	Action   string    `json:"action"`
	Identity string    `json:"identity"`
	IssuedAt time.Time `json:"issued_at"`
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns a config with sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "crowsnest-enforcer",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSEnforcer publishes enforcement commands to NATS subjects
// consumed by the gateway or firewall controller.
type NATSEnforcer struct {
	conn *nats.Conn
}

// NewNATSEnforcer connects to NATS and returns an enforcer.
func NewNATSEnforcer(cfg NATSConfig) (*NATSEnforcer, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEnforcer{conn: conn}, nil
}

// Block publishes a block command for the identity.
func (e *NATSEnforcer) Block(ctx context.Context, identity string) error {
	return e.publish(SubjectBlock, Command{
		Action:   "block",
		Identity: identity,
		IssuedAt: time.Now().UTC(),
	})
}

// RateLimit publishes a rate-limit command for the identity.
func (e *NATSEnforcer) RateLimit(ctx context.Context, identity string) error {
	return e.publish(SubjectRateLimit, Command{
		Action:   "rate_limit",
		Identity: identity,
		IssuedAt: time.Now().UTC(),
	})
}

func (e *NATSEnforcer) publish(subject string, cmd Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}
	if err := e.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Close drains and closes the NATS connection.
func (e *NATSEnforcer) Close() {
	if e.conn != nil {
		e.conn.Close()
	}
}
