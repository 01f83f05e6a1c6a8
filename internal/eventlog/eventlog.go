// Package eventlog appends engine records to durable log storage.
// Appends are fire-and-forget: a failed write is logged and dropped,
// it never backpressures the scoring path.
package eventlog

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/crowsnest-systems/crowsnest/internal/logging"
)

// Logger is the append-only log consumed by the engine.
type Logger interface {
	Append(ctx context.Context, category string, record interface{})
}

// Config holds OpenSearch connection settings.
type Config struct {
	URL           string
	Username      string
	Password      string
	TLSSkipVerify bool
	IndexPrefix   string
}

// DefaultConfig returns sensible defaults for the event log.
func DefaultConfig() Config {
	return Config{
		URL:           "https://localhost:9200",
		Username:      "admin",
		Password:      "admin",
		TLSSkipVerify: true,
		IndexPrefix:   "crowsnest",
	}
}

// OpenSearchLogger appends records to daily OpenSearch indices named
// <prefix>-<category>-YYYY.MM.DD.
type OpenSearchLogger struct {
	client *opensearch.Client
	prefix string
	log    *logging.Logger
}

// NewOpenSearchLogger connects to OpenSearch and returns a logger.
func NewOpenSearchLogger(cfg Config, log *logging.Logger) (*OpenSearchLogger, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.TLSSkipVerify,
			},
		},
	}

	osCfg := opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpClient.Transport,
	}

	client, err := opensearch.NewClient(osCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	info, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to ping opensearch: %w", err)
	}
	defer info.Body.Close()

	if info.IsError() {
		return nil, fmt.Errorf("opensearch returned error: %s", info.Status())
	}

	return &OpenSearchLogger{client: client, prefix: cfg.IndexPrefix, log: log}, nil
}

// Append indexes one record. Errors are logged, never returned: the
// caller has already moved on.
func (l *OpenSearchLogger) Append(ctx context.Context, category string, record interface{}) {
	data, err := json.Marshal(record)
	if err != nil {
		l.log.Error("event log marshal failed", "category", category, "error", err)
		return
	}

	index := fmt.Sprintf("%s-%s-%s", l.prefix, category, time.Now().UTC().Format("2006.01.02"))

	go func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		resp, err := l.client.Index(index, bytes.NewReader(data), l.client.Index.WithContext(c))
		if err != nil {
			l.log.Error("event log append failed", "index", index, "error", err)
			return
		}
		defer resp.Body.Close()

		if resp.IsError() {
			l.log.Error("event log append rejected", "index", index, "status", resp.Status())
		}
	}()
}

// Nop is a Logger that discards everything, used in tests and when no
// log storage is configured.
type Nop struct{}

func (Nop) Append(ctx context.Context, category string, record interface{}) {}
