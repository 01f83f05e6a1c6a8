package seeder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowsnest-systems/crowsnest/internal/models"
)

func TestGenerateBenign(t *testing.T) {
	events, err := Generate(Options{Count: 50, TimeSpread: 30 * time.Minute})
	require.NoError(t, err)
	require.Len(t, events, 50)

	for _, ev := range events {
		assert.NotEmpty(t, ev.ID)
		assert.True(t, ev.Category.Valid(), "category %q", ev.Category)
		assert.NotEmpty(t, ev.SourceIdentity)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestGenerateBruteForceScenario(t *testing.T) {
	events, err := Generate(Options{Attacks: []string{"brute_force"}})
	require.NoError(t, err)
	require.Len(t, events, 8)

	source := events[0].SourceIdentity
	for _, ev := range events {
		assert.Equal(t, models.CategoryLoginAttempt, ev.Category)
		assert.Equal(t, models.OutcomeFailure, ev.Outcome)
		assert.Equal(t, source, ev.SourceIdentity)
	}
}

func TestGenerateUnknownScenario(t *testing.T) {
	_, err := Generate(Options{Attacks: []string{"ransomware"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ransomware")
}

func TestListScenarios(t *testing.T) {
	names := ListScenarios()
	assert.Contains(t, names, "brute_force")
	assert.Contains(t, names, "exfiltration")
	assert.Contains(t, names, "sql_injection")
	assert.Contains(t, names, "tool_scan")
	assert.Contains(t, names, "priv_esc")
}

func TestSenderPostsEvents(t *testing.T) {
	var posted int
	var auth, contentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/events", r.URL.Path)
		auth = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		posted++
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	events, err := Generate(Options{Count: 3})
	require.NoError(t, err)

	sender := NewSender(srv.URL, "test-token")
	require.NoError(t, sender.Send(context.Background(), events))

	assert.Equal(t, 3, posted)
	assert.Equal(t, "Bearer test-token", auth)
	assert.Equal(t, "application/json", contentType)
}

func TestSenderStopsOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	events, err := Generate(Options{Count: 2})
	require.NoError(t, err)

	sender := NewSender(srv.URL, "")
	err = sender.Send(context.Background(), events)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
