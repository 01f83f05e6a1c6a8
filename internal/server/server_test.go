package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowsnest-systems/crowsnest/internal/engine"
	"github.com/crowsnest-systems/crowsnest/internal/logging"
	"github.com/crowsnest-systems/crowsnest/internal/models"
)

func newTestRouter(t *testing.T, secret string) (*engine.Service, http.Handler) {
	t.Helper()

	svc := engine.New(engine.DefaultOptions(), engine.Deps{
		Source: engine.NewChannelSource(16),
	})
	h := NewHandler(svc, nil, logging.Default())
	return svc, NewRouter(h, NewAuthMiddleware(secret))
}

func signToken(t *testing.T, secret, subject string, expiresIn time.Duration) string {
	t.Helper()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestHealthCheck(t *testing.T) {
	_, router := newTestRouter(t, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestAuthDisabledPassesThrough(t *testing.T) {
	_, router := newTestRouter(t, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRejectsBadTokens(t *testing.T) {
	const secret = "test-secret"
	_, router := newTestRouter(t, secret)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "not bearer", header: "Basic dXNlcjpwYXNz"},
		{name: "garbage token", header: "Bearer not.a.token"},
		{name: "wrong secret", header: "Bearer " + signTokenWithSecret(t, "other-secret")},
		{name: "expired token", header: "Bearer " + signToken(t, secret, "analyst", -time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func signTokenWithSecret(t *testing.T, secret string) string {
	return signToken(t, secret, "analyst", time.Hour)
}

func TestAuthAcceptsValidToken(t *testing.T) {
	const secret = "test-secret"
	_, router := newTestRouter(t, secret)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, secret, "analyst", time.Hour))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthNeverSkipsProtectedRoutes(t *testing.T) {
	// Every route under /api/v1 requires a token when auth is enabled.
	_, router := newTestRouter(t, "test-secret")

	paths := []string{
		"/api/v1/status",
		"/api/v1/findings",
		"/api/v1/findings/abc",
		"/api/v1/anomalies",
		"/api/v1/intel",
		"/api/v1/quarantine",
		"/api/v1/baselines/web-1",
		"/api/v1/signatures",
		"/api/v1/config",
	}
	for _, p := range paths {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, p, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "path %s", p)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	_, router := newTestRouter(t, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/status", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestIngestEvent(t *testing.T) {
	svc, router := newTestRouter(t, "")

	ev := models.SecurityEvent{
		ID:             "ev-1",
		Timestamp:      time.Now().UTC(),
		Category:       models.CategoryAPIRequest,
		SourceIdentity: "203.0.113.10",
		Outcome:        models.OutcomeSuccess,
	}
	body, err := json.Marshal(ev)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(body)))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, svc.Status().BufferedEvents)
}

type denyAllLimiter struct{}

func (denyAllLimiter) Allow(ctx context.Context, key string) (bool, error) { return false, nil }
func (denyAllLimiter) Close() error                                        { return nil }

func TestIngestEventThrottled(t *testing.T) {
	svc := engine.New(engine.DefaultOptions(), engine.Deps{
		Source: engine.NewChannelSource(16),
	})
	h := NewHandler(svc, denyAllLimiter{}, logging.Default())
	router := NewRouter(h, NewAuthMiddleware(""))

	body, err := json.Marshal(models.SecurityEvent{
		ID:             "ev-throttled",
		Timestamp:      time.Now().UTC(),
		Category:       models.CategoryAPIRequest,
		SourceIdentity: "203.0.113.99",
		Outcome:        models.OutcomeSuccess,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(body)))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 0, svc.Status().BufferedEvents)
}

func TestIngestEventInvalidBody(t *testing.T) {
	_, router := newTestRouter(t, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader([]byte("{not json"))))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIntelRoundTrip(t *testing.T) {
	_, router := newTestRouter(t, "")

	add := models.ThreatIntelRecord{
		Indicator:  "203.0.113.66",
		Type:       models.IndicatorAddress,
		Reputation: models.ReputationMalicious,
		Severity:   models.SeverityHigh,
		Confidence: 0.8,
	}
	body, err := json.Marshal(add)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/intel", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/intel?indicator=203.0.113.66", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Indicators []models.ThreatIntelRecord `json:"indicators"`
		Total      int                        `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, models.ReputationMalicious, resp.Indicators[0].Reputation)
	assert.Equal(t, models.ProvenanceManual, resp.Indicators[0].Provenance)
}

func TestAddIntelRejectsEmptyIndicator(t *testing.T) {
	_, router := newTestRouter(t, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/intel", bytes.NewReader([]byte(`{"reputation":"malicious"}`))))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetFindingNotFound(t *testing.T) {
	_, router := newTestRouter(t, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/findings/no-such-id", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResolveFindingNotFound(t *testing.T) {
	_, router := newTestRouter(t, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/findings/no-such-id/resolve", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetBaselineNotFound(t *testing.T) {
	_, router := newTestRouter(t, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/baselines/unknown-entity", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSignatures(t *testing.T) {
	_, router := newTestRouter(t, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/signatures", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Signatures []string `json:"signatures"`
		Total      int      `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Signatures)
	assert.Equal(t, len(resp.Signatures), resp.Total)
}

func TestUpdateConfig(t *testing.T) {
	_, router := newTestRouter(t, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/api/v1/config",
		bytes.NewReader([]byte(`{"detection_threshold":60,"brute_force_count":3}`))))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/config", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var opts engine.Options
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &opts))
	assert.Equal(t, 60, opts.Scoring.DetectionThreshold)
	assert.Equal(t, 3, opts.Detection.BruteForceCount)
}

func TestUpdateConfigRejectsInvalid(t *testing.T) {
	_, router := newTestRouter(t, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/api/v1/config",
		bytes.NewReader([]byte(`{"detection_threshold":-5}`))))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
