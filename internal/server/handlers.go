package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/crowsnest-systems/crowsnest/internal/engine"
	"github.com/crowsnest-systems/crowsnest/internal/httputil"
	"github.com/crowsnest-systems/crowsnest/internal/logging"
	"github.com/crowsnest-systems/crowsnest/internal/models"
	"github.com/crowsnest-systems/crowsnest/internal/ratelimit"
)

// Handler serves the engine's HTTP API.
type Handler struct {
	engine  *engine.Service
	limiter ratelimit.RateLimiter
	logger  *logging.Logger
}

// NewHandler creates the API handler. A nil limiter disables ingest
// throttling.
func NewHandler(svc *engine.Service, limiter ratelimit.RateLimiter, logger *logging.Logger) *Handler {
	if limiter == nil {
		limiter = &ratelimit.NoOpRateLimiter{}
	}
	return &Handler{engine: svc, limiter: limiter, logger: logger}
}

// HealthCheck handles GET /healthz.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// GetStatus handles GET /api/v1/status.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.engine.Status())
}

// ListFindings handles GET /api/v1/findings.
func (h *Handler) ListFindings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := engine.FindingFilters{
		Status:   models.FindingStatus(q.Get("status")),
		Severity: models.Severity(q.Get("severity")),
		Entity:   q.Get("entity"),
	}

	findings := h.engine.Findings(filters)
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"findings": findings,
		"total":    len(findings),
	})
}

// GetFinding handles GET /api/v1/findings/:id.
func (h *Handler) GetFinding(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/findings/")
	if id == "" {
		httputil.WriteError(w, http.StatusBadRequest, "finding ID required")
		return
	}

	finding := h.engine.Finding(id)
	if finding == nil {
		httputil.WriteError(w, http.StatusNotFound, "finding not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, finding)
}

// ResolveFinding handles POST /api/v1/findings/:id/resolve.
func (h *Handler) ResolveFinding(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/findings/")
	id = strings.TrimSuffix(id, "/resolve")
	if id == "" {
		httputil.WriteError(w, http.StatusBadRequest, "finding ID required")
		return
	}

	if err := h.engine.ResolveFinding(id); err != nil {
		httputil.WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	h.logger.Info("finding resolved via API", "id", id)
	httputil.WriteJSON(w, http.StatusOK, h.engine.Finding(id))
}

// ListAnomalies handles GET /api/v1/anomalies.
func (h *Handler) ListAnomalies(w http.ResponseWriter, r *http.Request) {
	anomalies := h.engine.Anomalies()
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"anomalies": anomalies,
		"total":     len(anomalies),
	})
}

// ListIntel handles GET /api/v1/intel.
func (h *Handler) ListIntel(w http.ResponseWriter, r *http.Request) {
	records := h.engine.Intelligence(r.URL.Query().Get("indicator"))
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"indicators": records,
		"total":      len(records),
	})
}

// AddIntel handles POST /api/v1/intel.
func (h *Handler) AddIntel(w http.ResponseWriter, r *http.Request) {
	var rec models.ThreatIntelRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.engine.AddIndicator(&rec); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info("indicator added via API", "indicator", rec.Indicator, "reputation", rec.Reputation)
	httputil.WriteJSON(w, http.StatusCreated, &rec)
}

// ListQuarantine handles GET /api/v1/quarantine.
func (h *Handler) ListQuarantine(w http.ResponseWriter, r *http.Request) {
	records := h.engine.Quarantined()
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"quarantined": records,
		"total":       len(records),
	})
}

// GetBaseline handles GET /api/v1/baselines/:entity.
func (h *Handler) GetBaseline(w http.ResponseWriter, r *http.Request) {
	entity := strings.TrimPrefix(r.URL.Path, "/api/v1/baselines/")
	if entity == "" {
		httputil.WriteError(w, http.StatusBadRequest, "entity required")
		return
	}

	b := h.engine.Baseline(entity)
	if b == nil {
		httputil.WriteError(w, http.StatusNotFound, "no baseline for entity")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b)
}

// ListSignatures handles GET /api/v1/signatures.
func (h *Handler) ListSignatures(w http.ResponseWriter, r *http.Request) {
	names := h.engine.SignatureNames()
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"signatures": names,
		"total":      len(names),
	})
}

// GetConfig handles GET /api/v1/config.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.engine.Config())
}

// UpdateConfig handles PATCH /api/v1/config.
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var update engine.ConfigUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	opts, err := h.engine.UpdateConfig(update)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	httputil.WriteJSON(w, http.StatusOK, opts)
}

// IngestEvent handles POST /api/v1/events: a push path for sources
// that do not go through the batch adapter.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	var ev models.SecurityEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	allowed, err := h.limiter.Allow(r.Context(), ev.SourceIdentity)
	if err != nil {
		// Degraded limiter never drops events.
		h.logger.Error("ingest rate limit check failed", "error", err)
	} else if !allowed {
		httputil.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	h.engine.Ingest(r.Context(), ev)
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
