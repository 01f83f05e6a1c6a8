// Package engine wires the scoring, detection, response and retention
// components into one service and drives them with periodic cycles.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/crowsnest-systems/crowsnest/internal/baseline"
	"github.com/crowsnest-systems/crowsnest/internal/detector"
	"github.com/crowsnest-systems/crowsnest/internal/enforcement"
	"github.com/crowsnest-systems/crowsnest/internal/eventlog"
	"github.com/crowsnest-systems/crowsnest/internal/intel"
	"github.com/crowsnest-systems/crowsnest/internal/logging"
	"github.com/crowsnest-systems/crowsnest/internal/metrics"
	"github.com/crowsnest-systems/crowsnest/internal/models"
	"github.com/crowsnest-systems/crowsnest/internal/notification"
	"github.com/crowsnest-systems/crowsnest/internal/repository"
	"github.com/crowsnest-systems/crowsnest/internal/responder"
	"github.com/crowsnest-systems/crowsnest/internal/retention"
	"github.com/crowsnest-systems/crowsnest/internal/scorer"
	"github.com/crowsnest-systems/crowsnest/internal/signature"
)

// Log categories written to the event log.
const (
	LogCategoryEvents    = "events"
	LogCategoryFindings  = "findings"
	LogCategoryAnomalies = "anomalies"
	LogCategoryLifecycle = "lifecycle"
)

// maxStoredAnomalies bounds the advisory anomaly list.
const maxStoredAnomalies = 1000

// Options configures the engine's cycles and component thresholds.
type Options struct {
	ScanInterval         time.Duration
	DetectionInterval    time.Duration
	BaselineInterval     time.Duration
	IntelRefreshInterval time.Duration
	CleanupInterval      time.Duration

	Scoring   scorer.Config
	Detection detector.Config
	Response  responder.Config
	Retention retention.Config
}

// DefaultOptions returns the default engine configuration.
func DefaultOptions() Options {
	return Options{
		ScanInterval:         30 * time.Second,
		DetectionInterval:    time.Minute,
		BaselineInterval:     5 * time.Minute,
		IntelRefreshInterval: 15 * time.Minute,
		CleanupInterval:      time.Hour,
		Scoring:              scorer.DefaultConfig(),
		Detection:            detector.DefaultConfig(),
		Response:             responder.DefaultConfig(),
		Retention:            retention.DefaultConfig(),
	}
}

// Deps are the external collaborators the engine consumes.
type Deps struct {
	Source     EventSource
	Repository repository.Repository
	Enforcer   enforcement.Enforcer
	Channels   []notification.Channel
	EventLog   eventlog.Logger
	Signatures *signature.Library
	Logger     *logging.Logger
}

// cycleStat tracks one periodic task's health for the status surface.
type cycleStat struct {
	LastRun   time.Time `json:"last_run"`
	LastError string    `json:"last_error,omitempty"`
	Errors    int64     `json:"errors"`
	Runs      int64     `json:"runs"`
}

// Service is the engine instance. All shared state is owned here and
// passed by reference to the periodic tasks; there are no package
// globals.
type Service struct {
	mu   sync.RWMutex
	opts Options

	source     EventSource
	signatures *signature.Library
	intel      *intel.Store
	baselines  *baseline.Tracker
	buffer     *EventBuffer
	windows    *detector.WindowStore
	findings   *FindingStore
	detectors  []detector.Detector
	scorer     *scorer.Scorer
	responder  *responder.Orchestrator
	retention  *retention.Manager
	eventLog   eventlog.Logger
	logger     *logging.Logger

	anomaliesMu sync.RWMutex
	anomalies   []*models.AnomalyFinding

	lastBaselineAt time.Time

	statsMu sync.Mutex
	stats   map[string]*cycleStat

	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New constructs an engine service.
func New(opts Options, deps Deps) *Service {
	if deps.Signatures == nil {
		deps.Signatures = signature.NewDefaultLibrary()
	}
	if deps.Repository == nil {
		deps.Repository = repository.NewMemoryRepository()
	}
	if deps.Enforcer == nil {
		deps.Enforcer = enforcement.NoOp{}
	}
	if deps.EventLog == nil {
		deps.EventLog = eventlog.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}

	intelStore := intel.NewStore(deps.Repository, deps.Logger, nil)
	baselines := baseline.NewTracker()
	buffer := NewEventBuffer()
	windows := detector.NewWindowStore(opts.Detection.MaxWindow())
	findings := NewFindingStore()
	quarantines := responder.NewQuarantineStore(deps.Repository, deps.Logger)
	orchestrator := responder.NewOrchestrator(
		opts.Response, intelStore, quarantines, deps.Enforcer, deps.Channels, deps.Logger)

	s := &Service{
		opts:           opts,
		source:         deps.Source,
		signatures:     deps.Signatures,
		intel:          intelStore,
		baselines:      baselines,
		buffer:         buffer,
		windows:        windows,
		findings:       findings,
		detectors:      detector.All(windows, opts.Detection),
		scorer:         scorer.New(opts.Scoring, deps.Signatures, intelStore, baselines),
		responder:      orchestrator,
		eventLog:       deps.EventLog,
		logger:         deps.Logger,
		lastBaselineAt: time.Now().UTC(),
		stats:          make(map[string]*cycleStat),
	}
	s.retention = retention.NewManager(
		opts.Retention, buffer, findings, quarantines, baselines,
		&lifecycleNotifier{log: deps.EventLog}, deps.Logger)
	return s
}

// lifecycleNotifier writes informational quarantine-expiry records to
// the event log.
type lifecycleNotifier struct {
	log eventlog.Logger
}

func (n *lifecycleNotifier) QuarantineExpired(ctx context.Context, rec *models.QuarantineRecord) {
	n.log.Append(ctx, LogCategoryLifecycle, rec)
}

// Start loads persisted state and launches the periodic cycles.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	s.running = true
	s.stopChan = make(chan struct{})
	opts := s.opts
	s.mu.Unlock()

	if err := s.intel.Load(ctx); err != nil {
		// LookupFailure taxonomy: degrade to unknown reputation,
		// the refresh cycle retries.
		s.logger.Error("initial intelligence load failed", "error", err)
	}
	if err := s.responder.Quarantines().Load(ctx); err != nil {
		s.logger.Error("quarantine load failed", "error", err)
	}

	s.logger.Info("engine starting",
		"scan_interval", opts.ScanInterval,
		"detection_interval", opts.DetectionInterval,
		"baseline_interval", opts.BaselineInterval,
		"intel_refresh_interval", opts.IntelRefreshInterval,
		"cleanup_interval", opts.CleanupInterval)

	s.launch(ctx, "scan", opts.ScanInterval, s.scanCycle)
	s.launch(ctx, "detection", opts.DetectionInterval, s.detectionCycle)
	s.launch(ctx, "baseline", opts.BaselineInterval, s.baselineCycle)
	s.launch(ctx, "intel_refresh", opts.IntelRefreshInterval, s.intelRefreshCycle)
	s.launch(ctx, "cleanup", opts.CleanupInterval, s.cleanupCycle)

	return nil
}

// Stop halts the periodic cycles. Persisted state (intelligence,
// quarantine records) survives; unresolved in-memory window counters
// are dropped.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("engine not running")
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("engine stopped")
	return nil
}

// launch starts one periodic task. A panic or error inside one cycle
// never aborts the others.
func (s *Service) launch(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	s.statsMu.Lock()
	s.stats[name] = &cycleStat{}
	s.statsMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.runCycle(ctx, name, fn)
			}
		}
	}()
}

func (s *Service) runCycle(ctx context.Context, name string, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.recordCycleError(name, fmt.Errorf("panic: %v", r))
			s.logger.Error("cycle panicked", "cycle", name, "panic", r)
		}
	}()

	start := time.Now()
	fn(ctx)
	metrics.CycleDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	s.statsMu.Lock()
	st := s.stats[name]
	st.LastRun = time.Now().UTC()
	st.Runs++
	s.statsMu.Unlock()
}

func (s *Service) recordCycleError(name string, err error) {
	metrics.CycleErrors.WithLabelValues(name).Inc()
	s.statsMu.Lock()
	if st, ok := s.stats[name]; ok {
		st.Errors++
		st.LastError = err.Error()
	}
	s.statsMu.Unlock()
}

// scanCycle pulls a batch from the event source and scores each event.
func (s *Service) scanCycle(ctx context.Context) {
	batch, err := s.source.NextBatch(ctx)
	if err != nil {
		s.recordCycleError("scan", err)
		s.logger.Error("event batch fetch failed", "error", err)
		return
	}

	for i := range batch {
		s.Ingest(ctx, batch[i])
	}
}

// Ingest validates, records and scores one event. Exposed so tests
// and push adapters can drive the pipeline directly.
func (s *Service) Ingest(ctx context.Context, ev models.SecurityEvent) {
	if err := validateEvent(&ev); err != nil {
		// InputError taxonomy: skip and log, never crash the cycle.
		metrics.EventsSkipped.Inc()
		s.logger.Warn("malformed event skipped", "error", err)
		return
	}
	if ev.ID == "" {
		ev.ID = models.NewID()
	}

	s.buffer.Append(ev)
	s.windows.Add(&ev)
	s.intel.Touch(ev.SourceIdentity, ev.Timestamp)
	s.eventLog.Append(ctx, LogCategoryEvents, ev)

	s.mu.RLock()
	sc := s.scorer
	s.mu.RUnlock()

	start := time.Now()
	result := sc.Score(&ev)
	metrics.ScoreDuration.Observe(time.Since(start).Seconds())
	metrics.EventsScored.Inc()

	if result.IsThreshold {
		finding := &models.ThreatFinding{
			ID:            models.NewID(),
			SourceEventID: ev.ID,
			Entity:        ev.SourceIdentity,
			Timestamp:     ev.Timestamp,
			ThreatTypes:   result.ThreatTypes,
			Severity:      models.SeverityForScore(result.Score),
			Score:         result.Score,
			Confidence:    result.Confidence,
			Indicators:    result.Indicators,
			Status:        models.FindingActive,
		}
		s.raiseFinding(ctx, "scorer", finding)
	}

	anomaly := sc.ScoreAnomaly(&ev)
	if anomaly.IsAnomaly {
		s.recordAnomaly(ctx, &models.AnomalyFinding{
			ID:            models.NewID(),
			SourceEventID: ev.ID,
			Entity:        ev.SourceIdentity,
			Timestamp:     ev.Timestamp,
			Score:         anomaly.Score,
			Indicators:    anomaly.Indicators,
		})
	}
}

func (s *Service) raiseFinding(ctx context.Context, detectorName string, finding *models.ThreatFinding) {
	s.findings.Add(finding)
	metrics.FindingsRaised.WithLabelValues(detectorName).Inc()

	s.mu.RLock()
	orch := s.responder
	s.mu.RUnlock()
	orch.Respond(ctx, finding)

	s.eventLog.Append(ctx, LogCategoryFindings, finding)
	metrics.ActiveFindings.Set(float64(s.findings.Unresolved()))

	s.logger.Info("threat finding raised",
		"id", finding.ID,
		"entity", finding.Entity,
		"types", finding.ThreatTypes,
		"severity", finding.Severity,
		"score", finding.Score,
		"status", finding.Status)
}

func (s *Service) recordAnomaly(ctx context.Context, a *models.AnomalyFinding) {
	s.anomaliesMu.Lock()
	s.anomalies = append(s.anomalies, a)
	if len(s.anomalies) > maxStoredAnomalies {
		s.anomalies = s.anomalies[len(s.anomalies)-maxStoredAnomalies:]
	}
	s.anomaliesMu.Unlock()

	metrics.AnomaliesRaised.Inc()
	s.eventLog.Append(ctx, LogCategoryAnomalies, a)
	s.logger.Info("anomaly recorded", "entity", a.Entity, "score", a.Score)
}

// detectionCycle evaluates the window aggregators.
func (s *Service) detectionCycle(ctx context.Context) {
	now := time.Now().UTC()
	s.windows.Evict(now)

	s.mu.RLock()
	detectors := s.detectors
	s.mu.RUnlock()

	for _, d := range detectors {
		for _, finding := range d.Evaluate(now) {
			s.raiseFinding(ctx, d.Name(), finding)
		}
	}
}

// baselineCycle folds the latest window of events into the behavioral
// baselines.
func (s *Service) baselineCycle(ctx context.Context) {
	now := time.Now().UTC()

	s.mu.RLock()
	interval := s.opts.BaselineInterval
	s.mu.RUnlock()

	events := s.buffer.Since(s.lastBaselineAt)
	s.lastBaselineAt = now
	if len(events) == 0 {
		return
	}
	s.baselines.UpdateBatch(events, interval)
}

// intelRefreshCycle reloads indicators and retries failed writes.
func (s *Service) intelRefreshCycle(ctx context.Context) {
	if err := s.intel.Refresh(ctx); err != nil {
		s.recordCycleError("intel_refresh", err)
		s.logger.Error("intelligence refresh failed", "error", err)
	}
}

// cleanupCycle runs the retention sweep.
func (s *Service) cleanupCycle(ctx context.Context) {
	now := time.Now().UTC()
	s.retention.Sweep(ctx, now)
	metrics.ActiveFindings.Set(float64(s.findings.Unresolved()))
	metrics.QuarantinedEntities.Set(float64(len(s.responder.Quarantines().Active(now))))
}

func validateEvent(ev *models.SecurityEvent) error {
	if ev.SourceIdentity == "" {
		return fmt.Errorf("event missing source identity")
	}
	if !ev.Category.Valid() {
		return fmt.Errorf("unknown event category %q", ev.Category)
	}
	if ev.Timestamp.IsZero() {
		return fmt.Errorf("event missing timestamp")
	}
	return nil
}
