package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vyrodovalexey/langgate/internal/observability"
	"github.com/vyrodovalexey/langgate/internal/util"
)

// Status values reported in probe bodies.
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusDraining = "draining"
)

// DefaultProbeTimeout bounds a full round of checks.
const DefaultProbeTimeout = 5 * time.Second

// Report is the JSON body of /ready and /health.
type Report struct {
	Status    string                  `json:"status"`
	Timestamp time.Time               `json:"timestamp"`
	Uptime    string                  `json:"uptime,omitempty"`
	Version   string                  `json:"version,omitempty"`
	Checks    map[string]*CheckResult `json:"checks,omitempty"`
}

// CheckResult is one check's outcome.
type CheckResult struct {
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// Handler aggregates checks into probe responses.
type Handler struct {
	mu        sync.RWMutex
	checks    []Check
	logger    observability.Logger
	version   string
	timeout   time.Duration
	startTime time.Time
	now       func() time.Time
	draining  atomic.Bool
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger for failed checks.
func WithLogger(logger observability.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithVersion sets the version reported by /health.
func WithVersion(version string) Option {
	return func(h *Handler) {
		h.version = version
	}
}

// WithTimeout bounds each probe round.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		h.timeout = d
	}
}

// NewHandler creates a health handler.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		logger:  observability.NopLogger(),
		timeout: DefaultProbeTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.startTime = h.now()
	return h
}

// AddCheck registers a check for /ready and /health.
func (h *Handler) AddCheck(check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// SetDraining marks the server as shutting down; /ready then fails so load
// balancers stop sending traffic.
func (h *Handler) SetDraining(draining bool) {
	h.draining.Store(draining)
}

// Run executes every check concurrently.
func (h *Handler) Run(ctx context.Context) *Report {
	h.mu.RLock()
	checks := make([]Check, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	m := getMetrics()
	report := &Report{
		Status:    StatusOK,
		Timestamp: h.now().UTC(),
		Checks:    make(map[string]*CheckResult, len(checks)),
	}

	var (
		wg  sync.WaitGroup
		rmu sync.Mutex
	)
	for _, check := range checks {
		wg.Add(1)
		go func(c Check) {
			defer wg.Done()

			start := time.Now()
			err := c.Check(ctx)
			d := time.Since(start)

			result := &CheckResult{Status: StatusOK, Duration: d.String()}
			if err != nil {
				result.Status = StatusError
				result.Error = err.Error()
				h.logger.Warn("health check failed",
					observability.String("check", c.Name()),
					observability.Error(err),
					observability.Duration("duration", d),
				)
			}
			m.checkStatus.WithLabelValues(c.Name()).Set(boolGauge(err == nil))

			rmu.Lock()
			report.Checks[c.Name()] = result
			if err != nil {
				report.Status = StatusError
			}
			rmu.Unlock()
		}(check)
	}
	wg.Wait()

	if h.draining.Load() && report.Status == StatusOK {
		report.Status = StatusDraining
	}
	m.checkStatus.WithLabelValues("overall").Set(boolGauge(report.Status == StatusOK))
	return report
}

// Live answers liveness probes.
func (h *Handler) Live(w http.ResponseWriter, _ *http.Request) {
	getMetrics().checksTotal.WithLabelValues("liveness").Inc()
	h.write(w, http.StatusOK, map[string]interface{}{
		"status":    StatusOK,
		"timestamp": h.now().UTC(),
	})
}

// Ready answers readiness probes.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	getMetrics().checksTotal.WithLabelValues("readiness").Inc()
	report := h.Run(r.Context())
	h.write(w, statusCode(report), report)
}

// Health answers the detailed health endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	getMetrics().checksTotal.WithLabelValues("health").Inc()
	report := h.Run(r.Context())
	report.Uptime = h.now().Sub(h.startTime).Round(time.Second).String()
	report.Version = h.version
	h.write(w, statusCode(report), report)
}

// Register mounts the probes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /live", h.Live)
	mux.HandleFunc("GET /ready", h.Ready)
	mux.HandleFunc("GET /health", h.Health)
}

func (h *Handler) write(w http.ResponseWriter, status int, body interface{}) {
	if err := util.WriteJSON(w, status, body); err != nil {
		h.logger.Error("failed to write health response", observability.Error(err))
	}
}

func statusCode(r *Report) int {
	if r.Status != StatusOK {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}
