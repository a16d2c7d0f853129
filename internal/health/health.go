package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reelfetch/backend/internal/admission"
	"github.com/reelfetch/backend/internal/credentials"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// HealthResponse is the liveness and readiness body.
type HealthResponse struct {
	Status     Status                     `json:"status"`
	Timestamp  string                     `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// Report is the service report served at /api/health. Cookie and disk
// state are read fresh on every call.
type Report struct {
	Status                           string             `json:"status"`
	FFmpegAvailable                  bool               `json:"ffmpegAvailable"`
	ExtractorAvailable               bool               `json:"extractorAvailable"`
	HasCookies                       bool               `json:"hasCookies"`
	CookieStatus                     credentials.Health `json:"cookieStatus"`
	DiskSpace                        admission.Result   `json:"diskSpace"`
	MultithreadedDownloaderAvailable bool               `json:"multithreadedDownloaderAvailable"`
	ActiveDownloads                  int                `json:"activeDownloads"`
	Timestamp                        string             `json:"timestamp"`
	Version                          string             `json:"version,omitempty"`
}

// CredentialChecker evaluates the cookie file.
type CredentialChecker interface {
	Check() credentials.Health
}

// DiskChecker reads free space on the downloads volume.
type DiskChecker interface {
	Check(ctx context.Context, estimatedBytes uint64) admission.Result
}

// Checker performs health checks on various components
type Checker struct {
	components map[string]func(ctx context.Context) error

	extractorAvailable func() bool
	ffmpegAvailable    func() bool
	accelerator        bool
	creds              CredentialChecker
	disk               DiskChecker
	active             func() int

	version      string
	checkTimeout time.Duration
}

// CheckerConfig holds configuration for the health checker. Optional
// dependencies left nil are not part of the readiness check.
type CheckerConfig struct {
	Redis        *redis.Client
	DBCheck      func(ctx context.Context) error
	StorageCheck func(ctx context.Context) error

	ExtractorAvailable func() bool
	FFmpegAvailable    func() bool
	Accelerator        bool
	Credentials        CredentialChecker
	Disk               DiskChecker
	ActiveDownloads    func() int

	Version string
	Timeout time.Duration
}

// NewChecker creates a new health checker
func NewChecker(cfg *CheckerConfig) *Checker {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	c := &Checker{
		components:         make(map[string]func(ctx context.Context) error),
		extractorAvailable: cfg.ExtractorAvailable,
		ffmpegAvailable:    cfg.FFmpegAvailable,
		accelerator:        cfg.Accelerator,
		creds:              cfg.Credentials,
		disk:               cfg.Disk,
		active:             cfg.ActiveDownloads,
		version:            cfg.Version,
		checkTimeout:       timeout,
	}
	if cfg.Redis != nil {
		client := cfg.Redis
		c.components["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	if cfg.DBCheck != nil {
		c.components["database"] = cfg.DBCheck
	}
	if cfg.StorageCheck != nil {
		c.components["storage"] = cfg.StorageCheck
	}
	return c
}

// Components returns the names of the configured dependencies.
func (c *Checker) Components() []string {
	names := make([]string, 0, len(c.components))
	for n := range c.components {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CheckComponent runs one named dependency check.
func (c *Checker) CheckComponent(ctx context.Context, name string) ComponentHealth {
	check, ok := c.components[name]
	if !ok {
		return ComponentHealth{Status: StatusUnhealthy, Message: name + " not configured"}
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	if err := check(ctx); err != nil {
		return ComponentHealth{
			Status:   StatusUnhealthy,
			Message:  name + " check failed",
			Duration: time.Since(start).String(),
		}
	}
	return ComponentHealth{
		Status:   StatusHealthy,
		Duration: time.Since(start).String(),
	}
}

// Check performs a basic health check (liveness)
func (c *Checker) Check(ctx context.Context) *HealthResponse {
	return &HealthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   c.version,
	}
}

// DeepCheck performs a comprehensive health check (readiness). The disk
// is always checked; other dependencies only when configured.
func (c *Checker) DeepCheck(ctx context.Context) *HealthResponse {
	response := &HealthResponse{
		Status:     StatusHealthy,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Version:    c.version,
		Components: make(map[string]ComponentHealth),
	}

	// Run checks in parallel
	var wg sync.WaitGroup
	var mu sync.Mutex

	for name := range c.components {
		wg.Add(1)
		go func(n string) {
			defer wg.Done()
			result := c.CheckComponent(ctx, n)
			mu.Lock()
			response.Components[n] = result
			mu.Unlock()
		}(name)
	}
	if c.disk != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := c.checkDisk(ctx)
			mu.Lock()
			response.Components["disk"] = result
			mu.Unlock()
		}()
	}

	wg.Wait()

	// Determine overall status
	for _, comp := range response.Components {
		if comp.Status == StatusUnhealthy {
			response.Status = StatusUnhealthy
			break
		} else if comp.Status == StatusDegraded && response.Status == StatusHealthy {
			response.Status = StatusDegraded
		}
	}

	return response
}

// checkDisk reports low space as degraded: running jobs continue, new
// ones are refused at admission.
func (c *Checker) checkDisk(ctx context.Context) ComponentHealth {
	start := time.Now()
	res := c.disk.Check(ctx, 0)
	status := StatusHealthy
	if !res.Sufficient {
		status = StatusDegraded
	}
	return ComponentHealth{Status: status, Message: res.Message, Duration: time.Since(start).String()}
}

// Report builds the service report.
func (c *Checker) Report(ctx context.Context) *Report {
	r := &Report{
		Status:                           "Server is running!",
		MultithreadedDownloaderAvailable: c.accelerator,
		Timestamp:                        time.Now().UTC().Format(time.RFC3339),
		Version:                          c.version,
	}
	if c.extractorAvailable != nil {
		r.ExtractorAvailable = c.extractorAvailable()
	}
	if c.ffmpegAvailable != nil {
		r.FFmpegAvailable = c.ffmpegAvailable()
	}
	if c.creds != nil {
		r.CookieStatus = c.creds.Check()
		r.HasCookies = r.CookieStatus.Valid
	}
	if c.disk != nil {
		r.DiskSpace = c.disk.Check(ctx, 0)
	}
	if c.active != nil {
		r.ActiveDownloads = c.active()
	}
	return r
}

// Handler provides HTTP handlers for health endpoints
type Handler struct {
	checker *Checker
}

// NewHandler creates a new health handler
func NewHandler(checker *Checker) *Handler {
	return &Handler{checker: checker}
}

// ReportHandler serves the service report.
func (h *Handler) ReportHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(h.checker.Report(r.Context()))
}

// LivenessHandler handles liveness probe requests
func (h *Handler) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	response := h.checker.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if response.Status != StatusHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(response)
}

// ReadinessHandler handles readiness probe requests. Degraded still
// accepts traffic.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	response := h.checker.DeepCheck(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if response.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(response)
}

// HealthHandler serves the service report, or the readiness check when
// ?deep=true.
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("deep") == "true" {
		h.ReadinessHandler(w, r)
		return
	}
	h.ReportHandler(w, r)
}
