package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/reelfetch/backend/internal/errors"
	"github.com/reelfetch/backend/internal/health"
	"github.com/reelfetch/backend/internal/metrics"
	"github.com/reelfetch/backend/internal/middleware"
	"github.com/reelfetch/backend/internal/platform"
	"github.com/reelfetch/backend/internal/progress"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// Deps are the services the router dispatches to. History, Health,
// Metrics and Limiter are optional.
type Deps struct {
	Platforms *platform.Router
	Resolver  Resolver
	Downloads Downloader
	Files     FileServer
	Progress  *progress.Handler
	History   HistoryReader
	Health    *health.Handler
	Metrics   *metrics.Metrics
	Limiter   *middleware.RateLimiter

	// PublicBaseURL prefixes the progress and file URLs handed to clients.
	PublicBaseURL string
}

type Router struct {
	mux       *http.ServeMux
	media     *MediaHandlers
	downloads *DownloadHandlers
	history   *HistoryHandlers
	progress  *progress.Handler
	health    *health.Handler
	metrics   *metrics.Metrics
	limiter   *middleware.RateLimiter
}

func NewRouter(d Deps) *Router {
	r := &Router{
		mux:       http.NewServeMux(),
		media:     NewMediaHandlers(d.Platforms, d.Resolver),
		downloads: NewDownloadHandlers(d.Downloads, d.Files, d.PublicBaseURL),
		progress:  d.Progress,
		health:    d.Health,
		metrics:   d.Metrics,
		limiter:   d.Limiter,
	}
	if d.History != nil {
		r.history = NewHistoryHandlers(d.History)
	}
	r.setupRoutes()
	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) setupRoutes() {
	// Health check
	if r.health != nil {
		r.mux.HandleFunc("GET /api/health", r.health.HealthHandler)
		r.mux.HandleFunc("GET /health", r.health.HealthHandler)
		r.mux.HandleFunc("GET /health/live", r.health.LivenessHandler)
		r.mux.HandleFunc("GET /health/ready", r.health.ReadinessHandler)
	} else {
		r.mux.HandleFunc("GET /health", healthHandler)
	}
	if r.metrics != nil {
		r.mux.HandleFunc("GET /metrics", r.metrics.Handler())
	}

	// Metadata (rate limited, each call spawns the extractor)
	r.mux.HandleFunc("POST /api/detect-platform", apperrors.HandleFunc(r.media.DetectPlatform))
	r.mux.Handle("POST /api/metadata", r.limit(r.media.Info))
	r.mux.Handle("POST /api/video-info", r.limit(r.media.Info))
	r.mux.Handle("POST /api/video-metadata", r.limit(r.media.Metadata))
	r.mux.Handle("POST /api/video-formats", r.limit(r.media.Formats))
	r.mux.Handle("POST /api/{platform}/video-info", r.limit(r.media.PlatformInfo))

	// Downloads
	r.mux.Handle("POST /api/download-start", r.limit(r.downloads.Start))
	r.mux.Handle("POST /api/{platform}/download-start", r.limit(r.downloads.Start))
	r.mux.HandleFunc("GET /api/download-status/{id}", apperrors.HandleFunc(r.downloads.Status))
	r.mux.HandleFunc("GET /api/download-file/{id}", apperrors.HandleFunc(r.downloads.File))
	if r.progress != nil {
		r.mux.HandleFunc("GET /api/download-progress/{id}", r.progress.ServeSSE)
		r.mux.HandleFunc("GET /api/ws/download-progress/{id}", r.progress.ServeWS)
	}

	// History
	if r.history != nil {
		r.mux.HandleFunc("GET /api/history", apperrors.HandleFunc(r.history.Recent))
	}
}

// limit wraps h with the per-client rate limiter when one is configured.
func (r *Router) limit(h apperrors.Handler) http.Handler {
	var next http.Handler = h
	if r.limiter != nil {
		next = r.limiter.Middleware(next)
	}
	return next
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

// decodeBody reads a JSON body into dst. An empty body is allowed and
// leaves dst untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.BadRequest("Request body too large").WithStatus(http.StatusRequestEntityTooLarge)
		}
		return apperrors.BadRequest("Invalid request body")
	}
	return nil
}

// platformParam reads the {platform} path segment. An absent segment
// means any platform.
func platformParam(r *http.Request) (platform.Platform, error) {
	raw := r.PathValue("platform")
	if raw == "" {
		return "", nil
	}
	p, ok := platform.Parse(raw)
	if !ok {
		return "", apperrors.NotFound("platform")
	}
	return p, nil
}

// flexString accepts a JSON string or number. Clients send format ids and
// bitrates either way.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(v))
		return nil
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return err
	}
	*f = flexString(s)
	return nil
}

func (f flexString) String() string { return string(f) }

func (f flexString) Int() (int, error) {
	if f == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(string(f), 64)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}
