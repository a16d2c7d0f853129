package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(m *Metrics) string {
	w := httptest.NewRecorder()
	m.Handler()(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return w.Body.String()
}

func TestMetrics_RecordRequest(t *testing.T) {
	m := New()

	m.RecordRequest("GET", "/api/health", 200, 100*time.Millisecond)
	m.RecordRequest("GET", "/api/health", 200, 150*time.Millisecond)
	m.RecordRequest("GET", "/api/health", 500, 50*time.Millisecond)

	body := scrape(m)

	if !strings.Contains(body, "reelfetch_http_requests_total") {
		t.Error("expected reelfetch_http_requests_total metric")
	}
	if !strings.Contains(body, "reelfetch_http_request_duration_seconds") {
		t.Error("expected reelfetch_http_request_duration_seconds metric")
	}
}

func TestMetrics_ProgressSubscribers(t *testing.T) {
	m := New()

	m.IncProgressSubscribers()
	m.IncProgressSubscribers()
	m.DecProgressSubscribers()

	body := scrape(m)

	if !strings.Contains(body, "reelfetch_progress_subscribers_active 1") {
		t.Errorf("expected reelfetch_progress_subscribers_active 1, got:\n%s", body)
	}
}

func TestMetrics_ActiveDownloads(t *testing.T) {
	m := New()

	m.TrackActiveDownloads(func() int { return 5 })

	body := scrape(m)

	if !strings.Contains(body, "reelfetch_downloads_active 5") {
		t.Errorf("expected reelfetch_downloads_active 5, got:\n%s", body)
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/download-file/123e4567-e89b-12d3-a456-426614174000", "/api/download-file/{id}"},
		{"/api/ws/download-progress/550e8400-e29b-41d4-a716-446655440000", "/api/ws/download-progress/{id}"},
		{"/api/history/42", "/api/history/{id}"},
		{"/api/youtube/video-info", "/api/youtube/video-info"},
		{"/", "/"},
	}
	for _, tt := range tests {
		if got := normalizeEndpoint(tt.path); got != tt.want {
			t.Errorf("normalizeEndpoint(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}

	m := New()
	m.RecordRequest("GET", "/api/download-status/123e4567-e89b-12d3-a456-426614174000", 200, 10*time.Millisecond)
	m.RecordRequest("GET", "/api/download-status/550e8400-e29b-41d4-a716-446655440000", 200, 10*time.Millisecond)
	want := `reelfetch_http_requests_total{endpoint="/api/download-status/{id}",method="GET"} 2`
	if body := scrape(m); !strings.Contains(body, want) || !strings.Contains(body, "reelfetch_uptime_seconds") {
		t.Errorf("expected %s and uptime, got:\n%s", want, body)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	m := New()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	wrappedHandler := MetricsMiddleware(m)(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/detect-platform", nil)
	w := httptest.NewRecorder()

	wrappedHandler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	body := scrape(m)

	if !strings.Contains(body, "/api/detect-platform") {
		t.Errorf("expected endpoint /api/detect-platform in metrics, got:\n%s", body)
	}
}

func TestMetrics_CustomCounter(t *testing.T) {
	m := New()

	m.IncCounter("jobs_completed")
	m.IncCounter("jobs_completed")
	m.IncCounter("jobs_failed_timeout")

	body := scrape(m)

	if !strings.Contains(body, `reelfetch_counter{name="jobs_completed"} 2`) {
		t.Errorf("expected jobs_completed counter = 2, got:\n%s", body)
	}
}

func TestMetrics_ErrorsByStatusClass(t *testing.T) {
	m := New()

	m.RecordRequest("POST", "/api/download-start", 400, time.Millisecond)
	m.RecordRequest("POST", "/api/download-start", 422, time.Millisecond)
	m.RecordRequest("POST", "/api/download-start", 507, time.Millisecond)
	m.RecordRequest("POST", "/api/download-start", 202, time.Millisecond)

	body := scrape(m)

	for _, want := range []string{
		`reelfetch_http_requests_total{endpoint="/api/download-start",method="POST"} 4`,
		`reelfetch_http_errors_total{endpoint="/api/download-start",method="POST",status_class="4xx"} 2`,
		`reelfetch_http_errors_total{endpoint="/api/download-start",method="POST",status_class="5xx"} 1`,
		`reelfetch_http_request_duration_seconds_bucket{endpoint="/api/download-start",method="POST",le="+Inf"} 4`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %s, got:\n%s", want, body)
		}
	}
}

func TestMetrics_GaugeFunc(t *testing.T) {
	m := New()

	n := 1.0
	m.GaugeFunc("runner_in_flight", func() float64 { return n })
	n = 4

	if body := scrape(m); !strings.Contains(body, `reelfetch_gauge{name="runner_in_flight"} 4`) {
		t.Errorf("gauge func not read at scrape time, got:\n%s", body)
	}
}

func TestMetrics_ObserveDuration(t *testing.T) {
	m := New()

	m.ObserveDuration("completed", 3*time.Second)
	m.ObserveDuration("completed", 45*time.Second)
	m.ObserveDuration("failed_timeout", 5*time.Minute)

	body := scrape(m)

	for _, want := range []string{
		`reelfetch_job_duration_seconds_bucket{outcome="completed",le="5"} 1`,
		`reelfetch_job_duration_seconds_bucket{outcome="completed",le="60"} 2`,
		`reelfetch_job_duration_seconds_count{outcome="failed_timeout"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %s, got:\n%s", want, body)
		}
	}
}

func TestMetricsMiddleware_Unwrap(t *testing.T) {
	m := New()

	var flushed bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flushed = http.NewResponseController(w).Flush() == nil
	})

	w := httptest.NewRecorder()
	MetricsMiddleware(m)(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/download-progress/x", nil))

	if !flushed {
		t.Error("Flush through the metrics wrapper failed")
	}
}
