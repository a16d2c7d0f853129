package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

func TestWriteError_InsufficientStorageBody(t *testing.T) {
	rec := httptest.NewRecorder()
	err := InsufficientStorage("Low disk space: 0.50GB free. Need at least 1.49GB.", 0.5)

	WriteError(rec, "req-1", err)

	if rec.Code != http.StatusInsufficientStorage {
		t.Fatalf("status = %d, want 507", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "Insufficient disk space" {
		t.Errorf("error = %v", body["error"])
	}
	if body["message"] != "Low disk space: 0.50GB free. Need at least 1.49GB." {
		t.Errorf("message = %v", body["message"])
	}
	if body["freeGB"] != 0.5 {
		t.Errorf("freeGB = %v, want 0.5", body["freeGB"])
	}
	if body["request_id"] != "req-1" {
		t.Errorf("request_id = %v", body["request_id"])
	}
	if rec.Header().Get("X-Request-ID") != "req-1" {
		t.Errorf("X-Request-ID header = %q", rec.Header().Get("X-Request-ID"))
	}
}

func TestWriteError_WrappedAndUnknown(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "wrapped app error",
			err:        fmt.Errorf("resolve: %w", ValidationError("Invalid URL")),
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeValidationError,
		},
		{
			name:       "plain error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   CodeInternalError,
		},
		{
			name:       "platform status override",
			err:        ExtractionFailed("This is a private Instagram post. Login cookies required.").WithStatus(http.StatusForbidden),
			wantStatus: http.StatusForbidden,
			wantCode:   CodeExtractionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, "", tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body map[string]any
			json.Unmarshal(rec.Body.Bytes(), &body)
			if body["code"] != tt.wantCode {
				t.Errorf("code = %v, want %s", body["code"], tt.wantCode)
			}
			if StatusOf(tt.err) != tt.wantStatus {
				t.Errorf("StatusOf = %d, want %d", StatusOf(tt.err), tt.wantStatus)
			}
		})
	}
}

func TestHandleFunc(t *testing.T) {
	h := HandleFunc(func(w http.ResponseWriter, r *http.Request) error {
		return DownloadNotFound()
	})

	req := httptest.NewRequest(http.MethodGet, "/api/download-status/x", nil)
	req = req.WithContext(WithRequestID(req.Context(), "abc"))
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if rec.Header().Get(RequestIDHeader) != "abc" {
		t.Errorf("request id header = %q, want abc", rec.Header().Get(RequestIDHeader))
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"storage error", StorageError("put failed"), true},
		{"timeout", ExternalTimeout("minio"), true},
		{"extraction", ExtractionFailed("private"), false},
		{"disk full", InsufficientStorage("low", 0.1), false},
		{"validation", ValidationError("bad"), false},
		{"plain", errors.New("x"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetry(t *testing.T) {
	cfg := &RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, BackoffFactor: 2}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		attempts := 0
		err := Retry(context.Background(), cfg, func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.New("connection reset by peer")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Retry() = %v", err)
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("stops on permanent failure", func(t *testing.T) {
		attempts := 0
		err := Retry(context.Background(), cfg, func(ctx context.Context) error {
			attempts++
			return errors.New("access denied")
		})
		if err == nil {
			t.Fatal("expected error")
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})

	t.Run("reports each retry", func(t *testing.T) {
		var seen []int
		cfg := *cfg
		cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
			seen = append(seen, attempt)
		}
		err := Retry(context.Background(), &cfg, func(ctx context.Context) error {
			return errors.New("SlowDown: please reduce your request rate")
		})
		if err == nil {
			t.Fatal("expected error after exhausting retries")
		}
		if len(seen) != 3 || seen[0] != 1 || seen[2] != 3 {
			t.Errorf("OnRetry attempts = %v, want [1 2 3]", seen)
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := Retry(ctx, cfg, func(ctx context.Context) error { return nil })
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Retry() = %v, want context.Canceled", err)
		}
	})
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"reset", errors.New("read tcp: connection reset by peer"), true},
		{"throttled", errors.New("SlowDown: Please reduce your request rate."), true},
		{"bad gateway", errors.New("unexpected status 502"), true},
		{"access denied", errors.New("AccessDenied: Access Denied. (status 503)"), false},
		{"missing bucket", errors.New("NoSuchBucket: The specified bucket does not exist"), false},
		{"artifact gone", fmt.Errorf("open artifact: %w", os.ErrNotExist), false},
		{"canceled", context.Canceled, false},
		{"app storage error", StorageError("put failed"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableError(tt.err); got != tt.want {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestAcceptRequestID(t *testing.T) {
	tests := []struct {
		in   string
		keep bool
	}{
		{"abc-123", true},
		{"trace_01.a", true},
		{"", false},
		{"bad id", false},
		{"line\nbreak", false},
		{strings.Repeat("a", maxRequestIDLen+1), false},
	}
	for _, tt := range tests {
		got := AcceptRequestID(tt.in)
		if (got == tt.in) != tt.keep {
			t.Errorf("AcceptRequestID(%q) = %q, keep = %v", tt.in, got, tt.keep)
		}
		if got == "" {
			t.Errorf("AcceptRequestID(%q) returned empty", tt.in)
		}
	}
}

func TestCarryRequestID(t *testing.T) {
	origin := WithRequestID(context.Background(), "req-1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := CarryRequestID(ctx, origin)
	if GetRequestID(got) != "req-1" {
		t.Errorf("GetRequestID() = %q, want req-1", GetRequestID(got))
	}
	cancel()
	if got.Err() == nil {
		t.Error("carried context should follow ctx's cancellation")
	}
	if CarryRequestID(ctx, context.Background()) != ctx {
		t.Error("no request ID should leave ctx unchanged")
	}
}

func TestHandler_ClientGone(t *testing.T) {
	h := Handler(func(w http.ResponseWriter, r *http.Request) error {
		return fmt.Errorf("stream: %w", context.Canceled)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/video-info", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want nothing written", rec.Body.String())
	}
}

func TestCalculateRetryBackoff(t *testing.T) {
	cfg := &RetryConfig{InitialBackoff: time.Second, MaxBackoff: 4 * time.Second, BackoffFactor: 2}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}
	for attempt, w := range want {
		if got := calculateRetryBackoff(attempt, cfg); got != w {
			t.Errorf("attempt %d: backoff = %v, want %v", attempt, got, w)
		}
	}
}
