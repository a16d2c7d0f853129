package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/reelfetch/backend/internal/admission"
	"github.com/reelfetch/backend/internal/credentials"
)

type fakeCreds credentials.Health

func (f fakeCreds) Check() credentials.Health { return credentials.Health(f) }

type fakeDisk admission.Result

func (f fakeDisk) Check(context.Context, uint64) admission.Result { return admission.Result(f) }

func TestChecker_BasicHealth(t *testing.T) {
	checker := NewChecker(&CheckerConfig{
		Version: "1.0.0",
		Timeout: 5 * time.Second,
	})

	response := checker.Check(context.Background())

	if response.Status != StatusHealthy {
		t.Errorf("expected status healthy, got %s", response.Status)
	}
	if response.Version != "1.0.0" {
		t.Errorf("expected version 1.0.0, got %s", response.Version)
	}
}

func TestChecker_DeepCheck_OnlyConfiguredComponents(t *testing.T) {
	checker := NewChecker(&CheckerConfig{
		StorageCheck: func(ctx context.Context) error {
			return nil
		},
		Version: "1.0.0",
		Timeout: 5 * time.Second,
	})

	response := checker.DeepCheck(context.Background())

	if response.Status != StatusHealthy {
		t.Errorf("expected status healthy, got %s", response.Status)
	}
	if len(response.Components) != 1 {
		t.Errorf("expected only storage, got %v", response.Components)
	}
	if _, ok := response.Components["redis"]; ok {
		t.Error("unconfigured redis should be omitted")
	}
	if response.Components["storage"].Status != StatusHealthy {
		t.Errorf("expected storage component healthy, got %s", response.Components["storage"].Status)
	}
}

func TestChecker_DeepCheck_Statuses(t *testing.T) {
	tests := []struct {
		name    string
		storage error
		db      error
		disk    bool
		want    Status
	}{
		{"all healthy", nil, nil, true, StatusHealthy},
		{"storage down", errors.New("storage connection failed"), nil, true, StatusUnhealthy},
		{"db down", nil, errors.New("refused"), true, StatusUnhealthy},
		{"low disk", nil, nil, false, StatusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storageErr, dbErr := tt.storage, tt.db
			checker := NewChecker(&CheckerConfig{
				StorageCheck: func(ctx context.Context) error { return storageErr },
				DBCheck:      func(ctx context.Context) error { return dbErr },
				Disk:         fakeDisk{Sufficient: tt.disk, Message: "disk"},
			})

			response := checker.DeepCheck(context.Background())
			if response.Status != tt.want {
				t.Errorf("Status = %s, want %s (components %v)", response.Status, tt.want, response.Components)
			}
			if len(response.Components) != 3 {
				t.Errorf("Components = %v, want storage, database and disk", response.Components)
			}
		})
	}
}

func TestChecker_CheckComponentTimeout(t *testing.T) {
	checker := NewChecker(&CheckerConfig{
		StorageCheck: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		Timeout: 20 * time.Millisecond,
	})

	got := checker.CheckComponent(context.Background(), "storage")
	if got.Status != StatusUnhealthy {
		t.Errorf("CheckComponent() = %+v, want unhealthy", got)
	}
	if got := checker.CheckComponent(context.Background(), "redis"); got.Status != StatusUnhealthy {
		t.Errorf("unknown component = %+v", got)
	}
	if names := checker.Components(); len(names) != 1 || names[0] != "storage" {
		t.Errorf("Components() = %v", names)
	}
}

func TestChecker_Report(t *testing.T) {
	checker := NewChecker(&CheckerConfig{
		ExtractorAvailable: func() bool { return true },
		FFmpegAvailable:    func() bool { return false },
		Accelerator:        true,
		Credentials:        fakeCreds{Valid: true, Message: "Cookies valid", ExpiringSoon: true},
		Disk:               fakeDisk{FreeGB: 12.5, Sufficient: true, Message: "12.50GB available"},
		ActiveDownloads:    func() int { return 3 },
		Version:            "1.0.0",
	})

	r := checker.Report(context.Background())
	if !r.ExtractorAvailable || r.FFmpegAvailable || !r.MultithreadedDownloaderAvailable {
		t.Errorf("tool flags = %+v", r)
	}
	if !r.HasCookies || !r.CookieStatus.ExpiringSoon {
		t.Errorf("cookie status = %+v", r.CookieStatus)
	}
	if r.DiskSpace.FreeGB != 12.5 || r.ActiveDownloads != 3 {
		t.Errorf("report = %+v", r)
	}
}

func TestHandler_LivenessHandler(t *testing.T) {
	handler := NewHandler(NewChecker(&CheckerConfig{Version: "1.0.0"}))

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	w := httptest.NewRecorder()

	handler.LivenessHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var response HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != StatusHealthy {
		t.Errorf("expected status healthy, got %s", response.Status)
	}
}

func TestHandler_ReadinessHandler(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"healthy", nil, http.StatusOK},
		{"unhealthy", errors.New("storage down"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storageErr := tt.err
			handler := NewHandler(NewChecker(&CheckerConfig{
				StorageCheck: func(ctx context.Context) error { return storageErr },
			}))

			req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
			w := httptest.NewRecorder()
			handler.ReadinessHandler(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestHandler_HealthHandler(t *testing.T) {
	handler := NewHandler(NewChecker(&CheckerConfig{
		StorageCheck:       func(ctx context.Context) error { return nil },
		ExtractorAvailable: func() bool { return true },
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	handler.HealthHandler(w, req)

	var report map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	for _, key := range []string{"status", "ffmpegAvailable", "extractorAvailable", "hasCookies", "cookieStatus", "diskSpace", "multithreadedDownloaderAvailable"} {
		if _, ok := report[key]; !ok {
			t.Errorf("report missing %q", key)
		}
	}

	req = httptest.NewRequest(http.MethodGet, "/health?deep=true", nil)
	w = httptest.NewRecorder()
	handler.HealthHandler(w, req)

	var response HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.Components) == 0 {
		t.Error("deep check should include components")
	}
}
