package retrieval

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testID = "3f2a9c1e-0000-4000-8000-000000000001"

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLocate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, testID+"_video_temp.mp4", "partial")
	writeFile(t, dir, testID+"_Clip.mp4.part", "partial")
	want := writeFile(t, dir, testID+"_Clip.mp4", "data")
	writeFile(t, dir, "other_Clip.mp4", "data")

	s := NewStore(dir, time.Minute, nil)
	got, err := s.Locate(testID)
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if got != want {
		t.Errorf("Locate() = %q, want %q", got, want)
	}

	tests := []string{"", "missing", "../etc", "a/b"}
	for _, id := range tests {
		if _, err := s.Locate(id); err != ErrNotFound {
			t.Errorf("Locate(%q) error = %v, want ErrNotFound", id, err)
		}
	}
}

func TestServe_TwiceWithinGraceThenGone(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, testID+"_My_Clip.mp4", "video-bytes")

	s := NewStore(dir, 100*time.Millisecond, nil)
	defer s.Close()

	get := func(query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/download-file/"+testID+query, nil)
		rec := httptest.NewRecorder()
		if err := s.Serve(rec, req, testID, req.URL.Query().Get("filename")); err != nil {
			rec.Code = http.StatusNotFound
		}
		return rec
	}

	first := get("")
	if first.Code != http.StatusOK || first.Body.String() != "video-bytes" {
		t.Fatalf("first response = %d %q", first.Code, first.Body.String())
	}
	if cd := first.Header().Get("Content-Disposition"); cd != `attachment; filename="My_Clip.mp4"` {
		t.Errorf("Content-Disposition = %q", cd)
	}

	second := get("?filename=custom.mp4")
	if second.Code != http.StatusOK {
		t.Fatalf("second response = %d", second.Code)
	}
	if cd := second.Header().Get("Content-Disposition"); !strings.Contains(cd, `filename="custom.mp4"`) {
		t.Errorf("Content-Disposition = %q", cd)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("artifact was not deleted after the grace period")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := s.Serve(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), testID, ""); err == nil {
		t.Error("Serve() after deletion should fail")
	}
}

func TestServe_Range(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, testID+"_clip.mp4", "0123456789")
	s := NewStore(dir, time.Hour, nil)
	defer s.Close()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Range", "bytes=2-5")
	rec := httptest.NewRecorder()
	if err := s.Serve(rec, req, testID, ""); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusPartialContent || rec.Body.String() != "2345" {
		t.Errorf("range response = %d %q", rec.Code, rec.Body.String())
	}
}

func TestContentDisposition(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"clip.mp4", `attachment; filename="clip.mp4"`},
		{`a"b.mp4`, `attachment; filename="a_b.mp4"`},
		{"café.mp4", `attachment; filename="caf_.mp4"; filename*=UTF-8''caf%C3%A9.mp4`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContentDisposition(tt.name); got != tt.want {
				t.Errorf("ContentDisposition() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCleanName(t *testing.T) {
	tests := map[string]string{
		"":                "",
		"clip.mp4":        "clip.mp4",
		"../../etc/passwd": "passwd",
		`..\..\win.ini`:   "win.ini",
		"..":              "",
	}
	for in, want := range tests {
		if got := cleanName(in); got != want {
			t.Errorf("cleanName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRemoveQuietly_Idempotent(t *testing.T) {
	path := writeFile(t, t.TempDir(), "x_video_temp.mp4", "x")
	if err := RemoveQuietly(path); err != nil {
		t.Fatalf("first RemoveQuietly() error = %v", err)
	}
	if err := RemoveQuietly(path); err != nil {
		t.Fatalf("second RemoveQuietly() error = %v", err)
	}
	if err := RemoveQuietly(""); err != nil {
		t.Fatalf("RemoveQuietly(\"\") error = %v", err)
	}
}

func TestSweeper(t *testing.T) {
	dir := t.TempDir()
	old := writeFile(t, dir, "a_old.mp4", "x")
	fresh := writeFile(t, dir, "b_fresh.mp4", "x")
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}

	s := NewSweeper(dir, time.Hour, time.Minute, nil)
	var reported int
	s.OnSweep = func(n int) { reported = n }

	n, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("old file should be deleted")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh file should be kept")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Run(ctx)
	if reported != 0 {
		t.Errorf("OnSweep reported %d on second pass, want 0", reported)
	}
}

func TestSweeper_MissingDir(t *testing.T) {
	s := NewSweeper(filepath.Join(t.TempDir(), "nope"), time.Hour, time.Minute, nil)
	if n, err := s.Sweep(context.Background()); n != 0 || err != nil {
		t.Errorf("Sweep() = %d, %v", n, err)
	}
}
