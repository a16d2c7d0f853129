package extractor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// writeScript creates an executable shell script standing in for yt-dlp.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "yt-dlp")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write fake yt-dlp: %v", err)
	}
	return path
}

func TestClient_Metadata(t *testing.T) {
	script := writeScript(t, `cat <<'EOF'
{"id":"abc","title":"Never Gonna","uploader":"Rick","duration":212,"view_count":42,
 "formats":[{"format_id":"22","ext":"mp4","vcodec":"avc1","acodec":"mp4a","height":720},
            {"format_id":"140","ext":"m4a","vcodec":"none","acodec":"mp4a","abr":129.5}]}
EOF
`)
	c := New(Config{BinaryPath: script})

	info, err := c.Metadata(context.Background(), MetadataRequest{URL: "https://www.youtube.com/watch?v=abc"})
	if err != nil {
		t.Fatalf("Metadata() error = %v", err)
	}
	if info.Title != "Never Gonna" || info.ViewCount != 42 {
		t.Errorf("info = %+v", info)
	}
	if len(info.Formats) != 2 {
		t.Fatalf("formats = %d, want 2", len(info.Formats))
	}
	if !info.Formats[1].IsAudioOnly() || info.Formats[1].RoundedBitrate() != 130 {
		t.Errorf("audio format = %+v", info.Formats[1])
	}
}

func TestClient_MetadataMalformed(t *testing.T) {
	script := writeScript(t, `echo "not json"`)
	c := New(Config{BinaryPath: script})

	_, err := c.Metadata(context.Background(), MetadataRequest{URL: "https://youtu.be/abc"})
	if !errors.Is(err, ErrMalformedOutput) {
		t.Fatalf("Metadata() error = %v, want ErrMalformedOutput", err)
	}
}

func TestClient_MetadataClassifiesStderr(t *testing.T) {
	script := writeScript(t, `echo "ERROR: [youtube] abc: Private video. Sign in if you've been granted access" >&2
exit 1
`)
	c := New(Config{BinaryPath: script})

	_, err := c.Metadata(context.Background(), MetadataRequest{URL: "https://youtu.be/abc"})
	if !errors.Is(err, ErrPrivate) {
		t.Fatalf("Metadata() error = %v, want ErrPrivate", err)
	}
	var extErr *Error
	if !errors.As(err, &extErr) || !strings.Contains(extErr.Stderr, "Private video") {
		t.Errorf("expected *Error carrying stderr, got %#v", err)
	}
}

func TestClient_FetchReportsProgress(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	script := writeScript(t, `echo "$@" > `+argsFile+`
echo "[youtube] abc: Downloading webpage"
echo "[download]  10.0% of 5.00MiB at 1.00MiB/s ETA 00:04"
echo "[download]  55.5% of 5.00MiB at 1.00MiB/s ETA 00:02"
echo "[download] 100% of 5.00MiB in 00:05"
`)
	c := New(Config{BinaryPath: script})

	var got []float64
	err := c.Fetch(context.Background(), FetchRequest{
		URL:        "https://www.youtube.com/watch?v=abc",
		FormatID:   "137",
		OutputPath: filepath.Join(dir, "out.mp4"),
	}, func(p float64) { got = append(got, p) })
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	want := []float64{10, 55.5, 100}
	if len(got) != len(want) {
		t.Fatalf("progress = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("progress[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	args, _ := os.ReadFile(argsFile)
	if !strings.Contains(string(args), "-f 137") {
		t.Errorf("args = %s, want -f 137", args)
	}
}

func TestClient_FetchTimeout(t *testing.T) {
	script := writeScript(t, `exec sleep 5`)
	c := New(Config{BinaryPath: script})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := c.Fetch(ctx, FetchRequest{URL: "https://x.com/a/status/1", FormatID: "best", OutputPath: filepath.Join(t.TempDir(), "o")}, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Fetch() error = %v, want deadline exceeded", err)
	}
}

func TestClient_FetchTimeoutKillsChildren(t *testing.T) {
	// An external downloader inherits yt-dlp's stdout.
	script := writeScript(t, "sleep 5 &\nexec sleep 5")
	c := New(Config{BinaryPath: script})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := c.Fetch(ctx, FetchRequest{URL: "https://x.com/a/status/1", FormatID: "best", OutputPath: filepath.Join(t.TempDir(), "o")}, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Fetch() error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Fetch() returned after %v, want prompt return on deadline", elapsed)
	}
}

func TestClient_MetadataTimeoutKillsChildren(t *testing.T) {
	script := writeScript(t, "sleep 5 &\nexec sleep 5")
	c := New(Config{BinaryPath: script})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Metadata(ctx, MetadataRequest{URL: "https://youtu.be/abc"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Metadata() error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Metadata() returned after %v, want prompt return on deadline", elapsed)
	}
}

func TestClient_FetchInvalidRequest(t *testing.T) {
	c := New(Config{BinaryPath: "yt-dlp"})
	err := c.Fetch(context.Background(), FetchRequest{URL: "https://youtu.be/abc"}, nil)
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestClient_NotInstalled(t *testing.T) {
	c := New(Config{BinaryPath: filepath.Join(t.TempDir(), "missing-yt-dlp")})
	if c.Available() {
		t.Error("Available() = true for missing binary")
	}
	_, err := c.Metadata(context.Background(), MetadataRequest{URL: "https://youtu.be/abc"})
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestParseProgress(t *testing.T) {
	tests := []struct {
		line   string
		want   float64
		wantOK bool
	}{
		{"[download]  45.2% of 5.00MiB at 1.00MiB/s ETA 00:03", 45.2, true},
		{"[download] 100% of 5.00MiB in 00:05", 100, true},
		{"[download] Destination: /tmp/x.mp4", 0, false},
		{"[youtube] abc: Downloading webpage", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := parseProgress(tt.line)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("parseProgress(%q) = %v, %v; want %v, %v", tt.line, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		want   error
	}{
		{"private", "ERROR: [youtube] x: Private video", ErrPrivate},
		{"age", "ERROR: Sign in to confirm your age", ErrAgeRestricted},
		{"geo", "ERROR: The uploader has not made this video available in your country", ErrGeoRestricted},
		{"instagram rate limit", "ERROR: [Instagram] x: Requested content is not available, rate-limit reached or login required", ErrRateLimited},
		{"login", "ERROR: [Instagram] x: This content requires login. Use --cookies", ErrLoginRequired},
		{"removed", "ERROR: [TikTok] x: Video has been removed", ErrUnavailable},
		{"unsupported", "ERROR: Unsupported URL: https://example.com", ErrUnsupportedURL},
		{"no video", "ERROR: [twitter] 1: No video could be found in this tweet", ErrNoVideo},
		{"disk", "ERROR: unable to write data: [Errno 28] No space left on device", ErrNoSpace},
		{"network", "ERROR: Unable to download webpage: <urlopen error [Errno -3] Temporary failure in name resolution>", ErrNetwork},
		{"other", "ERROR: something odd", ErrExtractionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := categorizeError("https://example.com/v", errors.New("exit status 1"), tt.stderr)
			if !errors.Is(err, tt.want) {
				t.Errorf("categorizeError(%q) = %v, want %v", tt.stderr, err, tt.want)
			}
		})
	}
}

func TestLastErrorLine(t *testing.T) {
	stderr := "WARNING: a\nERROR: first\nsome trace\nERROR: the real one\n"
	if got := lastErrorLine(stderr); got != "the real one" {
		t.Errorf("lastErrorLine() = %q", got)
	}
}

func TestRequestArgs(t *testing.T) {
	meta := MetadataRequest{URL: "https://www.tiktok.com/@a/video/1", CookiesPath: "/data/cookies.txt", ExtractorArgs: "tiktok:app_version=34.1.2"}
	got := strings.Join(meta.Args(), " ")
	for _, want := range []string{"--dump-single-json", "--skip-download", "--playlist-items 1", "--cookies /data/cookies.txt", "--extractor-args tiktok:app_version=34.1.2", "-- https://www.tiktok.com/@a/video/1"} {
		if !strings.Contains(got, want) {
			t.Errorf("metadata args %q missing %q", got, want)
		}
	}

	fetch := FetchRequest{
		URL:               "https://www.youtube.com/watch?v=abc",
		FormatID:          "137+bestaudio",
		OutputPath:        "/tmp/id_video.mp4",
		MergeOutputFormat: "mp4",
		Accelerator:       "/usr/bin/aria2c",
	}
	got = strings.Join(fetch.Args(), " ")
	for _, want := range []string{"-f 137+bestaudio", "-o /tmp/id_video.mp4", "--newline", "--no-mtime", "--merge-output-format mp4", "--downloader /usr/bin/aria2c", "-x 16 -s 16 -k 1M"} {
		if !strings.Contains(got, want) {
			t.Errorf("fetch args %q missing %q", got, want)
		}
	}
	if strings.Contains(got, "--cookies") {
		t.Errorf("fetch args %q should not pass cookies", got)
	}
}

func TestDetectAccelerator(t *testing.T) {
	orig := probeBinary
	defer func() { probeBinary = orig }()

	var probed []string
	probeBinary = func(ctx context.Context, path string) bool {
		probed = append(probed, path)
		return path == "/opt/custom/aria2c"
	}

	path, ok := DetectAccelerator(context.Background(), "/opt/custom/aria2c")
	if !ok || path != "/opt/custom/aria2c" {
		t.Errorf("DetectAccelerator() = %q, %v", path, ok)
	}
	if len(probed) != 1 {
		t.Errorf("probed %v, want configured path only", probed)
	}

	probeBinary = func(ctx context.Context, path string) bool { return false }
	if _, ok := DetectAccelerator(context.Background(), ""); ok {
		t.Error("DetectAccelerator() found an accelerator when none work")
	}
}
