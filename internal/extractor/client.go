package extractor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/reelfetch/backend/internal/logger"
)

// waitDelay bounds how long a canceled yt-dlp may keep its output pipes
// open before they are closed under it.
const waitDelay = 2 * time.Second

// command builds a yt-dlp invocation bound to ctx.
func (c *Client) command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.path, args...)
	killGroupOnCancel(cmd)
	cmd.WaitDelay = waitDelay
	return cmd
}

// Config holds configuration for the yt-dlp client
type Config struct {
	// BinaryPath is the yt-dlp executable (default: "yt-dlp")
	BinaryPath string
	Logger     *logger.Logger
}

// Client runs yt-dlp as a subprocess.
type Client struct {
	path string
	log  *logger.Logger
}

// New creates a yt-dlp client. The binary is not required to exist yet;
// Available reports whether it does.
func New(cfg Config) *Client {
	path := cfg.BinaryPath
	if path == "" {
		path = "yt-dlp"
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	return &Client{path: path, log: log.WithComponent("extractor")}
}

// Available reports whether the yt-dlp binary can be found.
func (c *Client) Available() bool {
	_, err := exec.LookPath(c.path)
	return err == nil
}

// Version returns the yt-dlp version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := c.command(ctx, "--version").Output()
	if err != nil {
		return "", categorizeError("", err, "")
	}
	return strings.TrimSpace(string(out)), nil
}

// Metadata runs yt-dlp in info-only mode and decodes its JSON output.
func (c *Client) Metadata(ctx context.Context, req MetadataRequest) (*Info, error) {
	var stdout, stderr bytes.Buffer
	cmd := c.command(ctx, req.Args()...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	c.log.Debug(ctx, "metadata extraction finished", map[string]interface{}{
		"url":         req.URL,
		"duration_ms": time.Since(start).Milliseconds(),
		"cookies":     req.CookiesPath != "",
	})

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, categorizeError(req.URL, err, stderr.String())
	}

	var info Info
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &info); err != nil {
		return nil, &Error{URL: req.URL, Message: "failed to parse metadata", Stderr: stderr.String(), Err: fmt.Errorf("%w: %v", ErrMalformedOutput, err)}
	}
	return &info, nil
}

// ProgressFunc receives the download percentage (0-100) reported by yt-dlp.
type ProgressFunc func(percent float64)

// Fetch downloads the requested format to req.OutputPath. It is never
// retried; the first failure is returned classified.
func (c *Client) Fetch(ctx context.Context, req FetchRequest, progress ProgressFunc) error {
	if err := req.Validate(); err != nil {
		return &Error{URL: req.URL, Message: "invalid fetch request", Err: fmt.Errorf("%w: %v", ErrExtractionFailed, err)}
	}

	cmd := c.command(ctx, req.Args()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &Error{URL: req.URL, Message: "failed to create stdout pipe", Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &Error{URL: req.URL, Message: "failed to create stderr pipe", Err: err}
	}

	if err := cmd.Start(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return categorizeError(req.URL, err, "")
	}

	// Stop reading once ctx is done, even if a process that escaped the
	// group still holds the pipes.
	drained := make(chan struct{})
	stopWatch := context.AfterFunc(ctx, func() {
		t := time.NewTimer(waitDelay)
		defer t.Stop()
		select {
		case <-t.C:
			stdout.Close()
			stderr.Close()
		case <-drained:
		}
	})
	defer stopWatch()

	stderrDone := make(chan string, 1)
	go func() {
		var sb strings.Builder
		io.Copy(&sb, stderr)
		stderrDone <- sb.String()
	}()

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if percent, ok := parseProgress(scanner.Text()); ok && progress != nil {
			progress(percent)
		}
	}
	// Drain in case the scanner stopped on an oversized line.
	io.Copy(io.Discard, stdout)

	stderrOutput := <-stderrDone
	close(drained)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if waitErr != nil {
		return categorizeError(req.URL, waitErr, stderrOutput)
	}
	return nil
}

// parseProgress extracts the percentage from a yt-dlp progress line:
//
//	[download]  45.2% of 5.00MiB at 1.00MiB/s ETA 00:03
func parseProgress(line string) (float64, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "[download]") {
		return 0, false
	}

	fields := strings.Fields(line)
	if len(fields) < 2 || !strings.HasSuffix(fields[1], "%") {
		return 0, false
	}

	percent, err := strconv.ParseFloat(strings.TrimSuffix(fields[1], "%"), 64)
	if err != nil || percent < 0 {
		return 0, false
	}
	if percent > 100 {
		percent = 100
	}
	return percent, true
}
