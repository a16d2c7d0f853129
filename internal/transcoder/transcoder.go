package transcoder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/reelfetch/backend/internal/logger"
)

var (
	ErrNotFound        = errors.New("ffmpeg not found")
	ErrTranscodeFailed = errors.New("transcode failed")
)

// Error wraps a failed ffmpeg run with the tail of its stderr.
type Error struct {
	Directive Directive
	Stderr    string
	Err       error
}

func (e *Error) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("ffmpeg %s: %v: %s", e.Directive, e.Err, e.Stderr)
	}
	return fmt.Sprintf("ffmpeg %s: %v", e.Directive, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Config holds the binary locations.
type Config struct {
	FFmpegPath  string
	FFprobePath string
	Logger      *logger.Logger
}

// Transcoder runs ffmpeg and ffprobe as subprocesses.
type Transcoder struct {
	ffmpeg  string
	ffprobe string
	log     *logger.Logger
}

// New creates a Transcoder
func New(cfg Config) *Transcoder {
	t := &Transcoder{ffmpeg: cfg.FFmpegPath, ffprobe: cfg.FFprobePath, log: cfg.Logger}
	if t.ffmpeg == "" {
		t.ffmpeg = "ffmpeg"
	}
	if t.ffprobe == "" {
		t.ffprobe = "ffprobe"
	}
	if t.log == nil {
		t.log = logger.Default()
	}
	t.log = t.log.WithComponent("transcoder")
	return t
}

// Available reports whether ffmpeg can be found.
func (t *Transcoder) Available() bool {
	_, err := exec.LookPath(t.ffmpeg)
	return err == nil
}

// ProgressFunc receives the completed fraction (0-1) of a run.
type ProgressFunc func(fraction float64)

// Run executes req, reporting progress when the media duration is known.
func (t *Transcoder) Run(ctx context.Context, req TranscodeRequest, progress ProgressFunc) error {
	if err := req.Validate(); err != nil {
		return &Error{Directive: req.Directive, Err: fmt.Errorf("%w: %v", ErrTranscodeFailed, err)}
	}

	duration := req.DurationSeconds
	if duration <= 0 && progress != nil {
		if d, err := t.ProbeDuration(ctx, req.Inputs[0]); err == nil {
			duration = d
		} else {
			t.log.Debug(ctx, "duration probe failed, progress will jump to completion", map[string]interface{}{
				"input": req.Inputs[0],
				"error": err.Error(),
			})
		}
	}

	cmd := exec.CommandContext(ctx, t.ffmpeg, req.Args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &Error{Directive: req.Directive, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &Error{Directive: req.Directive, Err: err}
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return t.classify(req.Directive, err, "")
	}

	stderrDone := make(chan string, 1)
	go func() {
		tail := newTailBuffer(4096)
		io.Copy(tail, stderr)
		stderrDone <- tail.String()
	}()

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok || progress == nil {
			continue
		}
		switch key {
		case "out_time_us", "out_time_ms":
			// ffmpeg reports microseconds under both keys.
			us, err := strconv.ParseInt(value, 10, 64)
			if err != nil || duration <= 0 || us < 0 {
				continue
			}
			frac := float64(us) / 1e6 / duration
			if frac > 1 {
				frac = 1
			}
			progress(frac)
		case "progress":
			if value == "end" {
				progress(1)
			}
		}
	}
	io.Copy(io.Discard, stdout)

	stderrTail := <-stderrDone
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if waitErr != nil {
		return t.classify(req.Directive, waitErr, stderrTail)
	}

	t.log.Debug(ctx, "transcode finished", map[string]interface{}{
		"directive":   string(req.Directive),
		"output":      req.OutputPath,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return nil
}

// ProbeDuration returns the container duration of path in seconds.
func (t *Transcoder) ProbeDuration(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, t.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, err
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return d, nil
}

func (t *Transcoder) classify(d Directive, err error, stderr string) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return &Error{Directive: d, Err: ErrNotFound}
	}
	return &Error{Directive: d, Stderr: lastLines(stderr, 3), Err: fmt.Errorf("%w: %v", ErrTranscodeFailed, err)}
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}

// tailBuffer keeps only the last max bytes written to it.
type tailBuffer struct {
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return string(b.buf)
}
