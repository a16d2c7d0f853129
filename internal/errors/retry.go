package errors

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"math/rand"
	"net"
	"strings"
	"time"
)

// RetryConfig controls retries of side work such as mirroring artifacts.
// Extractor and transcoder runs are never retried.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	Jitter         bool

	// OnRetry, if set, is called before each wait with the failed attempt
	// number (starting at 1), its error and the upcoming backoff.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// MirrorRetryConfig returns the schedule for object storage uploads: a
// handful of attempts spread over about half a minute.
func MirrorRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

// RetryableFunc is a function that can be retried
type RetryableFunc func(ctx context.Context) error

// Retry executes fn until it succeeds, returns a non-retryable error, or
// the attempts are exhausted. A nil cfg uses MirrorRetryConfig.
func Retry(ctx context.Context, cfg *RetryConfig, fn RetryableFunc) error {
	if cfg == nil {
		cfg = MirrorRetryConfig()
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryableError(err) || attempt == cfg.MaxRetries {
			break
		}

		wait := calculateRetryBackoff(attempt, cfg)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

func calculateRetryBackoff(attempt int, cfg *RetryConfig) time.Duration {
	backoff := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffFactor, float64(attempt))

	if time.Duration(backoff) > cfg.MaxBackoff {
		backoff = float64(cfg.MaxBackoff)
	}

	// ±25%
	if cfg.Jitter {
		jitter := backoff * 0.25 * (rand.Float64()*2 - 1)
		backoff = backoff + jitter
	}

	return time.Duration(backoff)
}

// permanentStorageCodes are object storage error codes no retry can fix.
var permanentStorageCodes = []string{
	"accessdenied",
	"invalidaccesskeyid",
	"signaturedoesnotmatch",
	"nosuchbucket",
	"invalidbucketname",
	"entitytoolarge",
}

// transientPatterns mark network trouble and throttling by the storage
// service.
var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"timeout",
	"temporary failure",
	"service unavailable",
	"slowdown",
	"slow down",
	"requesttimeout",
	"internalerror",
	"503",
	"502",
	"504",
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// The local artifact is gone (swept or already served); uploading again
	// cannot succeed.
	if errors.Is(err, fs.ErrNotExist) {
		return false
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return IsRetryable(appErr)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	errStr := strings.ToLower(err.Error())
	for _, code := range permanentStorageCodes {
		if strings.Contains(errStr, code) {
			return false
		}
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
