package retrieval

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/reelfetch/backend/internal/logger"
)

// Sweeper periodically deletes artifacts older than the retention
// window, whether or not they were ever retrieved.
type Sweeper struct {
	dir       string
	retention time.Duration
	interval  time.Duration
	log       *logger.Logger
	now       func() time.Time

	// OnSweep, if set, is called with the number of files each pass deleted.
	OnSweep func(deleted int)
}

// NewSweeper creates a Sweeper
func NewSweeper(dir string, retention, interval time.Duration, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.Default()
	}
	return &Sweeper{
		dir:       dir,
		retention: retention,
		interval:  interval,
		log:       log.WithComponent("sweeper"),
		now:       time.Now,
	}
}

// Sweep runs one pass and returns how many files it removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := s.now().Add(-s.retention)
	deleted := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return deleted, ctx.Err()
		}
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		if err := RemoveQuietly(path); err != nil {
			s.log.Warn(ctx, "failed to delete expired file", map[string]interface{}{"path": path, "error": err.Error()})
			continue
		}
		deleted++
	}
	return deleted, nil
}

// Run sweeps once immediately and then every interval until ctx ends.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.pass(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) pass(ctx context.Context) {
	n, err := s.Sweep(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn(ctx, "sweep failed", map[string]interface{}{"dir": s.dir, "error": err.Error()})
	}
	if n > 0 {
		s.log.Info(ctx, "expired files deleted", map[string]interface{}{"count": n, "retention": s.retention.String()})
	}
	if s.OnSweep != nil {
		s.OnSweep(n)
	}
}
