// Package admission decides whether a download may start given the free
// space on the downloads volume.
package admission

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/reelfetch/backend/internal/logger"
)

const (
	gib = 1 << 30
	mib = 1 << 20

	// MinFree is the floor of free space required regardless of estimate.
	MinFree = 1 * gib
	// Headroom is added to every estimate.
	Headroom = 500 * mib
)

// DiskProber reports free bytes on the volume holding path.
type DiskProber interface {
	Free(ctx context.Context, path string) (uint64, error)
}

// SystemProber reads free space through gopsutil.
type SystemProber struct{}

func (SystemProber) Free(ctx context.Context, path string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// Result is the outcome of an admission check. It is also the diskSpace
// object returned to clients.
type Result struct {
	FreeBytes     uint64  `json:"freeBytes"`
	FreeGB        float64 `json:"freeGB"`
	RequiredBytes uint64  `json:"requiredBytes"`
	Sufficient    bool    `json:"sufficient"`
	Message       string  `json:"message"`
}

// Checker probes the downloads volume.
type Checker struct {
	prober DiskProber
	path   string
	log    *logger.Logger
}

// NewChecker creates a checker for the volume holding dir. A nil prober
// uses SystemProber.
func NewChecker(dir string, prober DiskProber, log *logger.Logger) *Checker {
	if prober == nil {
		prober = SystemProber{}
	}
	if log == nil {
		log = logger.Default()
	}
	return &Checker{prober: prober, path: dir, log: log.WithComponent("admission")}
}

// Required returns the free space needed to admit a job of the given size.
func Required(estimatedBytes uint64) uint64 {
	need := estimatedBytes + Headroom
	if need < MinFree {
		return MinFree
	}
	return need
}

// Check reads free space and compares it against the threshold for
// estimatedBytes. A failed probe admits the job.
func (c *Checker) Check(ctx context.Context, estimatedBytes uint64) Result {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	required := Required(estimatedBytes)

	free, err := c.prober.Free(ctx, c.path)
	if err != nil {
		c.log.Warn(ctx, "disk space probe failed", map[string]interface{}{
			"path":  c.path,
			"error": err.Error(),
		})
		return Result{RequiredBytes: required, Sufficient: true, Message: "Unable to check disk space"}
	}

	res := Result{
		FreeBytes:     free,
		FreeGB:        toGB(free),
		RequiredBytes: required,
		Sufficient:    free >= required,
	}
	if res.Sufficient {
		res.Message = fmt.Sprintf("%.2fGB available", res.FreeGB)
	} else {
		res.Message = fmt.Sprintf("Low disk space: %.2fGB free. Need at least %.2fGB.", res.FreeGB, toGB(required))
	}
	return res
}

func toGB(b uint64) float64 {
	return math.Round(float64(b)/gib*100) / 100
}
