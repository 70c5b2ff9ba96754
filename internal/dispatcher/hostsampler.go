package dispatcher

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"
)

// HostSampler periodically samples host CPU, memory, and disk utilization
// and feeds them into Metrics, so the /metrics endpoint reflects live
// resource pressure rather than only job counters.
type HostSampler struct {
	metrics  *Metrics
	baseDir  string
	interval time.Duration
	logger   *zap.Logger
}

// NewHostSampler builds a sampler that reports disk usage for the volume
// containing baseDir (the local workspace root, or "/" when the dispatcher
// is backed by S3 and has no meaningful local volume to report on).
func NewHostSampler(metrics *Metrics, baseDir string, interval time.Duration, logger *zap.Logger) *HostSampler {
	if baseDir == "" {
		baseDir = "/"
	}
	return &HostSampler{metrics: metrics, baseDir: baseDir, interval: interval, logger: logger.Named("hostsampler")}
}

// Run samples on a ticker until ctx is cancelled.
func (h *HostSampler) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.sample(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sample(ctx)
		}
	}
}

func (h *HostSampler) sample(ctx context.Context) {
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		h.metrics.cpuPercent.Set(pct[0])
	} else if err != nil {
		h.logger.Warn("failed to sample cpu", zap.Error(err))
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		h.metrics.memPercent.Set(vm.UsedPercent)
	} else {
		h.logger.Warn("failed to sample memory", zap.Error(err))
	}

	if du, err := disk.UsageWithContext(ctx, h.baseDir); err == nil {
		h.metrics.diskPercent.Set(du.UsedPercent)
	} else {
		h.logger.Warn("failed to sample disk", zap.String("path", h.baseDir), zap.Error(err))
	}
}
