// Package janitor sweeps expired cache entries in the background so the
// recursive purge never runs on the request path.
package janitor

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/api-cache/internal/cache"
	"github.com/any-hub/api-cache/internal/logging"
)

// Purger is implemented by *cache.FileStore.
type Purger interface {
	Domain() string
	Purge(ctx context.Context) (cache.PurgeReport, error)
}

// PurgeRecorder 接收每次清理删除的数量，*metrics.Metrics 实现了它。
type PurgeRecorder interface {
	RecordPurge(files, dirs int)
}

// Janitor 周期性地对一组 store 执行 Purge。
type Janitor struct {
	stores   []Purger
	interval time.Duration
	logger   *logrus.Logger
	metrics  PurgeRecorder
}

// New 构建 Janitor；interval <= 0 时 Run 立即返回。
func New(interval time.Duration, logger *logrus.Logger, metrics PurgeRecorder, stores ...Purger) *Janitor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Janitor{
		stores:   stores,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run 阻塞直到 ctx 结束，每个 interval 清理一轮。
func (j *Janitor) Run(ctx context.Context) {
	if j == nil || j.interval <= 0 || len(j.stores) == 0 {
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce 依次清理每个 store。单个 store 失败不影响其余 store，返回所有 store 的合计。
func (j *Janitor) RunOnce(ctx context.Context) cache.PurgeReport {
	var total cache.PurgeReport
	for _, store := range j.stores {
		started := time.Now()
		report, err := store.Purge(ctx)
		total.FilesRemoved += report.FilesRemoved
		total.DirsRemoved += report.DirsRemoved
		if j.metrics != nil {
			j.metrics.RecordPurge(report.FilesRemoved, report.DirsRemoved)
		}

		fields := logrus.Fields{
			"action":        "purge",
			"domain":        store.Domain(),
			"files_removed": report.FilesRemoved,
			"dirs_removed":  report.DirsRemoved,
			"elapsed_ms":    time.Since(started).Milliseconds(),
		}
		if err != nil {
			j.logger.WithFields(fields).WithError(err).Error("purge_failed")
			continue
		}
		j.logger.WithFields(fields).Info("purge_complete")
	}
	return total
}
