package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"appforge/internal/logging"
)

// DefaultMonitorInterval is how often the monitor re-runs the build
// loop unattended.
const DefaultMonitorInterval = 60 * time.Second

// SnapshotProvider supplies the current project file set.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (map[string]string, error)
}

// SnapshotFunc adapts a function to SnapshotProvider.
type SnapshotFunc func(ctx context.Context) (map[string]string, error)

func (f SnapshotFunc) Snapshot(ctx context.Context) (map[string]string, error) { return f(ctx) }

// MonitorStats are the cumulative run counts since Start.
type MonitorStats struct {
	Runs      int `json:"runs"`
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
}

// Monitor polls a snapshot provider on a fixed interval and runs the
// build loop over each snapshot. It is an operational layer over the
// same pipeline, not a separate algorithm; the result cache keeps
// unchanged snapshots cheap.
type Monitor struct {
	pipeline *Pipeline
	provider SnapshotProvider
	interval time.Duration
	log      *zap.Logger

	mu    sync.Mutex
	stats MonitorStats
}

// NewMonitor creates a monitor. interval <= 0 uses the default.
func NewMonitor(p *Pipeline, provider SnapshotProvider, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	return &Monitor{
		pipeline: p,
		provider: provider,
		interval: interval,
		log:      logging.L().Named("monitor"),
	}
}

// Start runs the polling loop until the context is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runOnce(ctx)
		}
	}
}

func (m *Monitor) runOnce(ctx context.Context) {
	files, err := m.provider.Snapshot(ctx)
	if err != nil {
		m.log.Warn("snapshot failed", zap.Error(err))
		return
	}
	if len(files) == 0 {
		return
	}

	result, err := m.pipeline.Run(ctx, files)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Runs++
	if err != nil || !result.Success {
		m.stats.Failures++
		m.log.Warn("monitored build failed", zap.Int("failures", m.stats.Failures))
		return
	}
	m.stats.Successes++
}

// Stats returns a copy of the cumulative counters.
func (m *Monitor) Stats() MonitorStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
