// Package anomaly implements the baseline refresh and z-score anomaly
// detector of §4.6.
package anomaly

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultRefreshInterval is the baseline refresher's default tick period.
const DefaultRefreshInterval = time.Hour

// DefaultWindow is the default rolling window considered for samples.
const DefaultWindow = 30 * 24 * time.Hour

// MinSampleCount is the minimum sample count required to write a baseline.
const MinSampleCount = 20

// Baseline is the rolling mean/stddev used to score anomalies (§3).
type Baseline struct {
	WorkflowName string
	TaskID       string // empty means workflow-level baseline
	Mean         float64
	StdDev       float64
	SampleCount  int
	WindowStart  time.Time
	WindowEnd    time.Time
}

// Sample is one observed duration, keyed by workflow and optional task.
type Sample struct {
	WorkflowName string
	TaskID       string
	DurationMs   float64
}

// SampleSource fetches the raw duration samples in the rolling window
// that the baseline refresher aggregates. It is the durable store's
// contract for this subsystem, distinct from the richer
// ExecutionRepository statistics used by the HTTP surface.
type SampleSource interface {
	Samples(ctx context.Context, windowStart, windowEnd time.Time) ([]Sample, error)
}

// BaselineRepository persists computed baselines, keyed by
// (workflowName, taskID).
type BaselineRepository interface {
	Save(ctx context.Context, baseline Baseline) error
}

// Config controls the refresher's cadence and enable flag.
type Config struct {
	Enabled         bool
	RefreshInterval time.Duration
	Window          time.Duration
	MinSamples      int
}

// DefaultConfig returns the §4.6 defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		RefreshInterval: DefaultRefreshInterval,
		Window:          DefaultWindow,
		MinSamples:      MinSampleCount,
	}
}

// Refresher recomputes baselines on a periodic tick.
type Refresher struct {
	source SampleSource
	repo   BaselineRepository
	cfg    Config
	log    *logrus.Logger
	nowFn  func() time.Time
}

// NewRefresher builds a Refresher. cfg.RefreshInterval/Window/MinSamples
// fall back to defaults when zero.
func NewRefresher(source SampleSource, repo BaselineRepository, cfg Config, log *logrus.Logger) *Refresher {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = MinSampleCount
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Refresher{source: source, repo: repo, cfg: cfg, log: log, nowFn: time.Now}
}

// Run executes the periodic refresh loop until ctx is canceled. A no-op
// when cfg.Enabled is false (§4.6: "A concurrent refresh is disabled
// when config flag enabled = false").
func (r *Refresher) Run(ctx context.Context) {
	if !r.cfg.Enabled {
		return
	}
	ticker := time.NewTicker(r.cfg.RefreshInterval)
	defer ticker.Stop()

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Refresher) tick(ctx context.Context) {
	now := r.nowFn()
	windowStart := now.Add(-r.cfg.Window)

	samples, err := r.source.Samples(ctx, windowStart, now)
	if err != nil {
		r.log.WithError(err).Error("anomaly: baseline refresh failed to fetch samples")
		return
	}

	grouped := groupSamples(samples)
	for key, durations := range grouped {
		if len(durations) < r.cfg.MinSamples {
			continue
		}
		mean, stddev := meanStdDev(durations)
		baseline := Baseline{
			WorkflowName: key.workflowName,
			TaskID:       key.taskID,
			Mean:         mean,
			StdDev:       stddev,
			SampleCount:  len(durations),
			WindowStart:  windowStart,
			WindowEnd:    now,
		}
		if err := r.repo.Save(ctx, baseline); err != nil {
			r.log.WithError(err).WithField("workflow", key.workflowName).Error("anomaly: failed to save baseline")
		}
	}
}

type groupKey struct {
	workflowName string
	taskID       string
}

func groupSamples(samples []Sample) map[groupKey][]float64 {
	out := make(map[groupKey][]float64)
	for _, s := range samples {
		wfKey := groupKey{workflowName: s.WorkflowName}
		out[wfKey] = append(out[wfKey], s.DurationMs)

		if s.TaskID != "" {
			taskKey := groupKey{workflowName: s.WorkflowName, taskID: s.TaskID}
			out[taskKey] = append(out[taskKey], s.DurationMs)
		}
	}
	return out
}

func meanStdDev(values []float64) (mean, stddev float64) {
	n := float64(len(values))
	for _, v := range values {
		mean += v
	}
	mean /= n

	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	stddev = math.Sqrt(sumSq / n)
	return mean, stddev
}
