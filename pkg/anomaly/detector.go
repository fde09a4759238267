package anomaly

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"
)

// Severity classifies how far an observed duration deviates from its
// baseline (§3).
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// DefaultThresholds are the §3 default |z| cutoffs per severity.
var DefaultThresholds = map[Severity]float64{
	SeverityLow:      2,
	SeverityMedium:   3,
	SeverityHigh:     4,
	SeverityCritical: 5,
}

// epsilon guards against division by a near-zero stddev.
const epsilon = 1e-9

// BaselineSource fetches the stored baseline for a (workflowName, taskID)
// pair; taskID empty means the workflow-level baseline.
type BaselineSource interface {
	Get(ctx context.Context, workflowName, taskID string) (*Baseline, error)
}

// AnomalyEvent is emitted when a detection crosses the Low threshold (§3).
type AnomalyEvent struct {
	WorkflowName string
	TaskID       string
	ExecutionID  string
	Severity     Severity
	ZScore       float64
	Actual       float64
	Expected     float64
}

// Notifier receives confirmed anomaly events, typically the event hub's
// anomaly channel (§4.6).
type Notifier interface {
	NotifyAnomaly(event AnomalyEvent)
}

// Detector evaluates observed durations against stored baselines.
type Detector struct {
	baselines  BaselineSource
	thresholds map[Severity]float64
	notifier   Notifier
	log        *logrus.Logger
}

// NewDetector builds a Detector with DefaultThresholds unless overridden
// via WithThresholds.
func NewDetector(baselines BaselineSource, notifier Notifier, log *logrus.Logger) *Detector {
	if log == nil {
		log = logrus.StandardLogger()
	}
	thresholds := make(map[Severity]float64, len(DefaultThresholds))
	for k, v := range DefaultThresholds {
		thresholds[k] = v
	}
	return &Detector{baselines: baselines, thresholds: thresholds, notifier: notifier, log: log}
}

// WithThresholds overrides the default severity thresholds.
func (d *Detector) WithThresholds(thresholds map[Severity]float64) *Detector {
	for k, v := range thresholds {
		d.thresholds[k] = v
	}
	return d
}

// Evaluate fetches the baseline for (workflowName, taskID), computes the
// z-score against durationMs, and returns the matching AnomalyEvent (or
// nil if no baseline exists or |z| is below the Low threshold). Detector
// exceptions surface as a nil result with a logged error rather than a
// panic; notifier exceptions must never block the caller, so NotifyAnomaly
// is invoked best-effort.
func (d *Detector) Evaluate(ctx context.Context, workflowName, taskID string, durationMs float64, executionID string) *AnomalyEvent {
	baseline, err := d.baselines.Get(ctx, workflowName, taskID)
	if err != nil {
		d.log.WithError(err).WithField("workflow", workflowName).Error("anomaly: failed to fetch baseline")
		return nil
	}
	if baseline == nil {
		return nil
	}

	stddev := baseline.StdDev
	if stddev < epsilon {
		stddev = epsilon
	}
	z := (durationMs - baseline.Mean) / stddev

	severity, ok := classify(math.Abs(z), d.thresholds)
	if !ok {
		return nil
	}

	event := AnomalyEvent{
		WorkflowName: workflowName,
		TaskID:       taskID,
		ExecutionID:  executionID,
		Severity:     severity,
		ZScore:       z,
		Actual:       durationMs,
		Expected:     baseline.Mean,
	}

	d.notify(event)
	return &event
}

func (d *Detector) notify(event AnomalyEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.log.WithField("panic", r).Warn("anomaly: notifier panicked, swallowed")
		}
	}()
	if d.notifier != nil {
		d.notifier.NotifyAnomaly(event)
	}
}

// classify maps |z| to the highest severity whose threshold it meets, or
// ("", false) if below every threshold.
func classify(absZ float64, thresholds map[Severity]float64) (Severity, bool) {
	order := []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}
	for _, sev := range order {
		if absZ >= thresholds[sev] {
			return sev, true
		}
	}
	return "", false
}
