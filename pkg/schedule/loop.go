// Package schedule implements the cron-driven workflow trigger loop
// described in §4.5.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/daz23456/workflow-sub005/pkg/registry"
)

// DefaultPollInterval is the loop's default tick period.
const DefaultPollInterval = 30 * time.Second

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Discoverer is the subset of discovery.Cache the schedule loop depends on.
type Discoverer interface {
	DiscoverWorkflows(ctx context.Context, namespace string) ([]registry.WorkflowResource, error)
}

// Executor is the subset of the execution engine the schedule loop
// depends on: fire-and-continue, keyed by workflow name.
type Executor interface {
	StartExecution(ctx context.Context, workflowName string, input map[string]any) (string, error)
}

type scheduleKey struct {
	workflowName string
	triggerIndex int
}

// Loop runs the single background cron trigger loop of §4.5.
type Loop struct {
	discovery    Discoverer
	executor     Executor
	pollInterval time.Duration
	namespace    string
	log          *logrus.Logger

	mu         sync.Mutex
	lastRunAt  map[scheduleKey]time.Time
	inFlight   map[scheduleKey]bool
	nowFn      func() time.Time
}

// NewLoop builds a Loop with DefaultPollInterval unless overridden.
func NewLoop(discovery Discoverer, executor Executor, log *logrus.Logger) *Loop {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Loop{
		discovery:    discovery,
		executor:     executor,
		pollInterval: DefaultPollInterval,
		log:          log,
		lastRunAt:    make(map[scheduleKey]time.Time),
		inFlight:     make(map[scheduleKey]bool),
		nowFn:        time.Now,
	}
}

// WithPollInterval overrides the default tick period.
func (l *Loop) WithPollInterval(d time.Duration) *Loop {
	if d > 0 {
		l.pollInterval = d
	}
	return l
}

// WithNamespace scopes discovery to a single namespace; empty means all.
func (l *Loop) WithNamespace(ns string) *Loop {
	l.namespace = ns
	return l
}

// Run executes the trigger loop until ctx is canceled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	l.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	workflows, err := l.discovery.DiscoverWorkflows(ctx, l.namespace)
	if err != nil {
		l.log.WithError(err).Error("schedule: discovery failed")
		return
	}

	now := l.nowFn()
	for _, wf := range workflows {
		for i, trig := range wf.Spec.Triggers {
			if trig.Type != "schedule" || trig.Schedule == nil || !trig.Schedule.Enabled {
				continue
			}
			l.evaluateTrigger(ctx, wf, i, *trig.Schedule, now)
		}
	}
}

func (l *Loop) evaluateTrigger(ctx context.Context, wf registry.WorkflowResource, triggerIndex int, trig registry.ScheduleTrigger, now time.Time) {
	schedule, err := parser.Parse(trig.Cron)
	if err != nil {
		l.log.WithError(err).WithField("workflow", wf.Metadata.Name).Warn("schedule: invalid cron expression, skipping")
		return
	}

	key := scheduleKey{workflowName: wf.Metadata.Name, triggerIndex: triggerIndex}

	l.mu.Lock()
	if l.inFlight[key] {
		l.mu.Unlock()
		return
	}
	last, hasLast := l.lastRunAt[key]
	if !hasLast {
		// First observation of this schedule: record a baseline without
		// firing, so a newly discovered low-frequency cron does not fire
		// immediately on discovery.
		l.lastRunAt[key] = now
		l.mu.Unlock()
		return
	}
	if !isDue(schedule, last, now) {
		l.mu.Unlock()
		return
	}
	// Record lastRunAt before execution completes so a concurrent tick
	// cannot double-fire (§4.5).
	l.lastRunAt[key] = now
	l.inFlight[key] = true
	l.mu.Unlock()

	go func() {
		defer func() {
			l.mu.Lock()
			l.inFlight[key] = false
			l.mu.Unlock()
		}()

		input := map[string]any{}
		for k, v := range trig.Input {
			input[k] = v
		}

		if _, err := l.executor.StartExecution(ctx, wf.Metadata.Name, input); err != nil {
			l.log.WithError(err).WithField("workflow", wf.Metadata.Name).Error("schedule: triggered execution failed")
		}
	}()
}

// isDue reports whether schedule has a fire time in (last, now].
func isDue(schedule cron.Schedule, last, now time.Time) bool {
	next := schedule.Next(last)
	return !next.After(now)
}
