package endpoints

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/daz23456/workflow-sub005/pkg/registry"
)

// DefaultPollInterval is the watcher's default tick period (§4.2).
const DefaultPollInterval = 10 * time.Second

// Discoverer is the subset of discovery.Cache the watcher depends on.
type Discoverer interface {
	DiscoverWorkflows(ctx context.Context, namespace string) ([]registry.WorkflowResource, error)
	GetWorkflowByName(ctx context.Context, name, namespace string) (*registry.WorkflowResource, error)
}

// ChangeDetector reports the (added, removed) delta since the last call,
// mirroring discovery.Cache's internal bookkeeping but scoped to the
// watcher's own view so §4.2 step 2 can be computed independently of
// whatever else is reading the cache concurrently.
type ChangeDetector struct {
	lastNames map[string]struct{}
}

// NewChangeDetector builds a detector with no prior observation.
func NewChangeDetector() *ChangeDetector {
	return &ChangeDetector{}
}

// Diff computes added/removed workflow names against the previous call.
func (d *ChangeDetector) Diff(workflows []registry.WorkflowResource) (added, removed []string) {
	newNames := make(map[string]struct{}, len(workflows))
	for _, w := range workflows {
		if w.Metadata.Name == "" {
			continue
		}
		newNames[w.Metadata.Name] = struct{}{}
	}

	for n := range newNames {
		if d.lastNames == nil {
			added = append(added, n)
			continue
		}
		if _, ok := d.lastNames[n]; !ok {
			added = append(added, n)
		}
	}
	for n := range d.lastNames {
		if _, ok := newNames[n]; !ok {
			removed = append(removed, n)
		}
	}
	d.lastNames = newNames
	return added, removed
}

// Versioner is the subset of versioning.Service the watcher depends on.
type Versioner interface {
	CreateVersionIfChanged(ctx context.Context, workflow registry.WorkflowResource) (bool, error)
}

// Watcher runs the single reconciliation loop described in §4.2.
type Watcher struct {
	discovery    Discoverer
	registry     *Registry
	versioner    Versioner
	pollInterval time.Duration
	log          *logrus.Logger
	namespace    string
	detector     *ChangeDetector
}

// NewWatcher builds a Watcher with DefaultPollInterval unless overridden
// via WithPollInterval.
func NewWatcher(discovery Discoverer, reg *Registry, versioner Versioner, log *logrus.Logger) *Watcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Watcher{
		discovery:    discovery,
		registry:     reg,
		versioner:    versioner,
		pollInterval: DefaultPollInterval,
		log:          log,
		detector:     NewChangeDetector(),
	}
}

// WithPollInterval overrides the default tick period.
func (w *Watcher) WithPollInterval(d time.Duration) *Watcher {
	if d > 0 {
		w.pollInterval = d
	}
	return w
}

// WithNamespace scopes discovery to a single namespace; empty means all.
func (w *Watcher) WithNamespace(ns string) *Watcher {
	w.namespace = ns
	return w
}

// Run executes the watch loop until ctx is canceled. Each iteration's
// errors are logged and do not abort the loop (§4.2, §7).
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Watcher) tick(ctx context.Context) {
	workflows, err := w.discovery.DiscoverWorkflows(ctx, w.namespace)
	if err != nil {
		w.log.WithError(err).Error("watcher: discovery failed")
		return
	}

	added, removed := w.detector.Diff(workflows)
	if len(added) > 0 || len(removed) > 0 {
		fetch := func(name string) (*registry.WorkflowResource, error) {
			return w.discovery.GetWorkflowByName(ctx, name, w.namespace)
		}
		if err := w.registry.OnWorkflowsChanged(added, removed, fetch); err != nil {
			w.log.WithError(err).Error("watcher: endpoint reconciliation failed")
		}
	}

	for _, wf := range workflows {
		if _, err := w.versioner.CreateVersionIfChanged(ctx, wf); err != nil {
			w.log.WithError(err).WithField("workflow", wf.Metadata.Name).Warn("watcher: version tracking failed")
		}
	}
}
