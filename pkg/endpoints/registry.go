// Package endpoints maintains the set of HTTP endpoints synthesized for
// each discovered workflow (§4.2) and the watcher loop that keeps it, and
// the version history, reconciled against registry state.
package endpoints

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/daz23456/workflow-sub005/internal/errors"
	"github.com/daz23456/workflow-sub005/pkg/registry"
)

// Kind identifies which of the three synthesized endpoints a route is.
type Kind string

const (
	KindExecute Kind = "execute"
	KindTest    Kind = "test"
	KindGet     Kind = "get"
)

// Endpoint is one synthesized HTTP route for a workflow.
type Endpoint struct {
	Kind         Kind
	Method       string
	Path         string
	WorkflowName string
}

// triple is the immutable set of three endpoints registered for one
// workflow; replacement swaps the pointer rather than mutating fields, so
// no partial state is ever observable (§4.2, §9 design note).
type triple struct {
	execute Endpoint
	test    Endpoint
	get     Endpoint
}

func buildTriple(workflowName string) *triple {
	base := fmt.Sprintf("/api/v1/workflows/%s", workflowName)
	return &triple{
		execute: Endpoint{Kind: KindExecute, Method: http.MethodPost, Path: base + "/execute", WorkflowName: workflowName},
		test:    Endpoint{Kind: KindTest, Method: http.MethodPost, Path: base + "/test", WorkflowName: workflowName},
		get:     Endpoint{Kind: KindGet, Method: http.MethodGet, Path: base, WorkflowName: workflowName},
	}
}

func (t *triple) list() []Endpoint {
	return []Endpoint{t.execute, t.test, t.get}
}

// Registry is an RWMutex-guarded map keyed by workflow name,
// each value an immutable triple swapped atomically on replace (§9 design
// note: "thread-safe ConcurrentDictionary" -> swap-on-replace map).
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*triple
	version atomic.Uint64
}

// New builds an empty endpoint Registry.
func New() *Registry {
	return &Registry{byName: make(map[string]*triple)}
}

// Register synthesizes and installs the three endpoints for workflow,
// atomically replacing any existing entry for the same name. Fails if
// metadata.name is empty.
func (r *Registry) Register(workflow registry.WorkflowResource) error {
	if workflow.Metadata.Name == "" {
		return errors.NewValidationError("workflow metadata.name is required to register endpoints")
	}
	t := buildTriple(workflow.Metadata.Name)

	r.mu.Lock()
	r.byName[workflow.Metadata.Name] = t
	r.mu.Unlock()
	r.version.Add(1)
	return nil
}

// Unregister removes all three endpoints for name; a no-op if name was
// never registered.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	_, existed := r.byName[name]
	delete(r.byName, name)
	r.mu.Unlock()
	if existed {
		r.version.Add(1)
	}
}

// Endpoints returns the three endpoints registered for name, or nil if
// absent.
func (r *Registry) Endpoints(name string) []Endpoint {
	r.mu.RLock()
	t, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return t.list()
}

// All returns every endpoint currently registered, across all workflows.
func (r *Registry) All() []Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Endpoint, 0, len(r.byName)*3)
	for _, t := range r.byName {
		out = append(out, t.list()...)
	}
	return out
}

// Has reports whether name currently has endpoints registered. The
// execution service must consult this (or an equivalent guard) so that a
// just-removed workflow cannot start an execution that races the
// reconciliation that unregistered it (§5 ordering guarantee).
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byName[name]
	return ok
}

// WorkflowFetcher loads a single workflow by name, used by
// OnWorkflowsChanged to resolve added names into full resources.
type WorkflowFetcher func(name string) (*registry.WorkflowResource, error)

// SyncAll registers every workflow in workflows.
func (r *Registry) SyncAll(workflows []registry.WorkflowResource) error {
	for _, w := range workflows {
		if err := r.Register(w); err != nil {
			return err
		}
	}
	return nil
}

// OnWorkflowsChanged registers newly added workflows (fetched by name;
// a nil lookup result is skipped) and unregisters removed ones.
func (r *Registry) OnWorkflowsChanged(added, removed []string, fetch WorkflowFetcher) error {
	for _, name := range added {
		wf, err := fetch(name)
		if err != nil {
			return err
		}
		if wf == nil {
			continue
		}
		if err := r.Register(*wf); err != nil {
			return err
		}
	}
	for _, name := range removed {
		r.Unregister(name)
	}
	return nil
}
