// Package blastradius maintains the in-memory used_by/contains index
// described in §3 ("Blast-radius index"): which workflows reference a
// given taskRef, and which taskRefs a given workflow contains. The index
// is rebuilt wholesale on every successful discovery.
package blastradius

import (
	"strings"
	"sync"

	"github.com/daz23456/workflow-sub005/pkg/registry"
)

// Index answers blast-radius queries. Keys are lowercased internally;
// display values preserve original casing.
type Index struct {
	mu       sync.RWMutex
	usedBy   map[string]map[string]string // lower(taskRef) -> workflowName(display) set
	contains map[string]map[string]string // lower(workflowName) -> lower(taskRef) -> taskRef(display) set
}

// New builds an empty Index.
func New() *Index {
	return &Index{
		usedBy:   make(map[string]map[string]string),
		contains: make(map[string]map[string]string),
	}
}

// Rebuild replaces the entire index from the current discovered workflow
// set. Called after every successful discovery refresh (§3 "Lifetime").
func (idx *Index) Rebuild(workflows []registry.WorkflowResource) {
	usedBy := make(map[string]map[string]string)
	contains := make(map[string]map[string]string)

	for _, wf := range workflows {
		name := wf.Metadata.Name
		if name == "" {
			continue
		}
		for _, task := range wf.Spec.Tasks {
			ref := task.TaskRef
			if ref == "" {
				continue
			}
			lowerRef := strings.ToLower(ref)

			if usedBy[lowerRef] == nil {
				usedBy[lowerRef] = make(map[string]string)
			}
			usedBy[lowerRef][strings.ToLower(name)] = name

			lowerName := strings.ToLower(name)
			if contains[lowerName] == nil {
				contains[lowerName] = make(map[string]string)
			}
			contains[lowerName][lowerRef] = ref
		}
	}

	idx.mu.Lock()
	idx.usedBy = usedBy
	idx.contains = contains
	idx.mu.Unlock()
}

// UsedBy returns the workflow names (display-cased) referencing taskRef,
// looked up case-insensitively.
func (idx *Index) UsedBy(taskRef string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	set := idx.usedBy[strings.ToLower(taskRef)]
	out := make([]string, 0, len(set))
	for _, name := range set {
		out = append(out, name)
	}
	return out
}

// Contains returns the taskRefs (display-cased) referenced by workflowName,
// looked up case-insensitively.
func (idx *Index) Contains(workflowName string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	set := idx.contains[strings.ToLower(workflowName)]
	out := make([]string, 0, len(set))
	for _, ref := range set {
		out = append(out, ref)
	}
	return out
}
