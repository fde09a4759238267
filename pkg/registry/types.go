// Package registry defines the read-only resource shapes this gateway
// discovers from an external cluster-style registry, and the minimal
// client contract §1 assumes that registry exposes. The registry client
// itself is an external collaborator; only its interface is specified
// here.
package registry

import "context"

// Client is the minimal contract this core requires of the resource
// registry (§1): list resources of a kind within a namespace. A nil or
// empty namespace means "all namespaces", and is a distinct cache key
// from the literal "default" (§4.1). The registry client itself is an
// external collaborator; this interface is the whole of its contract.
type Client interface {
	ListWorkflows(ctx context.Context, namespace string) ([]WorkflowResource, error)
	ListWorkflowTasks(ctx context.Context, namespace string) ([]WorkflowTaskResource, error)
}

// Kind enumerates the resource kinds this core discovers.
type Kind string

const (
	KindWorkflow     Kind = "Workflow"
	KindWorkflowTask Kind = "WorkflowTask"
)

// ObjectMeta mirrors the Kubernetes-style metadata block carried by every
// discovered resource.
type ObjectMeta struct {
	Name        string            `json:"name" yaml:"name"`
	Namespace   string            `json:"namespace" yaml:"namespace"`
	Annotations map[string]string `json:"annotations,omitempty" yaml:"annotations,omitempty"`
}

// InputParameter describes one entry of a workflow's input schema.
type InputParameter struct {
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Default     any    `json:"default,omitempty" yaml:"default,omitempty"`
}

// TaskStep is one node of a workflow's task graph.
type TaskStep struct {
	ID        string            `json:"id" yaml:"id"`
	TaskRef   string            `json:"taskRef" yaml:"taskRef"`
	DependsOn []string          `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`
	Input     map[string]string `json:"input,omitempty" yaml:"input,omitempty"`
}

// ScheduleTrigger is the only trigger variant this core acts on; other
// trigger kinds are parsed (to preserve round-tripping) but ignored.
type ScheduleTrigger struct {
	Cron    string         `json:"cron" yaml:"cron"`
	Enabled bool           `json:"enabled" yaml:"enabled"`
	Input   map[string]any `json:"input,omitempty" yaml:"input,omitempty"`
}

// TriggerSpec is a tagged union over trigger kinds. Only Type=="schedule"
// is interpreted; any other Type is preserved for round-tripping and
// silently skipped by §4.5.
type TriggerSpec struct {
	Type     string           `json:"type" yaml:"type"`
	Schedule *ScheduleTrigger `json:"schedule,omitempty" yaml:"schedule,omitempty"`
}

// WorkflowSpec is the declarative body of a Workflow resource.
type WorkflowSpec struct {
	Description string                    `json:"description,omitempty" yaml:"description,omitempty"`
	Tags        []string                  `json:"tags,omitempty" yaml:"tags,omitempty"`
	Categories  []string                  `json:"categories,omitempty" yaml:"categories,omitempty"`
	Input       map[string]InputParameter `json:"input,omitempty" yaml:"input,omitempty"`
	Tasks       []TaskStep                `json:"tasks,omitempty" yaml:"tasks,omitempty"`
	Output      map[string]string         `json:"output,omitempty" yaml:"output,omitempty"`
	Triggers    []TriggerSpec             `json:"triggers,omitempty" yaml:"triggers,omitempty"`
}

// WorkflowResource is the external, read-only shape consumed by every
// component in this core.
type WorkflowResource struct {
	Metadata ObjectMeta   `json:"metadata" yaml:"metadata"`
	Spec     WorkflowSpec `json:"spec" yaml:"spec"`
}

// WorkflowTaskSpec is the declarative body of a WorkflowTask resource.
type WorkflowTaskSpec struct {
	Type     string   `json:"type,omitempty" yaml:"type,omitempty"`
	Category string   `json:"category,omitempty" yaml:"category,omitempty"`
	Tags     []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// WorkflowTaskResource is the external, read-only task resource shape.
type WorkflowTaskResource struct {
	Metadata ObjectMeta       `json:"metadata" yaml:"metadata"`
	Spec     WorkflowTaskSpec `json:"spec" yaml:"spec"`
}
