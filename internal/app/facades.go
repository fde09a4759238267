// Package app wires the gateway's subsystems into the narrow read/write
// contracts internal/httpserver dispatches to, so handlers never depend
// on discovery, versioning, or execution directly.
package app

import (
	"context"

	"github.com/daz23456/workflow-sub005/pkg/anomaly"
	"github.com/daz23456/workflow-sub005/pkg/discovery"
	"github.com/daz23456/workflow-sub005/pkg/eventhub"
	"github.com/daz23456/workflow-sub005/pkg/execution"
	"github.com/daz23456/workflow-sub005/pkg/registry"
	"github.com/daz23456/workflow-sub005/pkg/versioning"
)

// WorkflowFacade implements httpserver.WorkflowService over the
// discovery cache and the version repository.
type WorkflowFacade struct {
	Cache    *discovery.Cache
	Versions versioning.Repository
}

func (f *WorkflowFacade) GetWorkflowByName(ctx context.Context, name, namespace string) (*registry.WorkflowResource, error) {
	return f.Cache.GetWorkflowByName(ctx, name, namespace)
}

func (f *WorkflowFacade) ListWorkflows(ctx context.Context, namespace string, skip, take int) ([]registry.WorkflowResource, error) {
	all, err := f.Cache.DiscoverWorkflows(ctx, namespace)
	if err != nil {
		return nil, err
	}
	return paginate(all, skip, take), nil
}

func (f *WorkflowFacade) ListTasks(ctx context.Context, namespace string) ([]registry.WorkflowTaskResource, error) {
	return f.Cache.DiscoverTasks(ctx, namespace)
}

func (f *WorkflowFacade) ListVersions(ctx context.Context, workflowName string) ([]versioning.Version, error) {
	if f.Versions == nil {
		return nil, nil
	}
	return f.Versions.List(ctx, workflowName)
}

// UsedBy returns the workflows referencing taskRef (§3 blast-radius index).
func (f *WorkflowFacade) UsedBy(taskRef string) []string {
	return f.Cache.BlastRadius().UsedBy(taskRef)
}

// Contains returns the taskRefs a workflow references (§3 blast-radius index).
func (f *WorkflowFacade) Contains(workflowName string) []string {
	return f.Cache.BlastRadius().Contains(workflowName)
}

func paginate[T any](items []T, skip, take int) []T {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(items) {
		return []T{}
	}
	end := skip + take
	if take <= 0 || end > len(items) {
		end = len(items)
	}
	return items[skip:end]
}

// ExecutionFacade implements httpserver.ExecutionService over the
// execution engine (for running work) and the execution repository (for
// reads the engine itself does not expose).
type ExecutionFacade struct {
	Engine *execution.Engine
	Repo   execution.Repository
}

func (f *ExecutionFacade) Execute(ctx context.Context, workflow registry.WorkflowResource, input map[string]any) (execution.ExecutionResponse, error) {
	return f.Engine.Execute(ctx, workflow, input)
}

func (f *ExecutionFacade) List(ctx context.Context, workflowName, status string, skip, take int) ([]execution.ExecutionRecord, error) {
	if f.Repo == nil {
		return nil, nil
	}
	return f.Repo.List(ctx, workflowName, status, skip, take)
}

func (f *ExecutionFacade) Get(ctx context.Context, id string) (*execution.ExecutionRecord, error) {
	if f.Repo == nil {
		return nil, nil
	}
	return f.Repo.Get(ctx, id)
}

// AnomalyNotifier adapts the event hub to anomaly.Notifier, translating
// a confirmed AnomalyEvent into the hub's anomaly_detected envelope
// (§4.6, §4.4).
type AnomalyNotifier struct {
	Hub *eventhub.Hub
}

func (n *AnomalyNotifier) NotifyAnomaly(event anomaly.AnomalyEvent) {
	n.Hub.Emit(event.ExecutionID, eventhub.EventAnomaly, eventhub.AnomalyPayload{
		WorkflowName: event.WorkflowName,
		TaskID:       event.TaskID,
		Severity:     string(event.Severity),
		ZScore:       event.ZScore,
		Actual:       event.Actual,
		Expected:     event.Expected,
	})
}

// ScheduleExecutor adapts the execution engine to schedule.Executor,
// binding the configured discovery namespace since the cron loop only
// knows a workflow name (§4.5).
type ScheduleExecutor struct {
	Engine    *execution.Engine
	Namespace string
}

func (s *ScheduleExecutor) StartExecution(ctx context.Context, workflowName string, input map[string]any) (string, error) {
	return s.Engine.StartExecution(ctx, workflowName, s.Namespace, input)
}
