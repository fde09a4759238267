package execution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	apperrors "github.com/daz23456/workflow-sub005/internal/errors"
	"github.com/daz23456/workflow-sub005/internal/validation"
	"github.com/daz23456/workflow-sub005/pkg/anomaly"
	"github.com/daz23456/workflow-sub005/pkg/eventhub"
	"github.com/daz23456/workflow-sub005/pkg/orchestrator"
	"github.com/daz23456/workflow-sub005/pkg/registry"
	"github.com/daz23456/workflow-sub005/pkg/versioning"
)

// DefaultTimeout is the configured execution deadline used when neither
// the caller's context nor configuration name a shorter one (§4.3 step 4).
const DefaultTimeout = 30 * time.Second

// Repository is the durable store contract for executions (§6). A nil
// Repository is a valid configuration (§4.3: "persistence is skipped but
// the response is still produced").
type Repository interface {
	Save(ctx context.Context, record ExecutionRecord) error
	List(ctx context.Context, workflowName, status string, skip, take int) ([]ExecutionRecord, error)
	Get(ctx context.Context, id string) (*ExecutionRecord, error)
	GetAllWorkflowStatistics(ctx context.Context) (map[string]WorkflowStatistics, error)
	GetDurationTrends(ctx context.Context, workflowName string, daysBack int) ([]DurationDataPoint, error)
}

// TaskLookup resolves the task resources visible to a namespace, used to
// build the taskRef → TaskResource map (§4.3 step 1).
type TaskLookup interface {
	DiscoverTasks(ctx context.Context, namespace string) ([]registry.WorkflowTaskResource, error)
}

// WorkflowLookup resolves a workflow by name, used by StartExecution.
type WorkflowLookup interface {
	GetWorkflowByName(ctx context.Context, name, namespace string) (*registry.WorkflowResource, error)
}

// Emitter is the event hub's publish-side contract.
type Emitter interface {
	Emit(executionID string, kind eventhub.EventKind, payload any)
}

// InputValidator checks an execution's input object against a workflow's
// declared input schema.
type InputValidator interface {
	Validate(schema map[string]registry.InputParameter, input map[string]any) validation.Result
}

// AnomalyEvaluator is notified of each completed execution's total
// duration (§4.6); a nil AnomalyEvaluator disables detection.
type AnomalyEvaluator interface {
	Evaluate(ctx context.Context, workflowName, taskID string, durationMs float64, executionID string) *anomaly.AnomalyEvent
}

// ValidationError carries the structured ValidationResult for a rejected
// input (§7: "no persistence").
type ValidationError struct {
	Result validation.Result
}

func (e *ValidationError) Error() string { return "input validation failed" }

// Engine runs workflow executions against an inner orchestrator and
// records their Running → terminal transitions (§4.3).
type Engine struct {
	repo           Repository
	tasks          TaskLookup
	workflows      WorkflowLookup
	orch           orchestrator.Orchestrator
	hub            Emitter
	validator      InputValidator
	anomaly        AnomalyEvaluator
	defaultTimeout time.Duration
	log            *logrus.Logger
	newID          func() string
	now            func() time.Time
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.defaultTimeout = d }
}

// WithAnomalyEvaluator wires an anomaly detector into the post-execution path.
func WithAnomalyEvaluator(a AnomalyEvaluator) Option {
	return func(e *Engine) { e.anomaly = a }
}

// NewEngine builds an Engine. repo may be nil (§4.3: null repository is a
// valid configuration).
func NewEngine(repo Repository, tasks TaskLookup, workflows WorkflowLookup, orch orchestrator.Orchestrator, hub Emitter, validator InputValidator, log *logrus.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	e := &Engine{
		repo:           repo,
		tasks:          tasks,
		workflows:      workflows,
		orch:           orch,
		hub:            hub,
		validator:      validator,
		defaultTimeout: DefaultTimeout,
		log:            log,
		newID:          uuid.NewString,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartExecution looks up workflow by name and runs the execution to
// completion in a background goroutine, returning the new execution id
// without waiting for it. The goroutine saves both the Running record and
// the completed record, so the Running record is not necessarily
// persisted yet when StartExecution returns.
func (e *Engine) StartExecution(ctx context.Context, name, namespace string, input map[string]any) (string, error) {
	workflow, err := e.workflows.GetWorkflowByName(ctx, name, namespace)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to look up workflow")
	}
	if workflow == nil {
		return "", apperrors.NewNotFoundError(fmt.Sprintf("workflow %q", name))
	}

	id := e.newID()
	bg := detachedContext(ctx)
	go func() {
		if _, err := e.execute(bg, *workflow, input, id); err != nil {
			e.log.WithError(err).WithField("executionId", id).Warn("execution: background execution failed")
		}
	}()
	return id, nil
}

// Execute runs workflow synchronously to completion and returns the
// mirrored ExecutionResponse (§4.3 public contract `execute`).
func (e *Engine) Execute(ctx context.Context, workflow registry.WorkflowResource, input map[string]any) (ExecutionResponse, error) {
	id := e.newID()
	return e.execute(ctx, workflow, input, id)
}

func (e *Engine) execute(ctx context.Context, workflow registry.WorkflowResource, input map[string]any, id string) (ExecutionResponse, error) {
	workflowName := workflow.Metadata.Name
	if workflowName == "" {
		workflowName = "unknown"
	}
	namespace := workflow.Metadata.Namespace
	if namespace == "" {
		namespace = "default"
	}

	if input == nil {
		input = map[string]any{}
	}
	result := e.validator.Validate(workflow.Spec.Input, input)
	if !result.IsValid {
		return ExecutionResponse{}, &ValidationError{Result: result}
	}

	taskList, err := e.tasks.DiscoverTasks(ctx, namespace)
	if err != nil {
		return ExecutionResponse{}, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to discover tasks")
	}
	tasksByRef := make(map[string]registry.WorkflowTaskResource, len(taskList))
	for _, t := range taskList {
		tasksByRef[t.Metadata.Name] = t
	}

	startedAt := e.now()
	inputSnapshot := versioning.CanonicalValueJSON(input)

	running := ExecutionRecord{
		ID:            id,
		WorkflowName:  workflowName,
		Namespace:     namespace,
		Status:        StatusRunning,
		StartedAt:     startedAt,
		InputSnapshot: inputSnapshot,
	}
	e.save(ctx, running)
	e.hub.Emit(id, eventhub.EventWorkflowStarted, eventhub.WorkflowStartedPayload{WorkflowName: workflowName})

	timeout := e.defaultTimeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	orchResult := e.runOrchestrator(execCtx, workflow, input, tasksByRef)
	completedAt := e.now()
	duration := completedAt.Sub(startedAt)

	status, errMsg := classify(ctx, execCtx, orchResult)
	record := ExecutionRecord{
		ID:            id,
		WorkflowName:  workflowName,
		Namespace:     namespace,
		Status:        status,
		StartedAt:     startedAt,
		CompletedAt:   &completedAt,
		Duration:      &duration,
		InputSnapshot: inputSnapshot,
		Error:         errMsg,
		Tasks:         mapTaskResults(workflow, orchResult.TaskResults),
	}
	e.save(ctx, record)
	e.hub.Emit(id, eventhub.EventWorkflowDone, eventhub.WorkflowCompletedPayload{
		WorkflowName: workflowName,
		Status:       string(status),
		Output:       orchResult.Output,
		Duration:     duration,
	})

	e.evaluateAnomaly(ctx, workflowName, id, duration, record.Tasks)

	executedTasks := make([]string, 0, len(record.Tasks))
	for _, t := range record.Tasks {
		executedTasks = append(executedTasks, t.TaskID)
	}

	return ExecutionResponse{
		ID:                  id,
		WorkflowName:        workflowName,
		Namespace:           namespace,
		Status:              status,
		StartedAt:           startedAt,
		CompletedAt:         &completedAt,
		Error:               errMsg,
		Tasks:               record.Tasks,
		ExecutionTimeMs:     float64(duration.Microseconds()) / 1000.0,
		ExecutedTasks:       executedTasks,
		OrchestrationCostUs: orchResult.OrchestrationCost.Microseconds(),
		GraphDiagnostics:    orchResult.GraphDiagnostics,
	}, nil
}

// runOrchestrator insulates the engine from an orchestrator that panics
// instead of returning a result (§7: "Orchestrator exception").
func (e *Engine) runOrchestrator(ctx context.Context, workflow registry.WorkflowResource, input map[string]any, tasksByRef map[string]registry.WorkflowTaskResource) (result orchestrator.WorkflowExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			result = orchestrator.WorkflowExecutionResult{
				Success: false,
				Errors:  []string{fmt.Sprintf("Unexpected error during workflow execution: %v", r)},
			}
		}
	}()
	return e.orch.Execute(ctx, workflow, input, tasksByRef)
}

// classify maps the orchestrator outcome and context state to the §7
// status/error taxonomy. Cancellation is distinguished from our own
// configured timeout by checking whether the *caller's* context (not the
// derived execCtx) was the one that expired — comparing the parent's
// Err() directly rather than execCtx's, since execCtx always reports
// DeadlineExceeded once its own deadline passes regardless of which
// context actually triggered it (§9 design note).
func classify(parent, execCtx context.Context, result orchestrator.WorkflowExecutionResult) (Status, *string) {
	if parent.Err() == context.Canceled {
		msg := "Workflow execution was canceled"
		return StatusCanceled, &msg
	}
	if execCtx.Err() == context.DeadlineExceeded {
		msg := "workflow execution timed out"
		return StatusFailed, &msg
	}
	if !result.Success {
		msg := strings.Join(result.Errors, "; ")
		if msg == "" {
			msg = "workflow execution failed"
		}
		return StatusFailed, &msg
	}
	return StatusSucceeded, nil
}

func mapTaskResults(workflow registry.WorkflowResource, taskResults map[string]orchestrator.TaskExecutionResult) []TaskExecutionRecord {
	stepByID := make(map[string]registry.TaskStep, len(workflow.Spec.Tasks))
	for _, s := range workflow.Spec.Tasks {
		stepByID[s.ID] = s
	}

	records := make([]TaskExecutionRecord, 0, len(taskResults))
	for _, step := range workflow.Spec.Tasks {
		result, ok := taskResults[step.ID]
		if !ok {
			continue
		}
		status := "Failed"
		switch result.Status {
		case orchestrator.TaskStatusSuccess:
			status = "Succeeded"
		case orchestrator.TaskStatusSkipped:
			status = "Skipped"
		}

		errInfo := result.ErrorInfo
		if errInfo != nil && (errInfo.TaskID == "" || errInfo.TaskName == "") {
			enriched := *errInfo
			if enriched.TaskID == "" {
				enriched.TaskID = step.ID
			}
			if enriched.TaskName == "" {
				enriched.TaskName = step.TaskRef
			}
			errInfo = &enriched
		}

		records = append(records, TaskExecutionRecord{
			TaskID:        result.TaskID,
			TaskRef:       result.TaskRef,
			StartedAt:     result.StartedAt,
			CompletedAt:   result.CompletedAt,
			Duration:      result.Duration,
			Status:        status,
			RetryCount:    result.RetryCount,
			ResolvedURL:   result.ResolvedURL,
			HTTPMethod:    result.HTTPMethod,
			OutputPreview: result.OutputPreview,
			ErrorInfo:     errInfo,
		})
	}
	return records
}

// save persists record, swallowing and logging any repository error
// (§4.3: a null repository is a valid configuration; the same tolerant
// path also covers transient store failures so they never fail the
// caller's execution).
func (e *Engine) save(ctx context.Context, record ExecutionRecord) {
	if e.repo == nil {
		return
	}
	if err := e.repo.Save(ctx, record); err != nil {
		e.log.WithError(err).WithField("executionId", record.ID).Error("execution: failed to persist record")
	}
}

// evaluateAnomaly feeds the workflow's total duration and every task's
// duration into the anomaly detector, best-effort (§7: "Statistics/
// notifier failure... swallowed").
func (e *Engine) evaluateAnomaly(ctx context.Context, workflowName, executionID string, duration time.Duration, tasks []TaskExecutionRecord) {
	if e.anomaly == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.WithField("panic", r).Warn("execution: anomaly evaluation panicked, swallowed")
		}
	}()
	e.anomaly.Evaluate(ctx, workflowName, "", float64(duration.Milliseconds()), executionID)
	for _, t := range tasks {
		e.anomaly.Evaluate(ctx, workflowName, t.TaskID, float64(t.Duration.Milliseconds()), executionID)
	}
}

// detachedContext carries no deadline from ctx but keeps it as a value
// source, so a background execution is not cut short by the HTTP
// request context that triggered start_execution.
func detachedContext(ctx context.Context) context.Context {
	return detached{ctx}
}

type detached struct {
	context.Context
}

func (detached) Deadline() (time.Time, bool) { return time.Time{}, false }
func (detached) Done() <-chan struct{}       { return nil }
func (detached) Err() error                  { return nil }
