// Package orchestrator defines the inner-orchestrator contract the
// execution engine invokes (§4.3 step 5) and a concrete DAG-based
// implementation of it.
package orchestrator

import (
	"context"
	"time"

	"github.com/daz23456/workflow-sub005/pkg/registry"
)

// TaskStatus is the per-task outcome reported by the inner orchestrator.
type TaskStatus string

const (
	TaskStatusSuccess TaskStatus = "Success"
	TaskStatusFailed  TaskStatus = "Failed"
	TaskStatusSkipped TaskStatus = "Skipped"
)

// ErrorType normalizes a task failure into the taxonomy of §7.
type ErrorType string

const (
	ErrorTypeHTTPError    ErrorType = "HttpError"
	ErrorTypeTimeout      ErrorType = "Timeout"
	ErrorTypeValidation   ErrorType = "Validation"
	ErrorTypeCancellation ErrorType = "Cancellation"
	ErrorTypeOther        ErrorType = "Other"
)

// TaskErrorInfo is the normalized, surface-visible error shape of §7.
type TaskErrorInfo struct {
	TaskID                         string
	TaskName                       string
	ErrorType                      ErrorType
	ErrorMessage                   string
	ErrorCode                      string
	ServiceName                    string
	ServiceURL                     string
	HTTPMethod                     string
	HTTPStatusCode                 int
	ResponseBodyPreview            string
	RetryAttempts                  int
	IsRetryable                    bool
	DurationUntilErrorMs           float64
	Suggestion                     string
	SupportAction                  string
	ResponseCompliance             string
	ResponseComplianceScore        float64
	ResponseComplianceIssues       []string
	ResponseComplianceRecommendations []string
}

// TaskExecutionResult is one task node's outcome, as returned by the
// inner orchestrator (§4.3 step 6).
type TaskExecutionResult struct {
	TaskID        string
	TaskRef       string
	Status        TaskStatus
	StartedAt     time.Time
	CompletedAt   time.Time
	Duration      time.Duration
	RetryCount    int
	ResolvedURL   string
	HTTPMethod    string
	OutputPreview string
	Output        any
	ErrorInfo     *TaskErrorInfo
}

// GraphDiagnostics summarizes the resolved task graph for observability
// and for the "test" endpoint's executionPlan (§6).
type GraphDiagnostics struct {
	TaskCount      int
	RootTaskIDs    []string
	ParallelGroups [][]string
}

// WorkflowExecutionResult is the inner orchestrator's return value,
// mapped by the execution engine into a persisted ExecutionRecord
// (§4.3 step 6).
type WorkflowExecutionResult struct {
	Success             bool
	Output              map[string]any
	Errors              []string
	TaskResults         map[string]TaskExecutionResult
	OrchestrationCost   time.Duration
	GraphDiagnostics    *GraphDiagnostics
	GraphBuildDuration  time.Duration
}

// StepResult is what the inner task-step executor returns for one task
// step invocation.
type StepResult struct {
	Output      map[string]any
	ResolvedURL string
	HTTPMethod  string
}

// TaskStepExecutor is the external collaborator that actually invokes one
// task step (HTTP call, schema validation, ...). §1 scopes only the
// orchestrator's contract with it; the concrete behavior behind the
// interface is out of scope for this core.
type TaskStepExecutor interface {
	ExecuteStep(ctx context.Context, step registry.TaskStep, task *registry.WorkflowTaskResource, resolvedInput map[string]string) (StepResult, error)
}

// Orchestrator is the contract the execution engine invokes (§4.3 step 5).
type Orchestrator interface {
	Execute(ctx context.Context, workflow registry.WorkflowResource, input map[string]any, tasksByRef map[string]registry.WorkflowTaskResource) WorkflowExecutionResult
}
