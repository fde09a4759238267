// Package execution implements the execution engine & persistence
// responsibility of §4.3: durable Running → terminal state transitions
// around an inner orchestrator invocation.
package execution

import (
	"time"

	"github.com/daz23456/workflow-sub005/pkg/orchestrator"
)

// Status is the lifecycle of an ExecutionRecord (§3).
type Status string

const (
	StatusRunning   Status = "Running"
	StatusSucceeded Status = "Succeeded"
	StatusFailed    Status = "Failed"
	StatusCanceled  Status = "Canceled"
)

// TaskExecutionRecord is the persisted per-task outcome (§3).
type TaskExecutionRecord struct {
	TaskID        string                     `json:"taskId"`
	TaskRef       string                     `json:"taskRef"`
	StartedAt     time.Time                  `json:"startedAt"`
	CompletedAt   time.Time                  `json:"completedAt"`
	Duration      time.Duration              `json:"duration"`
	Status        string                     `json:"status"`
	RetryCount    int                        `json:"retryCount"`
	ResolvedURL   string                     `json:"resolvedUrl,omitempty"`
	HTTPMethod    string                     `json:"httpMethod,omitempty"`
	OutputPreview string                     `json:"outputPreview,omitempty"`
	ErrorInfo     *orchestrator.TaskErrorInfo `json:"errorInfo,omitempty"`
}

// ExecutionRecord is the durable, owned execution state (§3).
type ExecutionRecord struct {
	ID            string                `json:"id"`
	WorkflowName  string                `json:"workflowName"`
	Namespace     string                `json:"namespace"`
	Status        Status                `json:"status"`
	StartedAt     time.Time             `json:"startedAt"`
	CompletedAt   *time.Time            `json:"completedAt,omitempty"`
	Duration      *time.Duration        `json:"duration,omitempty"`
	InputSnapshot []byte                `json:"inputSnapshot"`
	Error         *string               `json:"error,omitempty"`
	Tasks         []TaskExecutionRecord `json:"tasks"`
}

// ExecutionResponse mirrors the persisted record plus derived fields
// returned to the HTTP caller (§4.3 step 9).
type ExecutionResponse struct {
	ID                 string                          `json:"id"`
	WorkflowName        string                          `json:"workflowName"`
	Namespace            string                          `json:"namespace"`
	Status               Status                          `json:"status"`
	StartedAt            time.Time                       `json:"startedAt"`
	CompletedAt          *time.Time                      `json:"completedAt,omitempty"`
	Error                *string                         `json:"error,omitempty"`
	Tasks                []TaskExecutionRecord           `json:"tasks"`
	ExecutionTimeMs      float64                         `json:"executionTimeMs"`
	ExecutedTasks        []string                        `json:"executedTasks"`
	OrchestrationCostUs  int64                           `json:"orchestrationCostUs"`
	GraphDiagnostics     *orchestrator.GraphDiagnostics  `json:"graphDiagnostics,omitempty"`
}

// TracePoint is one task's contribution to an ExecutionTrace.
type TracePoint struct {
	TaskID      string        `json:"taskId"`
	StartedAt   time.Time     `json:"startedAt"`
	CompletedAt time.Time     `json:"completedAt"`
	WaitTimeMs  float64       `json:"waitTimeMs"`
}

// ExecutionTrace is the dependency-driven telemetry computed on demand
// (§4.3: "if the caller requests an ExecutionTrace").
type ExecutionTrace struct {
	ExecutionID    string         `json:"executionId"`
	Tasks          []TracePoint   `json:"tasks"`
	ParallelGroups [][]string     `json:"parallelGroups"`
}

// WorkflowStatistics aggregates execution outcomes for one workflow,
// served by ExecutionRepository.GetAllWorkflowStatistics (§6).
type WorkflowStatistics struct {
	WorkflowName    string  `json:"workflowName"`
	TotalExecutions int     `json:"totalExecutions"`
	SuccessCount    int     `json:"successCount"`
	FailureCount    int     `json:"failureCount"`
	AvgDurationMs   float64 `json:"avgDurationMs"`
}

// DurationDataPoint is one bucket of ExecutionRepository.GetDurationTrends.
type DurationDataPoint struct {
	Day           time.Time `json:"day"`
	AvgDurationMs float64   `json:"avgDurationMs"`
	Count         int       `json:"count"`
}
