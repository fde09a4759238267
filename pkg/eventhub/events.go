package eventhub

import "time"

// EventKind enumerates the event taxonomy in §4.4.
type EventKind string

const (
	EventWorkflowStarted EventKind = "workflow_started"
	EventTaskStarted     EventKind = "task_started"
	EventTaskCompleted   EventKind = "task_completed"
	EventWorkflowDone    EventKind = "workflow_completed"
	EventSignalFlow      EventKind = "signal_flow"
	EventAnomaly         EventKind = "anomaly_detected"
)

// Event is the envelope delivered to subscribers. Payload carries the
// kind-specific fields described in §4.4.
type Event struct {
	Kind        EventKind `json:"kind"`
	ExecutionID string    `json:"executionId"`
	Timestamp   time.Time `json:"timestamp"`
	Payload     any       `json:"payload"`
}

// WorkflowStartedPayload is carried by EventWorkflowStarted.
type WorkflowStartedPayload struct {
	WorkflowName string `json:"workflowName"`
}

// TaskStartedPayload is carried by EventTaskStarted.
type TaskStartedPayload struct {
	TaskID   string `json:"taskId"`
	TaskName string `json:"taskName"`
}

// TaskCompletedPayload is carried by EventTaskCompleted.
type TaskCompletedPayload struct {
	TaskID   string        `json:"taskId"`
	TaskName string        `json:"taskName"`
	Status   string        `json:"status"`
	Output   any           `json:"output,omitempty"`
	Duration time.Duration `json:"duration"`
}

// WorkflowCompletedPayload is carried by EventWorkflowDone.
type WorkflowCompletedPayload struct {
	WorkflowName string        `json:"workflowName"`
	Status       string        `json:"status"`
	Output       any           `json:"output,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// SignalFlowPayload is carried by EventSignalFlow.
type SignalFlowPayload struct {
	FromTaskID string `json:"fromTaskId"`
	ToTaskID   string `json:"toTaskId"`
}

// AnomalyPayload is carried by EventAnomaly (§4.6's "notify the event
// hub's anomaly channel").
type AnomalyPayload struct {
	WorkflowName string  `json:"workflowName"`
	TaskID       string  `json:"taskId,omitempty"`
	Severity     string  `json:"severity"`
	ZScore       float64 `json:"zScore"`
	Actual       float64 `json:"actual"`
	Expected     float64 `json:"expected"`
}

// VisualizationGroup is the well-known group every event is also
// delivered to, in addition to the per-execution group (§4.4).
const VisualizationGroup = "visualization"

// ExecutionGroup returns the per-execution group name for executionID.
func ExecutionGroup(executionID string) string {
	return "execution-" + executionID
}
