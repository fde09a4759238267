package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/daz23456/workflow-sub005/internal/errors"
	"github.com/daz23456/workflow-sub005/pkg/eventhub"
	"github.com/daz23456/workflow-sub005/pkg/execution"
	"github.com/daz23456/workflow-sub005/pkg/orchestrator"
	"github.com/daz23456/workflow-sub005/pkg/registry"
	"github.com/daz23456/workflow-sub005/pkg/versioning"
)

// WorkflowService is the read-side contract handlers dispatch to for
// workflow/task listing and lookup.
type WorkflowService interface {
	GetWorkflowByName(ctx context.Context, name, namespace string) (*registry.WorkflowResource, error)
	ListWorkflows(ctx context.Context, namespace string, skip, take int) ([]registry.WorkflowResource, error)
	ListTasks(ctx context.Context, namespace string) ([]registry.WorkflowTaskResource, error)
	ListVersions(ctx context.Context, workflowName string) ([]versioning.Version, error)
	UsedBy(taskRef string) []string
	Contains(workflowName string) []string
}

// ExecutionService is the contract handlers dispatch to for running and
// inspecting executions.
type ExecutionService interface {
	Execute(ctx context.Context, workflow registry.WorkflowResource, input map[string]any) (execution.ExecutionResponse, error)
	List(ctx context.Context, workflowName, status string, skip, take int) ([]execution.ExecutionRecord, error)
	Get(ctx context.Context, id string) (*execution.ExecutionRecord, error)
}

type handlers struct {
	deps Deps
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

// writeEngineError maps an execution-engine error to the §6 status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	var ve *execution.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, ve.Result)
		return
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		writeError(w, appErr.StatusCode, appErr.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// statusForExecution maps a terminal execution Status to the §6 exit
// code for the /execute response.
func statusForExecution(resp execution.ExecutionResponse) int {
	switch resp.Status {
	case execution.StatusSucceeded:
		return http.StatusOK
	case execution.StatusFailed:
		if resp.Error != nil && containsTimedOut(*resp.Error) {
			return http.StatusRequestTimeout
		}
		return http.StatusOK
	case execution.StatusCanceled:
		return 499
	default:
		return http.StatusOK
	}
}

func containsTimedOut(s string) bool {
	for i := 0; i+len("timed out") <= len(s); i++ {
		if s[i:i+len("timed out")] == "timed out" {
			return true
		}
	}
	return false
}

func pageParams(r *http.Request) (skip, take int) {
	skip, _ = strconv.Atoi(r.URL.Query().Get("skip"))
	take, _ = strconv.Atoi(r.URL.Query().Get("take"))
	if take <= 0 {
		take = 50
	}
	return skip, take
}

func (h *handlers) resolveWorkflow(w http.ResponseWriter, r *http.Request) *registry.WorkflowResource {
	name := chi.URLParam(r, "workflow")
	if !h.deps.Registry.Has(name) {
		writeError(w, http.StatusNotFound, "unknown workflow: "+name)
		return nil
	}
	wf, err := h.deps.Workflows.GetWorkflowByName(r.Context(), name, "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil
	}
	if wf == nil {
		writeError(w, http.StatusNotFound, "unknown workflow: "+name)
		return nil
	}
	return wf
}

func decodeInput(r *http.Request) (map[string]any, error) {
	input := map[string]any{}
	if r.ContentLength == 0 {
		return input, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		return nil, err
	}
	return input, nil
}

// execute handles POST /api/v1/workflows/{workflow}/execute (§6).
func (h *handlers) execute(w http.ResponseWriter, r *http.Request) {
	wf := h.resolveWorkflow(w, r)
	if wf == nil {
		return
	}
	input, err := decodeInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed input JSON: "+err.Error())
		return
	}

	resp, err := h.deps.Execs.Execute(r.Context(), *wf, input)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, statusForExecution(resp), resp)
}

// test handles POST /api/v1/workflows/{workflow}/test: same body, but
// resolves and reports the DAG plan with no persistence and no
// visualization-group event emission (§6).
func (h *handlers) test(w http.ResponseWriter, r *http.Request) {
	wf := h.resolveWorkflow(w, r)
	if wf == nil {
		return
	}
	if _, err := decodeInput(r); err != nil {
		writeError(w, http.StatusBadRequest, "malformed input JSON: "+err.Error())
		return
	}

	tasks, err := h.deps.Workflows.ListTasks(r.Context(), wf.Metadata.Namespace)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	tasksByRef := make(map[string]registry.WorkflowTaskResource, len(tasks))
	for _, t := range tasks {
		tasksByRef[t.Metadata.Name] = t
	}

	diagnostics := orchestrator.NewDAGOrchestrator(noopExecutor{}, 1, nil)
	plan := diagnostics.Execute(r.Context(), *wf, nil, tasksByRef)

	writeJSON(w, http.StatusOK, map[string]any{
		"workflowName":  wf.Metadata.Name,
		"executionPlan": plan.GraphDiagnostics,
	})
}

// noopExecutor lets /test resolve the DAG's structure (root tasks,
// parallel groups) without invoking any real task step — the DAG still
// runs, but every step it reaches returns an empty result, and only
// GraphDiagnostics is put in the response.
type noopExecutor struct{}

func (noopExecutor) ExecuteStep(context.Context, registry.TaskStep, *registry.WorkflowTaskResource, map[string]string) (orchestrator.StepResult, error) {
	return orchestrator.StepResult{}, nil
}

// getWorkflow handles GET /api/v1/workflows/{workflow} (§6).
func (h *handlers) getWorkflow(w http.ResponseWriter, r *http.Request) {
	wf := h.resolveWorkflow(w, r)
	if wf == nil {
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// listWorkflows handles GET /api/v1/workflows?skip=&take=.
func (h *handlers) listWorkflows(w http.ResponseWriter, r *http.Request) {
	skip, take := pageParams(r)
	workflows, err := h.deps.Workflows.ListWorkflows(r.Context(), r.URL.Query().Get("namespace"), skip, take)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, workflows)
}

// listExecutions handles GET /api/v1/workflows/{workflow}/executions?skip=&take=.
func (h *handlers) listExecutions(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "workflow")
	skip, take := pageParams(r)
	execs, err := h.deps.Execs.List(r.Context(), name, "", skip, take)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, execs)
}

// getExecution handles GET /api/v1/executions/{id}.
func (h *handlers) getExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	record, err := h.deps.Execs.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "unknown execution: "+id)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// getExecutionTrace handles GET /api/v1/executions/{id}/trace (§4.3).
func (h *handlers) getExecutionTrace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	record, err := h.deps.Execs.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "unknown execution: "+id)
		return
	}

	wf, err := h.deps.Workflows.GetWorkflowByName(r.Context(), record.WorkflowName, record.Namespace)
	if err != nil || wf == nil {
		writeError(w, http.StatusNotFound, "workflow no longer discoverable: "+record.WorkflowName)
		return
	}
	dependsOn := make(map[string][]string, len(wf.Spec.Tasks))
	for _, step := range wf.Spec.Tasks {
		dependsOn[step.ID] = step.DependsOn
	}

	trace := execution.BuildTrace(id, record.Tasks, dependsOn)
	writeJSON(w, http.StatusOK, trace)
}

// listVersions handles GET /api/v1/workflows/{workflow}/versions.
func (h *handlers) listVersions(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "workflow")
	versions, err := h.deps.Workflows.ListVersions(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

// blastRadiusUsedBy handles GET /api/v1/tasks/{taskRef}/used-by (§3).
func (h *handlers) blastRadiusUsedBy(w http.ResponseWriter, r *http.Request) {
	taskRef := chi.URLParam(r, "taskRef")
	writeJSON(w, http.StatusOK, map[string]any{"taskRef": taskRef, "usedBy": h.deps.Workflows.UsedBy(taskRef)})
}

// blastRadiusContains handles GET /api/v1/workflows/{workflow}/contains (§3).
func (h *handlers) blastRadiusContains(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "workflow")
	writeJSON(w, http.StatusOK, map[string]any{"workflowName": name, "contains": h.deps.Workflows.Contains(name)})
}

// listTasks handles GET /api/v1/tasks?namespace=.
func (h *handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.deps.Workflows.ListTasks(r.Context(), r.URL.Query().Get("namespace"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// events handles GET /ws/events, upgrading to the realtime event stream
// (§4.4/§6). ?executionId= selects that execution's group, defaulting to
// the shared visualization group, which receives a copy of every
// execution event.
func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	group := eventhub.VisualizationGroup
	if id := r.URL.Query().Get("executionId"); id != "" {
		group = eventhub.ExecutionGroup(id)
	}
	if err := eventhub.ServeWebSocket(h.deps.Hub, group, h.deps.Log, w, r); err != nil {
		h.deps.Log.WithError(err).Warn("httpserver: event stream closed with error")
	}
}
