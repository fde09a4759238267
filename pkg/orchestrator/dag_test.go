package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daz23456/workflow-sub005/pkg/registry"
)

type recordingExecutor struct {
	mu      sync.Mutex
	started map[string]time.Time
	delay   map[string]time.Duration
	fail    map[string]bool
}

func newRecordingExecutor() *recordingExecutor {
	return &recordingExecutor{started: map[string]time.Time{}, delay: map[string]time.Duration{}, fail: map[string]bool{}}
}

func (e *recordingExecutor) ExecuteStep(ctx context.Context, step registry.TaskStep, _ *registry.WorkflowTaskResource, input map[string]string) (StepResult, error) {
	e.mu.Lock()
	e.started[step.ID] = time.Now()
	d := e.delay[step.ID]
	shouldFail := e.fail[step.ID]
	e.mu.Unlock()

	select {
	case <-time.After(d):
	case <-ctx.Done():
		return StepResult{}, ctx.Err()
	}
	if shouldFail {
		return StepResult{}, assertErr("step failed")
	}
	return StepResult{Output: map[string]any{"value": step.ID}, ResolvedURL: "http://task/" + step.ID, HTTPMethod: "POST"}, nil
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(s string) error { return simpleErr(s) }

func task(id string, deps ...string) registry.TaskStep {
	return registry.TaskStep{ID: id, TaskRef: id, DependsOn: deps}
}

func taskMap(ids ...string) map[string]registry.WorkflowTaskResource {
	m := make(map[string]registry.WorkflowTaskResource, len(ids))
	for _, id := range ids {
		m[id] = registry.WorkflowTaskResource{Metadata: registry.ObjectMeta{Name: id}}
	}
	return m
}

func TestExecute_RunsAllTasksToSuccess(t *testing.T) {
	wf := registry.WorkflowResource{
		Metadata: registry.ObjectMeta{Name: "wf"},
		Spec: registry.WorkflowSpec{
			Tasks: []registry.TaskStep{task("t1"), task("t2", "t1")},
		},
	}
	o := NewDAGOrchestrator(newRecordingExecutor(), 4, nil)

	result := o.Execute(context.Background(), wf, nil, taskMap("t1", "t2"))

	require.True(t, result.Success)
	require.Len(t, result.TaskResults, 2)
	assert.Equal(t, TaskStatusSuccess, result.TaskResults["t1"].Status)
	assert.Equal(t, TaskStatusSuccess, result.TaskResults["t2"].Status)
	assert.NotNil(t, result.GraphDiagnostics)
	assert.Equal(t, 2, result.GraphDiagnostics.TaskCount)
}

func TestExecute_MissingTaskRefFailsOnlyThatTask(t *testing.T) {
	wf := registry.WorkflowResource{
		Spec: registry.WorkflowSpec{Tasks: []registry.TaskStep{task("t1")}},
	}
	o := NewDAGOrchestrator(newRecordingExecutor(), 4, nil)

	result := o.Execute(context.Background(), wf, nil, map[string]registry.WorkflowTaskResource{})

	require.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, TaskStatusFailed, result.TaskResults["t1"].Status)
	assert.Equal(t, ErrorTypeValidation, result.TaskResults["t1"].ErrorInfo.ErrorType)
}

func TestExecute_DownstreamTaskSkippedAfterDependencyFailure(t *testing.T) {
	exec := newRecordingExecutor()
	exec.fail["t1"] = true
	wf := registry.WorkflowResource{
		Spec: registry.WorkflowSpec{Tasks: []registry.TaskStep{task("t1"), task("t2", "t1")}},
	}
	o := NewDAGOrchestrator(exec, 4, nil)

	result := o.Execute(context.Background(), wf, nil, taskMap("t1", "t2"))

	require.False(t, result.Success)
	assert.Equal(t, TaskStatusFailed, result.TaskResults["t1"].Status)
	assert.Equal(t, TaskStatusSkipped, result.TaskResults["t2"].Status)
}

func TestExecute_ParallelGroupsByDependencyLevel(t *testing.T) {
	exec := newRecordingExecutor()
	exec.delay["t1"] = 0
	exec.delay["t2"] = 0
	exec.delay["t3"] = 0
	wf := registry.WorkflowResource{
		Spec: registry.WorkflowSpec{
			Tasks: []registry.TaskStep{task("t1"), task("t2"), task("t3", "t1", "t2")},
		},
	}
	o := NewDAGOrchestrator(exec, 4, nil)

	result := o.Execute(context.Background(), wf, nil, taskMap("t1", "t2", "t3"))

	require.True(t, result.Success)
	groups := result.GraphDiagnostics.ParallelGroups
	require.Len(t, groups, 2)
	assert.ElementsMatch(t, []string{"t1", "t2"}, groups[0])
	assert.Equal(t, []string{"t3"}, groups[1])
}

func TestExecute_TimeoutMarksRemainingTasksAndReturnsFailure(t *testing.T) {
	exec := newRecordingExecutor()
	exec.delay["t1"] = 200 * time.Millisecond
	wf := registry.WorkflowResource{
		Spec: registry.WorkflowSpec{Tasks: []registry.TaskStep{task("t1")}},
	}
	o := NewDAGOrchestrator(exec, 4, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result := o.Execute(ctx, wf, nil, taskMap("t1"))

	assert.False(t, result.Success)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[len(result.Errors)-1], "timed out")
}

func TestExecute_OutputBindingsResolveFromTaskOutputs(t *testing.T) {
	exec := newRecordingExecutor()
	wf := registry.WorkflowResource{
		Spec: registry.WorkflowSpec{
			Tasks:  []registry.TaskStep{task("t1")},
			Output: map[string]string{"result": "t1.value"},
		},
	}
	o := NewDAGOrchestrator(exec, 4, nil)

	result := o.Execute(context.Background(), wf, nil, taskMap("t1"))

	require.True(t, result.Success)
	assert.Equal(t, "t1", result.Output["result"])
}

func TestExecute_EmptyTaskListSucceedsTrivially(t *testing.T) {
	wf := registry.WorkflowResource{}
	o := NewDAGOrchestrator(newRecordingExecutor(), 4, nil)

	result := o.Execute(context.Background(), wf, nil, map[string]registry.WorkflowTaskResource{})

	assert.True(t, result.Success)
	assert.Empty(t, result.TaskResults)
}
