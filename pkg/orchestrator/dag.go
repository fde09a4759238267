package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/daz23456/workflow-sub005/pkg/registry"
)

// DefaultMaxWorkers bounds how many task steps run concurrently per
// workflow execution.
const DefaultMaxWorkers = 8

var (
	tasksExecutedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_orchestrator_tasks_executed_total",
		Help: "Task steps executed by the inner orchestrator, by outcome.",
	}, []string{"status"})

	taskDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_orchestrator_task_duration_seconds",
		Help:    "Duration of individual task step executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(tasksExecutedTotal, taskDurationSeconds)
}

type dagNode struct {
	ID       string
	Step     registry.TaskStep
	Children []string
	inDegree int
}

type dag struct {
	nodes map[string]*dagNode
	roots []string
}

// buildDAG turns a workflow's task list into an adjacency structure keyed
// by task id. §3's invariant guarantees dependsOn only references
// preceding ids and forms a DAG; buildDAG still detects a cycle
// defensively and reports it as a graph-build failure rather than
// hanging a worker pool.
func buildDAG(tasks []registry.TaskStep) (*dag, error) {
	nodes := make(map[string]*dagNode, len(tasks))
	for _, t := range tasks {
		nodes[t.ID] = &dagNode{ID: t.ID, Step: t}
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			parent, ok := nodes[dep]
			if !ok {
				continue
			}
			parent.Children = append(parent.Children, t.ID)
			nodes[t.ID].inDegree++
		}
	}

	var roots []string
	for id, n := range nodes {
		if n.inDegree == 0 {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)

	if len(tasks) > 0 && len(roots) == 0 {
		return nil, fmt.Errorf("workflow task graph has no root tasks (cycle)")
	}
	return &dag{nodes: nodes, roots: roots}, nil
}

// levels assigns each node its longest-path distance from a root; the
// resulting partition is GraphDiagnostics.ParallelGroups (siblings with no
// dependency between them share a level). The execution trace groups
// tasks by observed time overlap instead, not by these levels.
func (g *dag) levels() map[string]int {
	level := make(map[string]int, len(g.nodes))
	indeg := make(map[string]int, len(g.nodes))
	for id, n := range g.nodes {
		indeg[id] = n.inDegree
	}
	queue := append([]string(nil), g.roots...)
	for _, id := range queue {
		level[id] = 0
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, child := range g.nodes[id].Children {
			if level[child] < level[id]+1 {
				level[child] = level[id] + 1
			}
			indeg[child]--
			if indeg[child] == 0 {
				queue = append(queue, child)
			}
		}
	}
	return level
}

func (g *dag) parallelGroups() [][]string {
	level := g.levels()
	byLevel := make(map[int][]string)
	maxLevel := 0
	for id, lvl := range level {
		byLevel[lvl] = append(byLevel[lvl], id)
		if lvl > maxLevel {
			maxLevel = lvl
		}
	}
	groups := make([][]string, 0, maxLevel+1)
	for lvl := 0; lvl <= maxLevel; lvl++ {
		ids := byLevel[lvl]
		sort.Strings(ids)
		if len(ids) > 0 {
			groups = append(groups, ids)
		}
	}
	return groups
}

type taskOutcome struct {
	id     string
	result TaskExecutionResult
}

// DAGOrchestrator is the concrete Orchestrator implementation: it
// resolves the workflow's tasks into a DAG and executes it with a
// bounded worker pool, honoring ctx cancellation/deadline (§4.3 step 5).
type DAGOrchestrator struct {
	executor   TaskStepExecutor
	maxWorkers int
	log        *logrus.Logger
}

// NewDAGOrchestrator builds a DAGOrchestrator. maxWorkers falls back to
// DefaultMaxWorkers when <= 0.
func NewDAGOrchestrator(executor TaskStepExecutor, maxWorkers int, log *logrus.Logger) *DAGOrchestrator {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &DAGOrchestrator{executor: executor, maxWorkers: maxWorkers, log: log}
}

// Execute resolves and runs the workflow's task graph to completion (or
// until ctx is canceled/expires), returning a WorkflowExecutionResult
// that never itself panics or propagates an executor error — every
// failure is captured per-task in TaskResults and folded into Errors.
func (o *DAGOrchestrator) Execute(ctx context.Context, workflow registry.WorkflowResource, input map[string]any, tasksByRef map[string]registry.WorkflowTaskResource) WorkflowExecutionResult {
	start := time.Now()
	buildStart := time.Now()

	graph, err := buildDAG(workflow.Spec.Tasks)
	buildDuration := time.Since(buildStart)
	if err != nil {
		return WorkflowExecutionResult{
			Success:            false,
			Errors:             []string{err.Error()},
			TaskResults:        map[string]TaskExecutionResult{},
			GraphBuildDuration: buildDuration,
			OrchestrationCost:  time.Since(start),
		}
	}

	diagnostics := &GraphDiagnostics{
		TaskCount:      len(graph.nodes),
		RootTaskIDs:    append([]string(nil), graph.roots...),
		ParallelGroups: graph.parallelGroups(),
	}

	if len(graph.nodes) == 0 {
		return WorkflowExecutionResult{
			Success:            true,
			Output:             map[string]any{},
			TaskResults:        map[string]TaskExecutionResult{},
			GraphDiagnostics:   diagnostics,
			GraphBuildDuration: buildDuration,
			OrchestrationCost:  time.Since(start),
		}
	}

	results := o.executeDAG(ctx, graph, tasksByRef)

	var errs []string
	failed := false
	for _, id := range sortedKeys(results) {
		r := results[id]
		if r.Status == TaskStatusFailed && r.ErrorInfo != nil {
			failed = true
			errs = append(errs, fmt.Sprintf("task %s: %s", id, r.ErrorInfo.ErrorMessage))
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		failed = true
		if ctxErr == context.DeadlineExceeded {
			errs = append(errs, "workflow execution timed out")
		} else {
			errs = append(errs, "workflow execution was canceled")
		}
	}

	return WorkflowExecutionResult{
		Success:            !failed,
		Output:             collectOutput(workflow, results),
		Errors:             errs,
		TaskResults:        results,
		GraphDiagnostics:   diagnostics,
		GraphBuildDuration: buildDuration,
		OrchestrationCost:  time.Since(start),
	}
}

// executeDAG is the Kahn's-algorithm worker-pool core: a coordinator
// goroutine seeds ready tasks, a bounded pool of workers executes them,
// and the coordinator releases children as their dependencies complete.
func (o *DAGOrchestrator) executeDAG(ctx context.Context, graph *dag, tasksByRef map[string]registry.WorkflowTaskResource) map[string]TaskExecutionResult {
	results := make(map[string]TaskExecutionResult, len(graph.nodes))
	var mu sync.Mutex

	ready := make(chan string, len(graph.nodes))
	done := make(chan taskOutcome, len(graph.nodes))

	indeg := make(map[string]int, len(graph.nodes))
	skipped := make(map[string]bool, len(graph.nodes))
	for id, n := range graph.nodes {
		indeg[id] = n.inDegree
	}
	for _, id := range graph.roots {
		ready <- id
	}

	var wg sync.WaitGroup
	workers := o.maxWorkers
	if workers > len(graph.nodes) {
		workers = len(graph.nodes)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go o.worker(ctx, graph, tasksByRef, ready, done, skipped, &wg, &mu)
	}

	remaining := len(graph.nodes)
	for remaining > 0 {
		select {
		case <-ctx.Done():
			mu.Lock()
			for id, n := range graph.nodes {
				if _, ok := results[id]; !ok {
					results[id] = TaskExecutionResult{
						TaskID: id,
						TaskRef: n.Step.TaskRef,
						Status: TaskStatusSkipped,
					}
				}
			}
			mu.Unlock()
			close(ready)
			wg.Wait()
			return results
		case outcome := <-done:
			mu.Lock()
			results[outcome.id] = outcome.result
			remaining--
			node := graph.nodes[outcome.id]
			childSkip := outcome.result.Status != TaskStatusSuccess
			for _, child := range node.Children {
				indeg[child]--
				if childSkip {
					skipped[child] = true
				}
				if indeg[child] == 0 {
					ready <- child
				}
			}
			mu.Unlock()
		}
	}
	close(ready)
	wg.Wait()
	return results
}

func (o *DAGOrchestrator) worker(ctx context.Context, graph *dag, tasksByRef map[string]registry.WorkflowTaskResource, ready <-chan string, done chan<- taskOutcome, skipped map[string]bool, wg *sync.WaitGroup, mu *sync.Mutex) {
	defer wg.Done()
	for id := range ready {
		node := graph.nodes[id]

		mu.Lock()
		shouldSkip := skipped[id]
		mu.Unlock()

		var result TaskExecutionResult
		if shouldSkip {
			result = TaskExecutionResult{TaskID: id, TaskRef: node.Step.TaskRef, Status: TaskStatusSkipped}
		} else {
			result = o.executeOne(ctx, node.Step, tasksByRef)
		}
		select {
		case done <- taskOutcome{id: id, result: result}:
		case <-ctx.Done():
			return
		}
	}
}

func (o *DAGOrchestrator) executeOne(ctx context.Context, step registry.TaskStep, tasksByRef map[string]registry.WorkflowTaskResource) TaskExecutionResult {
	startedAt := time.Now()
	base := TaskExecutionResult{TaskID: step.ID, TaskRef: step.TaskRef, StartedAt: startedAt}

	task, ok := tasksByRef[step.TaskRef]
	var taskPtr *registry.WorkflowTaskResource
	if ok {
		taskPtr = &task
	} else {
		completed := time.Now()
		tasksExecutedTotal.WithLabelValues(string(TaskStatusFailed)).Inc()
		return finish(base, completed, TaskStatusFailed, nil, "", "", &TaskErrorInfo{
			TaskID:       step.ID,
			ErrorType:    ErrorTypeValidation,
			ErrorMessage: fmt.Sprintf("task resource not found for taskRef %q", step.TaskRef),
		})
	}

	stepResult, err := o.executor.ExecuteStep(ctx, step, taskPtr, step.Input)
	completed := time.Now()
	duration := completed.Sub(startedAt)
	taskDurationSeconds.WithLabelValues(outcomeLabel(err)).Observe(duration.Seconds())

	if err != nil {
		tasksExecutedTotal.WithLabelValues(string(TaskStatusFailed)).Inc()
		errType := ErrorTypeOther
		switch ctx.Err() {
		case context.DeadlineExceeded:
			errType = ErrorTypeTimeout
		case context.Canceled:
			errType = ErrorTypeCancellation
		}
		return finish(base, completed, TaskStatusFailed, nil, stepResult.ResolvedURL, stepResult.HTTPMethod, &TaskErrorInfo{
			TaskID:       step.ID,
			ErrorType:    errType,
			ErrorMessage: err.Error(),
		})
	}

	tasksExecutedTotal.WithLabelValues(string(TaskStatusSuccess)).Inc()
	return finish(base, completed, TaskStatusSuccess, stepResult.Output, stepResult.ResolvedURL, stepResult.HTTPMethod, nil)
}

func finish(base TaskExecutionResult, completed time.Time, status TaskStatus, output map[string]any, url, method string, errInfo *TaskErrorInfo) TaskExecutionResult {
	base.CompletedAt = completed
	base.Duration = completed.Sub(base.StartedAt)
	base.Status = status
	base.ResolvedURL = url
	base.HTTPMethod = method
	base.ErrorInfo = errInfo
	if output != nil {
		base.Output = output
		base.OutputPreview = previewOf(output)
	}
	return base
}

func outcomeLabel(err error) string {
	if err != nil {
		return string(TaskStatusFailed)
	}
	return string(TaskStatusSuccess)
}

func previewOf(output map[string]any) string {
	const maxLen = 256
	s := fmt.Sprintf("%v", output)
	if len(s) > maxLen {
		return s[:maxLen]
	}
	return s
}

// collectOutput maps the workflow's declared output bindings (§3:
// `output: map<string,string>`) to values taken from the completed
// tasks' outputs. A binding naming a task or field that never produced
// output is simply omitted.
func collectOutput(workflow registry.WorkflowResource, results map[string]TaskExecutionResult) map[string]any {
	out := make(map[string]any, len(workflow.Spec.Output))
	for outputKey, ref := range workflow.Spec.Output {
		taskID, field := splitOutputRef(ref)
		result, ok := results[taskID]
		if !ok || result.Output == nil {
			continue
		}
		outputMap, ok := result.Output.(map[string]any)
		if !ok {
			continue
		}
		if field == "" {
			out[outputKey] = outputMap
			continue
		}
		if v, ok := outputMap[field]; ok {
			out[outputKey] = v
		}
	}
	return out
}

// splitOutputRef parses a "taskId.field" output binding into its parts;
// a binding with no "." names the whole task output.
func splitOutputRef(ref string) (taskID, field string) {
	for i := 0; i < len(ref); i++ {
		if ref[i] == '.' {
			return ref[:i], ref[i+1:]
		}
	}
	return ref, ""
}

func sortedKeys(m map[string]TaskExecutionResult) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
