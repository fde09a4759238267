package execution

import "sort"

// BuildTrace computes the dependency-driven telemetry for a completed
// execution (§4.3): each task's waitTimeMs since its dependencies
// finished, and the parallelGroups formed by tasks whose [startedAt,
// completedAt] intervals actually overlap in wall-clock time — distinct
// from the orchestrator's structural GraphDiagnostics.ParallelGroups,
// which groups by topological level regardless of observed timing.
func BuildTrace(executionID string, tasks []TaskExecutionRecord, dependsOn map[string][]string) ExecutionTrace {
	completedAt := make(map[string]TaskExecutionRecord, len(tasks))
	for _, t := range tasks {
		completedAt[t.TaskID] = t
	}

	points := make([]TracePoint, 0, len(tasks))
	for _, t := range tasks {
		var maxDepCompletion int64
		for _, dep := range dependsOn[t.TaskID] {
			depTask, ok := completedAt[dep]
			if !ok {
				continue
			}
			if ns := depTask.CompletedAt.UnixNano(); ns > maxDepCompletion {
				maxDepCompletion = ns
			}
		}
		waitMs := 0.0
		if maxDepCompletion > 0 {
			waitNs := t.StartedAt.UnixNano() - maxDepCompletion
			if waitNs > 0 {
				waitMs = float64(waitNs) / 1e6
			}
		}
		points = append(points, TracePoint{
			TaskID:      t.TaskID,
			StartedAt:   t.StartedAt,
			CompletedAt: t.CompletedAt,
			WaitTimeMs:  waitMs,
		})
	}

	sort.Slice(points, func(i, j int) bool { return points[i].StartedAt.Before(points[j].StartedAt) })

	return ExecutionTrace{
		ExecutionID:    executionID,
		Tasks:          points,
		ParallelGroups: groupByOverlap(points),
	}
}

// groupByOverlap merges tasks into overlap groups using a standard
// interval-merge sweep: sort by start, extend the current group's end
// while the next interval starts before it.
func groupByOverlap(points []TracePoint) [][]string {
	if len(points) == 0 {
		return nil
	}
	sorted := append([]TracePoint(nil), points...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartedAt.Before(sorted[j].StartedAt) })

	var groups [][]string
	current := []string{sorted[0].TaskID}
	currentEnd := sorted[0].CompletedAt

	for _, p := range sorted[1:] {
		if !p.StartedAt.After(currentEnd) {
			current = append(current, p.TaskID)
			if p.CompletedAt.After(currentEnd) {
				currentEnd = p.CompletedAt
			}
			continue
		}
		groups = append(groups, current)
		current = []string{p.TaskID}
		currentEnd = p.CompletedAt
	}
	groups = append(groups, current)
	return groups
}
