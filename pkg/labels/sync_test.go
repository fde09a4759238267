package labels

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daz23456/workflow-sub005/pkg/registry"
)

type recordingRepo struct {
	workflowCalls   [][]WorkflowLabels
	taskCalls       [][]TaskLabels
	deleteCalls     [][2][]string
	recomputeCount  int
}

func (r *recordingRepo) UpsertWorkflowLabels(_ context.Context, labels []WorkflowLabels) error {
	r.workflowCalls = append(r.workflowCalls, labels)
	return nil
}

func (r *recordingRepo) UpsertTaskLabels(_ context.Context, labels []TaskLabels) error {
	r.taskCalls = append(r.taskCalls, labels)
	return nil
}

func (r *recordingRepo) DeleteMissing(_ context.Context, workflowsPresent, tasksPresent []string) error {
	r.deleteCalls = append(r.deleteCalls, [2][]string{workflowsPresent, tasksPresent})
	return nil
}

func (r *recordingRepo) RecomputeUsageStats(context.Context) error {
	r.recomputeCount++
	return nil
}

func TestSync_UpsertsLabelsForEveryNamedEntity(t *testing.T) {
	repo := &recordingRepo{}
	s := New(repo, nil)

	workflows := []registry.WorkflowResource{
		{Metadata: registry.ObjectMeta{Name: "wf1"}, Spec: registry.WorkflowSpec{Tags: []string{"a"}, Categories: []string{"ops"}}},
		{Metadata: registry.ObjectMeta{}}, // unnamed, skipped
	}
	tasks := []registry.WorkflowTaskResource{
		{Metadata: registry.ObjectMeta{Name: "t1"}, Spec: registry.WorkflowTaskSpec{Category: "http"}},
	}

	s.Sync(context.Background(), workflows, tasks)

	require.Len(t, repo.workflowCalls, 1)
	assert.Len(t, repo.workflowCalls[0], 1)
	assert.Equal(t, "wf1", repo.workflowCalls[0][0].WorkflowName)

	require.Len(t, repo.taskCalls, 1)
	assert.Equal(t, "t1", repo.taskCalls[0][0].TaskName)

	require.Len(t, repo.deleteCalls, 1)
	assert.Equal(t, []string{"wf1"}, repo.deleteCalls[0][0])
	assert.Equal(t, []string{"t1"}, repo.deleteCalls[0][1])

	assert.Equal(t, 1, repo.recomputeCount)
}

func TestSync_NilRepositoryIsNoOp(t *testing.T) {
	s := New(nil, nil)
	assert.NotPanics(t, func() {
		s.Sync(context.Background(), nil, nil)
	})
}
