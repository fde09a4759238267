package blastradius

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/daz23456/workflow-sub005/pkg/registry"
)

func wf(name string, taskRefs ...string) registry.WorkflowResource {
	tasks := make([]registry.TaskStep, 0, len(taskRefs))
	for i, ref := range taskRefs {
		tasks = append(tasks, registry.TaskStep{ID: string(rune('a' + i)), TaskRef: ref})
	}
	return registry.WorkflowResource{
		Metadata: registry.ObjectMeta{Name: name},
		Spec:     registry.WorkflowSpec{Tasks: tasks},
	}
}

func TestUsedBy_ReturnsExactlyReferencingWorkflowsCaseInsensitively(t *testing.T) {
	idx := New()
	idx.Rebuild([]registry.WorkflowResource{
		wf("Deploy", "http-call"),
		wf("Rollback", "HTTP-Call"),
		wf("Unrelated", "other-task"),
	})

	names := idx.UsedBy("Http-Call")
	sort.Strings(names)
	assert.Equal(t, []string{"Deploy", "Rollback"}, names)
}

func TestContains_ReturnsDisplayCasedTaskRefs(t *testing.T) {
	idx := New()
	idx.Rebuild([]registry.WorkflowResource{
		wf("Deploy", "HTTP-Call", "Notify"),
	})

	refs := idx.Contains("Deploy")
	sort.Strings(refs)
	assert.Equal(t, []string{"HTTP-Call", "Notify"}, refs)
}

func TestRebuild_ReplacesPreviousState(t *testing.T) {
	idx := New()
	idx.Rebuild([]registry.WorkflowResource{wf("Deploy", "task-a")})
	assert.Equal(t, []string{"Deploy"}, idx.UsedBy("task-a"))

	idx.Rebuild([]registry.WorkflowResource{wf("Deploy", "task-b")})
	assert.Empty(t, idx.UsedBy("task-a"))
	assert.Equal(t, []string{"Deploy"}, idx.UsedBy("task-b"))
}
