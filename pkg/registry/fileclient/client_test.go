package fileclient

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestClient_ListWorkflowsAndTasks(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "wf.yaml", `
kind: Workflow
metadata:
  name: demo
  namespace: default
spec:
  description: a workflow
`)
	writeFile(t, dir, "task.yaml", `
kind: WorkflowTask
metadata:
  name: http-call
  namespace: default
spec:
  type: http
`)
	writeFile(t, dir, "notes.txt", "not yaml")

	c := New(dir)

	workflows, err := c.ListWorkflows(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, workflows, 1)
	assert.Equal(t, "demo", workflows[0].Metadata.Name)

	tasks, err := c.ListWorkflowTasks(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "http-call", tasks[0].Metadata.Name)
}

func TestClient_NamespaceFilter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", `
kind: Workflow
metadata:
  name: a
  namespace: team-a
spec: {}
`)
	writeFile(t, dir, "b.yaml", `
kind: Workflow
metadata:
  name: b
  namespace: team-b
spec: {}
`)

	c := New(dir)
	workflows, err := c.ListWorkflows(context.Background(), "team-a")
	require.NoError(t, err)
	require.Len(t, workflows, 1)
	assert.Equal(t, "a", workflows[0].Metadata.Name)
}
