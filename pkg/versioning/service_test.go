package versioning

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daz23456/workflow-sub005/pkg/registry"
)

type memRepo struct {
	mu   sync.Mutex
	byWF map[string][]Version
}

func newMemRepo() *memRepo {
	return &memRepo{byWF: make(map[string][]Version)}
}

func (m *memRepo) Latest(_ context.Context, workflowName string) (*Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.byWF[workflowName]
	if len(versions) == 0 {
		return nil, nil
	}
	v := versions[len(versions)-1]
	return &v, nil
}

func (m *memRepo) Append(_ context.Context, version Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byWF[version.WorkflowName] = append(m.byWF[version.WorkflowName], version)
	return nil
}

func (m *memRepo) List(_ context.Context, workflowName string) ([]Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Version(nil), m.byWF[workflowName]...), nil
}

func workflowWithDescription(desc string) registry.WorkflowResource {
	return registry.WorkflowResource{
		Metadata: registry.ObjectMeta{Name: "wf"},
		Spec:     registry.WorkflowSpec{Description: desc},
	}
}

func TestCreateVersionIfChanged_UnchangedSpecAppendsOnce(t *testing.T) {
	repo := newMemRepo()
	svc := New(repo)
	wf := workflowWithDescription("same")

	for i := 0; i < 100; i++ {
		_, err := svc.CreateVersionIfChanged(context.Background(), wf)
		require.NoError(t, err)
	}

	versions, err := repo.List(context.Background(), "wf")
	require.NoError(t, err)
	assert.Len(t, versions, 1)
	assert.Equal(t, 1, versions[0].Revision)
}

func TestCreateVersionIfChanged_EachChangeFromLatestAppends(t *testing.T) {
	repo := newMemRepo()
	svc := New(repo)

	specs := []string{"a", "b", "a", "c", "b"}
	for _, desc := range specs {
		_, err := svc.CreateVersionIfChanged(context.Background(), workflowWithDescription(desc))
		require.NoError(t, err)
	}

	versions, err := repo.List(context.Background(), "wf")
	require.NoError(t, err)
	// a, b, a, c, b: every call differs from the immediately preceding one.
	assert.Len(t, versions, 5)
	for i, v := range versions {
		assert.Equal(t, i+1, v.Revision)
	}
}

func TestContentHash_OrderIndependentAcrossMapKeys(t *testing.T) {
	specA := registry.WorkflowSpec{
		Input: map[string]registry.InputParameter{
			"a": {Type: "string"},
			"b": {Type: "int"},
		},
	}
	specB := registry.WorkflowSpec{
		Input: map[string]registry.InputParameter{
			"b": {Type: "int"},
			"a": {Type: "string"},
		},
	}
	hashA, err := ContentHash(specA)
	require.NoError(t, err)
	hashB, err := ContentHash(specB)
	require.NoError(t, err)
	assert.Equal(t, hashA, hashB)
}

func TestContentHash_Deterministic(t *testing.T) {
	spec := registry.WorkflowSpec{Description: "x", Tags: []string{"a", "b"}}
	h1, err := ContentHash(spec)
	require.NoError(t, err)
	h2, err := ContentHash(spec)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}
