package app

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daz23456/workflow-sub005/internal/validation"
	"github.com/daz23456/workflow-sub005/pkg/anomaly"
	"github.com/daz23456/workflow-sub005/pkg/discovery"
	"github.com/daz23456/workflow-sub005/pkg/eventhub"
	"github.com/daz23456/workflow-sub005/pkg/execution"
	"github.com/daz23456/workflow-sub005/pkg/orchestrator"
	"github.com/daz23456/workflow-sub005/pkg/registry"
	"github.com/daz23456/workflow-sub005/pkg/versioning"
)

type fakeRegistryClient struct {
	workflows []registry.WorkflowResource
	tasks     []registry.WorkflowTaskResource
}

func (c *fakeRegistryClient) ListWorkflows(ctx context.Context, namespace string) ([]registry.WorkflowResource, error) {
	return c.workflows, nil
}

func (c *fakeRegistryClient) ListWorkflowTasks(ctx context.Context, namespace string) ([]registry.WorkflowTaskResource, error) {
	return c.tasks, nil
}

func newTestCache(workflows []registry.WorkflowResource) *discovery.Cache {
	log := logrus.New()
	return discovery.New(&fakeRegistryClient{workflows: workflows}, 0, log)
}

func TestWorkflowFacade_ListWorkflowsPaginates(t *testing.T) {
	workflows := []registry.WorkflowResource{
		{Metadata: registry.ObjectMeta{Name: "a"}},
		{Metadata: registry.ObjectMeta{Name: "b"}},
		{Metadata: registry.ObjectMeta{Name: "c"}},
	}
	f := &WorkflowFacade{Cache: newTestCache(workflows)}

	out, err := f.ListWorkflows(context.Background(), "", 1, 1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].Metadata.Name)
}

func TestWorkflowFacade_ListVersionsNilRepoReturnsEmpty(t *testing.T) {
	f := &WorkflowFacade{Cache: newTestCache(nil), Versions: nil}
	versions, err := f.ListVersions(context.Background(), "demo")
	require.NoError(t, err)
	assert.Nil(t, versions)
}

type fakeVersionRepo struct {
	versions []versioning.Version
}

func (r *fakeVersionRepo) Latest(ctx context.Context, workflowName string) (*versioning.Version, error) {
	return nil, nil
}
func (r *fakeVersionRepo) Append(ctx context.Context, version versioning.Version) error { return nil }
func (r *fakeVersionRepo) List(ctx context.Context, workflowName string) ([]versioning.Version, error) {
	return r.versions, nil
}

func TestWorkflowFacade_ListVersionsDelegatesToRepo(t *testing.T) {
	repo := &fakeVersionRepo{versions: []versioning.Version{{WorkflowName: "demo", Revision: 2}}}
	f := &WorkflowFacade{Cache: newTestCache(nil), Versions: repo}

	versions, err := f.ListVersions(context.Background(), "demo")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, 2, versions[0].Revision)
}

func TestWorkflowFacade_UsedByAndContainsReflectDiscoveredWorkflows(t *testing.T) {
	workflows := []registry.WorkflowResource{
		{
			Metadata: registry.ObjectMeta{Name: "demo"},
			Spec:     registry.WorkflowSpec{Tasks: []registry.TaskStep{{ID: "t1", TaskRef: "http-call"}}},
		},
	}
	f := &WorkflowFacade{Cache: newTestCache(workflows)}

	_, err := f.Cache.DiscoverWorkflows(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, []string{"demo"}, f.UsedBy("http-call"))
	assert.Equal(t, []string{"http-call"}, f.Contains("demo"))
}

type fakeExecRepo struct {
	records []execution.ExecutionRecord
	get     *execution.ExecutionRecord
}

func (r *fakeExecRepo) Save(ctx context.Context, record execution.ExecutionRecord) error { return nil }
func (r *fakeExecRepo) List(ctx context.Context, workflowName, status string, skip, take int) ([]execution.ExecutionRecord, error) {
	return r.records, nil
}
func (r *fakeExecRepo) Get(ctx context.Context, id string) (*execution.ExecutionRecord, error) {
	return r.get, nil
}
func (r *fakeExecRepo) GetAllWorkflowStatistics(ctx context.Context) (map[string]execution.WorkflowStatistics, error) {
	return nil, nil
}
func (r *fakeExecRepo) GetDurationTrends(ctx context.Context, workflowName string, daysBack int) ([]execution.DurationDataPoint, error) {
	return nil, nil
}

func TestExecutionFacade_NilRepoReturnsEmptyResults(t *testing.T) {
	f := &ExecutionFacade{Repo: nil}

	list, err := f.List(context.Background(), "demo", "", 0, 50)
	require.NoError(t, err)
	assert.Nil(t, list)

	rec, err := f.Get(context.Background(), "exec-1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestExecutionFacade_DelegatesToRepo(t *testing.T) {
	want := execution.ExecutionRecord{ID: "exec-1", WorkflowName: "demo"}
	f := &ExecutionFacade{Repo: &fakeExecRepo{records: []execution.ExecutionRecord{want}, get: &want}}

	list, err := f.List(context.Background(), "demo", "", 0, 50)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "exec-1", list[0].ID)

	rec, err := f.Get(context.Background(), "exec-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "demo", rec.WorkflowName)
}

func TestAnomalyNotifier_EmitsAnomalyDetectedEvent(t *testing.T) {
	log := logrus.New()
	hub := eventhub.New(log)

	sub := hub.Subscribe(eventhub.ExecutionGroup("exec-1"))
	defer hub.Unsubscribe(eventhub.ExecutionGroup("exec-1"), sub)

	notifier := &AnomalyNotifier{Hub: hub}
	notifier.NotifyAnomaly(anomaly.AnomalyEvent{
		WorkflowName: "demo",
		TaskID:       "t1",
		ExecutionID:  "exec-1",
		Severity:     anomaly.SeverityHigh,
		ZScore:       3.5,
		Actual:       10,
		Expected:     2,
	})

	select {
	case msg := <-sub.Events():
		assert.Equal(t, eventhub.EventAnomaly, msg.Kind)
	default:
		t.Fatal("expected an anomaly_detected event to be published")
	}
}

type fakeWorkflowLookup struct {
	byName map[string]*registry.WorkflowResource
	seenNS string
}

func (l *fakeWorkflowLookup) GetWorkflowByName(ctx context.Context, name, namespace string) (*registry.WorkflowResource, error) {
	l.seenNS = namespace
	return l.byName[name], nil
}

type fakeTaskLookup struct{}

func (fakeTaskLookup) DiscoverTasks(ctx context.Context, namespace string) ([]registry.WorkflowTaskResource, error) {
	return nil, nil
}

type fakeEmitter struct{}

func (fakeEmitter) Emit(executionID string, kind eventhub.EventKind, payload any) {}

type fakeValidator struct{}

func (fakeValidator) Validate(schema map[string]registry.InputParameter, input map[string]any) validation.Result {
	return validation.Result{IsValid: true}
}

func TestScheduleExecutor_BindsConfiguredNamespace(t *testing.T) {
	workflows := &fakeWorkflowLookup{byName: map[string]*registry.WorkflowResource{
		"demo": {Metadata: registry.ObjectMeta{Name: "demo"}},
	}}
	engine := execution.NewEngine(nil, fakeTaskLookup{}, workflows, orchestrator.NewDAGOrchestrator(nil, 1, nil), fakeEmitter{}, fakeValidator{}, nil)

	exec := &ScheduleExecutor{Engine: engine, Namespace: "prod"}
	_, err := exec.StartExecution(context.Background(), "demo", nil)

	require.NoError(t, err)
	assert.Equal(t, "prod", workflows.seenNS)
}
