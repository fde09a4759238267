package anomaly

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSampleSource struct {
	samples []Sample
}

func (f *fakeSampleSource) Samples(_ context.Context, _, _ time.Time) ([]Sample, error) {
	return f.samples, nil
}

type recordingBaselineRepo struct {
	saved []Baseline
}

func (r *recordingBaselineRepo) Save(_ context.Context, b Baseline) error {
	r.saved = append(r.saved, b)
	return nil
}

func samplesOf(workflow string, taskID string, n int, value float64) []Sample {
	out := make([]Sample, n)
	for i := range out {
		out[i] = Sample{WorkflowName: workflow, TaskID: taskID, DurationMs: value}
	}
	return out
}

func TestRefresher_SkipsGroupsBelowMinSampleCount(t *testing.T) {
	source := &fakeSampleSource{samples: samplesOf("wf", "", MinSampleCount-1, 100)}
	repo := &recordingBaselineRepo{}
	r := NewRefresher(source, repo, DefaultConfig(), nil)

	r.tick(context.Background())
	assert.Empty(t, repo.saved)
}

func TestRefresher_WritesBaselineAtMinSampleCount(t *testing.T) {
	source := &fakeSampleSource{samples: samplesOf("wf", "", MinSampleCount, 100)}
	repo := &recordingBaselineRepo{}
	r := NewRefresher(source, repo, DefaultConfig(), nil)

	r.tick(context.Background())
	require.Len(t, repo.saved, 1)
	assert.Equal(t, "wf", repo.saved[0].WorkflowName)
	assert.InDelta(t, 100, repo.saved[0].Mean, 1e-9)
	assert.InDelta(t, 0, repo.saved[0].StdDev, 1e-9)
}

func TestRefresher_ProducesBothWorkflowAndTaskLevelBaselines(t *testing.T) {
	samples := append(samplesOf("wf", "", MinSampleCount, 50), samplesOf("wf", "t1", MinSampleCount, 200)...)
	source := &fakeSampleSource{samples: samples}
	repo := &recordingBaselineRepo{}
	r := NewRefresher(source, repo, DefaultConfig(), nil)

	r.tick(context.Background())

	var sawWorkflowLevel, sawTaskLevel bool
	for _, b := range repo.saved {
		if b.TaskID == "" {
			sawWorkflowLevel = true
		} else {
			sawTaskLevel = true
		}
	}
	assert.True(t, sawWorkflowLevel)
	assert.True(t, sawTaskLevel)
}
