package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/daz23456/workflow-sub005/pkg/anomaly"
	"github.com/daz23456/workflow-sub005/pkg/datastorage/models"
)

// BaselineRepository implements anomaly.BaselineRepository (write side),
// anomaly.BaselineSource (the detector's read side), and
// anomaly.SampleSource (raw duration samples for the refresher). Baselines
// are stored in the anomaly_baselines table and samples are read from the
// task_duration_samples view; one repository type serves all three.
type BaselineRepository struct {
	db  *sqlx.DB
	log *zap.Logger
}

// NewBaselineRepository builds a BaselineRepository.
func NewBaselineRepository(db *sqlx.DB, log *zap.Logger) *BaselineRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &BaselineRepository{db: db, log: log}
}

// Save upserts a baseline keyed by (workflow_name, task_id).
func (r *BaselineRepository) Save(ctx context.Context, baseline anomaly.Baseline) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO anomaly_baselines (workflow_name, task_id, mean_ms, stddev_ms, sample_count, window_start, window_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (workflow_name, task_id) DO UPDATE SET
			mean_ms = EXCLUDED.mean_ms,
			stddev_ms = EXCLUDED.stddev_ms,
			sample_count = EXCLUDED.sample_count,
			window_start = EXCLUDED.window_start,
			window_end = EXCLUDED.window_end
	`, baseline.WorkflowName, baseline.TaskID, baseline.Mean, baseline.StdDev, baseline.SampleCount, baseline.WindowStart, baseline.WindowEnd)
	if err != nil {
		r.log.Error("baseline repository: save failed", zap.String("workflow", baseline.WorkflowName), zap.Error(err))
	}
	return err
}

// Get fetches the stored baseline for (workflowName, taskID), or
// (nil, nil) if none has been computed yet.
func (r *BaselineRepository) Get(ctx context.Context, workflowName, taskID string) (*anomaly.Baseline, error) {
	var row models.BaselineRow
	err := r.db.GetContext(ctx, &row, `
		SELECT workflow_name, task_id, mean_ms, stddev_ms, sample_count, window_start, window_end
		FROM anomaly_baselines
		WHERE workflow_name = $1 AND task_id = $2
	`, workflowName, taskID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &anomaly.Baseline{
		WorkflowName: row.WorkflowName,
		TaskID:       row.TaskID,
		Mean:         row.Mean,
		StdDev:       row.StdDev,
		SampleCount:  row.SampleCount,
		WindowStart:  row.WindowStart,
		WindowEnd:    row.WindowEnd,
	}, nil
}

// Samples fetches every task's observed duration within [windowStart,
// windowEnd], derived from completed execution records' task JSON via a
// flattening view (task_duration_samples), for the baseline refresher.
func (r *BaselineRepository) Samples(ctx context.Context, windowStart, windowEnd time.Time) ([]anomaly.Sample, error) {
	var rows []models.TaskDurationSampleRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT workflow_name, task_id, duration_ms
		FROM task_duration_samples
		WHERE observed_at >= $1 AND observed_at <= $2
	`, windowStart, windowEnd); err != nil {
		return nil, err
	}

	out := make([]anomaly.Sample, 0, len(rows))
	for _, raw := range rows {
		out = append(out, anomaly.Sample{
			WorkflowName: raw.WorkflowName,
			TaskID:       raw.TaskID.String,
			DurationMs:   raw.DurationMs,
		})
	}
	return out, nil
}
