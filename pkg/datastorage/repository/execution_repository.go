// Package repository implements the durable store contracts consumed by
// the execution engine, versioning service, baseline refresher, and
// label sync service (§6 "Repository contracts consumed"), backed by
// PostgreSQL via database/sql and the pgx driver.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/daz23456/workflow-sub005/pkg/datastorage/models"
	"github.com/daz23456/workflow-sub005/pkg/execution"
)

// ExecutionRepository persists ExecutionRecords, upserting on the
// primary key `id` (§5: "Persistent-store writes for the same
// executionId are serialized by upsert on primary key").
type ExecutionRepository struct {
	db  *sqlx.DB
	log *zap.Logger
}

// NewExecutionRepository builds an ExecutionRepository.
func NewExecutionRepository(db *sqlx.DB, log *zap.Logger) *ExecutionRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &ExecutionRepository{db: db, log: log}
}

// Save upserts record by id.
func (r *ExecutionRepository) Save(ctx context.Context, record execution.ExecutionRecord) error {
	tasksJSON, err := json.Marshal(record.Tasks)
	if err != nil {
		return err
	}

	var completedAt sql.NullTime
	if record.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *record.CompletedAt, Valid: true}
	}
	var durationMs sql.NullInt64
	if record.Duration != nil {
		durationMs = sql.NullInt64{Int64: record.Duration.Milliseconds(), Valid: true}
	}
	var errStr sql.NullString
	if record.Error != nil {
		errStr = sql.NullString{String: *record.Error, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO execution_records
			(id, workflow_name, namespace, status, started_at, completed_at, duration_ms, input_snapshot, error, tasks)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at,
			duration_ms = EXCLUDED.duration_ms,
			error = EXCLUDED.error,
			tasks = EXCLUDED.tasks
	`,
		record.ID, record.WorkflowName, record.Namespace, string(record.Status),
		record.StartedAt, completedAt, durationMs, record.InputSnapshot, errStr, tasksJSON,
	)
	if err != nil {
		r.log.Error("execution repository: save failed", zap.String("id", record.ID), zap.Error(err))
		return err
	}
	return nil
}

// Get fetches one execution record by id, or (nil, nil) if absent.
func (r *ExecutionRepository) Get(ctx context.Context, id string) (*execution.ExecutionRecord, error) {
	var raw models.ExecutionRow
	err := r.db.GetContext(ctx, &raw, `
		SELECT id, workflow_name, namespace, status, started_at, completed_at, duration_ms, input_snapshot, error, tasks
		FROM execution_records WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rowToRecord(raw)
}

// List returns executions filtered by workflowName/status (either may be
// empty to mean "any"), paginated by skip/take.
func (r *ExecutionRepository) List(ctx context.Context, workflowName, status string, skip, take int) ([]execution.ExecutionRecord, error) {
	var raws []models.ExecutionRow
	err := r.db.SelectContext(ctx, &raws, `
		SELECT id, workflow_name, namespace, status, started_at, completed_at, duration_ms, input_snapshot, error, tasks
		FROM execution_records
		WHERE ($1 = '' OR workflow_name = $1) AND ($2 = '' OR status = $2)
		ORDER BY started_at DESC
		OFFSET $3 LIMIT $4
	`, workflowName, status, skip, take)
	if err != nil {
		return nil, err
	}

	out := make([]execution.ExecutionRecord, 0, len(raws))
	for _, raw := range raws {
		record, err := rowToRecord(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, *record)
	}
	return out, nil
}

func rowToRecord(raw models.ExecutionRow) (*execution.ExecutionRecord, error) {
	record := execution.ExecutionRecord{
		ID:            raw.ID,
		WorkflowName:  raw.WorkflowName,
		Namespace:     raw.Namespace,
		Status:        execution.Status(raw.Status),
		StartedAt:     raw.StartedAt,
		InputSnapshot: raw.InputSnapshot,
	}
	if raw.CompletedAt.Valid {
		record.CompletedAt = &raw.CompletedAt.Time
	}
	if raw.DurationMs.Valid {
		d := time.Duration(raw.DurationMs.Int64) * time.Millisecond
		record.Duration = &d
	}
	if raw.Error.Valid {
		record.Error = &raw.Error.String
	}
	if len(raw.Tasks) > 0 {
		if err := json.Unmarshal(raw.Tasks, &record.Tasks); err != nil {
			return nil, err
		}
	}
	return &record, nil
}

// GetAllWorkflowStatistics aggregates success/failure counts and average
// duration per workflow (§6).
func (r *ExecutionRepository) GetAllWorkflowStatistics(ctx context.Context) (map[string]execution.WorkflowStatistics, error) {
	var rows []models.WorkflowStatisticsRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT workflow_name,
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'Succeeded') AS succeeded,
			COUNT(*) FILTER (WHERE status = 'Failed') AS failed,
			COALESCE(AVG(duration_ms), 0) AS avg_duration_ms
		FROM execution_records
		GROUP BY workflow_name
	`); err != nil {
		return nil, err
	}

	out := make(map[string]execution.WorkflowStatistics, len(rows))
	for _, row := range rows {
		out[row.WorkflowName] = execution.WorkflowStatistics{
			WorkflowName:    row.WorkflowName,
			TotalExecutions: row.Total,
			SuccessCount:    row.Succeeded,
			FailureCount:    row.Failed,
			AvgDurationMs:   row.AvgDurationMs,
		}
	}
	return out, nil
}

// GetDurationTrends returns a daily average-duration series for
// workflowName over the trailing daysBack days (§6).
func (r *ExecutionRepository) GetDurationTrends(ctx context.Context, workflowName string, daysBack int) ([]execution.DurationDataPoint, error) {
	var rows []models.DurationTrendRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT date_trunc('day', started_at) AS day, AVG(duration_ms) AS avg_duration_ms, COUNT(*) AS count
		FROM execution_records
		WHERE workflow_name = $1 AND started_at >= NOW() - ($2 || ' days')::interval
		GROUP BY day
		ORDER BY day
	`, workflowName, daysBack); err != nil {
		return nil, err
	}

	out := make([]execution.DurationDataPoint, 0, len(rows))
	for _, row := range rows {
		out = append(out, execution.DurationDataPoint{
			Day:           row.Day,
			AvgDurationMs: row.AvgDurationMs,
			Count:         row.Count,
		})
	}
	return out, nil
}
