// Package models holds the row shapes the repository package scans
// database/sql results into; domain packages never import this package
// directly, the repository package translates to/from it at the
// persistence boundary.
package models

import (
	"database/sql"
	"time"
)

// ExecutionRow is the execution_records table row shape, scanned via
// sqlx's struct-tag binding.
type ExecutionRow struct {
	ID            string         `db:"id"`
	WorkflowName  string         `db:"workflow_name"`
	Namespace     string         `db:"namespace"`
	Status        string         `db:"status"`
	StartedAt     time.Time      `db:"started_at"`
	CompletedAt   sql.NullTime   `db:"completed_at"`
	DurationMs    sql.NullInt64  `db:"duration_ms"`
	InputSnapshot []byte         `db:"input_snapshot"`
	Error         sql.NullString `db:"error"`
	Tasks         []byte         `db:"tasks"` // JSON-encoded []execution.TaskExecutionRecord
}

// WorkflowVersionRow is the workflow_versions table row shape.
type WorkflowVersionRow struct {
	WorkflowName string    `db:"workflow_name"`
	Revision     int       `db:"revision"`
	CapturedAt   time.Time `db:"captured_at"`
	ContentHash  string    `db:"content_hash"`
	SpecSnapshot []byte    `db:"spec_snapshot"`
}

// BaselineRow is the anomaly_baselines table row shape.
type BaselineRow struct {
	WorkflowName string    `db:"workflow_name"`
	TaskID       string    `db:"task_id"`
	Mean         float64   `db:"mean_ms"`
	StdDev       float64   `db:"stddev_ms"`
	SampleCount  int       `db:"sample_count"`
	WindowStart  time.Time `db:"window_start"`
	WindowEnd    time.Time `db:"window_end"`
}

// TaskDurationSampleRow is one raw sample read back for baseline refresh.
type TaskDurationSampleRow struct {
	WorkflowName string         `db:"workflow_name"`
	TaskID       sql.NullString `db:"task_id"`
	DurationMs   float64        `db:"duration_ms"`
}

// WorkflowLabelRow is the workflow_labels table row shape.
type WorkflowLabelRow struct {
	WorkflowName string    `db:"workflow_name"`
	Namespace    string    `db:"namespace"`
	Tags         []byte    `db:"tags"`       // JSON []string
	Categories   []byte    `db:"categories"` // JSON []string
	SyncedAt     time.Time `db:"synced_at"`
}

// TaskLabelRow is the task_labels table row shape.
type TaskLabelRow struct {
	TaskName  string    `db:"task_name"`
	Namespace string    `db:"namespace"`
	Tags      []byte    `db:"tags"` // JSON []string
	Category  string    `db:"category"`
	SyncedAt  time.Time `db:"synced_at"`
}

// WorkflowStatisticsRow is one row of ExecutionRepository.GetAllWorkflowStatistics.
type WorkflowStatisticsRow struct {
	WorkflowName  string  `db:"workflow_name"`
	Total         int     `db:"total"`
	Succeeded     int     `db:"succeeded"`
	Failed        int     `db:"failed"`
	AvgDurationMs float64 `db:"avg_duration_ms"`
}

// DurationTrendRow is one bucket of ExecutionRepository.GetDurationTrends.
type DurationTrendRow struct {
	Day           time.Time `db:"day"`
	AvgDurationMs float64   `db:"avg_duration_ms"`
	Count         int       `db:"count"`
}
