package repository

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/daz23456/workflow-sub005/pkg/datastorage/models"
	"github.com/daz23456/workflow-sub005/pkg/labels"
)

// LabelRepository implements labels.Repository (§6).
type LabelRepository struct {
	db  *sqlx.DB
	log *zap.Logger
}

// NewLabelRepository builds a LabelRepository.
func NewLabelRepository(db *sqlx.DB, log *zap.Logger) *LabelRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &LabelRepository{db: db, log: log}
}

// UpsertWorkflowLabels upserts one row per workflow.
func (r *LabelRepository) UpsertWorkflowLabels(ctx context.Context, rows []labels.WorkflowLabels) error {
	for _, l := range rows {
		tagsJSON, err := json.Marshal(l.Tags)
		if err != nil {
			return err
		}
		categoriesJSON, err := json.Marshal(l.Categories)
		if err != nil {
			return err
		}
		row := models.WorkflowLabelRow{
			WorkflowName: l.WorkflowName, Namespace: l.Namespace,
			Tags: tagsJSON, Categories: categoriesJSON, SyncedAt: l.SyncedAt,
		}
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO workflow_labels (workflow_name, namespace, tags, categories, synced_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (workflow_name) DO UPDATE SET
				namespace = EXCLUDED.namespace, tags = EXCLUDED.tags,
				categories = EXCLUDED.categories, synced_at = EXCLUDED.synced_at
		`, row.WorkflowName, row.Namespace, row.Tags, row.Categories, row.SyncedAt); err != nil {
			r.log.Error("label repository: upsert workflow labels failed", zap.String("workflow", l.WorkflowName), zap.Error(err))
			return err
		}
	}
	return nil
}

// UpsertTaskLabels upserts one row per task.
func (r *LabelRepository) UpsertTaskLabels(ctx context.Context, rows []labels.TaskLabels) error {
	for _, l := range rows {
		tagsJSON, err := json.Marshal(l.Tags)
		if err != nil {
			return err
		}
		row := models.TaskLabelRow{
			TaskName: l.TaskName, Namespace: l.Namespace,
			Tags: tagsJSON, Category: l.Category, SyncedAt: l.SyncedAt,
		}
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO task_labels (task_name, namespace, tags, category, synced_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (task_name) DO UPDATE SET
				namespace = EXCLUDED.namespace, tags = EXCLUDED.tags,
				category = EXCLUDED.category, synced_at = EXCLUDED.synced_at
		`, row.TaskName, row.Namespace, row.Tags, row.Category, row.SyncedAt); err != nil {
			r.log.Error("label repository: upsert task labels failed", zap.String("task", l.TaskName), zap.Error(err))
			return err
		}
	}
	return nil
}

// DeleteMissing removes label rows for entities no longer present in
// discovery (§3: "delete rows whose entity disappeared").
func (r *LabelRepository) DeleteMissing(ctx context.Context, workflowsPresent, tasksPresent []string) error {
	// pgx's stdlib driver encodes a Go []string directly as a Postgres
	// text[] query argument, so no array-literal formatting is needed here.
	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM workflow_labels WHERE NOT (workflow_name = ANY($1::text[]))
	`, workflowsPresent); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM task_labels WHERE NOT (task_name = ANY($1::text[]))
	`, tasksPresent); err != nil {
		return err
	}
	return nil
}

// RecomputeUsageStats rebuilds the label_usage_stats table from the
// current workflow_labels/task_labels rows.
func (r *LabelRepository) RecomputeUsageStats(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		TRUNCATE label_usage_stats;
		INSERT INTO label_usage_stats (entity_type, label_kind, label_value, usage_count)
		SELECT 'workflow', 'tag', tag, COUNT(*)
		FROM workflow_labels, jsonb_array_elements_text(tags::jsonb) AS tag
		GROUP BY tag
		UNION ALL
		SELECT 'workflow', 'category', category, COUNT(*)
		FROM workflow_labels, jsonb_array_elements_text(categories::jsonb) AS category
		GROUP BY category
		UNION ALL
		SELECT 'task', 'tag', tag, COUNT(*)
		FROM task_labels, jsonb_array_elements_text(tags::jsonb) AS tag
		GROUP BY tag
		UNION ALL
		SELECT 'task', 'category', category, COUNT(*)
		FROM task_labels
		GROUP BY category
	`)
	if err != nil {
		r.log.Error("label repository: recompute usage stats failed", zap.Error(err))
	}
	return err
}
