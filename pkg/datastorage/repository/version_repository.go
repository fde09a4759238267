package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/daz23456/workflow-sub005/pkg/datastorage/models"
	"github.com/daz23456/workflow-sub005/pkg/versioning"
)

// WorkflowVersionRepository implements versioning.Repository (§6).
type WorkflowVersionRepository struct {
	db  *sqlx.DB
	log *zap.Logger
}

// NewWorkflowVersionRepository builds a WorkflowVersionRepository.
func NewWorkflowVersionRepository(db *sqlx.DB, log *zap.Logger) *WorkflowVersionRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkflowVersionRepository{db: db, log: log}
}

// Latest returns the highest-revision stored version for workflowName,
// or (nil, nil) if none exists.
func (r *WorkflowVersionRepository) Latest(ctx context.Context, workflowName string) (*versioning.Version, error) {
	var row models.WorkflowVersionRow
	err := r.db.GetContext(ctx, &row, `
		SELECT workflow_name, revision, captured_at, content_hash, spec_snapshot
		FROM workflow_versions
		WHERE workflow_name = $1
		ORDER BY revision DESC
		LIMIT 1
	`, workflowName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rowToVersion(row), nil
}

// Append inserts a new version row.
func (r *WorkflowVersionRepository) Append(ctx context.Context, version versioning.Version) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO workflow_versions (workflow_name, revision, captured_at, content_hash, spec_snapshot)
		VALUES ($1, $2, $3, $4, $5)
	`, version.WorkflowName, version.Revision, version.CapturedAt, version.ContentHash, version.SpecSnapshot)
	if err != nil {
		r.log.Error("version repository: append failed", zap.String("workflow", version.WorkflowName), zap.Error(err))
	}
	return err
}

// List returns every stored version for workflowName, oldest first.
func (r *WorkflowVersionRepository) List(ctx context.Context, workflowName string) ([]versioning.Version, error) {
	var rows []models.WorkflowVersionRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT workflow_name, revision, captured_at, content_hash, spec_snapshot
		FROM workflow_versions
		WHERE workflow_name = $1
		ORDER BY revision ASC
	`, workflowName); err != nil {
		return nil, err
	}

	out := make([]versioning.Version, 0, len(rows))
	for _, row := range rows {
		out = append(out, *rowToVersion(row))
	}
	return out, nil
}

func rowToVersion(row models.WorkflowVersionRow) *versioning.Version {
	return &versioning.Version{
		WorkflowName: row.WorkflowName,
		Revision:     row.Revision,
		CapturedAt:   row.CapturedAt,
		ContentHash:  row.ContentHash,
		SpecSnapshot: row.SpecSnapshot,
	}
}
