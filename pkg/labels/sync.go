// Package labels synchronizes the tag/category labels aggregate (§3
// "Labels aggregate") against the currently discovered workflows and
// tasks, and recomputes usage statistics for the UI's filter facets.
package labels

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/daz23456/workflow-sub005/pkg/registry"
)

// LabelKind distinguishes a tag from a category in the usage-stat table.
type LabelKind string

const (
	LabelKindTag      LabelKind = "tag"
	LabelKindCategory LabelKind = "category"
)

// WorkflowLabels is the synced label projection of one WorkflowResource.
type WorkflowLabels struct {
	WorkflowName string
	Namespace    string
	Tags         []string
	Categories   []string
	SyncedAt     time.Time
}

// TaskLabels is the synced label projection of one WorkflowTaskResource.
type TaskLabels struct {
	TaskName  string
	Namespace string
	Tags      []string
	Category  string
	SyncedAt  time.Time
}

// UsageStat counts how many entities carry a given label value.
type UsageStat struct {
	EntityType string
	Kind       LabelKind
	Value      string
	UsageCount int
}

// Repository is the durable store contract for the labels aggregate (§6).
type Repository interface {
	UpsertWorkflowLabels(ctx context.Context, labels []WorkflowLabels) error
	UpsertTaskLabels(ctx context.Context, labels []TaskLabels) error
	DeleteMissing(ctx context.Context, workflowsPresent, tasksPresent []string) error
	RecomputeUsageStats(ctx context.Context) error
}

// Service recomputes the label aggregate on every discovery tick.
type Service struct {
	repo Repository
	log  *logrus.Logger
	now  func() time.Time
}

// New builds a Service. A nil repo makes Sync a no-op, mirroring the
// execution engine's "null repository is valid" tolerance.
func New(repo Repository, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{repo: repo, log: log, now: time.Now}
}

// Sync upserts the label projection of every currently discovered
// workflow and task, deletes rows for entities no longer present, and
// recomputes usage stats. Each step's failure is logged and does not
// abort the remaining steps, consistent with the watcher's per-workflow
// failure isolation.
func (s *Service) Sync(ctx context.Context, workflows []registry.WorkflowResource, tasks []registry.WorkflowTaskResource) {
	if s.repo == nil {
		return
	}

	now := s.now()
	workflowLabels := make([]WorkflowLabels, 0, len(workflows))
	workflowNames := make([]string, 0, len(workflows))
	for _, w := range workflows {
		if w.Metadata.Name == "" {
			continue
		}
		workflowNames = append(workflowNames, w.Metadata.Name)
		workflowLabels = append(workflowLabels, WorkflowLabels{
			WorkflowName: w.Metadata.Name,
			Namespace:    w.Metadata.Namespace,
			Tags:         append([]string(nil), w.Spec.Tags...),
			Categories:   append([]string(nil), w.Spec.Categories...),
			SyncedAt:     now,
		})
	}

	taskLabels := make([]TaskLabels, 0, len(tasks))
	taskNames := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if t.Metadata.Name == "" {
			continue
		}
		taskNames = append(taskNames, t.Metadata.Name)
		taskLabels = append(taskLabels, TaskLabels{
			TaskName:  t.Metadata.Name,
			Namespace: t.Metadata.Namespace,
			Tags:      append([]string(nil), t.Spec.Tags...),
			Category:  t.Spec.Category,
			SyncedAt:  now,
		})
	}

	if err := s.repo.UpsertWorkflowLabels(ctx, workflowLabels); err != nil {
		s.log.WithError(err).Error("labels: failed to upsert workflow labels")
	}
	if err := s.repo.UpsertTaskLabels(ctx, taskLabels); err != nil {
		s.log.WithError(err).Error("labels: failed to upsert task labels")
	}
	if err := s.repo.DeleteMissing(ctx, workflowNames, taskNames); err != nil {
		s.log.WithError(err).Error("labels: failed to delete stale label rows")
	}
	if err := s.repo.RecomputeUsageStats(ctx); err != nil {
		s.log.WithError(err).Error("labels: failed to recompute usage stats")
	}
}
