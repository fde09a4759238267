package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/daz23456/workflow-sub005/pkg/execution"
)

func TestRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Repository Suite")
}

var _ = Describe("ExecutionRepository", func() {
	var (
		ctx  context.Context
		repo *ExecutionRepository
		mock sqlmock.Sqlmock
	)

	BeforeEach(func() {
		ctx = context.Background()
		mockDB, mockSQL, err := sqlmock.New()
		Expect(err).ToNot(HaveOccurred())
		mock = mockSQL
		repo = NewExecutionRepository(sqlx.NewDb(mockDB, "sqlmock"), zap.NewNop())
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	Describe("Save", func() {
		It("upserts a Running record", func() {
			mock.ExpectExec(`INSERT INTO execution_records`).
				WithArgs("exec-1", "wf", "default", "Running", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), []byte(`{}`), sqlmock.AnyArg(), []byte("null")).
				WillReturnResult(sqlmock.NewResult(0, 1))

			err := repo.Save(ctx, execution.ExecutionRecord{
				ID: "exec-1", WorkflowName: "wf", Namespace: "default",
				Status: execution.StatusRunning, InputSnapshot: []byte(`{}`),
			})
			Expect(err).ToNot(HaveOccurred())
		})
	})

	Describe("Get", func() {
		It("returns the matching record", func() {
			now := time.Now()
			rows := sqlmock.NewRows([]string{"id", "workflow_name", "namespace", "status", "started_at", "completed_at", "duration_ms", "input_snapshot", "error", "tasks"}).
				AddRow("exec-1", "wf", "default", "Succeeded", now, now, int64(150), []byte(`{}`), nil, []byte(`[]`))
			mock.ExpectQuery(`SELECT id, workflow_name, namespace, status, started_at, completed_at, duration_ms, input_snapshot, error, tasks\s+FROM execution_records WHERE id = \$1`).
				WithArgs("exec-1").
				WillReturnRows(rows)

			record, err := repo.Get(ctx, "exec-1")
			Expect(err).ToNot(HaveOccurred())
			Expect(record).ToNot(BeNil())
			Expect(record.Status).To(Equal(execution.StatusSucceeded))
			Expect(*record.Duration).To(Equal(150 * time.Millisecond))
		})

		It("returns nil without error when no row matches", func() {
			mock.ExpectQuery(`SELECT id, workflow_name, namespace, status, started_at, completed_at, duration_ms, input_snapshot, error, tasks\s+FROM execution_records WHERE id = \$1`).
				WithArgs("missing").
				WillReturnError(sql.ErrNoRows)

			record, err := repo.Get(ctx, "missing")
			Expect(err).ToNot(HaveOccurred())
			Expect(record).To(BeNil())
		})
	})
})
