package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/halden-labs/application_layer/internal/app/domain/application"
	"github.com/halden-labs/application_layer/internal/app/pagination"
	"github.com/halden-labs/application_layer/internal/app/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "sqlmock")), mock
}

func TestUpdateApplicationStatusVersionConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE applications").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	now := time.Now().UTC()
	_, err := store.UpdateApplicationStatus(context.Background(), application.Application{
		ID:        "app-1",
		Status:    application.StatusApproved,
		UpdatedAt: &now,
		Version:   3,
	}, application.StatusChange{NewStatus: application.StatusApproved, ActorRole: application.RoleAdmin})

	if !errors.Is(err, storage.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateApplicationStatusMissingRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE applications").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	_, err := store.UpdateApplicationStatus(context.Background(), application.Application{
		ID:      "missing",
		Status:  application.StatusRejected,
		Version: 1,
	}, application.StatusChange{NewStatus: application.StatusRejected, ActorRole: application.RoleAdmin})

	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteApplicationCascadeOrder(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM application_documents").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM application_status_changes").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM application_tags").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM applications").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.DeleteApplication(context.Background(), "app-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListApplicationsKeysetPredicate(t *testing.T) {
	store, mock := newMockStore(t)

	ts := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	columns := []string{"id", "applicant_id", "product_id", "status", "created_at", "updated_at", "version"}
	mock.ExpectQuery(`WHERE created_at < \$1 OR \(created_at = \$1 AND id < \$2\)`).
		WithArgs(ts, "app-9", 10).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("app-5", "u-1", "p-1", "SUBMITTED", ts.Add(-time.Hour), nil, 1))
	mock.ExpectQuery("FROM application_documents").
		WillReturnRows(sqlmock.NewRows([]string{"id", "application_id", "file_name", "content_type", "storage_path"}))
	mock.ExpectQuery("FROM application_tags").
		WillReturnRows(sqlmock.NewRows([]string{"application_id", "tag"}).AddRow("app-5", "urgent"))

	page, err := store.ListApplications(context.Background(), &pagination.Cursor{CreatedAt: ts, ID: "app-9"}, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 1 || page[0].ID != "app-5" {
		t.Fatalf("unexpected page: %+v", page)
	}
	if len(page[0].Tags) != 1 || page[0].Tags[0] != "urgent" {
		t.Fatalf("tags not merged: %+v", page[0].Tags)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	store := New(db)
	ctx := context.Background()

	app, err := store.CreateApplication(ctx, application.Application{
		ApplicantID: "u-integration",
		ProductID:   "p-integration",
		Status:      application.StatusSubmitted,
		Documents:   []application.Document{{FileName: "cv.pdf", ContentType: "application/pdf"}},
	}, application.StatusChange{NewStatus: application.StatusSubmitted, ActorRole: application.RoleClient})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	history, err := store.ListStatusChanges(ctx, app.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].OldStatus != nil {
		t.Fatalf("expected single creation row, got %+v", history)
	}

	if err := store.DeleteApplication(ctx, app.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetApplication(ctx, app.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}
