// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/halden-labs/application_layer/internal/app/domain/application"
	"github.com/halden-labs/application_layer/internal/app/pagination"
	"github.com/halden-labs/application_layer/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.ApplicationStore = (*Store)(nil)
var _ storage.HistoryStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

type applicationRow struct {
	ID          string       `db:"id"`
	ApplicantID string       `db:"applicant_id"`
	ProductID   string       `db:"product_id"`
	Status      string       `db:"status"`
	CreatedAt   time.Time    `db:"created_at"`
	UpdatedAt   sql.NullTime `db:"updated_at"`
	Version     int64        `db:"version"`
}

func (r applicationRow) toDomain() application.Application {
	app := application.Application{
		ID:          r.ID,
		ApplicantID: r.ApplicantID,
		ProductID:   r.ProductID,
		Status:      application.Status(r.Status),
		CreatedAt:   r.CreatedAt,
		Version:     r.Version,
	}
	if r.UpdatedAt.Valid {
		ts := r.UpdatedAt.Time
		app.UpdatedAt = &ts
	}
	return app
}

type documentRow struct {
	ID            string `db:"id"`
	ApplicationID string `db:"application_id"`
	FileName      string `db:"file_name"`
	ContentType   string `db:"content_type"`
	StoragePath   string `db:"storage_path"`
}

type statusChangeRow struct {
	ID            string         `db:"id"`
	ApplicationID string         `db:"application_id"`
	OldStatus     sql.NullString `db:"old_status"`
	NewStatus     string         `db:"new_status"`
	ActorRole     string         `db:"actor_role"`
	ChangedAt     time.Time      `db:"changed_at"`
}

func (r statusChangeRow) toDomain() application.StatusChange {
	change := application.StatusChange{
		ID:            r.ID,
		ApplicationID: r.ApplicationID,
		NewStatus:     application.Status(r.NewStatus),
		ActorRole:     application.Role(r.ActorRole),
		ChangedAt:     r.ChangedAt,
	}
	if r.OldStatus.Valid {
		old := application.Status(r.OldStatus.String)
		change.OldStatus = &old
	}
	return change
}

func (s *Store) CreateApplication(ctx context.Context, app application.Application, creation application.StatusChange) (application.Application, error) {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.CreatedAt.IsZero() {
		app.CreatedAt = time.Now().UTC()
	}
	app.Version = 1

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return application.Application{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO applications (id, applicant_id, product_id, status, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, NULL, $6)
	`, app.ID, app.ApplicantID, app.ProductID, string(app.Status), app.CreatedAt, app.Version)
	if err != nil {
		return application.Application{}, err
	}

	for i := range app.Documents {
		doc := &app.Documents[i]
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		doc.ApplicationID = app.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO application_documents (id, application_id, file_name, content_type, storage_path)
			VALUES ($1, $2, $3, $4, $5)
		`, doc.ID, doc.ApplicationID, doc.FileName, doc.ContentType, doc.StoragePath)
		if err != nil {
			return application.Application{}, err
		}
	}

	creation.ID = uuid.NewString()
	creation.ApplicationID = app.ID
	if creation.ChangedAt.IsZero() {
		creation.ChangedAt = app.CreatedAt
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO application_status_changes (id, application_id, old_status, new_status, actor_role, changed_at)
		VALUES ($1, $2, NULL, $3, $4, $5)
	`, creation.ID, creation.ApplicationID, string(creation.NewStatus), string(creation.ActorRole), creation.ChangedAt)
	if err != nil {
		return application.Application{}, err
	}

	if err := tx.Commit(); err != nil {
		return application.Application{}, err
	}
	return app, nil
}

func (s *Store) GetApplication(ctx context.Context, id string) (application.Application, error) {
	var row applicationRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, applicant_id, product_id, status, created_at, updated_at, version
		FROM applications
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return application.Application{}, storage.ErrNotFound
	}
	if err != nil {
		return application.Application{}, err
	}

	apps := []application.Application{row.toDomain()}
	if err := s.mergeChildren(ctx, apps); err != nil {
		return application.Application{}, err
	}
	return apps[0], nil
}

func (s *Store) UpdateApplicationStatus(ctx context.Context, app application.Application, change application.StatusChange) (application.Application, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return application.Application{}, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE applications
		SET status = $2, updated_at = $3, version = version + 1
		WHERE id = $1 AND version = $4
	`, app.ID, string(app.Status), app.UpdatedAt, app.Version)
	if err != nil {
		return application.Application{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM applications WHERE id = $1)`, app.ID); err != nil {
			return application.Application{}, err
		}
		if exists {
			return application.Application{}, storage.ErrVersionConflict
		}
		return application.Application{}, storage.ErrNotFound
	}

	change.ID = uuid.NewString()
	change.ApplicationID = app.ID
	if change.ChangedAt.IsZero() {
		change.ChangedAt = time.Now().UTC()
	}
	var oldStatus interface{}
	if change.OldStatus != nil {
		oldStatus = string(*change.OldStatus)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO application_status_changes (id, application_id, old_status, new_status, actor_role, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, change.ID, change.ApplicationID, oldStatus, string(change.NewStatus), string(change.ActorRole), change.ChangedAt)
	if err != nil {
		return application.Application{}, err
	}

	if err := tx.Commit(); err != nil {
		return application.Application{}, err
	}
	return s.GetApplication(ctx, app.ID)
}

func (s *Store) UpdateTags(ctx context.Context, id string, tags []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM applications WHERE id = $1)`, id); err != nil {
		return err
	}
	if !exists {
		return storage.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM application_tags WHERE application_id = $1`, id); err != nil {
		return err
	}
	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO application_tags (application_id, tag) VALUES ($1, $2)
		`, id, tag); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) DeleteApplication(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Dependents first: documents, history, tags, then the application.
	if _, err := tx.ExecContext(ctx, `DELETE FROM application_documents WHERE application_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM application_status_changes WHERE application_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM application_tags WHERE application_id = $1`, id); err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM applications WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) ListApplications(ctx context.Context, cursor *pagination.Cursor, limit int) ([]application.Application, error) {
	var rows []applicationRow
	var err error
	if cursor == nil {
		err = s.db.SelectContext(ctx, &rows, `
			SELECT id, applicant_id, product_id, status, created_at, updated_at, version
			FROM applications
			ORDER BY created_at DESC, id DESC
			LIMIT $1
		`, limit)
	} else {
		err = s.db.SelectContext(ctx, &rows, `
			SELECT id, applicant_id, product_id, status, created_at, updated_at, version
			FROM applications
			WHERE created_at < $1 OR (created_at = $1 AND id < $2)
			ORDER BY created_at DESC, id DESC
			LIMIT $3
		`, cursor.CreatedAt, cursor.ID, limit)
	}
	if err != nil {
		return nil, err
	}

	apps := make([]application.Application, 0, len(rows))
	for _, row := range rows {
		apps = append(apps, row.toDomain())
	}
	if err := s.mergeChildren(ctx, apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// mergeChildren resolves the documents and tags projections for the id batch
// and folds them into the page items. Merge order does not affect page
// ordering, only item completeness.
func (s *Store) mergeChildren(ctx context.Context, apps []application.Application) error {
	if len(apps) == 0 {
		return nil
	}
	ids := make([]string, 0, len(apps))
	index := make(map[string]int, len(apps))
	for i, app := range apps {
		ids = append(ids, app.ID)
		index[app.ID] = i
	}

	var docs []documentRow
	err := s.db.SelectContext(ctx, &docs, `
		SELECT id, application_id, file_name, content_type, storage_path
		FROM application_documents
		WHERE application_id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return err
	}
	for _, doc := range docs {
		i := index[doc.ApplicationID]
		apps[i].Documents = append(apps[i].Documents, application.Document{
			ID:            doc.ID,
			ApplicationID: doc.ApplicationID,
			FileName:      doc.FileName,
			ContentType:   doc.ContentType,
			StoragePath:   doc.StoragePath,
		})
	}

	var tagRows []struct {
		ApplicationID string `db:"application_id"`
		Tag           string `db:"tag"`
	}
	err = s.db.SelectContext(ctx, &tagRows, `
		SELECT application_id, tag
		FROM application_tags
		WHERE application_id = ANY($1)
		ORDER BY tag
	`, pq.Array(ids))
	if err != nil {
		return err
	}
	for _, row := range tagRows {
		i := index[row.ApplicationID]
		apps[i].Tags = append(apps[i].Tags, row.Tag)
	}
	return nil
}

func (s *Store) ListApplicationIDsByApplicant(ctx context.Context, applicantID string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT id FROM applications WHERE applicant_id = $1 ORDER BY id
	`, applicantID)
	return ids, err
}

func (s *Store) ListApplicationIDsByProduct(ctx context.Context, productID string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT id FROM applications WHERE product_id = $1 ORDER BY id
	`, productID)
	return ids, err
}

func (s *Store) ListStatusChanges(ctx context.Context, applicationID string) ([]application.StatusChange, error) {
	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM applications WHERE id = $1)`, applicationID); err != nil {
		return nil, err
	}
	if !exists {
		return nil, storage.ErrNotFound
	}

	var rows []statusChangeRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, application_id, old_status, new_status, actor_role, changed_at
		FROM application_status_changes
		WHERE application_id = $1
		ORDER BY changed_at DESC
	`, applicationID)
	if err != nil {
		return nil, err
	}

	changes := make([]application.StatusChange, 0, len(rows))
	for _, row := range rows {
		changes = append(changes, row.toDomain())
	}
	return changes, nil
}
