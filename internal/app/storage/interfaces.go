package storage

import (
	"context"
	"errors"

	"github.com/halden-labs/application_layer/internal/app/domain/application"
	"github.com/halden-labs/application_layer/internal/app/pagination"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrVersionConflict is returned when an optimistic write lost the race
// against a concurrent update or delete.
var ErrVersionConflict = errors.New("version conflict")

// ApplicationStore persists applications together with their owned documents
// and tag associations. Deletes cascade to documents, history, and tags in
// one unit of work.
type ApplicationStore interface {
	// CreateApplication persists the application, its documents, and the
	// creation history row atomically.
	CreateApplication(ctx context.Context, app application.Application, creation application.StatusChange) (application.Application, error)

	// GetApplication returns the application with documents and tags merged.
	GetApplication(ctx context.Context, id string) (application.Application, error)

	// UpdateApplicationStatus persists a status transition guarded by the
	// version counter and appends the history row atomically.
	UpdateApplicationStatus(ctx context.Context, app application.Application, change application.StatusChange) (application.Application, error)

	// UpdateTags replaces the application's tag associations.
	UpdateTags(ctx context.Context, id string, tags []string) error

	// DeleteApplication removes documents, history, tags, then the
	// application itself, in that order, atomically.
	DeleteApplication(ctx context.Context, id string) error

	// ListApplications returns one keyset page ordered by
	// (created_at DESC, id DESC), strictly after the cursor position, with
	// documents and tags merged per item.
	ListApplications(ctx context.Context, cursor *pagination.Cursor, limit int) ([]application.Application, error)

	// ListApplicationIDsByApplicant returns ids of applications owned by the
	// applicant, for cascade fan-out.
	ListApplicationIDsByApplicant(ctx context.Context, applicantID string) ([]string, error)

	// ListApplicationIDsByProduct returns ids of applications referencing
	// the product, for cascade fan-out.
	ListApplicationIDsByProduct(ctx context.Context, productID string) ([]string, error)
}

// HistoryStore reads the append-only status history.
type HistoryStore interface {
	// ListStatusChanges returns the application's history ordered by
	// changed_at descending.
	ListStatusChanges(ctx context.Context, applicationID string) ([]application.StatusChange, error)
}
