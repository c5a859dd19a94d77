// Package applications implements the application lifecycle coordinator:
// creation against remote existence checks, the status state machine with
// its audit history, tag attachment, and cascading deletes.
package applications

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/halden-labs/application_layer/internal/app/auth"
	"github.com/halden-labs/application_layer/internal/app/clients"
	"github.com/halden-labs/application_layer/internal/app/domain/application"
	"github.com/halden-labs/application_layer/internal/app/metrics"
	"github.com/halden-labs/application_layer/internal/app/pagination"
	"github.com/halden-labs/application_layer/internal/app/storage"
	"github.com/halden-labs/application_layer/internal/errors"
	"github.com/halden-labs/application_layer/pkg/logger"
)

// Service coordinates application lifecycle operations.
type Service struct {
	store    storage.ApplicationStore
	history  storage.HistoryStore
	identity clients.Identity
	catalog  clients.Catalog
	tagging  clients.Tagging
	resolver *auth.Resolver
	log      *logger.Logger
	now      func() time.Time
}

// New constructs the coordinator. A nil resolver defaults to local
// ownership over the applicant field.
func New(store storage.ApplicationStore, history storage.HistoryStore, identity clients.Identity, catalog clients.Catalog, tagging clients.Tagging, resolver *auth.Resolver, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("applications")
	}
	if resolver == nil {
		resolver = auth.NewResolver(identity, auth.LocalOwner{})
	}
	return &Service{
		store:    store,
		history:  history,
		identity: identity,
		catalog:  catalog,
		tagging:  tagging,
		resolver: resolver,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// DocumentInput describes a document supplied at creation time.
type DocumentInput struct {
	FileName    string
	ContentType string
	StoragePath string
}

// CreateRequest carries the create operation's inputs.
type CreateRequest struct {
	ApplicantID string
	ProductID   string
	Documents   []DocumentInput
	TagNames    []string
}

// Create verifies the applicant and product exist remotely, persists the
// application with its documents and creation history row, then resolves
// tags. A tagging failure after the application is durably created is
// reported alongside the created application; the row is not rolled back.
func (s *Service) Create(ctx context.Context, req CreateRequest) (application.Application, error) {
	app, err := s.create(ctx, req)
	metrics.RecordOperation("create", err)
	return app, err
}

func (s *Service) create(ctx context.Context, req CreateRequest) (application.Application, error) {
	if strings.TrimSpace(req.ApplicantID) == "" {
		return application.Application{}, errors.BadRequest("applicant_id is required")
	}
	if strings.TrimSpace(req.ProductID) == "" {
		return application.Application{}, errors.BadRequest("product_id is required")
	}
	docs := make([]application.Document, 0, len(req.Documents))
	for _, in := range req.Documents {
		if strings.TrimSpace(in.FileName) == "" {
			return application.Application{}, errors.BadRequest("document file_name is required")
		}
		docs = append(docs, application.Document{
			FileName:    strings.TrimSpace(in.FileName),
			ContentType: in.ContentType,
			StoragePath: in.StoragePath,
		})
	}

	ok, err := s.identity.Exists(ctx, req.ApplicantID)
	metrics.RecordRemoteCall("identity", err)
	if err != nil {
		return application.Application{}, err
	}
	if !ok {
		return application.Application{}, errors.NotFound("applicant", req.ApplicantID)
	}

	ok, err = s.catalog.Exists(ctx, req.ProductID)
	metrics.RecordRemoteCall("catalog", err)
	if err != nil {
		return application.Application{}, err
	}
	if !ok {
		return application.Application{}, errors.NotFound("product", req.ProductID)
	}

	now := s.now()
	created, err := s.store.CreateApplication(ctx, application.Application{
		ApplicantID: req.ApplicantID,
		ProductID:   req.ProductID,
		Status:      application.StatusSubmitted,
		CreatedAt:   now,
		Documents:   docs,
	}, application.StatusChange{
		NewStatus: application.StatusSubmitted,
		ActorRole: application.RoleClient,
		ChangedAt: now,
	})
	if err != nil {
		return application.Application{}, fmt.Errorf("persist application: %w", err)
	}

	s.log.WithField("application_id", created.ID).
		WithField("applicant_id", created.ApplicantID).
		WithField("product_id", created.ProductID).
		Info("application created")

	if len(req.TagNames) == 0 {
		return created, nil
	}

	tags, err := s.tagging.CreateOrGet(ctx, req.TagNames)
	metrics.RecordRemoteCall("tagging", err)
	if err != nil {
		s.log.WithError(err).WithField("application_id", created.ID).
			Warn("application saved without tags")
		return created, errors.Unavailable("tag service", err).
			WithDetails("application_id", created.ID).
			WithDetails("partial_success", "application saved without tags")
	}

	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.Name)
	}
	if err := s.store.UpdateTags(ctx, created.ID, names); err != nil {
		return created, fmt.Errorf("persist tags: %w", err)
	}
	created.Tags = names
	return created, nil
}

// Get returns one application with documents and tags merged. Visible to
// the applicant and to privileged actors.
func (s *Service) Get(ctx context.Context, id, actorID string) (application.Application, error) {
	app, err := s.getAuthorized(ctx, id, actorID)
	metrics.RecordOperation("get", err)
	return app, err
}

func (s *Service) getAuthorized(ctx context.Context, id, actorID string) (application.Application, error) {
	if actorID == "" {
		return application.Application{}, errors.Unauthorized("missing actor identity")
	}
	app, err := s.getApplication(ctx, id)
	if err != nil {
		return application.Application{}, err
	}
	if err := s.resolver.RequireSelfOrPrivileged(ctx, actorID, auth.Subject{ID: app.ID, OwnerID: app.ApplicantID}); err != nil {
		return application.Application{}, err
	}
	return app, nil
}

// ChangeStatus moves the application to the named status. The status text
// is matched case-insensitively; an unmatched value is a domain conflict,
// not malformed input. A same-status call is an idempotent no-op that
// writes no history row.
func (s *Service) ChangeStatus(ctx context.Context, id, statusText, actorID string) (application.Application, error) {
	app, err := s.changeStatus(ctx, id, statusText, actorID)
	metrics.RecordOperation("change_status", err)
	return app, err
}

func (s *Service) changeStatus(ctx context.Context, id, statusText, actorID string) (application.Application, error) {
	if actorID == "" {
		return application.Application{}, errors.Unauthorized("missing actor identity")
	}

	app, err := s.getApplication(ctx, id)
	if err != nil {
		return application.Application{}, err
	}

	role, err := s.resolver.RequireStatusChanger(ctx, actorID, auth.Subject{ID: app.ID, OwnerID: app.ApplicantID})
	if err != nil {
		return application.Application{}, err
	}

	newStatus, ok := application.ParseStatus(statusText)
	if !ok {
		return application.Application{}, errors.Conflict(
			fmt.Sprintf("unknown status %q; valid values: %s", statusText, strings.Join(statusNames(), ", ")))
	}

	if newStatus == app.Status {
		return app, nil
	}

	oldStatus := app.Status
	now := s.now()
	app.Status = newStatus
	app.UpdatedAt = &now

	updated, err := s.store.UpdateApplicationStatus(ctx, app, application.StatusChange{
		OldStatus: &oldStatus,
		NewStatus: newStatus,
		ActorRole: role,
		ChangedAt: now,
	})
	if err != nil {
		switch {
		case stderrors.Is(err, storage.ErrVersionConflict):
			return application.Application{}, errors.Conflict("application was modified concurrently")
		case stderrors.Is(err, storage.ErrNotFound):
			return application.Application{}, errors.NotFound("application", id)
		default:
			return application.Application{}, fmt.Errorf("persist status change: %w", err)
		}
	}

	s.log.WithField("application_id", id).
		WithField("old_status", string(oldStatus)).
		WithField("new_status", string(newStatus)).
		WithField("actor_role", string(role)).
		Info("application status changed")
	return updated, nil
}

// AttachTags resolves the names through the tagging service and unions
// them into the application's tag set. Re-attaching an existing name is a
// no-op.
func (s *Service) AttachTags(ctx context.Context, id string, names []string, actorID string) (application.Application, error) {
	app, err := s.attachTags(ctx, id, names, actorID)
	metrics.RecordOperation("attach_tags", err)
	return app, err
}

func (s *Service) attachTags(ctx context.Context, id string, names []string, actorID string) (application.Application, error) {
	app, err := s.getAuthorized(ctx, id, actorID)
	if err != nil {
		return application.Application{}, err
	}
	if len(names) == 0 {
		return app, nil
	}

	tags, err := s.tagging.CreateOrGet(ctx, names)
	metrics.RecordRemoteCall("tagging", err)
	if err != nil {
		return application.Application{}, err
	}

	merged := app.Tags
	present := make(map[string]bool, len(merged))
	for _, name := range merged {
		present[name] = true
	}
	for _, tag := range tags {
		if !present[tag.Name] {
			merged = append(merged, tag.Name)
			present[tag.Name] = true
		}
	}

	if err := s.store.UpdateTags(ctx, id, merged); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return application.Application{}, errors.NotFound("application", id)
		}
		return application.Application{}, fmt.Errorf("persist tags: %w", err)
	}
	app.Tags = merged
	return app, nil
}

// RemoveTags removes the named tags locally. Names not present are
// silently ignored; no remote calls are made.
func (s *Service) RemoveTags(ctx context.Context, id string, names []string, actorID string) (application.Application, error) {
	app, err := s.removeTags(ctx, id, names, actorID)
	metrics.RecordOperation("remove_tags", err)
	return app, err
}

func (s *Service) removeTags(ctx context.Context, id string, names []string, actorID string) (application.Application, error) {
	app, err := s.getAuthorized(ctx, id, actorID)
	if err != nil {
		return application.Application{}, err
	}
	if len(names) == 0 {
		return app, nil
	}

	drop := make(map[string]bool, len(names))
	for _, name := range names {
		drop[strings.TrimSpace(name)] = true
	}
	kept := make([]string, 0, len(app.Tags))
	for _, name := range app.Tags {
		if !drop[name] {
			kept = append(kept, name)
		}
	}
	if len(kept) == len(app.Tags) {
		return app, nil
	}

	if err := s.store.UpdateTags(ctx, id, kept); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return application.Application{}, errors.NotFound("application", id)
		}
		return application.Application{}, fmt.Errorf("persist tags: %w", err)
	}
	app.Tags = kept
	return app, nil
}

// Delete removes the application and its owned rows. Admin only; no
// remote calls are made for a single delete.
func (s *Service) Delete(ctx context.Context, id, actorID string) error {
	err := s.delete(ctx, id, actorID)
	metrics.RecordOperation("delete", err)
	return err
}

func (s *Service) delete(ctx context.Context, id, actorID string) error {
	if actorID == "" {
		return errors.Unauthorized("missing actor identity")
	}
	if _, err := s.getApplication(ctx, id); err != nil {
		return err
	}
	if err := s.resolver.RequireAdmin(ctx, actorID); err != nil {
		return err
	}

	if err := s.store.DeleteApplication(ctx, id); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NotFound("application", id)
		}
		return fmt.Errorf("delete application: %w", err)
	}

	s.log.WithField("application_id", id).Info("application deleted")
	return nil
}

// CascadeResult summarises a delete fan-out.
type CascadeResult struct {
	Deleted []string `json:"deleted"`
	Failed  []string `json:"failed,omitempty"`
}

// DeleteAllByApplicant removes every application owned by the applicant.
// Invoked by the identity service when a user is removed; trusted, not
// actor-gated. One failing delete does not stop the remaining ids.
func (s *Service) DeleteAllByApplicant(ctx context.Context, applicantID string) (CascadeResult, error) {
	ids, err := s.store.ListApplicationIDsByApplicant(ctx, applicantID)
	if err != nil {
		metrics.RecordOperation("delete_all_by_applicant", err)
		return CascadeResult{}, fmt.Errorf("list applications for applicant %s: %w", applicantID, err)
	}
	result := s.cascade(ctx, "applicant", ids)
	metrics.RecordOperation("delete_all_by_applicant", nil)
	return result, nil
}

// DeleteAllByProduct removes every application referencing the product.
// Invoked by the catalog service when a product is removed.
func (s *Service) DeleteAllByProduct(ctx context.Context, productID string) (CascadeResult, error) {
	ids, err := s.store.ListApplicationIDsByProduct(ctx, productID)
	if err != nil {
		metrics.RecordOperation("delete_all_by_product", err)
		return CascadeResult{}, fmt.Errorf("list applications for product %s: %w", productID, err)
	}
	result := s.cascade(ctx, "product", ids)
	metrics.RecordOperation("delete_all_by_product", nil)
	return result, nil
}

// cascade performs the per-id fan-out with failure isolation. Failures
// are logged for operator remediation; there is no retry queue.
func (s *Service) cascade(ctx context.Context, origin string, ids []string) CascadeResult {
	result := CascadeResult{Deleted: make([]string, 0, len(ids))}
	for _, id := range ids {
		err := s.store.DeleteApplication(ctx, id)
		metrics.RecordCascadeDelete(origin, err)
		if err != nil {
			s.log.WithError(err).
				WithField("application_id", id).
				WithField("origin", origin).
				Error("cascade delete failed; manual remediation required")
			result.Failed = append(result.Failed, id)
			continue
		}
		result.Deleted = append(result.Deleted, id)
	}
	return result
}

// ListHistory returns the application's status history, newest first.
func (s *Service) ListHistory(ctx context.Context, id, actorID string) ([]application.StatusChange, error) {
	changes, err := s.listHistory(ctx, id, actorID)
	metrics.RecordOperation("list_history", err)
	return changes, err
}

func (s *Service) listHistory(ctx context.Context, id, actorID string) ([]application.StatusChange, error) {
	if _, err := s.getAuthorized(ctx, id, actorID); err != nil {
		return nil, err
	}
	changes, err := s.history.ListStatusChanges(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NotFound("application", id)
		}
		return nil, fmt.Errorf("list history: %w", err)
	}
	return changes, nil
}

// Page is one keyset window plus the cursor for the next.
type Page struct {
	Items      []application.Application
	NextCursor string
}

// List returns one page ordered by (created_at DESC, id DESC). The limit
// is validated before the store is touched; values beyond the cap are a
// hard error, not silent truncation.
func (s *Service) List(ctx context.Context, rawCursor string, limit int) (Page, error) {
	page, err := s.list(ctx, rawCursor, limit)
	metrics.RecordOperation("list", err)
	return page, err
}

func (s *Service) list(ctx context.Context, rawCursor string, limit int) (Page, error) {
	if err := pagination.ValidateLimit(limit); err != nil {
		return Page{}, err
	}

	var cursor *pagination.Cursor
	if rawCursor != "" {
		decoded, err := pagination.Decode(rawCursor)
		if err != nil {
			return Page{}, err
		}
		cursor = &decoded
	}

	items, err := s.store.ListApplications(ctx, cursor, limit)
	if err != nil {
		return Page{}, fmt.Errorf("list applications: %w", err)
	}

	page := Page{Items: items}
	if len(items) > 0 {
		last := items[len(items)-1]
		page.NextCursor = pagination.Encode(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}

func (s *Service) getApplication(ctx context.Context, id string) (application.Application, error) {
	app, err := s.store.GetApplication(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return application.Application{}, errors.NotFound("application", id)
		}
		return application.Application{}, fmt.Errorf("load application: %w", err)
	}
	return app, nil
}

func statusNames() []string {
	statuses := application.Statuses()
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	return names
}
