// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halden-labs/application_layer/internal/app/domain/application"
	"github.com/halden-labs/application_layer/internal/app/pagination"
	"github.com/halden-labs/application_layer/internal/app/storage"
)

// Store keeps all records in maps guarded by one lock.
type Store struct {
	mu           sync.RWMutex
	applications map[string]application.Application
	documents    map[string][]application.Document
	history      map[string][]application.StatusChange
	tags         map[string][]string
}

var _ storage.ApplicationStore = (*Store)(nil)
var _ storage.HistoryStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		applications: make(map[string]application.Application),
		documents:    make(map[string][]application.Document),
		history:      make(map[string][]application.StatusChange),
		tags:         make(map[string][]string),
	}
}

func (s *Store) CreateApplication(_ context.Context, app application.Application, creation application.StatusChange) (application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.CreatedAt.IsZero() {
		app.CreatedAt = time.Now().UTC()
	}
	app.Version = 1

	docs := make([]application.Document, 0, len(app.Documents))
	for _, doc := range app.Documents {
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		doc.ApplicationID = app.ID
		docs = append(docs, doc)
	}
	app.Documents = docs

	creation.ID = uuid.NewString()
	creation.ApplicationID = app.ID
	if creation.ChangedAt.IsZero() {
		creation.ChangedAt = app.CreatedAt
	}

	s.applications[app.ID] = cloneApplication(app)
	s.documents[app.ID] = cloneDocuments(docs)
	s.history[app.ID] = []application.StatusChange{creation}
	s.tags[app.ID] = cloneStrings(app.Tags)

	return s.assembleLocked(app.ID), nil
}

func (s *Store) GetApplication(_ context.Context, id string) (application.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.applications[id]; !ok {
		return application.Application{}, storage.ErrNotFound
	}
	return s.assembleLocked(id), nil
}

func (s *Store) UpdateApplicationStatus(_ context.Context, app application.Application, change application.StatusChange) (application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.applications[app.ID]
	if !ok {
		return application.Application{}, storage.ErrNotFound
	}
	if existing.Version != app.Version {
		return application.Application{}, storage.ErrVersionConflict
	}

	existing.Status = app.Status
	existing.UpdatedAt = app.UpdatedAt
	existing.Version++
	s.applications[app.ID] = existing

	change.ID = uuid.NewString()
	change.ApplicationID = app.ID
	if change.ChangedAt.IsZero() {
		change.ChangedAt = time.Now().UTC()
	}
	s.history[app.ID] = append(s.history[app.ID], change)

	return s.assembleLocked(app.ID), nil
}

func (s *Store) UpdateTags(_ context.Context, id string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.applications[id]; !ok {
		return storage.ErrNotFound
	}
	s.tags[id] = cloneStrings(tags)
	return nil
}

func (s *Store) DeleteApplication(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.applications[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.documents, id)
	delete(s.history, id)
	delete(s.tags, id)
	delete(s.applications, id)
	return nil
}

func (s *Store) ListApplications(_ context.Context, cursor *pagination.Cursor, limit int) ([]application.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ordered := make([]application.Application, 0, len(s.applications))
	for _, app := range s.applications {
		ordered = append(ordered, app)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
		}
		return ordered[i].ID > ordered[j].ID
	})

	page := make([]application.Application, 0, limit)
	for _, app := range ordered {
		if cursor != nil && !afterCursor(app, *cursor) {
			continue
		}
		page = append(page, s.assembleLocked(app.ID))
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

// afterCursor is the keyset predicate for "strictly after" under
// (created_at DESC, id DESC) ordering.
func afterCursor(app application.Application, c pagination.Cursor) bool {
	if app.CreatedAt.Before(c.CreatedAt) {
		return true
	}
	return app.CreatedAt.Equal(c.CreatedAt) && app.ID < c.ID
}

func (s *Store) ListApplicationIDsByApplicant(_ context.Context, applicantID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, app := range s.applications {
		if app.ApplicantID == applicantID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) ListApplicationIDsByProduct(_ context.Context, productID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, app := range s.applications {
		if app.ProductID == productID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) ListStatusChanges(_ context.Context, applicationID string) ([]application.StatusChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.applications[applicationID]; !ok {
		return nil, storage.ErrNotFound
	}
	rows := make([]application.StatusChange, len(s.history[applicationID]))
	copy(rows, s.history[applicationID])
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].ChangedAt.After(rows[j].ChangedAt)
	})
	return rows, nil
}

// assembleLocked merges documents and tags into a detached copy. Callers
// must hold at least the read lock.
func (s *Store) assembleLocked(id string) application.Application {
	app := cloneApplication(s.applications[id])
	app.Documents = cloneDocuments(s.documents[id])
	app.Tags = cloneStrings(s.tags[id])
	return app
}

func cloneApplication(app application.Application) application.Application {
	out := app
	if app.UpdatedAt != nil {
		ts := *app.UpdatedAt
		out.UpdatedAt = &ts
	}
	out.Documents = nil
	out.Tags = nil
	return out
}

func cloneDocuments(docs []application.Document) []application.Document {
	if docs == nil {
		return nil
	}
	out := make([]application.Document, len(docs))
	copy(out, docs)
	return out
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
