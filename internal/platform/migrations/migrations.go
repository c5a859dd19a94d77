// Package migrations applies the database schema as ordered DDL
// statements. Every statement is idempotent so Apply can run at each
// startup.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS applications (
		id TEXT PRIMARY KEY,
		applicant_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ,
		version BIGINT NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS application_documents (
		id TEXT PRIMARY KEY,
		application_id TEXT NOT NULL REFERENCES applications(id),
		file_name TEXT NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		storage_path TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS application_status_changes (
		id TEXT PRIMARY KEY,
		application_id TEXT NOT NULL REFERENCES applications(id),
		old_status TEXT,
		new_status TEXT NOT NULL,
		actor_role TEXT NOT NULL,
		changed_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS application_tags (
		application_id TEXT NOT NULL REFERENCES applications(id),
		tag TEXT NOT NULL,
		PRIMARY KEY (application_id, tag)
	)`,
	// Keyset pagination scans (created_at DESC, id DESC).
	`CREATE INDEX IF NOT EXISTS idx_applications_created_at_id
		ON applications (created_at DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_applications_applicant
		ON applications (applicant_id)`,
	`CREATE INDEX IF NOT EXISTS idx_applications_product
		ON applications (product_id)`,
	`CREATE INDEX IF NOT EXISTS idx_status_changes_application
		ON application_status_changes (application_id, changed_at DESC)`,
}

// Apply executes the schema statements in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
