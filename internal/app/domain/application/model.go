// Package application defines the application (ticket) aggregate: the record
// itself, its owned documents, and its append-only status history.
package application

import (
	"strings"
	"time"
)

// Status enumerates the lifecycle states of an application. Input parsing is
// case-insensitive; the canonical upper-case form is what goes on the wire.
type Status string

const (
	// StatusDraft is a valid value that no operation currently assigns.
	// Creation always starts at SUBMITTED; DRAFT is kept for clients that
	// may gate an earlier editing phase elsewhere.
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
	StatusInReview  Status = "IN_REVIEW"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
)

// Statuses lists every valid status in canonical form.
func Statuses() []Status {
	return []Status{StatusDraft, StatusSubmitted, StatusInReview, StatusApproved, StatusRejected}
}

// ParseStatus matches raw case-insensitively against the enum. The second
// return is false when raw is not a valid status.
func ParseStatus(raw string) (Status, bool) {
	candidate := Status(strings.ToUpper(strings.TrimSpace(raw)))
	for _, s := range Statuses() {
		if candidate == s {
			return s, true
		}
	}
	return "", false
}

// Role enumerates actor roles as reported by the identity service.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleClient  Role = "CLIENT"
)

// ParseRole matches raw case-insensitively against the role enum.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleManager:
		return RoleManager, true
	case RoleClient:
		return RoleClient, true
	}
	return "", false
}

// Application references an applicant and a product owned by other services
// and carries the locally owned documents, history, and tag names.
type Application struct {
	ID          string
	ApplicantID string
	ProductID   string
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   *time.Time
	// Version guards concurrent writes; every successful update increments it.
	Version   int64
	Documents []Document
	Tags      []string
}

// Document is owned exclusively by one application and is only ever created
// as part of application creation.
type Document struct {
	ID            string
	ApplicationID string
	FileName      string
	ContentType   string
	StoragePath   string
}

// StatusChange is one append-only audit row. OldStatus is nil only on the
// creation row.
type StatusChange struct {
	ID            string
	ApplicationID string
	OldStatus     *Status
	NewStatus     Status
	ActorRole     Role
	ChangedAt     time.Time
}
