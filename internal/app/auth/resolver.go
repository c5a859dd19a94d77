// Package auth resolves allow/deny decisions by combining local ownership
// facts with a remote role lookup. Each resolution performs at most one
// role lookup and never caches the result across requests.
package auth

import (
	"context"
	stderrors "errors"

	"github.com/halden-labs/application_layer/internal/app/clients"
	"github.com/halden-labs/application_layer/internal/app/domain/application"
	"github.com/halden-labs/application_layer/internal/errors"
)

// Subject identifies the resource an authorization decision is about.
type Subject struct {
	ID      string
	OwnerID string
}

// OwnershipStrategy decides whether the actor owns the subject. The local
// strategy compares the owner field; remote strategies consult an
// assignment lookup in another service.
type OwnershipStrategy interface {
	Owns(ctx context.Context, actorID string, subject Subject) (bool, error)
}

// LocalOwner grants ownership when the subject's owner field matches the
// actor.
type LocalOwner struct{}

func (LocalOwner) Owns(_ context.Context, actorID string, subject Subject) (bool, error) {
	return subject.OwnerID != "" && subject.OwnerID == actorID, nil
}

// RemoteAssignment grants ownership when the remote ownership service has
// an assignment between the actor and the subject.
type RemoteAssignment struct {
	Ownership clients.Ownership
}

func (r RemoteAssignment) Owns(ctx context.Context, actorID string, subject Subject) (bool, error) {
	return r.Ownership.HasRole(ctx, actorID, subject.ID)
}

// Resolver evaluates the authorization rules shared by all lifecycle
// operations.
type Resolver struct {
	identity  clients.Identity
	ownership OwnershipStrategy
}

// NewResolver creates a resolver over the given ownership strategy.
func NewResolver(identity clients.Identity, ownership OwnershipStrategy) *Resolver {
	return &Resolver{identity: identity, ownership: ownership}
}

// RequireSelfOrPrivileged allows the subject's owner without any remote
// lookup, and otherwise requires the actor's remote role to be ADMIN or
// MANAGER.
func (r *Resolver) RequireSelfOrPrivileged(ctx context.Context, actorID string, subject Subject) error {
	if actorID == "" {
		return errors.Unauthorized("missing actor identity")
	}

	owns, err := r.ownership.Owns(ctx, actorID, subject)
	if err != nil {
		return err
	}
	if owns {
		return nil
	}

	role, err := r.roleOf(ctx, actorID)
	if err != nil {
		return err
	}
	if role != application.RoleAdmin && role != application.RoleManager {
		return errors.Forbidden("actor lacks role or ownership")
	}
	return nil
}

// RequireAdmin requires the actor's remote role to be ADMIN.
func (r *Resolver) RequireAdmin(ctx context.Context, actorID string) error {
	if actorID == "" {
		return errors.Unauthorized("missing actor identity")
	}

	role, err := r.roleOf(ctx, actorID)
	if err != nil {
		return err
	}
	if role != application.RoleAdmin {
		return errors.Forbidden("admin role required")
	}
	return nil
}

// RequireStatusChanger requires ADMIN or MANAGER and applies the
// manager-self-approval rule: a MANAGER who is also the subject's owner is
// rejected with Conflict. ADMIN actors are exempt. The actor's role is
// returned for the history record.
func (r *Resolver) RequireStatusChanger(ctx context.Context, actorID string, subject Subject) (application.Role, error) {
	if actorID == "" {
		return "", errors.Unauthorized("missing actor identity")
	}

	role, err := r.roleOf(ctx, actorID)
	if err != nil {
		return "", err
	}

	switch role {
	case application.RoleAdmin:
		return role, nil
	case application.RoleManager:
		if actorID == subject.OwnerID {
			return "", errors.Conflict("managers may not change the status of their own application")
		}
		return role, nil
	default:
		return "", errors.Forbidden("status changes require ADMIN or MANAGER role")
	}
}

func (r *Resolver) roleOf(ctx context.Context, actorID string) (application.Role, error) {
	role, err := r.identity.RoleOf(ctx, actorID)
	if err != nil {
		if stderrors.Is(err, clients.ErrActorNotFound) {
			return "", errors.NotFound("user", actorID)
		}
		return "", err
	}
	return role, nil
}
