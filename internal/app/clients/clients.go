// Package clients defines the remote capability interfaces the coordinator
// depends on, plus their HTTP implementations. Each capability lives in a
// separate service; failures degrade to explicit unavailability errors,
// never to default values.
package clients

import (
	"context"
	"errors"

	"github.com/halden-labs/application_layer/internal/app/domain/application"
)

// ErrActorNotFound is returned by Identity.RoleOf when the user id is
// unknown to the identity service. Callers map it to their own category;
// it is distinct from transport failure.
var ErrActorNotFound = errors.New("actor not found")

// Tag is a canonical tag record owned by the tagging service.
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Identity resolves users and their roles.
type Identity interface {
	// Exists reports whether the user id is known. A 404 from the service
	// means false; transport failure is an error.
	Exists(ctx context.Context, userID string) (bool, error)

	// RoleOf returns the user's role. Unknown users yield ErrActorNotFound.
	RoleOf(ctx context.Context, userID string) (application.Role, error)
}

// Catalog resolves product records.
type Catalog interface {
	// Exists reports whether the product id is known.
	Exists(ctx context.Context, productID string) (bool, error)
}

// Tagging owns canonical tag records.
type Tagging interface {
	// CreateOrGet resolves each name to its canonical tag, creating missing
	// ones. The result preserves request order with duplicates removed.
	CreateOrGet(ctx context.Context, names []string) ([]Tag, error)
}

// Ownership resolves manager-to-product assignments.
type Ownership interface {
	// HasRole reports whether the user manages the product.
	HasRole(ctx context.Context, userID, productID string) (bool, error)
}
