package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/halden-labs/application_layer/internal/app/domain/application"
	"github.com/halden-labs/application_layer/internal/errors"
	"github.com/halden-labs/application_layer/internal/httputil"
)

// HTTPIdentity talks to the identity service.
type HTTPIdentity struct {
	client *httputil.ServiceClient
}

var _ Identity = (*HTTPIdentity)(nil)

// NewHTTPIdentity creates an identity client.
func NewHTTPIdentity(client *httputil.ServiceClient) *HTTPIdentity {
	return &HTTPIdentity{client: client}
}

type identityUser struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

func (c *HTTPIdentity) Exists(ctx context.Context, userID string) (bool, error) {
	resp, err := c.client.Get(ctx, "/api/v1/users/"+url.PathEscape(userID))
	if err != nil {
		return false, errors.Unavailable("identity", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, errors.Unavailable("identity", statusError(resp.StatusCode))
	}
}

func (c *HTTPIdentity) RoleOf(ctx context.Context, userID string) (application.Role, error) {
	resp, err := c.client.Get(ctx, "/api/v1/users/"+url.PathEscape(userID))
	if err != nil {
		return "", errors.Unavailable("identity", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var user identityUser
		if err := httputil.DecodeResponse(resp, &user); err != nil {
			return "", errors.Unavailable("identity", err)
		}
		role, ok := application.ParseRole(user.Role)
		if !ok {
			return "", errors.Unavailable("identity", fmt.Errorf("unknown role %q for user %s", user.Role, userID))
		}
		return role, nil
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return "", ErrActorNotFound
	default:
		resp.Body.Close()
		return "", errors.Unavailable("identity", statusError(resp.StatusCode))
	}
}

// HTTPCatalog talks to the product catalog service.
type HTTPCatalog struct {
	client *httputil.ServiceClient
}

var _ Catalog = (*HTTPCatalog)(nil)

// NewHTTPCatalog creates a catalog client.
func NewHTTPCatalog(client *httputil.ServiceClient) *HTTPCatalog {
	return &HTTPCatalog{client: client}
}

func (c *HTTPCatalog) Exists(ctx context.Context, productID string) (bool, error) {
	resp, err := c.client.Get(ctx, "/api/v1/products/"+url.PathEscape(productID))
	if err != nil {
		return false, errors.Unavailable("catalog", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, errors.Unavailable("catalog", statusError(resp.StatusCode))
	}
}

// HTTPTagging talks to the tagging service.
type HTTPTagging struct {
	client *httputil.ServiceClient
}

var _ Tagging = (*HTTPTagging)(nil)

// NewHTTPTagging creates a tagging client.
func NewHTTPTagging(client *httputil.ServiceClient) *HTTPTagging {
	return &HTTPTagging{client: client}
}

type createTagRequest struct {
	Name string `json:"name"`
}

func (c *HTTPTagging) CreateOrGet(ctx context.Context, names []string) ([]Tag, error) {
	seen := make(map[string]bool, len(names))
	tags := make([]Tag, 0, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true

		resp, err := c.client.Post(ctx, "/api/v1/tags", createTagRequest{Name: name})
		if err != nil {
			return nil, errors.Unavailable("tagging", err)
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			resp.Body.Close()
			return nil, errors.Unavailable("tagging", statusError(resp.StatusCode))
		}

		var tag Tag
		if err := httputil.DecodeResponse(resp, &tag); err != nil {
			return nil, errors.Unavailable("tagging", err)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// HTTPOwnership talks to the catalog service's manager assignment endpoint.
type HTTPOwnership struct {
	client *httputil.ServiceClient
}

var _ Ownership = (*HTTPOwnership)(nil)

// NewHTTPOwnership creates an ownership client.
func NewHTTPOwnership(client *httputil.ServiceClient) *HTTPOwnership {
	return &HTTPOwnership{client: client}
}

func (c *HTTPOwnership) HasRole(ctx context.Context, userID, productID string) (bool, error) {
	path := "/api/v1/products/" + url.PathEscape(productID) + "/managers/" + url.PathEscape(userID)
	resp, err := c.client.Get(ctx, path)
	if err != nil {
		return false, errors.Unavailable("ownership", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, errors.Unavailable("ownership", statusError(resp.StatusCode))
	}
}

func statusError(code int) error {
	return fmt.Errorf("unexpected status %d", code)
}
