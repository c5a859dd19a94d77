package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestGetServiceErrorUnwrapsChain(t *testing.T) {
	base := Unavailable("identity service", stderrors.New("connection refused"))
	wrapped := fmt.Errorf("check applicant: %w", base)

	se := GetServiceError(wrapped)
	if se == nil {
		t.Fatalf("expected service error in chain")
	}
	if se.Code != CodeUnavailable {
		t.Fatalf("expected %s, got %s", CodeUnavailable, se.Code)
	}
	if se.HTTPStatus != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status %d", se.HTTPStatus)
	}
}

func TestNotFoundDetails(t *testing.T) {
	se := NotFound("applicant", "u-123")
	if se.Details["entity"] != "applicant" || se.Details["id"] != "u-123" {
		t.Fatalf("details not recorded: %v", se.Details)
	}
	if se.HTTPStatus != http.StatusNotFound {
		t.Fatalf("unexpected status %d", se.HTTPStatus)
	}
}

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", Conflict("self approval"))
	if !IsCode(err, CodeConflict) {
		t.Fatalf("expected conflict code")
	}
	if IsCode(err, CodeForbidden) {
		t.Fatalf("did not expect forbidden code")
	}
	if IsCode(stderrors.New("plain"), CodeConflict) {
		t.Fatalf("plain error must not match")
	}
}

func TestWithDetailsChaining(t *testing.T) {
	se := BadRequest("invalid cursor").WithDetails("cursor", "zzz")
	if se.Details["cursor"] != "zzz" {
		t.Fatalf("detail lost")
	}
}
