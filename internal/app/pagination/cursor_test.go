package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/halden-labs/application_layer/internal/errors"
)

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2024, 5, 17, 9, 30, 12, 345678000, time.UTC)
	c := Cursor{CreatedAt: ts, ID: "7f9c2ba4-1a30-4a6d-93a5-000000000001"}

	decoded, err := Decode(Encode(c))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.CreatedAt.Equal(ts) {
		t.Fatalf("timestamp changed: %v != %v", decoded.CreatedAt, ts)
	}
	if decoded.ID != c.ID {
		t.Fatalf("id changed: %q != %q", decoded.ID, c.ID)
	}
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	bad := []string{
		"not-base64!!!",
		base64.StdEncoding.EncodeToString([]byte("no-separator")),
		base64.StdEncoding.EncodeToString([]byte("2024-05-17T09:30:12Z|")),
		base64.StdEncoding.EncodeToString([]byte("yesterday|abc")),
		base64.StdEncoding.EncodeToString([]byte("2024-05-17T09:30:12Z|a|b")),
	}
	for _, raw := range bad {
		_, err := Decode(raw)
		if err == nil {
			t.Fatalf("Decode(%q) unexpectedly succeeded", raw)
		}
		if !errors.IsCode(err, errors.CodeBadRequest) {
			t.Fatalf("Decode(%q) wrong category: %v", raw, err)
		}
	}
}

func TestValidateLimit(t *testing.T) {
	if err := ValidateLimit(1); err != nil {
		t.Fatalf("limit 1: %v", err)
	}
	if err := ValidateLimit(MaxLimit); err != nil {
		t.Fatalf("limit %d: %v", MaxLimit, err)
	}
	for _, limit := range []int{0, -3, MaxLimit + 1} {
		err := ValidateLimit(limit)
		if err == nil || !errors.IsCode(err, errors.CodeBadRequest) {
			t.Fatalf("limit %d: expected bad request, got %v", limit, err)
		}
	}
}
