package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/halden-labs/application_layer/internal/httputil"
	"github.com/halden-labs/application_layer/internal/logging"
)

func signedToken(t *testing.T, key *rsa.PrivateKey, userID, role string) string {
	t.Helper()
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestAuthMiddlewarePopulatesContext(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	m := NewAuthMiddleware(&key.PublicKey, logging.New("test"), nil)

	var gotUserID, gotRole, gotBearer string
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = logging.GetUserID(r.Context())
		gotRole = logging.GetRole(r.Context())
		gotBearer = httputil.GetBearerToken(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	token := signedToken(t, key, "user-1", "MANAGER")
	req := httptest.NewRequest(http.MethodGet, "/applications", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Code)
	}
	if gotUserID != "user-1" {
		t.Fatalf("user id = %q, want user-1", gotUserID)
	}
	if gotRole != "MANAGER" {
		t.Fatalf("role = %q, want MANAGER", gotRole)
	}
	if gotBearer != token {
		t.Fatal("bearer credential should be retained for outbound propagation")
	}
}

func TestAuthMiddlewareRejectsBadTokens(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	m := NewAuthMiddleware(&key.PublicKey, logging.New("test"), nil)
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	cases := map[string]string{
		"missing header": "",
		"not bearer":     "Basic abc",
		"garbage token":  "Bearer not-a-jwt",
	}
	for name, header := range cases {
		req := httptest.NewRequest(http.MethodGet, "/applications", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d, want 401", name, resp.Code)
		}
	}
}

func TestAuthMiddlewareSkipPaths(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	m := NewAuthMiddleware(&key.PublicKey, logging.New("test"), []string{"/healthz"})
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("skip path: status = %d, want 200", resp.Code)
	}
}

func TestServiceAuthMiddleware(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	m := NewServiceAuthMiddleware(ServiceAuthConfig{
		PublicKey:       &key.PublicKey,
		Logger:          logging.New("test"),
		AllowedServices: []string{"identity"},
	})

	var gotServiceID string
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotServiceID = GetServiceID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	gen := NewServiceTokenGenerator(key, "identity", time.Hour)
	token, err := gen.GenerateToken()
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/internal/applicants/u-1/applications", nil)
	req.Header.Set(ServiceTokenHeader, token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Code)
	}
	if gotServiceID != "identity" {
		t.Fatalf("service id = %q, want identity", gotServiceID)
	}

	// A service outside the allow list is rejected.
	otherGen := NewServiceTokenGenerator(key, "billing", time.Hour)
	otherToken, _ := otherGen.GenerateToken()
	req = httptest.NewRequest(http.MethodDelete, "/internal/applicants/u-1/applications", nil)
	req.Header.Set(ServiceTokenHeader, otherToken)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.Code)
	}

	// Missing token.
	req = httptest.NewRequest(http.MethodDelete, "/internal/applicants/u-1/applications", nil)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 1, logging.New("test"))
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/applications", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want 429", resp.Code)
	}
}
