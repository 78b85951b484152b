package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"helpmarq/client/internal/respcache"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := New(Options{
		BaseURL: server.URL,
		Cache:   respcache.New(0, 0),
		Logger:  zerolog.Nop(),
	})
	return client, server
}

func TestSignInSuccess(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/sign-in/email" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "a@b.test" {
			t.Errorf("unexpected email: %s", body["email"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"user":    map[string]string{"id": "user-1", "email": "a@b.test", "name": "Avery"},
			"session": map[string]string{"token": "tok-1"},
		})
	}))

	session, err := client.SignIn(context.Background(), "a@b.test", "password")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if session.User.ID != "user-1" || session.Token != "tok-1" {
		t.Fatalf("unexpected session: %+v", session)
	}
}

func TestSignInInvalidCredentials(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "invalid email or password"},
		})
	}))

	_, err := client.SignIn(context.Background(), "a@b.test", "wrong")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.Kind != AuthKindInvalidCredentials {
		t.Fatalf("expected invalid_credentials, got %s", authErr.Kind)
	}
	if authErr.Message != "invalid email or password" {
		t.Fatalf("expected backend message, got %q", authErr.Message)
	}
}

func TestSignInServerErrorIsNotACredentialRejection(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.SignIn(context.Background(), "a@b.test", "password")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.Kind != AuthKindNetwork {
		t.Fatalf("backend outage must not read as invalid credentials, got kind %s", authErr.Kind)
	}
}

func TestSignInRejectionWithoutMessageIsNotACredentialRejection(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	_, err := client.SignIn(context.Background(), "a@b.test", "password")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.Kind != AuthKindNetwork {
		t.Fatalf("a 4xx without a backend message must not read as invalid credentials, got kind %s", authErr.Kind)
	}
}

func TestSignInNetworkFailure(t *testing.T) {
	client := New(Options{BaseURL: "http://127.0.0.1:1", Logger: zerolog.Nop()})

	_, err := client.SignIn(context.Background(), "a@b.test", "password")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.Kind != AuthKindNetwork {
		t.Fatalf("expected network kind, got %s", authErr.Kind)
	}
}

func TestGetSessionUnauthorized(t *testing.T) {
	hookCalled := false
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	client.SetOnUnauthorized(func() { hookCalled = true })

	_, err := client.GetSession(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	// The session probe decides teardown itself; the hook is for other calls.
	if hookCalled {
		t.Fatal("OnUnauthorized must not fire for the session probe")
	}
}

func TestMeParsesRoleAndReviewerID(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"role":    "reviewer",
			"data":    map[string]string{"id": "rev-42"},
		})
	}))

	identity, err := client.Me(context.Background())
	if err != nil {
		t.Fatalf("Me failed: %v", err)
	}
	if identity.Role != "reviewer" || identity.ReviewerID != "rev-42" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}

func TestMeNullRole(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": true, "role": nil})
	}))

	identity, err := client.Me(context.Background())
	if err != nil {
		t.Fatalf("Me failed: %v", err)
	}
	if identity.Role != "" {
		t.Fatalf("expected empty role, got %q", identity.Role)
	}
}

func TestUnauthorizedReadFiresHook(t *testing.T) {
	var hookCalls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	client.SetOnUnauthorized(func() { hookCalls.Add(1) })

	_, err := client.ListProjects(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if hookCalls.Load() != 1 {
		t.Fatalf("expected hook to fire once, fired %d times", hookCalls.Load())
	}
}

func TestListProjectsIsCached(t *testing.T) {
	var hits atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    []map[string]string{{"id": "p-1", "title": "App"}},
		})
	}))

	for i := 0; i < 3; i++ {
		projects, err := client.ListProjects(context.Background())
		if err != nil {
			t.Fatalf("ListProjects failed: %v", err)
		}
		if len(projects) != 1 || projects[0].ID != "p-1" {
			t.Fatalf("unexpected projects: %+v", projects)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one backend hit, got %d", hits.Load())
	}
}

func TestMutationsAreNotCached(t *testing.T) {
	var hits atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]string{"id": "app-1"},
		})
	}))

	for i := 0; i < 2; i++ {
		if _, err := client.Apply(context.Background(), "p-1"); err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
	}
	if hits.Load() != 2 {
		t.Fatalf("expected two backend hits, got %d", hits.Load())
	}
}

func TestBackendFailureSurfacesAPIError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   "already applied",
			"code":    "DUPLICATE_APPLICATION",
		})
	}))

	_, err := client.Apply(context.Background(), "p-1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.Code != "DUPLICATE_APPLICATION" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestRequestCarriesIdentityHeaders(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-Id") == "" {
			t.Error("missing X-Request-Id header")
		}
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			t.Errorf("unexpected Authorization header: %q", r.Header.Get("Authorization"))
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true, "data": []any{}})
	}))
	client.SetTokenSource(func() string { return "tok-1" })

	if _, err := client.ListNotifications(context.Background()); err != nil {
		t.Fatalf("ListNotifications failed: %v", err)
	}
}

func TestEnvelopeFailureWithOKStatus(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "nope"})
	}))

	_, err := client.ListProjects(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != "nope" {
		t.Fatalf("unexpected message: %q", apiErr.Message)
	}
}
