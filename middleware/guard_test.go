package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wardenauth/warden"
	"github.com/wardenauth/warden/backend/memory"
	"github.com/wardenauth/warden/password"
)

func newTestManager(t *testing.T) *warden.Manager {
	t.Helper()
	cfg := warden.DefaultConfig()
	cfg.Token.Secret = "0123456789abcdef0123456789abcdef"
	cfg.Password.SecurityLevel = password.LevelLow
	mgr, err := warden.New().WithBackend(memory.New()).WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

func login(t *testing.T, mgr *warden.Manager, username string, role warden.Role) string {
	t.Helper()
	ctx := context.Background()
	if _, err := mgr.CreateUser(ctx, warden.UserCreate{
		Username: username,
		Password: "Str0ng!Pass",
		Role:     role,
	}); err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	pair, err := mgr.Authenticate(ctx, username, "Str0ng!Pass", "")
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	return pair.AccessToken
}

func TestRequireAuth(t *testing.T) {
	mgr := newTestManager(t)
	accessToken := login(t, mgr, "alice", warden.RoleRegular)

	var gotSubject string
	handler := RequireAuth(mgr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			t.Fatal("expected claims on the request context")
		}
		gotSubject = claims.Subject
	}))

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"valid token", "Bearer " + accessToken, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"garbage token", "Bearer garbage", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
		})
	}
	if gotSubject != "alice" {
		t.Fatalf("handler saw subject %q", gotSubject)
	}
}

func TestRequireAuthRevokedToken(t *testing.T) {
	mgr := newTestManager(t)
	accessToken := login(t, mgr, "alice", warden.RoleRegular)
	if err := mgr.Logout(context.Background(), accessToken); err != nil {
		t.Fatalf("Logout error: %v", err)
	}

	handler := RequireAuth(mgr)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("revoked token must not reach the handler")
	}))
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireRole(t *testing.T) {
	mgr := newTestManager(t)
	regularToken := login(t, mgr, "alice", warden.RoleRegular)
	adminToken := login(t, mgr, "root_user", warden.RoleAdmin)

	handler := RequireRole(mgr, warden.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name   string
		token  string
		status int
	}{
		{"admin allowed", adminToken, http.StatusOK},
		{"regular forbidden", regularToken, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			req.Header.Set("Authorization", "Bearer "+tc.token)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
		})
	}
}

func TestRequireRoleAdminPassesAnyGate(t *testing.T) {
	mgr := newTestManager(t)
	adminToken := login(t, mgr, "root_user", warden.RoleAdmin)

	handler := RequireRole(mgr, warden.RoleRegular)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/regular", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}
