package warden_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wardenauth/warden"
	"github.com/wardenauth/warden/backend/memory"
	"github.com/wardenauth/warden/password"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func lowCostConfig() warden.Config {
	cfg := warden.DefaultConfig()
	cfg.Token.Secret = testSecret
	cfg.Password.SecurityLevel = password.LevelLow
	return cfg
}

func newTestManager(t *testing.T) *warden.Manager {
	t.Helper()
	mgr, err := warden.New().
		WithBackend(memory.New()).
		WithConfig(lowCostConfig()).
		Build()
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

func seedUser(t *testing.T, mgr *warden.Manager) *warden.User {
	t.Helper()
	user, err := mgr.CreateUser(context.Background(), warden.UserCreate{
		Username: "alice",
		Password: "Str0ng!Pass",
		Role:     warden.RoleRegular,
		Email:    "alice@example.com",
	})
	if err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	return user
}

func TestBuildRequiresBackend(t *testing.T) {
	if _, err := warden.New().WithTokenSecret(testSecret).Build(); err == nil {
		t.Fatal("expected error without a backend")
	}
}

func TestBuildRequiresSecret(t *testing.T) {
	if _, err := warden.New().WithBackend(memory.New()).Build(); err == nil {
		t.Fatal("expected error without a token secret")
	}
}

func TestBuilderSecretSurvivesConfig(t *testing.T) {
	cfg := warden.DefaultConfig()
	cfg.Password.SecurityLevel = password.LevelLow

	// Secret-then-config and config-then-secret both build.
	mgr, err := warden.New().
		WithBackend(memory.New()).
		WithTokenSecret(testSecret).
		WithConfig(cfg).
		Build()
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	_ = mgr.Close()

	mgr, err = warden.New().
		WithBackend(memory.New()).
		WithConfig(cfg).
		WithTokenSecret(testSecret).
		Build()
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	_ = mgr.Close()

	// A secret inside the config wins over an earlier WithTokenSecret.
	withSecret := lowCostConfig()
	mgr, err = warden.New().
		WithBackend(memory.New()).
		WithTokenSecret("ignored-0123456789abcdef0123456789").
		WithConfig(withSecret).
		Build()
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if _, err := mgr.Authenticate(context.Background(), "nobody", "Str0ng!Pass", ""); !errors.Is(err, warden.ErrInvalidCredentials) {
		t.Fatalf("expected a working manager, got %v", err)
	}
	_ = mgr.Close()
}

func TestBuilderBuildsOnce(t *testing.T) {
	b := warden.New().WithBackend(memory.New()).WithConfig(lowCostConfig())
	if _, err := b.Build(); err != nil {
		t.Fatalf("first Build error: %v", err)
	}
	if _, err := b.Build(); err == nil {
		t.Fatal("expected error on second Build")
	}
}

func TestAuthenticateHappyPath(t *testing.T) {
	mgr := newTestManager(t)
	created := seedUser(t, mgr)
	ctx := context.Background()

	pair, err := mgr.Authenticate(ctx, "alice", "Str0ng!Pass", "")
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}

	claims, err := mgr.VerifyAccess(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess error: %v", err)
	}
	if claims.Subject != "alice" || claims.UserID != created.ID {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Role != string(warden.RoleRegular) {
		t.Fatalf("unexpected role %q", claims.Role)
	}
	if len(claims.Permissions) != 2 {
		t.Fatalf("regular role should carry read+write, got %v", claims.Permissions)
	}

	current, err := mgr.CurrentUser(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("CurrentUser error: %v", err)
	}
	if current.Username != "alice" {
		t.Fatalf("unexpected user %q", current.Username)
	}
	if mgr.Metrics().Get(warden.MetricLoginSuccess) != 1 {
		t.Fatal("expected login success counter at 1")
	}
}

func TestAuthenticateByEmail(t *testing.T) {
	mgr := newTestManager(t)
	seedUser(t, mgr)

	if _, err := mgr.AuthenticateByEmail(context.Background(), "alice@example.com", "Str0ng!Pass", ""); err != nil {
		t.Fatalf("AuthenticateByEmail error: %v", err)
	}
	if _, err := mgr.AuthenticateByEmail(context.Background(), "nobody@example.com", "Str0ng!Pass", ""); !errors.Is(err, warden.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateRejections(t *testing.T) {
	mgr := newTestManager(t)
	seedUser(t, mgr)
	ctx := context.Background()

	// Unknown username and wrong password are indistinguishable.
	if _, err := mgr.Authenticate(ctx, "nobody", "Str0ng!Pass", ""); !errors.Is(err, warden.ErrInvalidCredentials) {
		t.Fatalf("unknown user: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := mgr.Authenticate(ctx, "alice", "Wr0ng!Pass", ""); !errors.Is(err, warden.ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if mgr.Metrics().Get(warden.MetricLoginFailure) != 2 {
		t.Fatalf("expected 2 login failures, got %d", mgr.Metrics().Get(warden.MetricLoginFailure))
	}
}

func TestAuthenticateInactiveAccount(t *testing.T) {
	mgr := newTestManager(t)
	seedUser(t, mgr)
	ctx := context.Background()

	inactive := false
	if _, err := mgr.UpdateUser(ctx, "alice", warden.UserUpdate{IsActive: &inactive}); err != nil {
		t.Fatalf("UpdateUser error: %v", err)
	}
	if _, err := mgr.Authenticate(ctx, "alice", "Str0ng!Pass", ""); !errors.Is(err, warden.ErrInactiveAccount) {
		t.Fatalf("expected ErrInactiveAccount, got %v", err)
	}
}

func TestAuthenticateRateLimit(t *testing.T) {
	cfg := lowCostConfig()
	cfg.RateLimit.MaxRequests = 2
	cfg.RateLimit.Window = time.Minute
	mgr, err := warden.New().WithBackend(memory.New()).WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	t.Cleanup(func() { _ = mgr.Close() })
	seedUser(t, mgr)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := mgr.Authenticate(ctx, "alice", "Wr0ng!Pass", "9.9.9.9"); !errors.Is(err, warden.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}
	if _, err := mgr.Authenticate(ctx, "alice", "Str0ng!Pass", "9.9.9.9"); !errors.Is(err, warden.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	// Other clients are unaffected.
	if _, err := mgr.Authenticate(ctx, "alice", "Str0ng!Pass", "8.8.8.8"); err != nil {
		t.Fatalf("distinct client should not be limited: %v", err)
	}
	if mgr.Metrics().Get(warden.MetricLoginRateLimited) != 1 {
		t.Fatal("expected rate limited counter at 1")
	}
}

func TestRefreshRotation(t *testing.T) {
	mgr := newTestManager(t)
	seedUser(t, mgr)
	ctx := context.Background()

	pair, err := mgr.Authenticate(ctx, "alice", "Str0ng!Pass", "")
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}

	next, err := mgr.Refresh(ctx, pair.RefreshToken, "")
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh must rotate the refresh token")
	}

	// The presented token is dead after rotation.
	if _, err := mgr.Refresh(ctx, pair.RefreshToken, ""); !errors.Is(err, warden.ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked on replay, got %v", err)
	}
	// The new one works.
	if _, err := mgr.Refresh(ctx, next.RefreshToken, ""); err != nil {
		t.Fatalf("rotated token should refresh: %v", err)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	mgr := newTestManager(t)
	seedUser(t, mgr)
	ctx := context.Background()

	pair, err := mgr.Authenticate(ctx, "alice", "Str0ng!Pass", "")
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	if _, err := mgr.Refresh(ctx, pair.AccessToken, ""); !errors.Is(err, warden.ErrTokenTypeMismatch) {
		t.Fatalf("expected ErrTokenTypeMismatch, got %v", err)
	}
}

func TestRefreshInactiveAccount(t *testing.T) {
	mgr := newTestManager(t)
	seedUser(t, mgr)
	ctx := context.Background()

	pair, err := mgr.Authenticate(ctx, "alice", "Str0ng!Pass", "")
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	inactive := false
	if _, err := mgr.UpdateUser(ctx, "alice", warden.UserUpdate{IsActive: &inactive}); err != nil {
		t.Fatalf("UpdateUser error: %v", err)
	}
	if _, err := mgr.Refresh(ctx, pair.RefreshToken, ""); !errors.Is(err, warden.ErrInactiveAccount) {
		t.Fatalf("expected ErrInactiveAccount, got %v", err)
	}
}

func TestRefreshDeletedAccount(t *testing.T) {
	mgr := newTestManager(t)
	seedUser(t, mgr)
	ctx := context.Background()

	pair, err := mgr.Authenticate(ctx, "alice", "Str0ng!Pass", "")
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	if err := mgr.DeleteUser(ctx, "alice"); err != nil {
		t.Fatalf("DeleteUser error: %v", err)
	}
	if _, err := mgr.Refresh(ctx, pair.RefreshToken, ""); !errors.Is(err, warden.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLogout(t *testing.T) {
	mgr := newTestManager(t)
	seedUser(t, mgr)
	ctx := context.Background()

	pair, err := mgr.Authenticate(ctx, "alice", "Str0ng!Pass", "")
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	if err := mgr.Logout(ctx, pair.AccessToken); err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	if _, err := mgr.VerifyAccess(ctx, pair.AccessToken); !errors.Is(err, warden.ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}
	// Idempotent, even for garbage input.
	if err := mgr.Logout(ctx, pair.AccessToken); err != nil {
		t.Fatalf("second Logout error: %v", err)
	}
	if err := mgr.Logout(ctx, "not-a-token"); err != nil {
		t.Fatalf("Logout of undecodable token error: %v", err)
	}
}

func TestValidateToken(t *testing.T) {
	mgr := newTestManager(t)
	seedUser(t, mgr)
	ctx := context.Background()

	pair, err := mgr.Authenticate(ctx, "alice", "Str0ng!Pass", "")
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	if !mgr.ValidateToken(ctx, pair.AccessToken, "") {
		t.Fatal("expected token to validate with no role requirement")
	}
	if !mgr.ValidateToken(ctx, pair.AccessToken, warden.RoleRegular) {
		t.Fatal("expected token to validate for its own role")
	}
	if mgr.ValidateToken(ctx, pair.AccessToken, warden.RoleAdmin) {
		t.Fatal("regular token must not validate as admin")
	}
	if mgr.ValidateToken(ctx, "garbage", "") {
		t.Fatal("garbage must not validate")
	}
}

func TestCreateUserValidation(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   warden.UserCreate
		want error
	}{
		{"short username", warden.UserCreate{Username: "ab", Password: "Str0ng!Pass"}, warden.ErrInvalidInput},
		{"bad username chars", warden.UserCreate{Username: "bad name!", Password: "Str0ng!Pass"}, warden.ErrInvalidInput},
		{"bad role", warden.UserCreate{Username: "bob", Password: "Str0ng!Pass", Role: "root"}, warden.ErrInvalidInput},
		{"bad email", warden.UserCreate{Username: "bob", Password: "Str0ng!Pass", Email: "not-an-email"}, warden.ErrInvalidInput},
		{"weak password", warden.UserCreate{Username: "bob", Password: "password"}, warden.ErrWeakPassword},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := mgr.CreateUser(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	// Role defaults to regular.
	created, err := mgr.CreateUser(ctx, warden.UserCreate{Username: "bob", Password: "Str0ng!Pass"})
	if err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	if created.Role != warden.RoleRegular {
		t.Fatalf("expected default role regular, got %q", created.Role)
	}
	if created.PasswordHash == "" || created.PasswordHash == "Str0ng!Pass" {
		t.Fatal("backend must store a hash, not the plaintext")
	}

	if _, err := mgr.CreateUser(ctx, warden.UserCreate{Username: "bob", Password: "Str0ng!Pass"}); !errors.Is(err, warden.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	mgr := newTestManager(t)
	seedUser(t, mgr)
	ctx := context.Background()

	if err := mgr.ChangePassword(ctx, "alice", "Wr0ng!Pass", "N3w!Password"); !errors.Is(err, warden.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := mgr.ChangePassword(ctx, "alice", "Str0ng!Pass", "short"); !errors.Is(err, warden.ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if err := mgr.ChangePassword(ctx, "nobody", "Str0ng!Pass", "N3w!Password"); !errors.Is(err, warden.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	if err := mgr.ChangePassword(ctx, "alice", "Str0ng!Pass", "N3w!Password"); err != nil {
		t.Fatalf("ChangePassword error: %v", err)
	}
	if _, err := mgr.Authenticate(ctx, "alice", "Str0ng!Pass", ""); !errors.Is(err, warden.ErrInvalidCredentials) {
		t.Fatalf("old password should be rejected, got %v", err)
	}
	if _, err := mgr.Authenticate(ctx, "alice", "N3w!Password", ""); err != nil {
		t.Fatalf("new password should authenticate: %v", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	mgr := newTestManager(t)
	seedUser(t, mgr)
	ctx := context.Background()

	if _, err := mgr.RequestPasswordReset(ctx, "nobody@example.com"); !errors.Is(err, warden.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	resetToken, err := mgr.RequestPasswordReset(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset error: %v", err)
	}

	if err := mgr.ResetPassword(ctx, resetToken, "weak"); !errors.Is(err, warden.ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if err := mgr.ResetPassword(ctx, resetToken, "N3w!Password"); err != nil {
		t.Fatalf("ResetPassword error: %v", err)
	}
	if _, err := mgr.Authenticate(ctx, "alice", "N3w!Password", ""); err != nil {
		t.Fatalf("reset password should authenticate: %v", err)
	}

	// Single use.
	if err := mgr.ResetPassword(ctx, resetToken, "An0ther!Pass"); !errors.Is(err, warden.ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked on reuse, got %v", err)
	}
}

func TestPasswordResetSupersededToken(t *testing.T) {
	mgr := newTestManager(t)
	seedUser(t, mgr)
	ctx := context.Background()

	first, err := mgr.RequestPasswordReset(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset error: %v", err)
	}
	second, err := mgr.RequestPasswordReset(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset error: %v", err)
	}

	// Only the latest requested token completes.
	if err := mgr.ResetPassword(ctx, first, "N3w!Password"); !errors.Is(err, warden.ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked for superseded token, got %v", err)
	}
	if err := mgr.ResetPassword(ctx, second, "N3w!Password"); err != nil {
		t.Fatalf("ResetPassword error: %v", err)
	}
}

func TestHashUpgradeOnLogin(t *testing.T) {
	backend := memory.New()
	ctx := context.Background()

	lowCfg := lowCostConfig()
	lowMgr, err := warden.New().WithBackend(backend).WithConfig(lowCfg).Build()
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if _, err := lowMgr.CreateUser(ctx, warden.UserCreate{Username: "alice", Password: "Str0ng!Pass"}); err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	before, err := lowMgr.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername error: %v", err)
	}

	highCfg := lowCostConfig()
	highCfg.Password.SecurityLevel = password.LevelHigh
	highMgr, err := warden.New().WithBackend(backend).WithConfig(highCfg).Build()
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if _, err := highMgr.Authenticate(ctx, "alice", "Str0ng!Pass", ""); err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}

	after, err := highMgr.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername error: %v", err)
	}
	if after.PasswordHash == before.PasswordHash {
		t.Fatal("expected stored hash to be upgraded")
	}
	if highMgr.Metrics().Get(warden.MetricHashUpgrade) != 1 {
		t.Fatal("expected hash upgrade counter at 1")
	}

	// Stable once at the configured level.
	if _, err := highMgr.Authenticate(ctx, "alice", "Str0ng!Pass", ""); err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	again, err := highMgr.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername error: %v", err)
	}
	if again.PasswordHash != after.PasswordHash {
		t.Fatal("hash must not change once at the configured level")
	}
}

func TestHealthCheck(t *testing.T) {
	mgr := newTestManager(t)
	if err := mgr.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck error: %v", err)
	}
}
