package warden

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wardenauth/warden/password"
	"github.com/wardenauth/warden/token"
)

// Manager orchestrates the password engine, token engine, and user backend.
// It is the only component host route handlers call directly. A Manager is
// immutable after Build and safe for concurrent use.
type Manager struct {
	config  Config
	backend UserBackend
	hasher  *password.Hasher
	tokens  *token.Manager
	metrics *Metrics
	logger  *slog.Logger

	dummyHash string
}

// Tokens exposes the underlying token engine for hosts that need direct
// verification, cleanup wiring, or introspection.
func (m *Manager) Tokens() *token.Manager {
	return m.tokens
}

// Metrics returns the engine's in-process counters.
func (m *Manager) Metrics() *Metrics {
	return m.metrics
}

// Authenticate verifies a username/password pair and returns a fresh token
// pair. clientIP keys the rate-limit gate and may be empty to skip it.
//
// Denials are deliberately low-information: unknown usernames and wrong
// passwords both return ErrInvalidCredentials, and a dummy hash verification
// runs on unknown usernames so response timing does not differ either. The
// specific reason is logged, never returned.
func (m *Manager) Authenticate(ctx context.Context, username, pw, clientIP string) (*TokenPair, error) {
	if m == nil || m.backend == nil {
		return nil, ErrNotReady
	}
	if m.config.RateLimit.Enabled && !m.tokens.Allow(ctx, clientIP) {
		m.metrics.Inc(MetricLoginRateLimited)
		m.logger.Warn("authenticate rate limited", "client_ip", clientIP)
		return nil, ErrRateLimited
	}

	user, err := m.backend.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_, _ = m.hasher.Verify(pw, m.dummyHash)
			m.metrics.Inc(MetricLoginFailure)
			m.logger.Warn("authenticate failed", "username", username, "reason", "user_not_found")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	return m.issueForCredentials(ctx, user, pw)
}

// AuthenticateByEmail is Authenticate keyed by email address.
func (m *Manager) AuthenticateByEmail(ctx context.Context, email, pw, clientIP string) (*TokenPair, error) {
	if m == nil || m.backend == nil {
		return nil, ErrNotReady
	}
	if m.config.RateLimit.Enabled && !m.tokens.Allow(ctx, clientIP) {
		m.metrics.Inc(MetricLoginRateLimited)
		m.logger.Warn("authenticate rate limited", "client_ip", clientIP)
		return nil, ErrRateLimited
	}

	user, err := m.backend.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_, _ = m.hasher.Verify(pw, m.dummyHash)
			m.metrics.Inc(MetricLoginFailure)
			m.logger.Warn("authenticate failed", "email", email, "reason", "user_not_found")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	return m.issueForCredentials(ctx, user, pw)
}

func (m *Manager) issueForCredentials(ctx context.Context, user *User, pw string) (*TokenPair, error) {
	if !user.IsActive {
		m.metrics.Inc(MetricLoginFailure)
		m.logger.Warn("authenticate failed", "username", user.Username, "reason", "inactive")
		return nil, ErrInactiveAccount
	}

	ok, newHash, err := m.hasher.VerifyAndUpdate(pw, user.PasswordHash)
	if err != nil {
		// Unrecognized stored hashes verify false, never fail the process.
		m.logger.Warn("stored password hash unusable", "username", user.Username, "error", err)
		m.metrics.Inc(MetricLoginFailure)
		return nil, ErrInvalidCredentials
	}
	if !ok {
		m.metrics.Inc(MetricLoginFailure)
		m.logger.Warn("authenticate failed", "username", user.Username, "reason", "password_mismatch")
		return nil, ErrInvalidCredentials
	}

	if newHash != "" && m.config.Password.RehashOnVerify {
		// Migration is best-effort; a persistence failure must not block a
		// successful login.
		if err := m.backend.UpdateUserPassword(ctx, user.Username, newHash); err != nil {
			m.logger.Warn("password hash upgrade not persisted", "username", user.Username, "error", err)
		} else {
			m.metrics.Inc(MetricHashUpgrade)
			m.logger.Info("password hash upgraded", "username", user.Username,
				"level", m.hasher.Level().String())
		}
	}

	pair, err := m.tokens.IssuePair(user.Username, string(user.Role), user.ID, user.Role.Permissions(), nil)
	if err != nil {
		return nil, err
	}

	m.metrics.Inc(MetricLoginSuccess)
	m.logger.Info("user authenticated", "username", user.Username, "role", string(user.Role))
	return pair, nil
}

// Refresh rotates a refresh token into a new pair. The user is re-fetched
// so a deleted or deactivated account loses refresh capability immediately,
// regardless of the token's remaining lifetime, and the presented refresh
// token is revoked so it cannot be replayed.
func (m *Manager) Refresh(ctx context.Context, refreshToken, clientIP string) (*TokenPair, error) {
	if m == nil || m.backend == nil {
		return nil, ErrNotReady
	}
	if m.config.RateLimit.Enabled && !m.tokens.Allow(ctx, clientIP) {
		m.metrics.Inc(MetricRefreshFailure)
		m.logger.Warn("refresh rate limited", "client_ip", clientIP)
		return nil, ErrRateLimited
	}

	claims, err := m.tokens.Verify(ctx, refreshToken, token.TypeRefresh)
	if err != nil {
		m.metrics.Inc(MetricRefreshFailure)
		return nil, err
	}

	user, err := m.backend.GetUserByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			m.metrics.Inc(MetricRefreshFailure)
			m.logger.Warn("refresh failed", "username", claims.Subject, "reason", "user_gone")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !user.IsActive {
		m.metrics.Inc(MetricRefreshFailure)
		m.logger.Warn("refresh failed", "username", user.Username, "reason", "inactive")
		return nil, ErrInactiveAccount
	}

	// Rotation: the presented token dies with this call.
	if err := m.tokens.Revoke(ctx, refreshToken); err != nil {
		m.metrics.Inc(MetricRefreshFailure)
		return nil, err
	}

	pair, err := m.tokens.IssuePair(user.Username, string(user.Role), user.ID, user.Role.Permissions(), nil)
	if err != nil {
		return nil, err
	}

	m.metrics.Inc(MetricRefreshSuccess)
	m.logger.Info("tokens refreshed", "username", user.Username)
	return pair, nil
}

// Logout revokes the given token. Revoking an already-revoked or expired
// token is a no-op.
func (m *Manager) Logout(ctx context.Context, raw string) error {
	if m == nil || m.tokens == nil {
		return ErrNotReady
	}

	subject := "unknown"
	if claims, err := m.tokens.Peek(raw); err == nil && claims.Subject != "" {
		subject = claims.Subject
	}

	if err := m.tokens.Revoke(ctx, raw); err != nil {
		return err
	}
	m.metrics.Inc(MetricLogout)
	m.logger.Info("user logged out", "username", subject)
	return nil
}

// CurrentUser resolves an access token to its live user record. The account
// must still exist and be active.
func (m *Manager) CurrentUser(ctx context.Context, accessToken string) (*User, error) {
	if m == nil || m.backend == nil {
		return nil, ErrNotReady
	}

	claims, err := m.tokens.Verify(ctx, accessToken, token.TypeAccess)
	if err != nil {
		return nil, err
	}

	user, err := m.backend.GetUserByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !user.IsActive {
		return nil, ErrInactiveAccount
	}
	return user, nil
}

// VerifyAccess verifies an access token without touching the backend and
// returns its claims. Route middleware uses this on every request.
func (m *Manager) VerifyAccess(ctx context.Context, accessToken string) (*Claims, error) {
	if m == nil || m.tokens == nil {
		return nil, ErrNotReady
	}
	return m.tokens.Verify(ctx, accessToken, token.TypeAccess)
}

// ValidateToken reports whether accessToken verifies and, when requiredRole
// is non-empty, carries exactly that role.
func (m *Manager) ValidateToken(ctx context.Context, accessToken string, requiredRole Role) bool {
	claims, err := m.VerifyAccess(ctx, accessToken)
	if err != nil {
		return false
	}
	if requiredRole != "" && Role(claims.Role) != requiredRole {
		return false
	}
	return true
}

// HealthCheck reports backend reachability.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if m == nil || m.backend == nil {
		return ErrNotReady
	}
	if err := m.backend.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Close releases the backend. The Manager must not be used afterwards.
func (m *Manager) Close() error {
	if m == nil || m.backend == nil {
		return nil
	}
	return m.backend.Close()
}
