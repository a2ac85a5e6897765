package warden

import (
	"context"
	"errors"
	"fmt"

	"github.com/wardenauth/warden/password"
)

// ValidatePasswordStrength checks pw against the configured strength policy
// and returns a human-readable reason on failure.
func (m *Manager) ValidatePasswordStrength(pw string) (bool, string) {
	return password.ValidateStrength(pw, m.config.Password.Policy)
}

// ChangePassword replaces the account's password after verifying the
// current one. A wrong current password fails with ErrInvalidCredentials.
func (m *Manager) ChangePassword(ctx context.Context, username, currentPassword, newPassword string) error {
	if m == nil || m.backend == nil {
		return ErrNotReady
	}

	user, err := m.backend.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			m.metrics.Inc(MetricPasswordChangeFailure)
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	ok, err := m.hasher.Verify(currentPassword, user.PasswordHash)
	if err != nil {
		m.logger.Warn("stored password hash unusable", "username", username, "error", err)
		m.metrics.Inc(MetricPasswordChangeFailure)
		return ErrInvalidCredentials
	}
	if !ok {
		m.metrics.Inc(MetricPasswordChangeFailure)
		m.logger.Warn("password change rejected", "username", username, "reason", "current_mismatch")
		return ErrInvalidCredentials
	}

	if ok, reason := m.ValidatePasswordStrength(newPassword); !ok {
		m.metrics.Inc(MetricPasswordChangeFailure)
		return fmt.Errorf("%w: %s", ErrWeakPassword, reason)
	}

	newHash, err := m.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := m.backend.UpdateUserPassword(ctx, username, newHash); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	m.metrics.Inc(MetricPasswordChangeSuccess)
	m.logger.Info("password changed", "username", username)
	return nil
}
