package warden

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"maps"
	"time"
)

// Metadata keys carrying the pending reset challenge. Keeping the copy on
// the user record makes it survive process restarts and binds it to exactly
// one subject.
const (
	metaResetToken   = "reset_token"
	metaResetExpires = "reset_token_expires"
)

// RequestPasswordReset issues a reset token for the account registered under
// email and stores a copy, with an explicit expiry, in the user's metadata.
//
// Unknown and inactive emails return ErrUserNotFound; the transport layer is
// expected to answer such requests exactly like successful ones so account
// existence does not leak past this boundary.
func (m *Manager) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if m == nil || m.backend == nil {
		return "", ErrNotReady
	}

	user, err := m.backend.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			m.logger.Warn("password reset requested for unknown email", "email", email)
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !user.IsActive {
		m.logger.Warn("password reset requested for inactive account", "username", user.Username)
		return "", ErrUserNotFound
	}

	resetToken, err := m.tokens.IssueResetToken(email)
	if err != nil {
		return "", err
	}

	metadata := make(map[string]string, len(user.Metadata)+2)
	maps.Copy(metadata, user.Metadata)
	metadata[metaResetToken] = resetToken
	metadata[metaResetExpires] = time.Now().UTC().Add(m.config.Reset.TokenTTL).Format(time.RFC3339)

	if err := m.backend.UpdateUserMetadata(ctx, user.Username, metadata); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	m.metrics.Inc(MetricPasswordResetRequest)
	m.logger.Info("password reset token issued", "username", user.Username)
	return resetToken, nil
}

// ResetPassword completes a reset. The token must verify cryptographically
// AND exactly match the copy stored in the subject's metadata, and the
// stored expiry must not have passed. The stored copy is cleared on success,
// which is what makes the token single-use: a captured-but-already-used
// token still verifies cryptographically but fails the stored-copy check.
func (m *Manager) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if m == nil || m.backend == nil {
		return ErrNotReady
	}

	claims, err := m.tokens.VerifyResetToken(ctx, resetToken)
	if err != nil {
		m.metrics.Inc(MetricPasswordResetFailure)
		return err
	}

	user, err := m.backend.GetUserByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			m.metrics.Inc(MetricPasswordResetFailure)
			m.logger.Warn("password reset for unknown subject", "email", claims.Subject)
			return ErrTokenRevoked
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !user.IsActive {
		m.metrics.Inc(MetricPasswordResetFailure)
		return ErrInactiveAccount
	}

	stored := user.Metadata[metaResetToken]
	if stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(resetToken)) != 1 {
		m.metrics.Inc(MetricPasswordResetFailure)
		m.logger.Warn("password reset token mismatch", "username", user.Username)
		return ErrTokenRevoked
	}
	if expiresAt, err := time.Parse(time.RFC3339, user.Metadata[metaResetExpires]); err != nil || time.Now().UTC().After(expiresAt) {
		m.metrics.Inc(MetricPasswordResetFailure)
		m.logger.Warn("password reset token past stored expiry", "username", user.Username)
		return ErrTokenExpired
	}

	if ok, reason := m.ValidatePasswordStrength(newPassword); !ok {
		m.metrics.Inc(MetricPasswordResetFailure)
		return fmt.Errorf("%w: %s", ErrWeakPassword, reason)
	}

	newHash, err := m.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := m.backend.UpdateUserPassword(ctx, user.Username, newHash); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	metadata := make(map[string]string, len(user.Metadata))
	maps.Copy(metadata, user.Metadata)
	delete(metadata, metaResetToken)
	delete(metadata, metaResetExpires)
	if err := m.backend.UpdateUserMetadata(ctx, user.Username, metadata); err != nil {
		// The password is already changed; the dangling copy is harmless
		// because the jti goes on the revocation set below.
		m.logger.Warn("reset metadata not cleared", "username", user.Username, "error", err)
	}
	if err := m.tokens.Revoke(ctx, resetToken); err != nil {
		m.logger.Warn("reset token revocation failed", "username", user.Username, "error", err)
	}

	m.metrics.Inc(MetricPasswordResetSuccess)
	m.logger.Info("password reset completed", "username", user.Username)
	return nil
}
