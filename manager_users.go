package warden

import (
	"context"
	"errors"
	"fmt"
)

// CreateUser validates the input, hashes the password, and persists the new
// account. The backend never observes the plaintext password.
func (m *Manager) CreateUser(ctx context.Context, user UserCreate) (*User, error) {
	if m == nil || m.backend == nil {
		return nil, ErrNotReady
	}
	if !ValidUsername(user.Username) {
		return nil, fmt.Errorf("%w: username must be 3-50 alphanumeric, underscore, or hyphen characters", ErrInvalidInput)
	}
	if user.Role == "" {
		user.Role = RoleRegular
	}
	if !user.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, user.Role)
	}
	if user.Email != "" && !ValidEmail(user.Email) {
		return nil, fmt.Errorf("%w: malformed email address", ErrInvalidInput)
	}
	if ok, reason := m.ValidatePasswordStrength(user.Password); !ok {
		return nil, fmt.Errorf("%w: %s", ErrWeakPassword, reason)
	}

	hash, err := m.hasher.Hash(user.Password)
	if err != nil {
		return nil, err
	}

	created, err := m.backend.CreateUser(ctx, user, hash)
	if err != nil {
		switch {
		case errors.Is(err, ErrUsernameTaken), errors.Is(err, ErrEmailTaken):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	m.logger.Info("user created", "username", created.Username, "role", string(created.Role))
	return created, nil
}

// GetUserByUsername is an admin-scoped lookup; unlike the login paths it
// reports ErrUserNotFound.
func (m *Manager) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	if m == nil || m.backend == nil {
		return nil, ErrNotReady
	}
	user, err := m.backend.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return user, nil
}

// UpdateUser applies the optional fields of update to the account.
func (m *Manager) UpdateUser(ctx context.Context, username string, update UserUpdate) (*User, error) {
	if m == nil || m.backend == nil {
		return nil, ErrNotReady
	}
	if update.Email != nil && *update.Email != "" && !ValidEmail(*update.Email) {
		return nil, fmt.Errorf("%w: malformed email address", ErrInvalidInput)
	}

	user, err := m.backend.UpdateUser(ctx, username, update)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			return nil, ErrUserNotFound
		case errors.Is(err, ErrEmailTaken):
			return nil, ErrEmailTaken
		default:
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	m.logger.Info("user updated", "username", username)
	return user, nil
}

// UpdateUserRole changes the account's role.
func (m *Manager) UpdateUserRole(ctx context.Context, username string, role Role) error {
	if m == nil || m.backend == nil {
		return ErrNotReady
	}
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	if err := m.backend.UpdateUserRole(ctx, username, role); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	m.logger.Info("user role updated", "username", username, "role", string(role))
	return nil
}

// UpdateBalance adjusts the account's domain balance by delta, which may be
// negative. Not security relevant; provided for hosts that track a
// per-account balance.
func (m *Manager) UpdateBalance(ctx context.Context, username string, delta int64) error {
	if m == nil || m.backend == nil {
		return ErrNotReady
	}
	if err := m.backend.UpdateUserBalance(ctx, username, delta); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// DeleteUser removes the account. The core never deletes on its own; this
// exists for the host.
func (m *Manager) DeleteUser(ctx context.Context, username string) error {
	if m == nil || m.backend == nil {
		return ErrNotReady
	}
	if err := m.backend.DeleteUser(ctx, username); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	m.logger.Info("user deleted", "username", username)
	return nil
}

// ListUsers returns a page of public user projections.
func (m *Manager) ListUsers(ctx context.Context, skip, limit int) ([]UserPublic, error) {
	if m == nil || m.backend == nil {
		return nil, ErrNotReady
	}
	users, err := m.backend.ListUsers(ctx, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return publicUsers(users), nil
}

// SearchUsers returns a page of public projections matching query.
func (m *Manager) SearchUsers(ctx context.Context, query string, skip, limit int) ([]UserPublic, error) {
	if m == nil || m.backend == nil {
		return nil, ErrNotReady
	}
	users, err := m.backend.SearchUsers(ctx, query, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return publicUsers(users), nil
}

func publicUsers(users []*User) []UserPublic {
	out := make([]UserPublic, len(users))
	for i, u := range users {
		out[i] = u.Public()
	}
	return out
}

// IsUsernameTaken reports whether username exists in the backend.
func (m *Manager) IsUsernameTaken(ctx context.Context, username string) (bool, error) {
	if m == nil || m.backend == nil {
		return false, ErrNotReady
	}
	taken, err := m.backend.IsUsernameTaken(ctx, username)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return taken, nil
}

// IsEmailTaken reports whether email exists in the backend.
func (m *Manager) IsEmailTaken(ctx context.Context, email string) (bool, error) {
	if m == nil || m.backend == nil {
		return false, ErrNotReady
	}
	taken, err := m.backend.IsEmailTaken(ctx, email)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return taken, nil
}

// CountUsers returns the total number of accounts.
func (m *Manager) CountUsers(ctx context.Context) (int64, error) {
	if m == nil || m.backend == nil {
		return 0, ErrNotReady
	}
	n, err := m.backend.CountUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return n, nil
}
