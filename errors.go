package warden

import (
	"errors"

	"github.com/wardenauth/warden/token"
)

var (
	// ErrInvalidCredentials covers bad username/password pairs. Unknown
	// usernames deliberately produce the same error so callers cannot
	// enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInactiveAccount is returned when a disabled account attempts an
	// authenticated operation.
	ErrInactiveAccount = errors.New("account inactive")
	// ErrRateLimited is returned when the caller exceeded the request budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrUsernameTaken is returned when a create would duplicate a username.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrEmailTaken is returned when a create or update would duplicate an email.
	ErrEmailTaken = errors.New("email already taken")
	// ErrUserNotFound is only returned from admin-scoped lookups, never from
	// login paths.
	ErrUserNotFound = errors.New("user not found")
	// ErrWeakPassword is returned when a password fails the strength policy.
	ErrWeakPassword = errors.New("password too weak")
	// ErrInvalidInput is returned for malformed usernames, roles, or emails.
	ErrInvalidInput = errors.New("invalid input")
	// ErrBackendUnavailable wraps storage connectivity failures.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrNotReady is returned from a Manager that was not fully built.
	ErrNotReady = errors.New("manager not initialized")
)

// Token failures surface under the same identities the token package uses,
// so errors.Is works against either package's sentinel.
var (
	// ErrTokenExpired is an alias for [token.ErrExpired].
	ErrTokenExpired = token.ErrExpired
	// ErrTokenRevoked is an alias for [token.ErrRevoked].
	ErrTokenRevoked = token.ErrRevoked
	// ErrTokenTypeMismatch is an alias for [token.ErrTypeMismatch].
	ErrTokenTypeMismatch = token.ErrTypeMismatch
	// ErrTokenMalformed is an alias for [token.ErrMalformed].
	ErrTokenMalformed = token.ErrMalformed
)
