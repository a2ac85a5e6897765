package warden

import "context"

// UserBackend is the storage contract the Manager is built on. Implementations
// ship in backend/memory and backend/gormstore; applications with their own
// storage satisfy this interface instead.
//
// Lookup methods return ErrUserNotFound for absent users, never a nil user
// with a nil error. Create reports ErrUsernameTaken / ErrEmailTaken on
// uniqueness conflicts. The backend only ever sees password hashes; plaintext
// never crosses this interface.
type UserBackend interface {
	// CreateUser persists a new account. The password hash is computed by
	// the caller; user.Password is ignored by implementations.
	CreateUser(ctx context.Context, user UserCreate, passwordHash string) (*User, error)

	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// UpdateUser applies the non-nil fields of update and returns the
	// stored record after the change.
	UpdateUser(ctx context.Context, username string, update UserUpdate) (*User, error)
	UpdateUserPassword(ctx context.Context, username, passwordHash string) error
	UpdateUserRole(ctx context.Context, username string, role Role) error
	UpdateUserMetadata(ctx context.Context, username string, metadata map[string]string) error
	// UpdateUserBalance adjusts the balance by delta, which may be negative.
	UpdateUserBalance(ctx context.Context, username string, delta int64) error

	DeleteUser(ctx context.Context, username string) error

	// ListUsers returns users ordered by creation time, oldest first.
	ListUsers(ctx context.Context, skip, limit int) ([]*User, error)
	// SearchUsers matches query against username and email.
	SearchUsers(ctx context.Context, query string, skip, limit int) ([]*User, error)

	IsUsernameTaken(ctx context.Context, username string) (bool, error)
	IsEmailTaken(ctx context.Context, email string) (bool, error)
	CountUsers(ctx context.Context) (int64, error)

	// HealthCheck reports whether the backend can serve requests.
	HealthCheck(ctx context.Context) error
	// Close releases held resources. The backend must not be used after.
	Close() error
}
