package warden

import (
	"regexp"
	"time"

	"github.com/wardenauth/warden/token"
)

// Role is the RBAC role attached to every user account.
type Role string

const (
	// RoleAdmin grants administrative operations.
	RoleAdmin Role = "admin"
	// RoleRegular is the default role for new accounts.
	RoleRegular Role = "regular"
	// RoleGuest may authenticate but is denied active-only operations.
	RoleGuest Role = "guest"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleRegular, RoleGuest:
		return true
	}
	return false
}

// Active reports whether the role may use active-only operations.
// Guests authenticate like everyone else but fail this predicate.
func (r Role) Active() bool {
	return r == RoleAdmin || r == RoleRegular
}

// Permissions returns the permission names embedded in issued token claims
// for the role.
func (r Role) Permissions() []string {
	switch r {
	case RoleAdmin:
		return []string{"read", "write", "admin"}
	case RoleRegular:
		return []string{"read", "write"}
	case RoleGuest:
		return []string{"read"}
	}
	return nil
}

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,50}$`)
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// ValidUsername reports whether username matches the accepted format:
// alphanumeric, underscore, or hyphen, 3 to 50 characters.
func ValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// ValidEmail reports whether email has a plausible address format.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// User is the authoritative identity record held by a [UserBackend].
// PasswordHash is opaque to everything except the password engine and must
// never cross a trust boundary; use [User.Public] for external responses.
type User struct {
	ID                string
	Username          string
	PasswordHash      string
	Role              Role
	Email             string
	ProfilePictureURL string
	IsActive          bool
	Balance           int64
	Metadata          map[string]string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Public returns the projection of the user safe to return across a trust
// boundary.
func (u *User) Public() UserPublic {
	return UserPublic{
		ID:                u.ID,
		Username:          u.Username,
		Role:              u.Role,
		Email:             u.Email,
		ProfilePictureURL: u.ProfilePictureURL,
		IsActive:          u.IsActive,
		Balance:           u.Balance,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
}

// UserPublic is [User] without the password hash. It is the only user
// representation ever returned by list and search operations.
type UserPublic struct {
	ID                string    `json:"id"`
	Username          string    `json:"username"`
	Role              Role      `json:"role"`
	Email             string    `json:"email,omitempty"`
	ProfilePictureURL string    `json:"profile_picture_url,omitempty"`
	IsActive          bool      `json:"is_active"`
	Balance           int64     `json:"balance"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// UserCreate is the input for [Manager.CreateUser]. Password is plaintext at
// this point only; the manager hashes it before the backend is called.
type UserCreate struct {
	Username string
	Password string
	Role     Role
	Email    string
}

// UserUpdate carries optional field updates. Nil pointers leave the stored
// value untouched. A non-nil Metadata map replaces the stored map.
type UserUpdate struct {
	Email             *string
	ProfilePictureURL *string
	IsActive          *bool
	Metadata          map[string]string
}

// TokenPair is returned by successful authenticate and refresh calls.
type TokenPair = token.Pair

// Claims is the verified payload of an issued token.
type Claims = token.Claims
