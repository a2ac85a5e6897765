package token

import "github.com/golang-jwt/jwt/v5"

// Type discriminates the three token kinds the engine issues. Verification
// always checks the embedded type against the caller's expectation, so an
// attacker cannot replay a refresh token where an access token is required.
type Type string

const (
	// TypeAccess is the short-lived credential authorizing API calls.
	TypeAccess Type = "access"
	// TypeRefresh is the longer-lived credential used only to obtain a new pair.
	TypeRefresh Type = "refresh"
	// TypeReset is the single-purpose password-reset credential.
	TypeReset Type = "reset"
)

// Claims is the signed token payload. The claim names (sub, role, type, exp,
// iat, jti, iss, aud) are part of the wire contract and must not change:
// tokens issued by earlier deployments stay verifiable during migration.
type Claims struct {
	Role        string            `json:"role,omitempty"`
	TokenType   Type              `json:"type"`
	UserID      string            `json:"user_id,omitempty"`
	Permissions []string          `json:"permissions,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
	jwt.RegisteredClaims
}

// Pair is the result of a successful issue or refresh. ExpiresIn and
// RefreshExpiresIn are lifetimes in seconds.
type Pair struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}
