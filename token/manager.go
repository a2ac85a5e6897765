// Package token implements the token engine: JWT access/refresh/reset
// issuance and verification, revocation tracking, and request rate limiting.
package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrExpired is returned when a token's exp has passed.
	ErrExpired = errors.New("token expired")
	// ErrRevoked is returned when a token has been revoked.
	ErrRevoked = errors.New("token revoked")
	// ErrTypeMismatch is returned when a token's type does not match the
	// caller's expectation.
	ErrTypeMismatch = errors.New("token type mismatch")
	// ErrMalformed covers undecodable tokens and signature failures.
	ErrMalformed = errors.New("token malformed")
)

// Config is the immutable token configuration held by a [Manager].
type Config struct {
	// Secret signs and verifies tokens. At least 32 bytes.
	Secret string
	// Algorithm is the HMAC signing algorithm: HS256 (default), HS384, HS512.
	Algorithm string
	// AccessTTL is the access-token lifetime. Default 30 minutes.
	AccessTTL time.Duration
	// RefreshTTL is the refresh-token lifetime. Default 7 days.
	RefreshTTL time.Duration
	// ResetTTL is the password-reset token lifetime. Default 24 hours.
	ResetTTL time.Duration
	// Issuer and Audience are optional; when set they are stamped on issued
	// tokens and enforced at verification.
	Issuer   string
	Audience string
}

func (c *Config) applyDefaults() {
	if c.Algorithm == "" {
		c.Algorithm = "HS256"
	}
	if c.AccessTTL == 0 {
		c.AccessTTL = 30 * time.Minute
	}
	if c.RefreshTTL == 0 {
		c.RefreshTTL = 7 * 24 * time.Hour
	}
	if c.ResetTTL == 0 {
		c.ResetTTL = 24 * time.Hour
	}
}

func (c Config) validate() error {
	if len(c.Secret) < 32 {
		return errors.New("token secret must be at least 32 bytes")
	}
	if _, ok := signingMethods[c.Algorithm]; !ok {
		return errors.New("unsupported signing algorithm: " + c.Algorithm)
	}
	if c.AccessTTL < 0 || c.RefreshTTL < 0 || c.ResetTTL < 0 {
		return errors.New("token lifetimes must be positive")
	}
	return nil
}

var signingMethods = map[string]jwt.SigningMethod{
	"HS256": jwt.SigningMethodHS256,
	"HS384": jwt.SigningMethodHS384,
	"HS512": jwt.SigningMethodHS512,
}

// Option configures a [Manager] at construction time.
type Option func(*Manager)

// WithRevocationStore replaces the default in-process revocation store.
func WithRevocationStore(store RevocationStore) Option {
	return func(m *Manager) { m.revoked = store }
}

// WithRateLimiter replaces the default in-process sliding-window limiter.
func WithRateLimiter(limiter RateLimiter) Option {
	return func(m *Manager) { m.limiter = limiter }
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithRateLimit tunes the default limiter's budget. Ignored when
// [WithRateLimiter] supplies a custom implementation.
func WithRateLimit(max int, window time.Duration) Option {
	return func(m *Manager) { m.rateMax, m.rateWindow = max, window }
}

// Manager issues and verifies tokens. It is safe for concurrent use; all
// mutable state lives behind the revocation store and rate limiter.
type Manager struct {
	config  Config
	method  jwt.SigningMethod
	revoked RevocationStore
	limiter RateLimiter
	logger  *slog.Logger
	now     func() time.Time

	rateMax    int
	rateWindow time.Duration
}

// NewManager validates cfg and builds a Manager.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		config:     cfg,
		method:     signingMethods[cfg.Algorithm],
		now:        time.Now,
		rateMax:    60,
		rateWindow: time.Minute,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.revoked == nil {
		m.revoked = NewMemoryRevocationStore()
	}
	if m.limiter == nil {
		m.limiter = newSlidingWindowLimiter(m.rateMax, m.rateWindow, m.now)
	}
	return m, nil
}

// IssuePair creates an access/refresh token pair from the same base claims.
// The two tokens are independently verifiable, each with its own lifetime
// and a fresh random jti.
func (m *Manager) IssuePair(sub, role, userID string, permissions []string, meta map[string]string) (*Pair, error) {
	access, err := m.issue(TypeAccess, m.config.AccessTTL, sub, role, userID, permissions, meta)
	if err != nil {
		return nil, err
	}
	refresh, err := m.issue(TypeRefresh, m.config.RefreshTTL, sub, role, userID, permissions, meta)
	if err != nil {
		return nil, err
	}

	return &Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "bearer",
		ExpiresIn:        int64(m.config.AccessTTL.Seconds()),
		RefreshExpiresIn: int64(m.config.RefreshTTL.Seconds()),
	}, nil
}

// IssueResetToken creates a password-reset token for the subject. Callers
// are responsible for single-use enforcement; the token itself stays
// cryptographically valid until ResetTTL elapses.
func (m *Manager) IssueResetToken(sub string) (string, error) {
	return m.issue(TypeReset, m.config.ResetTTL, sub, "", "", nil, nil)
}

func (m *Manager) issue(typ Type, ttl time.Duration, sub, role, userID string, permissions []string, meta map[string]string) (string, error) {
	now := m.now()
	claims := Claims{
		Role:        role,
		TokenType:   typ,
		UserID:      userID,
		Permissions: permissions,
		Meta:        meta,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	return jwt.NewWithClaims(m.method, claims).SignedString([]byte(m.config.Secret))
}

// Verify decodes raw, checks its signature, expiry, issuer/audience when
// configured, revocation state, and finally the token type. Only a token in
// the active state verifies; everything else maps onto ErrExpired,
// ErrRevoked, ErrTypeMismatch, or ErrMalformed.
func (m *Manager) Verify(ctx context.Context, raw string, want Type) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return []byte(m.config.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrMalformed
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}

	// Revocation is tracked under the jti and, for tokens revoked before
	// they could be decoded, under a digest of the raw encoding.
	for _, id := range []string{claims.ID, rawID(raw)} {
		revoked, err := m.revoked.IsRevoked(ctx, id)
		if err != nil {
			// Fail closed: an unreachable revocation store must not let a
			// possibly-revoked token through.
			return nil, err
		}
		if revoked {
			return nil, ErrRevoked
		}
	}

	if claims.TokenType != want {
		return nil, ErrTypeMismatch
	}

	return claims, nil
}

// VerifyResetToken verifies raw as a password-reset token and returns its
// claims; the subject identifies the account being reset.
func (m *Manager) VerifyResetToken(ctx context.Context, raw string) (*Claims, error) {
	return m.Verify(ctx, raw, TypeReset)
}

// Peek decodes raw without any signature verification. The result is
// NON-AUTHORITATIVE: use it only for introspection and logging, never for an
// authorization decision.
func (m *Manager) Peek(raw string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, ErrMalformed
	}
	return claims, nil
}

// Revoke inserts raw into the revocation set until its natural expiry.
// Revoking the same token again is a no-op. Tokens that cannot be decoded
// are tracked by a digest of their raw encoding so revocation is never
// silently dropped.
func (m *Manager) Revoke(ctx context.Context, raw string) error {
	id := rawID(raw)
	expiresAt := m.now().Add(m.config.RefreshTTL)

	if claims, err := m.Peek(raw); err == nil {
		if claims.ID != "" {
			id = claims.ID
		}
		if claims.ExpiresAt != nil {
			expiresAt = claims.ExpiresAt.Time
		}
	}

	return m.revoked.Revoke(ctx, id, expiresAt)
}

// Allow reports whether identifier is within its request budget and, when
// allowed, records the attempt. Limiter backend failures fail open with a
// logged warning: losing the limiter must not take authentication down.
func (m *Manager) Allow(ctx context.Context, identifier string) bool {
	if identifier == "" {
		return true
	}
	ok, err := m.limiter.Allow(ctx, identifier)
	if err != nil {
		m.logger.Warn("rate limiter unavailable, allowing request",
			"identifier", identifier, "error", err)
		return true
	}
	return ok
}

// RevokedCount returns the number of live revocation entries.
func (m *Manager) RevokedCount(ctx context.Context) (int, error) {
	return m.revoked.Len(ctx)
}

// Cleanup prunes expired revocation entries and idle rate windows. It is
// safe to call concurrently with verification and issuance.
func (m *Manager) Cleanup(ctx context.Context) error {
	now := m.now()
	if err := m.revoked.Prune(ctx, now); err != nil {
		return err
	}
	return m.limiter.Prune(ctx, now)
}

// StartCleanup runs Cleanup on a ticker until ctx is cancelled. Intended to
// be launched once at startup:
//
//	go tokens.StartCleanup(ctx, 5*time.Minute)
func (m *Manager) StartCleanup(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 5 * time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Cleanup(ctx); err != nil {
				m.logger.Warn("token cleanup failed", "error", err)
			}
		}
	}
}

// AccessTTL returns the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// ResetTTL returns the configured reset-token lifetime.
func (m *Manager) ResetTTL() time.Duration { return m.config.ResetTTL }

func rawID(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return "raw:" + hex.EncodeToString(sum[:16])
}
