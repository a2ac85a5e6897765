package warden

import (
	"errors"
	"time"

	"github.com/wardenauth/warden/password"
	"github.com/wardenauth/warden/token"
)

// Config is the full engine configuration tree. Construct it once, pass it
// to the builder, and treat it as immutable afterwards.
type Config struct {
	Token     token.Config
	Password  PasswordConfig
	RateLimit RateLimitConfig
	Reset     ResetConfig
	Metrics   MetricsConfig
}

// PasswordConfig tunes the credential engine.
type PasswordConfig struct {
	// SecurityLevel selects the argon2id cost preset. Default LevelMedium.
	SecurityLevel password.SecurityLevel
	// Policy selects the strength profile; PolicyStrict also demands a
	// symbol. Default PolicyStandard.
	Policy password.Policy
	// RehashOnVerify migrates stored hashes to the current preset on
	// successful login. Default true.
	RehashOnVerify bool
}

// RateLimitConfig tunes the per-identifier request budget applied to
// authenticate and refresh.
type RateLimitConfig struct {
	// Enabled turns the gate on. Default true.
	Enabled bool
	// MaxRequests per identifier inside Window. Default 60.
	MaxRequests int
	// Window is the sliding window length. Default 60s.
	Window time.Duration
}

// ResetConfig tunes the password-reset flow.
type ResetConfig struct {
	// TokenTTL bounds both the reset token and its stored metadata copy.
	// Default 24h.
	TokenTTL time.Duration
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the configuration used when the builder receives no
// explicit one, minus the token secret which has no safe default.
func DefaultConfig() Config {
	return Config{
		Password: PasswordConfig{
			SecurityLevel:  password.LevelMedium,
			Policy:         password.PolicyStandard,
			RehashOnVerify: true,
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			MaxRequests: 60,
			Window:      time.Minute,
		},
		Reset: ResetConfig{
			TokenTTL: 24 * time.Hour,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

func (c *Config) applyDefaults() {
	if c.RateLimit.MaxRequests == 0 {
		c.RateLimit.MaxRequests = 60
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = time.Minute
	}
	// The two reset lifetimes mirror whichever one was set; an explicit
	// Token.ResetTTL is never overwritten.
	if c.Reset.TokenTTL == 0 {
		c.Reset.TokenTTL = c.Token.ResetTTL
	}
	if c.Reset.TokenTTL == 0 {
		c.Reset.TokenTTL = 24 * time.Hour
	}
	if c.Token.ResetTTL == 0 {
		c.Token.ResetTTL = c.Reset.TokenTTL
	}
}

func (c Config) validate() error {
	if c.Password.SecurityLevel < password.LevelLow || c.Password.SecurityLevel > password.LevelParanoid {
		return errors.New("unknown password security level")
	}
	if c.Password.Policy != password.PolicyStandard && c.Password.Policy != password.PolicyStrict {
		return errors.New("unknown password policy")
	}
	if c.RateLimit.MaxRequests < 0 {
		return errors.New("rate limit max requests must not be negative")
	}
	if c.RateLimit.Window < 0 {
		return errors.New("rate limit window must not be negative")
	}
	if c.Reset.TokenTTL < 0 {
		return errors.New("reset token ttl must not be negative")
	}
	return nil
}
