package warden

import (
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/wardenauth/warden/password"
	"github.com/wardenauth/warden/token"
)

// Builder assembles a [Manager] with explicit dependency injection. There
// are no package-level singletons; the host owns the instance's lifetime.
type Builder struct {
	config    Config
	hasConfig bool
	backend   UserBackend
	redis     redis.UniversalClient
	logger    *slog.Logger

	built bool
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{}
}

// WithConfig sets the full configuration tree. When omitted the builder uses
// [DefaultConfig]; the token secret must be provided either way. A secret
// already set via [Builder.WithTokenSecret] survives a cfg without one, so
// the two calls compose in either order.
func (b *Builder) WithConfig(cfg Config) *Builder {
	if cfg.Token.Secret == "" {
		cfg.Token.Secret = b.config.Token.Secret
	}
	b.config = cfg
	b.hasConfig = true
	return b
}

// WithBackend sets the user storage backend. Required.
func (b *Builder) WithBackend(backend UserBackend) *Builder {
	b.backend = backend
	return b
}

// WithTokenSecret sets the signing secret without replacing the rest of the
// configuration.
func (b *Builder) WithTokenSecret(secret string) *Builder {
	b.config.Token.Secret = secret
	return b
}

// WithRedis moves revocation tracking and rate limiting onto the given
// Redis client so that revocations are observed across processes. Without
// it both live in process memory.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// Build validates the configuration and constructs the Manager. A Builder
// builds at most once.
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.backend == nil {
		return nil, errors.New("user backend is required")
	}

	cfg := b.config
	if !b.hasConfig {
		secret := cfg.Token.Secret
		cfg = DefaultConfig()
		cfg.Token.Secret = secret
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	tokenOpts := []token.Option{
		token.WithLogger(logger),
		token.WithRateLimit(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window),
	}
	if b.redis != nil {
		tokenOpts = append(tokenOpts,
			token.WithRevocationStore(token.NewRedisRevocationStore(b.redis)),
			token.WithRateLimiter(token.NewRedisRateLimiter(b.redis, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)),
		)
	}
	tokens, err := token.NewManager(cfg.Token, tokenOpts...)
	if err != nil {
		return nil, err
	}

	hasher := password.NewHasher(cfg.Password.SecurityLevel)

	// Pre-computed hash verified against when a username lookup misses, so
	// login latency does not reveal whether the account exists.
	dummyHash, err := hasher.Hash("warden.timing.equalizer")
	if err != nil {
		return nil, err
	}

	b.built = true
	return &Manager{
		config:    cfg,
		backend:   b.backend,
		hasher:    hasher,
		tokens:    tokens,
		metrics:   newMetrics(cfg.Metrics.Enabled),
		logger:    logger,
		dummyHash: dummyHash,
	}, nil
}
