package otpgate

import (
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/otpgate/credential"
	"github.com/MrEthical07/otpgate/internal/rate"
	"github.com/MrEthical07/otpgate/jwt"
	"github.com/MrEthical07/otpgate/notify"
	"github.com/MrEthical07/otpgate/password"
	"github.com/MrEthical07/otpgate/twofactor"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine from configuration and injected dependencies. A Builder
// can be built once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users     credential.Store
	roles     credential.RoleStore
	hasher    password.Hasher
	sender    notify.Sender
	auditSink AuditSink
	logger    *slog.Logger

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the client used for challenges and throttling. The caller keeps
// ownership and closes it after Engine.Close.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the user lookup. If the store also implements
// credential.RoleStore it is used for roles unless WithRoleStore overrides it.
func (b *Builder) WithCredentialStore(store credential.Store) *Builder {
	b.users = store
	return b
}

func (b *Builder) WithRoleStore(store credential.RoleStore) *Builder {
	b.roles = store
	return b
}

// WithPasswordHasher replaces the hasher derived from Config.Password.
func (b *Builder) WithPasswordHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

func (b *Builder) WithCodeSender(sender notify.Sender) *Builder {
	b.sender = sender
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build validates the configuration, requires a Redis client, a credential store, a
// role store and a code sender, and wires every component. It performs no I/O.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.users == nil {
		return nil, errors.New("credential store required")
	}
	roleStore := b.roles
	if roleStore == nil {
		rs, ok := b.users.(credential.RoleStore)
		if !ok {
			return nil, errors.New("role store required")
		}
		roleStore = rs
	}
	if b.sender == nil {
		return nil, errors.New("code sender required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	hasher := b.hasher
	if hasher == nil {
		h, err := password.New(cfg.passwordOptions())
		if err != nil {
			return nil, err
		}
		hasher = h
	}
	verifier, err := credential.NewVerifier(b.users, hasher, cfg.Password.MaxConcurrentHashes)
	if err != nil {
		return nil, err
	}

	tables, err := credential.ParseRoleTables(cfg.Roles.Tables)
	if err != nil {
		return nil, err
	}
	resolver, err := credential.NewRoleResolver(roleStore, tables)
	if err != nil {
		return nil, err
	}

	challenger, err := twofactor.New(b.redis, cfg.challengeConfig())
	if err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(cfg.jwtConfig())
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:     cfg,
		verifier:   verifier,
		roles:      resolver,
		challenger: challenger,
		tokens:     tokens,
		sender:     b.sender,
		logger:     logger,
		now:        time.Now,
	}
	engine.limiter = rate.New(b.redis, rate.Config{
		Prefix:                  cfg.Security.RateLimitPrefix,
		EnableIPThrottle:        cfg.Security.EnableIPThrottle,
		MaxLoginAttempts:        cfg.Security.MaxLoginAttempts,
		LoginCooldownDuration:   cfg.Security.LoginCooldownDuration,
		EnableRefreshThrottle:   cfg.Security.EnableRefreshThrottle,
		MaxRefreshAttempts:      cfg.Security.MaxRefreshAttempts,
		RefreshCooldownDuration: cfg.Security.RefreshCooldownDuration,
	})
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink, logger)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
