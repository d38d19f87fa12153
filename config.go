package otpgate

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/otpgate/credential"
	"github.com/MrEthical07/otpgate/jwt"
	"github.com/MrEthical07/otpgate/password"
	"github.com/MrEthical07/otpgate/twofactor"
	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds every engine tunable. Field tags name the environment variables read
// by [LoadConfigFromEnv]; env-default values match [DefaultConfig].
type Config struct {
	JWT       JWTConfig
	Password  PasswordConfig
	Challenge ChallengeConfig
	Roles     RolesConfig
	Security  SecurityConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures token signing. Access and temp tokens share AccessSecret.
type JWTConfig struct {
	AccessSecret       string        `env:"ACCESS_TOKEN_SECRET"`
	RefreshSecret      string        `env:"REFRESH_TOKEN_SECRET"`
	AccessTTL          time.Duration `env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTTL         time.Duration `env:"REFRESH_TOKEN_TTL" env-default:"1h"`
	RefreshRememberTTL time.Duration `env:"REFRESH_TOKEN_REMEMBER_TTL" env-default:"168h"`
	Issuer             string        `env:"TOKEN_ISSUER" env-default:"otpgate"`
	Leeway             time.Duration `env:"TOKEN_LEEWAY" env-default:"0s"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the hash algorithm for new hashes. Stored hashes of either
// supported format always verify.
type PasswordConfig struct {
	Algorithm           string `env:"PASSWORD_HASH_ALGORITHM" env-default:"bcrypt"`
	BcryptCost          int    `env:"PASSWORD_HASH_COST" env-default:"10"`
	Argon2MemoryKB      uint32 `env:"PASSWORD_ARGON2_MEMORY_KB" env-default:"65536"`
	Argon2Time          uint32 `env:"PASSWORD_ARGON2_TIME" env-default:"3"`
	Argon2Parallelism   uint8  `env:"PASSWORD_ARGON2_PARALLELISM" env-default:"2"`
	MaxConcurrentHashes int    `env:"PASSWORD_MAX_CONCURRENT_HASHES" env-default:"8"`
}

/*
====================================
CHALLENGE CONFIG
====================================
*/

// ChallengeConfig controls the emailed one-time code.
type ChallengeConfig struct {
	CodeLength    int           `env:"CHALLENGE_CODE_LENGTH" env-default:"6"`
	CodeTTL       time.Duration `env:"CHALLENGE_TTL" env-default:"10m"`
	MaxAttempts   int           `env:"CHALLENGE_MAX_ATTEMPTS" env-default:"3"`
	BlockDuration time.Duration `env:"CHALLENGE_BLOCK_DURATION" env-default:"30m"`
	KeyPrefix     string        `env:"CHALLENGE_KEY_PREFIX" env-default:"2fa"`
}

// RolesConfig lists role membership tables as "role:table,role:table". Order decides
// which role a user in several tables receives.
type RolesConfig struct {
	Tables string `env:"ROLE_TABLES" env-default:"admin:admins,finca:fincas"`
}

// SecurityConfig controls login and refresh throttling.
type SecurityConfig struct {
	EnableLoginThrottle     bool          `env:"LOGIN_THROTTLE_ENABLED" env-default:"true"`
	EnableIPThrottle        bool          `env:"LOGIN_IP_THROTTLE" env-default:"false"`
	MaxLoginAttempts        int           `env:"LOGIN_MAX_ATTEMPTS" env-default:"10"`
	LoginCooldownDuration   time.Duration `env:"LOGIN_COOLDOWN" env-default:"15m"`
	EnableRefreshThrottle   bool          `env:"REFRESH_THROTTLE_ENABLED" env-default:"false"`
	MaxRefreshAttempts      int           `env:"REFRESH_MAX_ATTEMPTS" env-default:"60"`
	RefreshCooldownDuration time.Duration `env:"REFRESH_COOLDOWN" env-default:"1m"`
	RateLimitPrefix         string        `env:"RATE_LIMIT_PREFIX" env-default:"rl"`
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `env:"AUDIT_ENABLED" env-default:"true"`
	BufferSize int  `env:"AUDIT_BUFFER_SIZE" env-default:"1024"`
	DropIfFull bool `env:"AUDIT_DROP_IF_FULL" env-default:"true"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `env:"METRICS_ENABLED" env-default:"true"`
	EnableLatencyHistograms bool `env:"METRICS_LATENCY_HISTOGRAMS" env-default:"true"`
}

// DefaultConfig returns the defaults with empty secrets. Callers must set both
// secrets before Build.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:          15 * time.Minute,
			RefreshTTL:         time.Hour,
			RefreshRememberTTL: 7 * 24 * time.Hour,
			Issuer:             "otpgate",
		},
		Password: PasswordConfig{
			Algorithm:           string(password.AlgorithmBcrypt),
			BcryptCost:          password.DefaultBcryptCost,
			Argon2MemoryKB:      64 * 1024,
			Argon2Time:          3,
			Argon2Parallelism:   2,
			MaxConcurrentHashes: 8,
		},
		Challenge: ChallengeConfig{
			CodeLength:    6,
			CodeTTL:       10 * time.Minute,
			MaxAttempts:   3,
			BlockDuration: 30 * time.Minute,
			KeyPrefix:     "2fa",
		},
		Roles: RolesConfig{
			Tables: "admin:admins,finca:fincas",
		},
		Security: SecurityConfig{
			EnableLoginThrottle:     true,
			MaxLoginAttempts:        10,
			LoginCooldownDuration:   15 * time.Minute,
			MaxRefreshAttempts:      60,
			RefreshCooldownDuration: time.Minute,
			RateLimitPrefix:         "rl",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

// LoadConfigFromEnv reads Config from the process environment and validates it.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate describes the validate operation and its observable behavior.
//
// Validate returns the first invalid field it finds. It does not touch the network.
func (c *Config) Validate() error {
	if c.JWT.AccessSecret == "" || c.JWT.RefreshSecret == "" {
		return errors.New("access and refresh token secrets are required")
	}
	if c.JWT.AccessSecret == c.JWT.RefreshSecret {
		return errors.New("access and refresh token secrets must differ")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 || c.JWT.RefreshRememberTTL <= 0 {
		return errors.New("token TTLs must be > 0")
	}
	if c.JWT.RefreshRememberTTL < c.JWT.RefreshTTL {
		return errors.New("remember-me refresh TTL must be >= refresh TTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("token leeway must be within [0, 2m]")
	}

	switch password.Algorithm(c.Password.Algorithm) {
	case password.AlgorithmBcrypt, password.AlgorithmArgon2id:
	default:
		return fmt.Errorf("unsupported password hash algorithm %q", c.Password.Algorithm)
	}
	if c.Password.BcryptCost < 4 || c.Password.BcryptCost > 31 {
		return errors.New("bcrypt cost must be within [4, 31]")
	}
	if c.Password.MaxConcurrentHashes < 1 {
		return errors.New("max concurrent hashes must be >= 1")
	}

	if err := c.challengeConfig().Validate(); err != nil {
		return fmt.Errorf("challenge config: %w", err)
	}
	if _, err := credential.ParseRoleTables(c.Roles.Tables); err != nil {
		return fmt.Errorf("role tables: %w", err)
	}

	if c.Security.EnableLoginThrottle {
		if c.Security.MaxLoginAttempts < 1 || c.Security.LoginCooldownDuration <= 0 {
			return errors.New("login throttle requires max attempts >= 1 and cooldown > 0")
		}
	}
	if c.Security.EnableRefreshThrottle {
		if c.Security.MaxRefreshAttempts < 1 || c.Security.RefreshCooldownDuration <= 0 {
			return errors.New("refresh throttle requires max attempts >= 1 and cooldown > 0")
		}
	}
	if c.Audit.Enabled && c.Audit.BufferSize < 1 {
		return errors.New("audit buffer size must be >= 1")
	}
	return nil
}

func (c *Config) challengeConfig() twofactor.Config {
	return twofactor.Config{
		CodeLength:    c.Challenge.CodeLength,
		CodeTTL:       c.Challenge.CodeTTL,
		MaxAttempts:   c.Challenge.MaxAttempts,
		BlockDuration: c.Challenge.BlockDuration,
		KeyPrefix:     c.Challenge.KeyPrefix,
	}
}

func (c *Config) jwtConfig() jwt.Config {
	return jwt.Config{
		AccessSecret:       []byte(c.JWT.AccessSecret),
		RefreshSecret:      []byte(c.JWT.RefreshSecret),
		AccessTTL:          c.JWT.AccessTTL,
		RefreshTTL:         c.JWT.RefreshTTL,
		RefreshRememberTTL: c.JWT.RefreshRememberTTL,
		Issuer:             c.JWT.Issuer,
		Leeway:             c.JWT.Leeway,
	}
}

func (c *Config) passwordOptions() password.Options {
	argon := password.DefaultArgon2Config()
	argon.Memory = c.Password.Argon2MemoryKB
	argon.Time = c.Password.Argon2Time
	argon.Parallelism = c.Password.Argon2Parallelism
	return password.Options{
		Algorithm:  password.Algorithm(c.Password.Algorithm),
		BcryptCost: c.Password.BcryptCost,
		Argon2:     argon,
	}
}
