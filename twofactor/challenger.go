package twofactor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/otpgate/internal/stores"
	"github.com/redis/go-redis/v9"
)

// Config controls code shape, lifetime, retry budget and lockout.
type Config struct {
	CodeLength    int
	CodeTTL       time.Duration
	MaxAttempts   int
	BlockDuration time.Duration
	KeyPrefix     string
}

// DefaultConfig returns 6 digits, 10 minutes, 3 attempts and a 30 minute block.
func DefaultConfig() Config {
	return Config{
		CodeLength:    DefaultCodeLength,
		CodeTTL:       10 * time.Minute,
		MaxAttempts:   3,
		BlockDuration: 30 * time.Minute,
		KeyPrefix:     "2fa",
	}
}

// Validate checks that every field is usable.
func (c Config) Validate() error {
	if c.CodeLength < minCodeLength || c.CodeLength > maxCodeLength {
		return ErrInvalidCodeLength
	}
	if c.CodeTTL < time.Second {
		return errors.New("challenge code TTL must be >= 1s")
	}
	if c.MaxAttempts < 1 {
		return errors.New("challenge max attempts must be >= 1")
	}
	if c.BlockDuration < time.Second {
		return errors.New("challenge block duration must be >= 1s")
	}
	return nil
}

// Challenge is the result of a successful Issue.
type Challenge struct {
	Code              string
	ExpiresAt         time.Time
	RemainingAttempts int
}

// Status is a read-only view of a user's challenge state.
type Status struct {
	Blocked           bool
	RetryAfter        time.Duration
	Active            bool
	RemainingAttempts int
	ExpiresIn         time.Duration
}

// Challenger issues and verifies one-time codes for users. Each operation is a single
// Redis command or script, so concurrent callers for the same user never observe a
// half-written challenge and the lockout triggers exactly once.
type Challenger struct {
	store *stores.ChallengeStore
	codes *CodeGenerator
	cfg   Config
	now   func() time.Time
}

// New builds a Challenger over an injected Redis client. The caller owns the client.
func New(redisClient redis.UniversalClient, cfg Config) (*Challenger, error) {
	if redisClient == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	codes, err := NewCodeGenerator(cfg.CodeLength)
	if err != nil {
		return nil, err
	}
	return &Challenger{
		store: stores.NewChallengeStore(redisClient, cfg.KeyPrefix),
		codes: codes,
		cfg:   cfg,
		now:   time.Now,
	}, nil
}

// Config returns the active configuration.
func (c *Challenger) Config() Config {
	return c.cfg
}

// Issue generates a fresh code for userID and replaces any outstanding one.
func (c *Challenger) Issue(ctx context.Context, userID string) (*Challenge, error) {
	if userID == "" {
		return nil, ErrChallengeExpired
	}

	code, err := c.codes.Generate()
	if err != nil {
		return nil, err
	}

	issuedAt := c.now()
	res, err := c.store.Issue(ctx, userID, code, c.cfg.MaxAttempts, c.cfg.CodeTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if res.Blocked {
		return nil, &BlockedError{RetryAfter: nonNegative(res.BlockedTTL)}
	}

	return &Challenge{
		Code:              code,
		ExpiresAt:         issuedAt.Add(c.cfg.CodeTTL),
		RemainingAttempts: c.cfg.MaxAttempts,
	}, nil
}

// Verify checks code against the outstanding challenge. It returns nil on a match and
// one of *BlockedError, ErrChallengeExpired, *IncorrectCodeError or *MaxAttemptsError
// otherwise.
func (c *Challenger) Verify(ctx context.Context, userID, code string) error {
	if userID == "" {
		return ErrChallengeExpired
	}

	res, err := c.store.Verify(ctx, userID, code, c.cfg.BlockDuration)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	switch res.Status {
	case stores.VerifyMatched:
		return nil
	case stores.VerifyBlocked:
		return &BlockedError{RetryAfter: nonNegative(res.BlockedTTL)}
	case stores.VerifyMissing:
		return ErrChallengeExpired
	case stores.VerifyExhausted:
		return &MaxAttemptsError{BlockDuration: c.cfg.BlockDuration}
	case stores.VerifyMismatch:
		return &IncorrectCodeError{RemainingAttempts: res.Remaining}
	default:
		return fmt.Errorf("%w: unknown verify status %d", ErrStoreUnavailable, res.Status)
	}
}

// Revoke drops the outstanding code without touching a lockout.
func (c *Challenger) Revoke(ctx context.Context, userID string) error {
	if err := c.store.Revoke(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Cleanup removes code, attempts and lockout for userID.
func (c *Challenger) Cleanup(ctx context.Context, userID string) error {
	if err := c.store.Clear(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Status reports the current state without modifying it.
func (c *Challenger) Status(ctx context.Context, userID string) (Status, error) {
	snap, err := c.store.Inspect(ctx, userID)
	if err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return Status{
		Blocked:           snap.Blocked,
		RetryAfter:        nonNegative(snap.BlockedTTL),
		Active:            snap.Active,
		RemainingAttempts: snap.RemainingAttempts,
		ExpiresIn:         nonNegative(snap.CodeTTL),
	}, nil
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
