package twofactor

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrUserBlocked is returned while the lockout marker for a user exists.
	ErrUserBlocked = errors.New("user blocked")
	// ErrChallengeExpired is returned when no code is outstanding for the user.
	ErrChallengeExpired = errors.New("challenge expired or invalid")
	// ErrIncorrectCode is returned for a wrong code that leaves attempts remaining.
	ErrIncorrectCode = errors.New("incorrect code")
	// ErrMaxAttemptsExceeded is returned for the wrong code that triggers the lockout.
	ErrMaxAttemptsExceeded = errors.New("maximum attempts exceeded")
	// ErrStoreUnavailable wraps challenge store failures.
	ErrStoreUnavailable = errors.New("challenge store unavailable")
)

// BlockedError reports a refused operation while the user is locked out.
// RetryAfter is zero when the marker carries no expiry.
type BlockedError struct {
	RetryAfter time.Duration
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("user blocked, retry in %d minutes", ceilMinutes(e.RetryAfter))
}

func (e *BlockedError) Unwrap() error { return ErrUserBlocked }

// RetryAfterSeconds rounds up to whole seconds.
func (e *BlockedError) RetryAfterSeconds() int {
	return ceilSeconds(e.RetryAfter)
}

// IncorrectCodeError reports a mismatch and the attempts still available.
type IncorrectCodeError struct {
	RemainingAttempts int
}

func (e *IncorrectCodeError) Error() string {
	return fmt.Sprintf("incorrect code, remaining attempts: %d", e.RemainingAttempts)
}

func (e *IncorrectCodeError) Unwrap() error { return ErrIncorrectCode }

// MaxAttemptsError reports the mismatch that locked the user out.
type MaxAttemptsError struct {
	BlockDuration time.Duration
}

func (e *MaxAttemptsError) Error() string {
	return fmt.Sprintf("maximum attempts exceeded, user blocked for %d minutes", ceilMinutes(e.BlockDuration))
}

func (e *MaxAttemptsError) Unwrap() error { return ErrMaxAttemptsExceeded }

// BlockDurationSeconds rounds up to whole seconds.
func (e *MaxAttemptsError) BlockDurationSeconds() int {
	return ceilSeconds(e.BlockDuration)
}

func ceilMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Minutes()))
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
