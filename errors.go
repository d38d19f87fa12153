package otpgate

import (
	"errors"

	"github.com/MrEthical07/otpgate/credential"
	"github.com/MrEthical07/otpgate/jwt"
	"github.com/MrEthical07/otpgate/twofactor"
)

// The sentinels below are shared with the sub-packages that produce them, so
// errors.Is works on errors returned from either layer.
var (
	// ErrInvalidCredentials is the only failure the first login leg reports for
	// non-infrastructure problems.
	ErrInvalidCredentials = credential.ErrInvalidCredentials
	// ErrUserBlocked is matched by *BlockedError.
	ErrUserBlocked = twofactor.ErrUserBlocked
	// ErrChallengeExpired is returned when no code is outstanding or the temp token expired.
	ErrChallengeExpired = twofactor.ErrChallengeExpired
	// ErrIncorrectCode is matched by *IncorrectCodeError.
	ErrIncorrectCode = twofactor.ErrIncorrectCode
	// ErrMaxAttemptsExceeded is matched by *MaxAttemptsError.
	ErrMaxAttemptsExceeded = twofactor.ErrMaxAttemptsExceeded
	// ErrInvalidToken covers bad signatures, wrong token kinds and malformed input.
	ErrInvalidToken = jwt.ErrTokenInvalid
	// ErrTokenExpired is returned for well-signed tokens past their expiry.
	ErrTokenExpired = jwt.ErrTokenExpired

	// ErrRoleNotAssigned is returned when a verified user holds none of the configured roles.
	ErrRoleNotAssigned = errors.New("role not assigned")
	// ErrInfrastructure wraps every store, cache, hashing or delivery failure.
	ErrInfrastructure = errors.New("authentication backend unavailable")
	// ErrLoginRateLimited is returned while the identifier or IP has spent its budget.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrRefreshRateLimited is returned when refresh exchanges exceed their budget.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrCodeDelivery is wrapped together with ErrInfrastructure when the code could not be sent.
	ErrCodeDelivery = errors.New("verification code delivery failed")
	// ErrEngineNotReady is returned by methods called on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

type (
	// BlockedError carries the remaining lockout.
	BlockedError = twofactor.BlockedError
	// IncorrectCodeError carries the attempts still available.
	IncorrectCodeError = twofactor.IncorrectCodeError
	// MaxAttemptsError carries the lockout that was just applied.
	MaxAttemptsError = twofactor.MaxAttemptsError
)

// ErrorCode is a stable, transport-safe identifier for an error kind.
type ErrorCode string

const (
	CodeInvalidCredentials  ErrorCode = "invalid_credentials"
	CodeUserBlocked         ErrorCode = "user_blocked"
	CodeChallengeExpired    ErrorCode = "challenge_expired"
	CodeIncorrectCode       ErrorCode = "incorrect_code"
	CodeMaxAttemptsExceeded ErrorCode = "max_attempts_exceeded"
	CodeInvalidToken        ErrorCode = "invalid_token"
	CodeTokenExpired        ErrorCode = "token_expired"
	CodeRoleNotAssigned     ErrorCode = "role_not_assigned"
	CodeRateLimited         ErrorCode = "rate_limited"
	CodeDeliveryFailed      ErrorCode = "code_delivery_failed"
	CodeUnavailable         ErrorCode = "backend_unavailable"
	CodeNotReady            ErrorCode = "engine_not_ready"
	CodeInternal            ErrorCode = "internal_error"
)

// AuthErrorCode maps err to its ErrorCode. It returns "" for nil.
func AuthErrorCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrCodeDelivery):
		return CodeDeliveryFailed
	case errors.Is(err, ErrInfrastructure):
		return CodeUnavailable
	case errors.Is(err, ErrInvalidCredentials):
		return CodeInvalidCredentials
	case errors.Is(err, ErrUserBlocked):
		return CodeUserBlocked
	case errors.Is(err, ErrMaxAttemptsExceeded):
		return CodeMaxAttemptsExceeded
	case errors.Is(err, ErrIncorrectCode):
		return CodeIncorrectCode
	case errors.Is(err, ErrChallengeExpired):
		return CodeChallengeExpired
	case errors.Is(err, ErrTokenExpired):
		return CodeTokenExpired
	case errors.Is(err, ErrInvalidToken):
		return CodeInvalidToken
	case errors.Is(err, ErrRoleNotAssigned):
		return CodeRoleNotAssigned
	case errors.Is(err, ErrLoginRateLimited),
		errors.Is(err, ErrRefreshRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrEngineNotReady):
		return CodeNotReady
	default:
		return CodeInternal
	}
}
