package otpgate

import "time"

// LoginChallenge is returned by a successful first leg. TempToken must be presented
// together with the emailed code on the second leg.
type LoginChallenge struct {
	TempToken         string
	ExpiresAt         time.Time
	RemainingAttempts int
}

// TokenPair is the result of a completed login or refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	UserID           string
	Role             string
	Remember         bool
}

// Claims is the verified content of an access token.
type Claims struct {
	UserID    string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ChallengeStatus is a read-only view of a user's challenge keys.
type ChallengeStatus struct {
	Blocked           bool
	RetryAfter        time.Duration
	Active            bool
	RemainingAttempts int
	ExpiresIn         time.Duration
}

// LoginOption adjusts a single Login call.
type LoginOption func(*loginOptions)

type loginOptions struct {
	remember bool
}

// WithRemember requests the extended refresh lifetime. It is carried in the temp
// token and honoured on the second leg together with that leg's own flag.
func WithRemember(remember bool) LoginOption {
	return func(o *loginOptions) { o.remember = remember }
}
