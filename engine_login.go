package otpgate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrEthical07/otpgate/credential"
	"github.com/MrEthical07/otpgate/internal/rate"
)

// Login describes the login operation and its observable behavior.
//
// Login is the first leg. It checks the throttle, verifies the credentials, issues a
// one-time code, mails it to the user's address and returns a temp token bound to the
// user id. Wrong identifier, wrong password and an active lockout all return
// ErrInvalidCredentials; the precise cause is audited. Backend failures wrap
// ErrInfrastructure, and a failed delivery revokes the code it was about to send.
func (e *Engine) Login(ctx context.Context, identifier, password string, opts ...LoginOption) (*LoginChallenge, error) {
	if e == nil || e.verifier == nil || e.challenger == nil {
		return nil, ErrEngineNotReady
	}

	var o loginOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	identifier = strings.TrimSpace(identifier)
	ip := ClientIPFromContext(ctx)

	if e.config.Security.EnableLoginThrottle {
		if err := e.limiter.CheckLogin(ctx, identifier, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.metricInc(MetricLoginRateLimited)
				e.emitAudit(ctx, auditEventLoginRateLimited, false, "", ErrLoginRateLimited, identifierMetadata(identifier))
				return nil, ErrLoginRateLimited
			}
			return nil, e.infraFailure(ctx, "login_throttle", "", err)
		}
	}

	user, err := e.verifier.Verify(ctx, identifier, password)
	if err != nil {
		if errors.Is(err, credential.ErrInvalidCredentials) {
			return nil, e.loginFailed(ctx, identifier, ip)
		}
		return nil, e.infraFailure(ctx, "credential_lookup", "", err)
	}

	challenge, err := e.challenger.Issue(ctx, user.ID)
	if err != nil {
		var blocked *BlockedError
		if errors.As(err, &blocked) {
			e.metricInc(MetricLoginBlocked)
			e.emitAudit(ctx, auditEventLoginBlocked, false, user.ID, err, func() map[string]string {
				return map[string]string{"retry_after_seconds": strconv.Itoa(blocked.RetryAfterSeconds())}
			})
			e.logger.InfoContext(ctx, "login refused while challenge is blocked", "user_id", user.ID)
			return nil, ErrInvalidCredentials
		}
		return nil, e.infraFailure(ctx, "challenge_issue", user.ID, err)
	}

	tempToken, _, err := e.tokens.CreateTemp(user.ID, o.remember, e.config.Challenge.CodeTTL)
	if err != nil {
		e.revokeQuietly(ctx, user.ID)
		return nil, fmt.Errorf("%w: temp token: %v", ErrInfrastructure, err)
	}

	if err := e.sender.SendCode(ctx, user.Email, challenge.Code); err != nil {
		e.revokeQuietly(ctx, user.ID)
		e.metricInc(MetricCodeDeliveryFailure)
		e.logger.ErrorContext(ctx, "verification code delivery failed", "user_id", user.ID, "err", err)
		wrapped := fmt.Errorf("%w: %w: %v", ErrInfrastructure, ErrCodeDelivery, err)
		e.emitAudit(ctx, auditEventCodeDelivery, false, user.ID, wrapped, nil)
		return nil, wrapped
	}

	if e.config.Security.EnableLoginThrottle {
		if err := e.limiter.ResetLogin(ctx, identifier); err != nil {
			e.logger.WarnContext(ctx, "login throttle reset failed", "user_id", user.ID, "err", err)
		}
	}

	e.metricInc(MetricChallengeIssued)
	e.emitAudit(ctx, auditEventChallengeIssued, true, user.ID, nil, nil)

	return &LoginChallenge{
		TempToken:         tempToken,
		ExpiresAt:         challenge.ExpiresAt,
		RemainingAttempts: challenge.RemainingAttempts,
	}, nil
}

// loginFailed records a credential mismatch against the throttle. A throttle backend
// failure is logged and does not change the reply.
func (e *Engine) loginFailed(ctx context.Context, identifier, ip string) error {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidCredentials, identifierMetadata(identifier))

	if e.config.Security.EnableLoginThrottle {
		if err := e.limiter.IncrementLogin(ctx, identifier, ip); err != nil && !errors.Is(err, rate.ErrRateLimited) {
			e.logger.WarnContext(ctx, "login throttle update failed", "err", err)
		}
	}
	return ErrInvalidCredentials
}

func (e *Engine) revokeQuietly(ctx context.Context, userID string) {
	if err := e.challenger.Revoke(ctx, userID); err != nil {
		e.logger.ErrorContext(ctx, "challenge revoke failed", "user_id", userID, "err", err)
	}
}

func identifierMetadata(identifier string) func() map[string]string {
	return func() map[string]string {
		kind := "username"
		if credential.IsEmail(identifier) {
			kind = "email"
		}
		return map[string]string{"identifier_kind": kind}
	}
}
