package otpgate

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/MrEthical07/otpgate/jwt"
)

// VerifyChallenge describes the second login leg and its observable behavior.
//
// The temp token is checked before any code comparison: a bad token returns
// ErrInvalidToken and an expired one ErrChallengeExpired, leaving the attempt counter
// untouched. Code outcomes are reported precisely as *IncorrectCodeError,
// *MaxAttemptsError, *BlockedError or ErrChallengeExpired. On a match the challenge is
// consumed, the user's role is resolved and a token pair is minted. The refresh
// lifetime is extended when either this call or the first leg asked to be remembered.
func (e *Engine) VerifyChallenge(ctx context.Context, tempToken, code string, remember bool) (*TokenPair, error) {
	if e == nil || e.challenger == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	temp, err := e.tokens.ParseTemp(tempToken)
	if err != nil {
		e.metricInc(MetricTempTokenInvalid)
		if errors.Is(err, jwt.ErrTokenExpired) {
			e.emitAudit(ctx, auditEventChallengeFailure, false, "", ErrChallengeExpired, nil)
			return nil, ErrChallengeExpired
		}
		e.emitAudit(ctx, auditEventChallengeFailure, false, "", ErrInvalidToken, nil)
		return nil, ErrInvalidToken
	}
	userID := temp.UserID

	if err := e.challenger.Verify(ctx, userID, strings.TrimSpace(code)); err != nil {
		return nil, e.challengeFailed(ctx, userID, err)
	}

	role, ok, err := e.roles.Resolve(ctx, userID)
	if err != nil {
		return nil, e.infraFailure(ctx, "role_lookup", userID, err)
	}
	if !ok {
		e.metricInc(MetricRoleNotAssigned)
		e.emitAudit(ctx, auditEventRoleNotAssigned, false, userID, ErrRoleNotAssigned, nil)
		return nil, ErrRoleNotAssigned
	}

	pair, err := e.issuePair(ctx, userID, role, remember || temp.Remember)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricChallengeSuccess)
	e.emitAudit(ctx, auditEventChallengeSuccess, true, userID, nil, func() map[string]string {
		return map[string]string{
			"role":     role,
			"remember": strconv.FormatBool(pair.Remember),
		}
	})
	return pair, nil
}

func (e *Engine) challengeFailed(ctx context.Context, userID string, err error) error {
	var (
		incorrect *IncorrectCodeError
		exhausted *MaxAttemptsError
		blocked   *BlockedError
	)

	switch {
	case errors.As(err, &incorrect):
		e.metricInc(MetricChallengeIncorrect)
		e.emitAudit(ctx, auditEventChallengeFailure, false, userID, err, func() map[string]string {
			return map[string]string{"remaining_attempts": strconv.Itoa(incorrect.RemainingAttempts)}
		})
	case errors.As(err, &exhausted):
		e.metricInc(MetricChallengeLockout)
		e.emitAudit(ctx, auditEventChallengeLockout, false, userID, err, func() map[string]string {
			return map[string]string{"block_seconds": strconv.Itoa(exhausted.BlockDurationSeconds())}
		})
		e.logger.WarnContext(ctx, "challenge attempts exhausted, user blocked", "user_id", userID)
	case errors.As(err, &blocked):
		e.metricInc(MetricChallengeBlocked)
		e.emitAudit(ctx, auditEventChallengeFailure, false, userID, err, nil)
	case errors.Is(err, ErrChallengeExpired):
		e.metricInc(MetricChallengeExpired)
		e.emitAudit(ctx, auditEventChallengeFailure, false, userID, err, nil)
	default:
		return e.infraFailure(ctx, "challenge_verify", userID, err)
	}
	return err
}

func (e *Engine) issuePair(ctx context.Context, userID, role string, remember bool) (*TokenPair, error) {
	access, accessExp, err := e.tokens.CreateAccess(userID, role)
	if err != nil {
		return nil, e.infraFailure(ctx, "access_token", userID, err)
	}
	refresh, refreshExp, err := e.tokens.CreateRefresh(userID, remember)
	if err != nil {
		return nil, e.infraFailure(ctx, "refresh_token", userID, err)
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		UserID:           userID,
		Role:             role,
		Remember:         remember,
	}, nil
}
