package otpgate

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/otpgate/internal/rate"
)

// Refresh exchanges a valid refresh token for a new access token. The role is
// resolved again so a revoked membership stops the exchange. The refresh token itself
// is returned unchanged with its original expiry.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.tokens == nil || e.roles == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.ParseRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, "", err, nil)
		return nil, err
	}
	userID := claims.UserID

	if err := e.limiter.CheckRefresh(ctx, userID); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricRefreshRateLimited)
			e.emitAudit(ctx, auditEventRefreshFailure, false, userID, ErrRefreshRateLimited, nil)
			return nil, ErrRefreshRateLimited
		}
		return nil, e.infraFailure(ctx, "refresh_throttle", userID, err)
	}

	role, ok, err := e.roles.Resolve(ctx, userID)
	if err != nil {
		return nil, e.infraFailure(ctx, "role_lookup", userID, err)
	}
	if !ok {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, userID, ErrRoleNotAssigned, nil)
		return nil, ErrRoleNotAssigned
	}

	access, accessExp, err := e.tokens.CreateAccess(userID, role)
	if err != nil {
		return nil, e.infraFailure(ctx, "access_token", userID, err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, userID, nil, nil)

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: claims.ExpiresAt,
		UserID:           userID,
		Role:             role,
		Remember:         claims.Remember,
	}, nil
}

// ValidateAccess verifies an access token without any store round trip.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*Claims, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	start := e.now()
	defer func() {
		e.metricObserve(MetricValidateLatency, time.Since(start))
	}()

	claims, err := e.tokens.ParseAccess(accessToken)
	if err != nil {
		return nil, err
	}
	return &Claims{
		UserID:    claims.UserID,
		Role:      claims.Role,
		IssuedAt:  claims.IssuedAt,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}
