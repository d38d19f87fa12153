package otpgate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/otpgate/credential"
	"github.com/MrEthical07/otpgate/internal/rate"
	"github.com/MrEthical07/otpgate/jwt"
	"github.com/MrEthical07/otpgate/notify"
	"github.com/MrEthical07/otpgate/twofactor"
)

// Engine orchestrates the two login legs, refresh and access-token validation.
type Engine struct {
	config     Config
	verifier   *credential.Verifier
	roles      *credential.RoleResolver
	challenger *twofactor.Challenger
	tokens     *jwt.Manager
	sender     notify.Sender
	limiter    *rate.Limiter
	audit      *auditDispatcher
	metrics    *Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// Close drains pending audit events. It does not close injected clients.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	return e.config
}

// AccessTTL and RefreshTTL expose token lifetimes for transports that mirror them
// in cookie Max-Age.
func (e *Engine) AccessTTL() time.Duration { return e.tokens.AccessTTL() }

func (e *Engine) RefreshTTL(remember bool) time.Duration { return e.tokens.RefreshTTLFor(remember) }

func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// ResetChallenge removes the code, attempt counter and lockout for userID.
func (e *Engine) ResetChallenge(ctx context.Context, userID string) error {
	if e == nil || e.challenger == nil {
		return ErrEngineNotReady
	}
	if err := e.challenger.Cleanup(ctx, userID); err != nil {
		return e.infraFailure(ctx, "challenge_reset", userID, err)
	}
	e.metricInc(MetricChallengeReset)
	e.emitAudit(ctx, auditEventChallengeReset, true, userID, nil, nil)
	return nil
}

// ChallengeStatus reports the user's challenge state without changing it.
func (e *Engine) ChallengeStatus(ctx context.Context, userID string) (ChallengeStatus, error) {
	if e == nil || e.challenger == nil {
		return ChallengeStatus{}, ErrEngineNotReady
	}
	st, err := e.challenger.Status(ctx, userID)
	if err != nil {
		return ChallengeStatus{}, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}
	return ChallengeStatus(st), nil
}

// HasAnyRole resolves the user's role afresh and reports whether it is one of roles.
// A revoked role takes effect before the access token expires.
func (e *Engine) HasAnyRole(ctx context.Context, userID string, roles ...string) (bool, error) {
	if e == nil || e.roles == nil {
		return false, ErrEngineNotReady
	}
	ok, err := e.roles.HasAny(ctx, userID, roles...)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInfrastructure, err)
	}
	return ok, nil
}

// infraFailure logs, counts and audits a backend error and wraps it in
// ErrInfrastructure.
func (e *Engine) infraFailure(ctx context.Context, op, userID string, err error) error {
	wrapped := fmt.Errorf("%w: %s: %v", ErrInfrastructure, op, err)
	e.metricInc(MetricInfrastructureError)
	e.logger.ErrorContext(ctx, "authentication backend failure", "op", op, "user_id", userID, "err", err)
	e.emitAudit(ctx, auditEventBackendFailure, false, userID, wrapped, func() map[string]string {
		return map[string]string{"op": op}
	})
	return wrapped
}
