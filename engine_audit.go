package otpgate

import (
	"context"
	"time"
)

const (
	auditEventChallengeIssued  = "challenge_issued"
	auditEventLoginFailure     = "login_failure"
	auditEventLoginRateLimited = "login_rate_limited"
	auditEventLoginBlocked     = "login_blocked"
	auditEventCodeDelivery     = "code_delivery_failure"
	auditEventChallengeSuccess = "challenge_success"
	auditEventChallengeFailure = "challenge_failure"
	auditEventChallengeLockout = "challenge_lockout"
	auditEventRoleNotAssigned  = "role_not_assigned"
	auditEventRefreshSuccess   = "refresh_success"
	auditEventRefreshFailure   = "refresh_failure"
	auditEventChallengeReset   = "challenge_reset"
	auditEventBackendFailure   = "backend_failure"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	e.audit.Emit(ctx, AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		IP:        ClientIPFromContext(ctx),
		Success:   success,
		Error:     string(AuthErrorCode(err)),
		Metadata:  metadata,
	})
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}
