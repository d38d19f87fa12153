package internaldefs

import (
	"github.com/MrEthical07/otpgate"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   otpgate.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for exporters.
type HistogramDef struct {
	ID   otpgate.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: otpgate.MetricChallengeIssued, Name: "otpgate_challenge_issued_total", Help: "Codes issued and delivered after a successful first leg."},
	{ID: otpgate.MetricLoginFailure, Name: "otpgate_login_failure_total", Help: "First-leg credential failures."},
	{ID: otpgate.MetricLoginRateLimited, Name: "otpgate_login_rate_limited_total", Help: "First-leg attempts refused by the login throttle."},
	{ID: otpgate.MetricLoginBlocked, Name: "otpgate_login_blocked_total", Help: "First-leg attempts refused while the challenge is locked."},
	{ID: otpgate.MetricCodeDeliveryFailure, Name: "otpgate_code_delivery_failure_total", Help: "Codes that could not be delivered."},
	{ID: otpgate.MetricChallengeSuccess, Name: "otpgate_challenge_success_total", Help: "Completed second legs."},
	{ID: otpgate.MetricChallengeIncorrect, Name: "otpgate_challenge_incorrect_total", Help: "Wrong codes with attempts remaining."},
	{ID: otpgate.MetricChallengeExpired, Name: "otpgate_challenge_expired_total", Help: "Second legs with no outstanding code."},
	{ID: otpgate.MetricChallengeLockout, Name: "otpgate_challenge_lockout_total", Help: "Lockouts triggered by exhausting attempts."},
	{ID: otpgate.MetricChallengeBlocked, Name: "otpgate_challenge_blocked_total", Help: "Second legs refused during a lockout."},
	{ID: otpgate.MetricTempTokenInvalid, Name: "otpgate_temp_token_invalid_total", Help: "Second legs with an invalid or expired temp token."},
	{ID: otpgate.MetricRoleNotAssigned, Name: "otpgate_role_not_assigned_total", Help: "Verified users without a configured role."},
	{ID: otpgate.MetricRefreshSuccess, Name: "otpgate_refresh_success_total", Help: "Successful refresh exchanges."},
	{ID: otpgate.MetricRefreshFailure, Name: "otpgate_refresh_failure_total", Help: "Refused refresh exchanges."},
	{ID: otpgate.MetricRefreshRateLimited, Name: "otpgate_refresh_rate_limited_total", Help: "Refresh exchanges refused by the throttle."},
	{ID: otpgate.MetricChallengeReset, Name: "otpgate_challenge_reset_total", Help: "Administrative challenge resets."},
	{ID: otpgate.MetricInfrastructureError, Name: "otpgate_backend_error_total", Help: "Store, cache and token backend failures."},
}

var HistogramDefs = []HistogramDef{
	{ID: otpgate.MetricValidateLatency, Name: "otpgate_validate_latency_seconds", Help: "Access-token validation latency."},
}

// AuditDroppedName is the counter for audit events lost to backpressure or sink panics.
const AuditDroppedName = "otpgate_audit_dropped_total"

// HistogramBounds are the bucket upper bounds in seconds, matching the engine buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets copies raw into a fixed array, padding missing buckets with zero.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
