package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/MrEthical07/otpgate"
	"github.com/go-chi/render"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	OK                bool   `json:"ok"`
	Msg               string `json:"msg"`
	Code              string `json:"code,omitempty"`
	RemainingAttempts *int   `json:"remainingAttempts,omitempty"`
	ShouldRetry       *bool  `json:"shouldRetry,omitempty"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
}

func boolPtr(v bool) *bool { return &v }

func intPtr(v int) *int { return &v }

// writeError maps engine errors to status codes. The first login leg only ever
// produces the generic credential, throttle and backend kinds.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorResponse{Code: string(otpgate.AuthErrorCode(err))}
	status := http.StatusInternalServerError

	var (
		blocked   *otpgate.BlockedError
		exhausted *otpgate.MaxAttemptsError
		incorrect *otpgate.IncorrectCodeError
	)

	switch {
	case errors.Is(err, otpgate.ErrInfrastructure):
		status = http.StatusServiceUnavailable
		body.Msg = "service temporarily unavailable"
	case errors.Is(err, otpgate.ErrInvalidCredentials):
		status = http.StatusUnauthorized
		body.Msg = "invalid credentials"
	case errors.Is(err, otpgate.ErrLoginRateLimited), errors.Is(err, otpgate.ErrRefreshRateLimited):
		status = http.StatusTooManyRequests
		body.Msg = "too many attempts, try again later"
	case errors.As(err, &exhausted):
		status = http.StatusLocked
		body.Msg = err.Error()
		body.RemainingAttempts = intPtr(0)
		body.ShouldRetry = boolPtr(false)
		body.RetryAfterSeconds = exhausted.BlockDurationSeconds()
		w.Header().Set("Retry-After", strconv.Itoa(body.RetryAfterSeconds))
	case errors.As(err, &blocked):
		status = http.StatusLocked
		body.Msg = err.Error()
		body.RemainingAttempts = intPtr(0)
		body.ShouldRetry = boolPtr(false)
		body.RetryAfterSeconds = blocked.RetryAfterSeconds()
		w.Header().Set("Retry-After", strconv.Itoa(body.RetryAfterSeconds))
	case errors.As(err, &incorrect):
		status = http.StatusUnauthorized
		body.Msg = err.Error()
		body.RemainingAttempts = intPtr(incorrect.RemainingAttempts)
		body.ShouldRetry = boolPtr(true)
	case errors.Is(err, otpgate.ErrChallengeExpired):
		status = http.StatusUnauthorized
		body.Msg = "code expired or invalid, please log in again"
		body.RemainingAttempts = intPtr(0)
		body.ShouldRetry = boolPtr(false)
	case errors.Is(err, otpgate.ErrTokenExpired), errors.Is(err, otpgate.ErrInvalidToken):
		status = http.StatusUnauthorized
		body.Msg = "invalid or expired token"
		body.ShouldRetry = boolPtr(false)
	case errors.Is(err, otpgate.ErrRoleNotAssigned):
		status = http.StatusForbidden
		body.Msg = "no role assigned to this user"
	default:
		body.Msg = "internal server error"
	}

	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "auth request failed", "path", r.URL.Path, "code", body.Code, "err", err)
	}

	render.Status(r, status)
	render.JSON(w, r, body)
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, errorResponse{Msg: msg})
}
