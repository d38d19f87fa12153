package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/otpgate"
	"github.com/go-chi/render"
)

// Cookie names carrying the token pair.
const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
)

// Validator verifies access tokens. *otpgate.Engine implements it.
type Validator interface {
	ValidateAccess(ctx context.Context, accessToken string) (*otpgate.Claims, error)
}

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by [Guard].
func ClaimsFromContext(ctx context.Context) (*otpgate.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*otpgate.Claims)
	return claims, ok
}

// WithClaims stores claims in ctx the way [Guard] does.
func WithClaims(ctx context.Context, claims *otpgate.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// Guard rejects requests without a valid access token. The token is read from the
// access cookie, falling back to an Authorization bearer header.
func Guard(validator Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validator == nil {
				reject(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}

			token, ok := accessToken(r)
			if !ok {
				reject(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}

			claims, err := validator.ValidateAccess(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, otpgate.ErrTokenExpired):
					reject(w, r, http.StatusUnauthorized, "token expired")
				case errors.Is(err, otpgate.ErrInvalidToken):
					reject(w, r, http.StatusUnauthorized, "unauthorized")
				default:
					reject(w, r, http.StatusServiceUnavailable, "service unavailable")
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func accessToken(r *http.Request) (string, bool) {
	if c, err := r.Cookie(AccessCookie); err == nil && c.Value != "" {
		return c.Value, true
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

type errorBody struct {
	Msg string `json:"msg"`
}

func reject(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, errorBody{Msg: msg})
}
