package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/otpgate"
	"github.com/MrEthical07/otpgate/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// Authenticator is the slice of *otpgate.Engine the HTTP layer drives.
type Authenticator interface {
	middleware.Validator
	middleware.RoleChecker
	Login(ctx context.Context, identifier, password string, opts ...otpgate.LoginOption) (*otpgate.LoginChallenge, error)
	VerifyChallenge(ctx context.Context, tempToken, code string, remember bool) (*otpgate.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*otpgate.TokenPair, error)
	AccessTTL() time.Duration
	RefreshTTL(remember bool) time.Duration
}

// Options configures a Handler.
type Options struct {
	Cookies CookieConfig
	Logger  *slog.Logger
	// Health reports backend readiness for /healthz. Nil means always healthy.
	Health func(ctx context.Context) error
	// RequestTimeout bounds every request context. Zero disables the bound.
	RequestTimeout time.Duration
	// TrustProxyHeaders takes the client address from X-Forwarded-For, X-Real-IP or
	// True-Client-IP. Enable it only behind a proxy that overwrites those headers;
	// otherwise callers choose the address the per-IP login throttle counts against.
	TrustProxyHeaders bool
}

type Handler struct {
	auth    Authenticator
	cookies CookieConfig
	logger  *slog.Logger
	health  func(ctx context.Context) error
	timeout time.Duration
	proxied bool
}

func NewHandler(auth Authenticator, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		auth:    auth,
		cookies: opts.Cookies,
		logger:  logger,
		health:  opts.Health,
		timeout: opts.RequestTimeout,
		proxied: opts.TrustProxyHeaders,
	}
}

// Router serves /healthz and the authentication API under /api/v1.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	if h.proxied {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.Recoverer)
	r.Use(clientIP)
	if h.timeout > 0 {
		r.Use(chimw.Timeout(h.timeout))
	}

	r.Get("/healthz", h.getHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/login", h.postLogin)
		r.Post("/verify-2fa", h.postVerify)
		r.Post("/refresh", h.postRefresh)
		r.Post("/logout", h.postLogout)
		r.With(middleware.Guard(h.auth)).Get("/me", h.getMe)
	})
	return r
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	Remember   bool   `json:"remember"`
}

type loginResponse struct {
	OK                bool      `json:"ok"`
	Msg               string    `json:"msg"`
	TempToken         string    `json:"tempToken"`
	ExpiresAt         time.Time `json:"expiresAt"`
	RemainingAttempts int       `json:"remainingAttempts"`
}

func (h *Handler) postLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.badRequest(w, r, "unable to parse body")
		return
	}
	if strings.TrimSpace(req.Identifier) == "" || req.Password == "" {
		h.badRequest(w, r, "identifier and password are required")
		return
	}

	challenge, err := h.auth.Login(r.Context(), req.Identifier, req.Password, otpgate.WithRemember(req.Remember))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.JSON(w, r, loginResponse{
		OK:                true,
		Msg:               "verification code sent",
		TempToken:         challenge.TempToken,
		ExpiresAt:         challenge.ExpiresAt,
		RemainingAttempts: challenge.RemainingAttempts,
	})
}

type verifyRequest struct {
	Code      string `json:"code"`
	TempToken string `json:"tempToken"`
	Remember  bool   `json:"remember"`
}

type sessionResponse struct {
	OK               bool       `json:"ok"`
	Msg              string     `json:"msg"`
	Role             string     `json:"role"`
	AccessExpiresAt  time.Time  `json:"accessExpiresAt"`
	RefreshExpiresAt *time.Time `json:"refreshExpiresAt,omitempty"`
}

func (h *Handler) postVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.badRequest(w, r, "unable to parse body")
		return
	}
	if strings.TrimSpace(req.Code) == "" || req.TempToken == "" {
		h.badRequest(w, r, "code and tempToken are required")
		return
	}

	pair, err := h.auth.VerifyChallenge(r.Context(), req.TempToken, req.Code, req.Remember)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.cookies.setPair(w,
		pair.AccessToken, h.auth.AccessTTL(),
		pair.RefreshToken, h.auth.RefreshTTL(pair.Remember),
	)
	render.JSON(w, r, sessionResponse{
		OK:               true,
		Msg:              "authenticated",
		Role:             pair.Role,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: &pair.RefreshExpiresAt,
	})
}

func (h *Handler) postRefresh(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(middleware.RefreshCookie)
	if err != nil || c.Value == "" {
		h.writeError(w, r, otpgate.ErrInvalidToken)
		return
	}

	pair, err := h.auth.Refresh(r.Context(), c.Value)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.cookies.setPair(w, pair.AccessToken, h.auth.AccessTTL(), "", 0)
	render.JSON(w, r, sessionResponse{
		OK:              true,
		Msg:             "token refreshed",
		Role:            pair.Role,
		AccessExpiresAt: pair.AccessExpiresAt,
	})
}

type okResponse struct {
	OK  bool   `json:"ok"`
	Msg string `json:"msg"`
}

func (h *Handler) postLogout(w http.ResponseWriter, r *http.Request) {
	h.cookies.clear(w, middleware.AccessCookie)
	h.cookies.clear(w, middleware.RefreshCookie)
	render.JSON(w, r, okResponse{OK: true, Msg: "logged out"})
}

type meResponse struct {
	OK   bool   `json:"ok"`
	User meUser `json:"user"`
}

type meUser struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

func (h *Handler) getMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, r, otpgate.ErrInvalidToken)
		return
	}
	render.JSON(w, r, meResponse{OK: true, User: meUser{ID: claims.UserID, Role: claims.Role}})
}

func (h *Handler) getHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "health check failed", "err", err)
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, okResponse{OK: false, Msg: "unavailable"})
			return
		}
	}
	render.JSON(w, r, okResponse{OK: true, Msg: "ok"})
}

// clientIP copies the caller's address into the request context for throttling and
// audit. Without trusted proxy headers this is the TCP peer.
func clientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		next.ServeHTTP(w, r.WithContext(otpgate.WithClientIP(r.Context(), ip)))
	})
}
