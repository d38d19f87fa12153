package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/otpgate"
	"github.com/MrEthical07/otpgate/credential"
	"github.com/MrEthical07/otpgate/middleware"
	"github.com/MrEthical07/otpgate/notify"
	"github.com/MrEthical07/otpgate/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	server *httptest.Server
	mr     *miniredis.Miniredis
	store  *credential.MemoryStore

	mu    sync.Mutex
	codes map[string]string
}

func (h *harness) code(email string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.codes[email]
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hasher, err := password.NewBcrypt(4)
	require.NoError(t, err)
	hash, err := hasher.Hash("secret1")
	require.NoError(t, err)

	store := credential.NewMemoryStore()
	store.Put(credential.User{ID: "u-carla", Username: "carla01", Email: "carla@example.com", PasswordHash: hash}, "finca")
	store.Put(credential.User{ID: "u-none", Username: "norole01", Email: "norole@example.com", PasswordHash: hash})

	h := &harness{mr: mr, store: store, codes: make(map[string]string)}

	cfg := otpgate.DefaultConfig()
	cfg.JWT.AccessSecret = "http-access-secret"
	cfg.JWT.RefreshSecret = "http-refresh-secret"
	cfg.Password.BcryptCost = 4
	cfg.Audit.Enabled = false

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := otpgate.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithCodeSender(notify.SenderFunc(func(_ context.Context, email, code string) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.codes[email] = code
			return nil
		})).
		WithLogger(logger).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	handler := NewHandler(engine, Options{
		Logger: logger,
		Health: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})
	h.server = httptest.NewServer(handler.Router())
	t.Cleanup(h.server.Close)
	return h
}

func postJSON(t *testing.T, url string, body any, cookies ...*http.Cookie) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func cookieNamed(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (h *harness) login(t *testing.T, identifier, email string) (string, string) {
	t.Helper()
	resp, body := postJSON(t, h.server.URL+"/api/v1/login", map[string]any{
		"identifier": identifier,
		"password":   "secret1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, body["ok"])
	assert.EqualValues(t, 3, body["remainingAttempts"])

	tempToken, _ := body["tempToken"].(string)
	require.NotEmpty(t, tempToken)
	code := h.code(email)
	require.Len(t, code, 6)
	return tempToken, code
}

func wrongCode(code string) string {
	b := []byte(code)
	b[0] = '0' + (b[0]-'0'+1)%10
	return string(b)
}

func TestLoginVerifyMeRefreshLogout(t *testing.T) {
	h := newHarness(t)
	tempToken, code := h.login(t, "carla01", "carla@example.com")

	resp, body := postJSON(t, h.server.URL+"/api/v1/verify-2fa", map[string]any{
		"code":      code,
		"tempToken": tempToken,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "finca", body["role"])

	access := cookieNamed(resp, middleware.AccessCookie)
	refresh := cookieNamed(resp, middleware.RefreshCookie)
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	assert.True(t, access.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, access.SameSite)
	assert.Equal(t, int((15 * time.Minute).Seconds()), access.MaxAge)
	assert.Equal(t, int(time.Hour.Seconds()), refresh.MaxAge)

	req, err := http.NewRequest(http.MethodGet, h.server.URL+"/api/v1/me", nil)
	require.NoError(t, err)
	req.AddCookie(access)
	meResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer meResp.Body.Close()
	require.Equal(t, http.StatusOK, meResp.StatusCode)
	var me struct {
		User struct {
			ID   string `json:"id"`
			Role string `json:"role"`
		} `json:"user"`
	}
	require.NoError(t, json.NewDecoder(meResp.Body).Decode(&me))
	assert.Equal(t, "u-carla", me.User.ID)
	assert.Equal(t, "finca", me.User.Role)

	resp, body = postJSON(t, h.server.URL+"/api/v1/refresh", map[string]any{}, refresh)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	require.NotNil(t, cookieNamed(resp, middleware.AccessCookie))
	assert.Nil(t, cookieNamed(resp, middleware.RefreshCookie))

	resp, _ = postJSON(t, h.server.URL+"/api/v1/logout", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cleared := cookieNamed(resp, middleware.AccessCookie)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)
}

func TestRememberExtendsRefreshCookie(t *testing.T) {
	h := newHarness(t)
	tempToken, code := h.login(t, "carla01", "carla@example.com")

	resp, _ := postJSON(t, h.server.URL+"/api/v1/verify-2fa", map[string]any{
		"code":      code,
		"tempToken": tempToken,
		"remember":  true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	refresh := cookieNamed(resp, middleware.RefreshCookie)
	require.NotNil(t, refresh)
	assert.Equal(t, int((7 * 24 * time.Hour).Seconds()), refresh.MaxAge)
}

func TestLoginFailuresAreUniform(t *testing.T) {
	h := newHarness(t)

	for _, body := range []map[string]any{
		{"identifier": "carla01", "password": "nope"},
		{"identifier": "ghost", "password": "secret1"},
	} {
		resp, out := postJSON(t, h.server.URL+"/api/v1/login", body)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "invalid credentials", out["msg"])
		assert.Equal(t, string(otpgate.CodeInvalidCredentials), out["code"])
	}

	resp, _ := postJSON(t, h.server.URL+"/api/v1/login", map[string]any{"identifier": "carla01"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVerifyAttemptsAndLockout(t *testing.T) {
	h := newHarness(t)
	tempToken, code := h.login(t, "carla01", "carla@example.com")
	bad := map[string]any{"code": wrongCode(code), "tempToken": tempToken}

	for _, remaining := range []float64{2, 1} {
		resp, body := postJSON(t, h.server.URL+"/api/v1/verify-2fa", bad)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, remaining, body["remainingAttempts"])
		assert.Equal(t, true, body["shouldRetry"])
	}

	resp, body := postJSON(t, h.server.URL+"/api/v1/verify-2fa", bad)
	require.Equal(t, http.StatusLocked, resp.StatusCode)
	assert.Equal(t, false, body["shouldRetry"])
	assert.Equal(t, "1800", resp.Header.Get("Retry-After"))

	resp, body = postJSON(t, h.server.URL+"/api/v1/verify-2fa", map[string]any{"code": code, "tempToken": tempToken})
	require.Equal(t, http.StatusLocked, resp.StatusCode)
	assert.Equal(t, string(otpgate.CodeUserBlocked), body["code"])
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestVerifyExpiredAndInvalidToken(t *testing.T) {
	h := newHarness(t)
	tempToken, code := h.login(t, "carla01", "carla@example.com")

	resp, body := postJSON(t, h.server.URL+"/api/v1/verify-2fa", map[string]any{"code": code, "tempToken": "garbage"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, string(otpgate.CodeInvalidToken), body["code"])

	h.mr.FastForward(11 * time.Minute)
	resp, body = postJSON(t, h.server.URL+"/api/v1/verify-2fa", map[string]any{"code": code, "tempToken": tempToken})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, string(otpgate.CodeChallengeExpired), body["code"])
	assert.Equal(t, false, body["shouldRetry"])
}

func TestVerifyRoleNotAssigned(t *testing.T) {
	h := newHarness(t)
	tempToken, code := h.login(t, "norole01", "norole@example.com")

	resp, body := postJSON(t, h.server.URL+"/api/v1/verify-2fa", map[string]any{"code": code, "tempToken": tempToken})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, string(otpgate.CodeRoleNotAssigned), body["code"])
	assert.Nil(t, cookieNamed(resp, middleware.AccessCookie))
}

func TestRefreshWithoutCookie(t *testing.T) {
	h := newHarness(t)
	resp, _ := postJSON(t, h.server.URL+"/api/v1/refresh", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMeRequiresToken(t *testing.T) {
	h := newHarness(t)
	resp, err := http.Get(h.server.URL + "/api/v1/me")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	h.mr.Close()
	resp, err = http.Get(h.server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestBackendOutageIs503(t *testing.T) {
	h := newHarness(t)
	h.mr.Close()

	resp, body := postJSON(t, h.server.URL+"/api/v1/login", map[string]any{"identifier": "carla01", "password": "secret1"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, string(otpgate.CodeUnavailable), body["code"])
}

func TestWriteErrorDeliveryFailure(t *testing.T) {
	h := NewHandler(nil, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/login", nil)

	h.writeError(rec, req, errors.Join(otpgate.ErrInfrastructure, otpgate.ErrCodeDelivery))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), string(otpgate.CodeDeliveryFailed))
}

// peerRecorder captures the client address the engine would throttle on.
type peerRecorder struct {
	Authenticator
	seen []string
}

func (p *peerRecorder) Login(ctx context.Context, _, _ string, _ ...otpgate.LoginOption) (*otpgate.LoginChallenge, error) {
	p.seen = append(p.seen, otpgate.ClientIPFromContext(ctx))
	return &otpgate.LoginChallenge{TempToken: "temp", ExpiresAt: time.Now().Add(time.Minute), RemainingAttempts: 3}, nil
}

func TestForwardedHeadersIgnoredByDefault(t *testing.T) {
	tests := []struct {
		name    string
		trusted bool
		want    string
	}{
		{name: "untrusted", trusted: false, want: "198.51.100.7"},
		{name: "trusted proxy", trusted: true, want: "203.0.113.99"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &peerRecorder{}
			router := NewHandler(auth, Options{
				Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
				TrustProxyHeaders: tt.trusted,
			}).Router()

			req := httptest.NewRequest(http.MethodPost, "/api/v1/login",
				bytes.NewBufferString(`{"identifier":"carla01","password":"secret1"}`))
			req.Header.Set("Content-Type", "application/json")
			req.RemoteAddr = "198.51.100.7:5555"
			req.Header.Set("X-Forwarded-For", "203.0.113.99")
			req.Header.Set("X-Real-IP", "203.0.113.99")
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, []string{tt.want}, auth.seen)
		})
	}
}
