package httpapi

import (
	"net/http"
	"time"

	"github.com/MrEthical07/otpgate/middleware"
)

// CookieConfig controls how the token pair is bound to the browser.
type CookieConfig struct {
	Secure bool
	Domain string
	Path   string
}

func (c CookieConfig) set(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     c.path(),
		Domain:   c.Domain,
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (c CookieConfig) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     c.path(),
		Domain:   c.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (c CookieConfig) setPair(w http.ResponseWriter, access string, accessTTL time.Duration, refresh string, refreshTTL time.Duration) {
	c.set(w, middleware.AccessCookie, access, accessTTL)
	if refresh != "" {
		c.set(w, middleware.RefreshCookie, refresh, refreshTTL)
	}
}

func (c CookieConfig) path() string {
	if c.Path == "" {
		return "/"
	}
	return c.Path
}
