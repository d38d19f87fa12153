// Package httpapi exposes the two-leg login over HTTP with chi.
//
// Routes:
//
//	POST /api/v1/login       {identifier, password, remember} -> temp token
//	POST /api/v1/verify-2fa  {code, tempToken, remember}      -> access_token and refresh_token cookies
//	POST /api/v1/refresh     refresh_token cookie             -> new access_token cookie
//	POST /api/v1/logout      clears both cookies
//	GET  /api/v1/me          guarded, returns {id, role}
//	GET  /healthz
//
// Failed requests return {ok, msg, code} plus remainingAttempts and shouldRetry on the
// second leg. Lockouts answer 423 with Retry-After.
package httpapi
