// Package middleware adapts otpgate access-token validation to net/http.
//
// [Guard] reads the access token from the access_token cookie or an Authorization
// bearer header, validates it through the Engine and stores the claims in the request
// context. [Authorize] follows Guard and performs a fresh role membership lookup.
//
// Rejections are JSON bodies of the form {"msg": "..."}. The package never parses
// tokens or touches Redis itself.
package middleware
