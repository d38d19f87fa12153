// Package jwt mints and verifies the HS256 tokens used by the authentication flow:
// access tokens bound to a role, refresh tokens with a remember-me lifetime, and the
// short-lived token that binds a pending two-factor challenge to a user.
//
// Every token carries a typ claim, so a token of one kind never verifies as another,
// and expiry is reported separately from every other failure.
package jwt
