// Package otpgate authenticates users in two legs: a password check that emails a
// one-time code, and a code check that returns an access token and a refresh token
// bound to the user's role.
//
// Engine methods are safe to call from multiple goroutines after [Builder.Build].
//
// # Architecture boundaries
//
// otpgate is the public surface. It exposes [Engine], [Builder], [Config] and value
// types. Credential lookup lives in credential, code issuance and lockout in twofactor,
// token minting in jwt, and Redis key layouts under internal/.
//
// # What this package must NOT do
//
//   - Own the Redis client or database pool. Callers inject them and close them.
//   - Tell a caller of the first leg why it failed. Every non-infrastructure failure
//     there is [ErrInvalidCredentials]; the cause goes to audit events and logs.
//   - Retry backend calls. Infrastructure failures wrap [ErrInfrastructure] and return.
package otpgate
