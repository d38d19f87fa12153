// Package twofactor implements the one-time-code challenge used as the second login
// factor.
//
// A challenge lives in Redis as three keys per user: the code, the remaining attempts
// counter (both sharing the code TTL) and an independent lockout marker. Issue,
// Verify, Revoke and Cleanup each run as one atomic Redis operation.
//
// # What this package must NOT do
//
//   - Deliver codes. Callers hand the returned code to a notifier.
//   - Own the Redis client lifecycle.
package twofactor
