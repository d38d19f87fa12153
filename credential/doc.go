// Package credential verifies login identifiers and passwords and resolves the role a
// user holds.
//
// # Architecture boundaries
//
// [Store] and [RoleStore] are the only persistence contracts. [PostgresStore] and
// [MemoryStore] implement both. [Verifier] never reveals whether an identifier exists:
// unknown users still pay for a hash comparison and fail with the same
// [ErrInvalidCredentials] as a wrong password.
//
// Role membership is one table per role. [RoleResolver] probes them in configured
// order and the first hit wins.
package credential
