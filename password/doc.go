// Package password hashes and verifies passwords with bcrypt or Argon2id.
//
// [Auto] hashes with the configured algorithm and verifies either format by its
// prefix ($2a$/$2b$/$2y$ for bcrypt, $argon2id$ for Argon2id).
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Bound hashing concurrency. That belongs to the credential verifier.
//   - Log plaintext passwords or hash parameters.
package password
