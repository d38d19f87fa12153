package credential

import (
	"context"
	"errors"
)

var (
	// ErrInvalidCredentials is the single failure reported for an unknown identifier
	// or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned by Store lookups with no matching row.
	ErrUserNotFound = errors.New("user not found")
	// ErrStoreUnavailable wraps backend failures of a Store or RoleStore.
	ErrStoreUnavailable = errors.New("credential store unavailable")
)

// User is the stored credential record.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
}

// Store looks up users by login identifier. Implementations return ErrUserNotFound
// when no row matches.
type Store interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// RoleStore answers membership questions for a single role.
type RoleStore interface {
	HasRole(ctx context.Context, userID, role string) (bool, error)
}
