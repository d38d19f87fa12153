package credential

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"

	"github.com/MrEthical07/otpgate/password"
	"golang.org/x/sync/semaphore"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// IsEmail reports whether identifier is looked up by email rather than username.
func IsEmail(identifier string) bool {
	return emailPattern.MatchString(identifier)
}

// Verifier checks an identifier/password pair against a Store.
type Verifier struct {
	users     Store
	hasher    password.Hasher
	dummyHash string
	hashSlots *semaphore.Weighted
}

// NewVerifier describes the newverifier operation and its observable behavior.
//
// maxConcurrentHashes bounds how many hash comparisons run at once. The dummy hash
// used for unknown users is produced here with hasher, so both branches of Verify pay
// the same cost.
func NewVerifier(users Store, hasher password.Hasher, maxConcurrentHashes int) (*Verifier, error) {
	if users == nil || hasher == nil {
		return nil, errors.New("credential store and hasher are required")
	}
	if maxConcurrentHashes < 1 {
		return nil, errors.New("max concurrent hashes must be >= 1")
	}

	seed := make([]byte, 16)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	dummy, err := hasher.Hash(hex.EncodeToString(seed))
	if err != nil {
		return nil, fmt.Errorf("build dummy hash: %w", err)
	}

	return &Verifier{
		users:     users,
		hasher:    hasher,
		dummyHash: dummy,
		hashSlots: semaphore.NewWeighted(int64(maxConcurrentHashes)),
	}, nil
}

// Verify describes the verify operation and its observable behavior.
//
// Verify returns the user when password matches. Unknown identifiers and wrong
// passwords both return ErrInvalidCredentials; store failures and a cancelled ctx
// while waiting for a hash slot return errors wrapping ErrStoreUnavailable. Verify has
// no side effects.
func (v *Verifier) Verify(ctx context.Context, identifier, secret string) (*User, error) {
	var (
		user *User
		err  error
	)
	if IsEmail(identifier) {
		user, err = v.users.FindByEmail(ctx, identifier)
	} else {
		user, err = v.users.FindByUsername(ctx, identifier)
	}

	switch {
	case errors.Is(err, ErrUserNotFound) || (err == nil && user == nil):
		if _, cmpErr := v.compare(ctx, secret, v.dummyHash); cmpErr != nil {
			return nil, cmpErr
		}
		return nil, ErrInvalidCredentials
	case err != nil:
		if errors.Is(err, ErrStoreUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ok, err := v.compare(ctx, secret, user.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// compare treats a malformed stored hash as a mismatch.
func (v *Verifier) compare(ctx context.Context, secret, hash string) (bool, error) {
	if err := v.hashSlots.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer v.hashSlots.Release(1)

	ok, err := v.hasher.Verify(secret, hash)
	if err != nil {
		return false, nil
	}
	return ok, nil
}
