package password

import (
	"errors"
	"strings"
)

// ErrUnknownHashFormat is returned by Verify for hashes neither backend recognizes.
var ErrUnknownHashFormat = errors.New("unknown password hash format")

// Algorithm names the backend used for new hashes.
type Algorithm string

const (
	AlgorithmBcrypt   Algorithm = "bcrypt"
	AlgorithmArgon2id Algorithm = "argon2id"
)

// Hasher hashes and verifies passwords. Verify reports a mismatch as (false, nil);
// errors are reserved for malformed hashes.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// Options selects the primary algorithm and its parameters.
type Options struct {
	Algorithm  Algorithm
	BcryptCost int
	Argon2     Argon2Config
}

// Auto hashes with the configured algorithm and verifies stored hashes of either
// format, so a deployment can switch algorithms without invalidating existing users.
type Auto struct {
	primary Algorithm
	bcrypt  *Bcrypt
	argon2  *Argon2
}

// New builds an Auto hasher. Zero-valued parameters fall back to package defaults.
func New(opts Options) (*Auto, error) {
	if opts.Algorithm == "" {
		opts.Algorithm = AlgorithmBcrypt
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = DefaultBcryptCost
	}
	if opts.Argon2 == (Argon2Config{}) {
		opts.Argon2 = DefaultArgon2Config()
	}

	b, err := NewBcrypt(opts.BcryptCost)
	if err != nil {
		return nil, err
	}
	a, err := NewArgon2(opts.Argon2)
	if err != nil {
		return nil, err
	}

	switch opts.Algorithm {
	case AlgorithmBcrypt, AlgorithmArgon2id:
	default:
		return nil, errors.New("unsupported password hash algorithm")
	}
	return &Auto{primary: opts.Algorithm, bcrypt: b, argon2: a}, nil
}

// Algorithm returns the algorithm used for new hashes.
func (h *Auto) Algorithm() Algorithm { return h.primary }

func (h *Auto) Hash(password string) (string, error) {
	if h.primary == AlgorithmArgon2id {
		return h.argon2.Hash(password)
	}
	return h.bcrypt.Hash(password)
}

func (h *Auto) Verify(password, encodedHash string) (bool, error) {
	switch {
	case isBcryptHash(encodedHash):
		return h.bcrypt.Verify(password, encodedHash)
	case strings.HasPrefix(encodedHash, "$"+argon2ID+"$"):
		return h.argon2.Verify(password, encodedHash)
	default:
		return false, ErrUnknownHashFormat
	}
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
