package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argon2ID      = "argon2id"
	minMemoryKB   = 8 * 1024
	minSaltLength = 16
	minKeyLength  = 16
)

// Argon2Config holds Argon2id cost parameters.
type Argon2Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Config returns 64 MiB, 3 passes, 2 lanes, 16-byte salt, 32-byte key.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{Memory: 64 * 1024, Time: 3, Parallelism: 2, SaltLength: 16, KeyLength: 32}
}

func (c Argon2Config) validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return errors.New("argon2 memory must be >= 8192 KB")
	case c.Time < 1:
		return errors.New("argon2 time must be >= 1")
	case c.Parallelism < 1:
		return errors.New("argon2 parallelism must be >= 1")
	case c.SaltLength < minSaltLength:
		return errors.New("argon2 salt length must be >= 16")
	case c.KeyLength < minKeyLength:
		return errors.New("argon2 key length must be >= 16")
	}
	return nil
}

// Argon2 produces PHC-encoded Argon2id hashes:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
type Argon2 struct {
	config Argon2Config
}

func NewArgon2(cfg Argon2Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2{config: cfg}, nil
}

func (a *Argon2) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, a.config.Time, a.config.Memory, a.config.Parallelism, a.config.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2ID, argon2.Version,
		a.config.Memory, a.config.Time, a.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the key with the parameters embedded in encodedHash and compares in
// constant time.
func (a *Argon2) Verify(password, encodedHash string) (bool, error) {
	p, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(password), p.salt, p.cfg.Time, p.cfg.Memory, p.cfg.Parallelism, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(key, p.key) == 1, nil
}

// NeedsRehash reports whether encodedHash was produced with weaker parameters than the
// current configuration.
func (a *Argon2) NeedsRehash(encodedHash string) (bool, error) {
	p, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	return a.config.Memory > p.cfg.Memory ||
		a.config.Time > p.cfg.Time ||
		a.config.Parallelism > p.cfg.Parallelism ||
		a.config.KeyLength != uint32(len(p.key)), nil
}

type phc struct {
	cfg  Argon2Config
	salt []byte
	key  []byte
}

func decodePHC(encoded string) (*phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != argon2ID {
		return nil, errors.New("invalid argon2id PHC string")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	var out phc
	for _, kv := range strings.Split(parts[3], ",") {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, errors.New("invalid argon2 parameter")
		}
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid argon2 parameter %q", name)
		}
		switch name {
		case "m":
			out.cfg.Memory = uint32(v)
		case "t":
			out.cfg.Time = uint32(v)
		case "p":
			if v > 255 {
				return nil, errors.New("invalid argon2 parallelism")
			}
			out.cfg.Parallelism = uint8(v)
		default:
			return nil, fmt.Errorf("unsupported argon2 parameter %q", name)
		}
	}
	if out.cfg.Memory < minMemoryKB || out.cfg.Time < 1 || out.cfg.Parallelism < 1 {
		return nil, errors.New("missing or weak argon2 parameters")
	}

	var err error
	if out.salt, err = decodeB64(parts[4]); err != nil || len(out.salt) < minSaltLength {
		return nil, errors.New("invalid argon2 salt")
	}
	if out.key, err = decodeB64(parts[5]); err != nil || len(out.key) == 0 {
		return nil, errors.New("invalid argon2 hash")
	}
	return &out, nil
}

// decodeB64 accepts padded and unpadded standard base64.
func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
