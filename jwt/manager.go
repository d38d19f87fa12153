package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenInvalid covers bad signatures, unexpected algorithms, malformed input and
	// tokens of the wrong kind.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is returned for a well-signed token past its expiry.
	ErrTokenExpired = errors.New("token expired")
)

// TokenType distinguishes the three kinds of token minted by a Manager.
type TokenType string

const (
	// TypeAccess marks short-lived bearer tokens carrying the resolved role.
	TypeAccess TokenType = "access"
	// TypeRefresh marks long-lived tokens exchanged for new access tokens.
	TypeRefresh TokenType = "refresh"
	// TypeTemp marks the token that binds a pending two-factor challenge to a user.
	TypeTemp TokenType = "2fa"
)

// Config defines signing secrets and lifetimes.
//
// Access and temp tokens are signed with AccessSecret; refresh tokens with
// RefreshSecret. The two secrets must differ.
type Config struct {
	AccessSecret       []byte
	RefreshSecret      []byte
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	RefreshRememberTTL time.Duration
	Issuer             string
	Leeway             time.Duration
}

// Claims is the verified content of a token.
type Claims struct {
	UserID    string
	Role      string
	Remember  bool
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type tokenClaims struct {
	UID      string    `json:"uid"`
	Role     string    `json:"role,omitempty"`
	Remember bool      `json:"rem,omitempty"`
	Type     TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// Manager mints and verifies HS256 tokens. It holds no mutable state after
// construction and is safe for concurrent use.
type Manager struct {
	config Config
	now    func() time.Time
}

// NewManager describes the newmanager operation and its observable behavior.
//
// NewManager returns an error when a secret is missing, both secrets are equal, a TTL is
// not positive or the leeway is outside [0, 2m].
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("access and refresh secrets are required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 || cfg.RefreshRememberTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Manager{config: cfg, now: time.Now}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (j *Manager) AccessTTL() time.Duration { return j.config.AccessTTL }

// RefreshTTLFor returns the refresh-token lifetime for the remember flag.
func (j *Manager) RefreshTTLFor(remember bool) time.Duration {
	if remember {
		return j.config.RefreshRememberTTL
	}
	return j.config.RefreshTTL
}

// CreateAccess describes the createaccess operation and its observable behavior.
//
// CreateAccess signs a token with the access secret carrying userID and role, valid for
// AccessTTL. It returns the token and its expiry.
func (j *Manager) CreateAccess(userID, role string) (string, time.Time, error) {
	return j.sign(tokenClaims{UID: userID, Role: role, Type: TypeAccess}, j.config.AccessSecret, j.config.AccessTTL)
}

// CreateRefresh signs a token with the refresh secret. remember selects the extended
// lifetime.
func (j *Manager) CreateRefresh(userID string, remember bool) (string, time.Time, error) {
	return j.sign(tokenClaims{UID: userID, Remember: remember, Type: TypeRefresh}, j.config.RefreshSecret, j.RefreshTTLFor(remember))
}

// CreateTemp signs the challenge-binding token. Its lifetime should match the
// challenge TTL.
func (j *Manager) CreateTemp(userID string, remember bool, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		return "", time.Time{}, errors.New("invalid temp token TTL")
	}
	return j.sign(tokenClaims{UID: userID, Remember: remember, Type: TypeTemp}, j.config.AccessSecret, ttl)
}

// ParseAccess verifies an access token.
func (j *Manager) ParseAccess(token string) (*Claims, error) {
	return j.parse(token, j.config.AccessSecret, TypeAccess)
}

// ParseRefresh verifies a refresh token.
func (j *Manager) ParseRefresh(token string) (*Claims, error) {
	return j.parse(token, j.config.RefreshSecret, TypeRefresh)
}

// ParseTemp verifies a challenge-binding token.
func (j *Manager) ParseTemp(token string) (*Claims, error) {
	return j.parse(token, j.config.AccessSecret, TypeTemp)
}

func (j *Manager) sign(claims tokenClaims, secret []byte, ttl time.Duration) (string, time.Time, error) {
	if claims.UID == "" {
		return "", time.Time{}, errors.New("user id required")
	}
	now := j.now()
	exp := now.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    j.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", claims.Type, err)
	}
	return signed, exp, nil
}

func (j *Manager) parse(token string, secret []byte, want TokenType) (*Claims, error) {
	if token == "" {
		return nil, ErrTokenInvalid
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, &tokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Type != want {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrTokenInvalid, want, claims.Type)
	}
	if claims.UID == "" {
		return nil, fmt.Errorf("%w: missing uid", ErrTokenInvalid)
	}

	out := &Claims{
		UserID:   claims.UID,
		Role:     claims.Role,
		Remember: claims.Remember,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
