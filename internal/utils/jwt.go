package utils

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMissingSecret = errors.New("jwt secret is required")
	ErrInvalidToken  = errors.New("invalid or expired session")
)

const (
	DefaultTokenTTL    = time.Hour
	DefaultTokenLeeway = 2 * time.Minute
	DefaultIssuer      = "tasksentry"
)

// Claims is the signed payload of an access token.
type Claims struct {
	UserID      uint   `json:"user_id"`
	DisplayName string `json:"name"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

// Session is the identity recovered from a valid access token.
// Role is a routing hint only; authorization re-reads the stored user.
type Session struct {
	UserID      uint      `json:"user_id"`
	DisplayName string    `json:"name"`
	Role        string    `json:"role"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// JWTOptions configures a TokenManager.
type JWTOptions struct {
	Secret string
	TTL    time.Duration
	Leeway time.Duration
	Issuer string
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// TokenManager issues and validates HS256 access tokens.
// It is immutable after construction and safe for concurrent use.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	leeway time.Duration
	issuer string
	now    func() time.Time
}

// NewTokenManager builds a TokenManager. An empty secret is a configuration
// fault and returns ErrMissingSecret.
func NewTokenManager(opts JWTOptions) (*TokenManager, error) {
	if opts.Secret == "" {
		return nil, ErrMissingSecret
	}
	m := &TokenManager{
		secret: []byte(opts.Secret),
		ttl:    opts.TTL,
		leeway: opts.Leeway,
		issuer: opts.Issuer,
		now:    opts.Now,
	}
	if m.ttl <= 0 {
		m.ttl = DefaultTokenTTL
	}
	if m.leeway < 0 {
		m.leeway = 0
	}
	if m.issuer == "" {
		m.issuer = DefaultIssuer
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

// TTL returns the lifetime of issued tokens.
func (m *TokenManager) TTL() time.Duration { return m.ttl }

// Issue signs a new access token for the principal.
func (m *TokenManager) Issue(userID uint, displayName, role string) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)
	claims := Claims{
		UserID:      userID,
		DisplayName: displayName,
		Role:        role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.issuer,
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Validate parses and verifies a token. Every failure, whatever its cause,
// is reported as ErrInvalidToken.
func (m *TokenManager) Validate(tokenString string) (*Session, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(m.issuer),
		jwt.WithLeeway(m.leeway),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == 0 || claims.Role == "" || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}

	return &Session{
		UserID:      claims.UserID,
		DisplayName: claims.DisplayName,
		Role:        claims.Role,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}
