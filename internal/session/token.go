package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// CookieName carries the signed session token.
	CookieName = "learnhub.session"

	tokenIssuer = "learnhub"
)

// ErrInvalidToken indicates the session token failed validation.
var ErrInvalidToken = errors.New("invalid session token")

// Claims identify the in-process session a cookie belongs to.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenSigner signs and verifies session cookies with HS256.
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenSigner(secret []byte, ttl time.Duration) (*TokenSigner, error) {
	if len(secret) < 32 {
		return nil, errors.New("session secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be greater than zero")
	}
	return &TokenSigner{secret: secret, ttl: ttl, now: time.Now}, nil
}

// Sign issues a token for the session id.
func (s *TokenSigner) Sign(sessionID string) (string, time.Time, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", time.Time{}, errors.New("session id is required")
	}
	now := s.now().UTC()
	expires := now.Add(s.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify returns the session id a valid token was issued for.
func (s *TokenSigner) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(5*time.Second),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
