package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultIssuer = "sameieportalen"

var errMissingSecret = errors.New("auth secret is not configured")

// Claims carries the session identity. Roles are never trusted from the token;
// they are resolved from the roster on every check.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Sessions signs and verifies HS256 session tokens whose subject is an email.
type Sessions struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewSessions returns a Sessions for secret. An empty secret disables tokens.
func NewSessions(secret string) *Sessions {
	return &Sessions{
		secret: []byte(strings.TrimSpace(secret)),
		issuer: defaultIssuer,
		now:    time.Now,
	}
}

// Enabled reports whether a signing secret is configured.
func (s *Sessions) Enabled() bool { return s != nil && len(s.secret) > 0 }

// GenerateToken signs a session token for email.
func (s *Sessions) GenerateToken(email string, ttl time.Duration) (string, error) {
	email = NormalizeIdentity(email)
	if email == "" || !strings.Contains(email, "@") {
		return "", fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be greater than zero")
	}
	if !s.Enabled() {
		return "", errMissingSecret
	}

	now := s.now().UTC()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseAndValidate verifies the token signature and required claims.
func (s *Sessions) ParseAndValidate(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	if !s.Enabled() {
		return nil, errMissingSecret
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := s.validateClaims(claims); err != nil {
		return nil, ErrInvalidToken
	}
	claims.Email = NormalizeIdentity(claims.Subject)
	return claims, nil
}

func (s *Sessions) validateClaims(claims *Claims) error {
	if claims.Issuer != s.issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if !strings.Contains(claims.Subject, "@") {
		return errors.New("subject is not an email")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := s.now().UTC()
	if now.After(claims.ExpiresAt.Time) {
		return errors.New("token expired")
	}
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return errors.New("token issued in the future")
	}
	return nil
}
