package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"folio.org/internal/workflow"
)

const (
	issuer    = "folio"
	minSecret = 16
	clockSkew = 5 * time.Second
)

var (
	// ErrInvalidToken indicates the token failed validation.
	ErrInvalidToken = errors.New("invalid token")

	errMissingSecret = errors.New("auth secret is not configured")
)

// Claims carries the authenticated actor: sub is the actor id, role its role.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Actor converts validated claims into a workflow actor.
func (c *Claims) Actor() workflow.Actor {
	return workflow.Actor{ID: c.Subject, Role: workflow.Role(c.Role)}
}

// Signer issues and verifies HS256 bearer tokens.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner builds a signer over a shared secret.
func NewSigner(secret string) (*Signer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errMissingSecret
	}
	if len(secret) < minSecret {
		return nil, fmt.Errorf("auth secret must be at least %d bytes", minSecret)
	}
	return &Signer{secret: []byte(secret), now: func() time.Time { return time.Now().UTC() }}, nil
}

// GenerateToken signs a JWT for the actor.
func (s *Signer) GenerateToken(actor workflow.Actor, ttl time.Duration) (string, time.Time, error) {
	actorID := strings.TrimSpace(actor.ID)
	if actorID == "" {
		return "", time.Time{}, errors.New("actor id is required")
	}
	role, ok := workflow.ParseRole(string(actor.Role))
	if !ok {
		return "", time.Time{}, fmt.Errorf("unknown role %q", actor.Role)
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("ttl must be greater than zero")
	}

	now := s.now()
	expires := now.Add(ttl)
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   actorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// ParseAndValidate verifies the token signature and required claims.
func (s *Signer) ParseAndValidate(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
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
	claims.Role = strings.ToLower(strings.TrimSpace(claims.Role))
	return claims, nil
}

func (s *Signer) validateClaims(claims *Claims) error {
	if claims.Issuer != issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if _, ok := workflow.ParseRole(claims.Role); !ok {
		return fmt.Errorf("unknown role %q", claims.Role)
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := s.now()
	if now.After(claims.ExpiresAt.Time) {
		return errors.New("token expired")
	}
	if claims.NotBefore != nil && now.Before(claims.NotBefore.Time) {
		return errors.New("token not yet valid")
	}
	if claims.IssuedAt.Time.After(now.Add(clockSkew)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}
