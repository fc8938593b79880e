package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken signals a token that is malformed, expired or carries bad claims.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrMissingSecret is returned when the service is built without a signing secret.
	ErrMissingSecret = errors.New("auth: jwt secret not configured")
)

const defaultTokenTTL = 24 * time.Hour

// Service issues and verifies HS256 bearer tokens.
type Service struct {
	jwtSecret []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewService creates a token service. A non-positive ttl falls back to 24h.
func NewService(jwtSecret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Service{
		jwtSecret: []byte(jwtSecret),
		ttl:       ttl,
		now:       time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// IssueToken signs a token for the claims.
func (s *Service) IssueToken(c Claims) (string, error) {
	if len(s.jwtSecret) == 0 {
		return "", ErrMissingSecret
	}
	if c.UserID == "" || c.OrganizationID == "" {
		return "", fmt.Errorf("auth: user and organization are required")
	}
	if !c.Role.Valid() {
		return "", fmt.Errorf("auth: invalid role %q", c.Role)
	}

	now := s.now()
	claims := jwt.MapClaims{
		"user_id":         c.UserID,
		"organization_id": c.OrganizationID,
		"role":            string(c.Role),
		"exp":             now.Add(s.ttl).Unix(),
		"iat":             now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates a token and returns its claims.
func (s *Service) VerifyToken(tokenString string) (Claims, error) {
	if len(s.jwtSecret) == 0 {
		return Claims{}, ErrMissingSecret
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Claims{}, ErrInvalidToken
	}

	userID, _ := mc["user_id"].(string)
	orgID, _ := mc["organization_id"].(string)
	role, _ := mc["role"].(string)
	if userID == "" || orgID == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if !Role(role).Valid() {
		return Claims{}, fmt.Errorf("%w: role %q", ErrInvalidToken, role)
	}

	return Claims{UserID: userID, OrganizationID: orgID, Role: Role(role)}, nil
}

type ctxKey struct{}

// WithClaims stores verified claims on the context.
func WithClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the claims stored by WithClaims.
func FromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(Claims)
	return c, ok
}
