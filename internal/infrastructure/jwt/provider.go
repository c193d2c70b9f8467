package jwtinfra

import (
	"errors"
	"fmt"
	"time"

	"github.com/firetrack360/identity/internal/domain"
	"github.com/firetrack360/identity/internal/pkg/otp"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidOrExpiredToken is returned by Validate for any token that fails
// signature, structure, or expiry checks.
var ErrInvalidOrExpiredToken = errors.New("invalid or expired token")

// claims is the wire shape of a signed token.
type claims struct {
	Email  string `json:"email"`
	OTP    string `json:"otp,omitempty"`
	Role   string `json:"role,omitempty"`
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// Provider signs and verifies HS256 tokens with a process-wide secret.
// Validation is a pure function of the token and the key; no store is consulted.
type Provider struct {
	secret []byte
}

func NewProvider(secret string) (*Provider, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	return &Provider{secret: []byte(secret)}, nil
}

// Issue signs a token embedding a freshly generated 6-digit OTP alongside the
// given claims, expiring after ttl. The OTP can be recovered by validating
// the returned token.
func (p *Provider) Issue(c domain.TokenClaims, ttl time.Duration) (string, error) {
	code, err := otp.New()
	if err != nil {
		return "", err
	}
	c.OTP = code
	return p.Sign(c, ttl)
}

// Sign signs the claims as-is, without injecting an OTP. Used for session
// (access/refresh) tokens.
func (p *Provider) Sign(c domain.TokenClaims, ttl time.Duration) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email:  c.Email,
		OTP:    c.OTP,
		Role:   c.Role,
		UserID: c.UserID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})
	signed, err := tok.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate verifies signature and expiry and returns the embedded claims.
func (p *Provider) Validate(tokenStr string) (*domain.TokenClaims, error) {
	tok, err := jwt.ParseWithClaims(tokenStr, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOrExpiredToken, err)
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return nil, ErrInvalidOrExpiredToken
	}
	return &domain.TokenClaims{Email: c.Email, OTP: c.OTP, Role: c.Role, UserID: c.UserID}, nil
}

// Decode returns the embedded claims WITHOUT verifying signature or expiry.
// For non-authoritative introspection only; never use it for authorization.
func (p *Provider) Decode(tokenStr string) *domain.TokenClaims {
	var c claims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenStr, &c); err != nil {
		return nil
	}
	return &domain.TokenClaims{Email: c.Email, OTP: c.OTP, Role: c.Role, UserID: c.UserID}
}
