package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthProvider validates a bearer token and returns the verified identity
// claims. Implementations must not trust any identity the caller supplies
// outside the token itself.
type AuthProvider interface {
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// Claims is the verified identity carried by a token. Address is the party
// address the caller proved control of; every ledger operation compares it
// against the stream's sender and recipient.
type Claims struct {
	Address string
	Issuer  string
	jwt.RegisteredClaims
}

type JWTAuthProvider struct {
	secret []byte
	issuer string
}

func NewJWTAuthProvider(secret, issuer string) (*JWTAuthProvider, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return &JWTAuthProvider{secret: []byte(secret), issuer: issuer}, nil
}

func (p *JWTAuthProvider) ValidateToken(_ context.Context, token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	registered, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if registered.Subject == "" {
		return nil, fmt.Errorf("token is missing a subject address")
	}
	if p.issuer != "" && registered.Issuer != p.issuer {
		return nil, fmt.Errorf("token issuer mismatch")
	}

	return &Claims{
		Address:          registered.Subject,
		Issuer:           registered.Issuer,
		RegisteredClaims: *registered,
	}, nil
}

// IssueToken mints a token for the given party address. Used by tests and
// by operators bootstrapping credentials; the service itself only verifies.
func (p *JWTAuthProvider) IssueToken(address string, ttl time.Duration) (string, error) {
	if address == "" {
		return "", fmt.Errorf("address is required")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   address,
		Issuer:    p.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString(p.secret)
}
