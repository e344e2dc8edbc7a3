// Package jwt validates access tokens issued by the identity provider.
// Issuance lives with the provider; this package only verifies.
package jwt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when the token is invalid.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
	// ErrMissingSubject is returned when the token carries no subject.
	ErrMissingSubject = errors.New("token has no subject")
	// ErrMissingEmail is returned when the token carries no email.
	ErrMissingEmail = errors.New("token has no email")
)

// Claims represents the identity claims the engine relies on.
// Subject is the provider's stable user identifier.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`

	jwt.RegisteredClaims
}

// Identity is the authenticated principal extracted from a token.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

// VerifierConfig holds configuration for token verification.
type VerifierConfig struct {
	Secret   string
	Issuer   string // optional
	Audience string // optional
}

// Verifier checks HMAC-signed access tokens.
type Verifier struct {
	config VerifierConfig
	parser *jwt.Parser
}

// NewVerifier creates a new token verifier.
func NewVerifier(config VerifierConfig) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}
	return &Verifier{config: config, parser: jwt.NewParser(opts...)}
}

// Verify validates the token and returns the identity it carries.
func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(v.config.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	email := strings.ToLower(strings.TrimSpace(claims.Email))
	if email == "" {
		return nil, ErrMissingEmail
	}

	return &Identity{
		Subject: claims.Subject,
		Email:   email,
		Name:    claims.Name,
	}, nil
}

// ExtractBearer returns the token of an "Authorization: Bearer <token>" header value.
func ExtractBearer(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
