package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-long-enough-for-hs256"

func sign(t *testing.T, claims Claims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims() Claims {
	now := time.Now()
	return Claims{
		Email: "Alice@Example.com",
		Name:  "Alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "idp|123",
			Issuer:    "https://id.example.com",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
}

func TestVerifier_Verify(t *testing.T) {
	v := NewVerifier(VerifierConfig{Secret: testSecret, Issuer: "https://id.example.com"})

	identity, err := v.Verify(sign(t, validClaims(), testSecret))

	require.NoError(t, err)
	assert.Equal(t, "idp|123", identity.Subject)
	assert.Equal(t, "alice@example.com", identity.Email)
	assert.Equal(t, "Alice", identity.Name)
}

func TestVerifier_Rejects(t *testing.T) {
	v := NewVerifier(VerifierConfig{Secret: testSecret, Issuer: "https://id.example.com"})

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	noSubject := validClaims()
	noSubject.Subject = ""

	noEmail := validClaims()
	noEmail.Email = ""

	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "https://evil.example.com"

	noExpiry := validClaims()
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"expired", sign(t, expired, testSecret), ErrExpiredToken},
		{"wrong secret", sign(t, validClaims(), "another-secret"), ErrInvalidToken},
		{"garbage", "not.a.token", ErrInvalidToken},
		{"no subject", sign(t, noSubject, testSecret), ErrMissingSubject},
		{"no email", sign(t, noEmail, testSecret), ErrMissingEmail},
		{"wrong issuer", sign(t, wrongIssuer, testSecret), ErrInvalidToken},
		{"no expiry", sign(t, noExpiry, testSecret), ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestVerifier_RejectsNoneAlgorithm(t *testing.T) {
	v := NewVerifier(VerifierConfig{Secret: testSecret})

	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims()).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer   ", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		token, ok := ExtractBearer(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.token, token, tt.header)
	}
}
