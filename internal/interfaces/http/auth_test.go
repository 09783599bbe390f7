package http

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticator_RoundTrip(t *testing.T) {
	a := NewAuthenticator("s3cret", "approval-flow")

	token, err := a.Issue("lead", []string{"admin", "finance"}, time.Hour)
	require.NoError(t, err)

	claims, err := a.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "lead", claims.Subject)
	assert.Equal(t, []string{"admin", "finance"}, claims.Roles)
}

func TestAuthenticator_Rejects(t *testing.T) {
	a := NewAuthenticator("s3cret", "approval-flow")

	expired := NewAuthenticator("s3cret", "approval-flow")
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expiredToken, err := expired.Issue("lead", nil, time.Hour)
	require.NoError(t, err)

	otherIssuer, err := NewAuthenticator("s3cret", "someone-else").Issue("lead", nil, time.Hour)
	require.NoError(t, err)

	noSubject, err := a.Issue("", nil, time.Hour)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "lead", Issuer: "approval-flow"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":      "not-a-token",
		"expired":      expiredToken,
		"wrong issuer": otherIssuer,
		"no subject":   noSubject,
		"alg none":     none,
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := a.Parse(token)
			assert.True(t, errors.Is(err, ErrUnauthorized), "got %v", err)
		})
	}
}
