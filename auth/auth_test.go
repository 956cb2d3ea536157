package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestPassword(t *testing.T) {
	_, err := HashPassword("short")
	require.ErrorIs(t, err, ErrWeakPassword)

	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	require.NotEqual(t, "correct horse", hash)
	require.NoError(t, CheckPassword(&hash, "correct horse"))
	require.ErrorIs(t, CheckPassword(&hash, "wrong horse"), ErrCredentials)
	require.ErrorIs(t, CheckPassword(nil, "correct horse"), ErrCredentials)
}

func TestTokens(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tokens := NewTokens("secret", time.Hour)
	tokens.now = func() time.Time { return now }

	token, claims, err := tokens.Issue("u1", "ann@example.com", true)
	require.NoError(t, err)
	require.Equal(t, now.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())

	got, err := tokens.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "u1", got.Subject)
	require.Equal(t, "ann@example.com", got.Email)
	require.True(t, got.Admin)
	require.Equal(t, claims.ExpiresAt.Unix(), got.ExpiresAt.Unix())

	sign := func(method jwt.SigningMethod, key any, c jwt.Claims) string {
		s, err := jwt.NewWithClaims(method, c).SignedString(key)
		require.NoError(t, err)
		return s
	}
	live := jwt.NewNumericDate(now.Add(time.Minute))
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	tests := map[string]string{
		"empty":          "",
		"garbage":        "x.y.z",
		"tampered claim": parts[0] + "." + parts[1] + "x." + parts[2],
		"other secret":   func() string { s, _, _ := NewTokens("other", time.Hour).Issue("u1", "a", false); return s }(),
		"unsigned":       sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", ExpiresAt: live}}),
		"other method":   sign(jwt.SigningMethodHS512, []byte("secret"), Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", ExpiresAt: live}}),
		"no expiry":      sign(jwt.SigningMethodHS256, []byte("secret"), Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}}),
		"no subject":     sign(jwt.SigningMethodHS256, []byte("secret"), Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: live}}),
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := tokens.Verify(tok)
			require.ErrorIs(t, err, ErrToken)
		})
	}

	now = now.Add(2 * time.Hour)
	_, err = tokens.Verify(token)
	require.ErrorIs(t, err, ErrToken)
}
