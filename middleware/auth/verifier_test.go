package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var testNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier([]byte(testSecret), WithTimeFunc(func() time.Time { return testNow }))
	require.NoError(t, err)
	return v
}

func signed(t *testing.T, v *Verifier, sub, role string, exp time.Time) string {
	t.Helper()
	tok, err := v.Sign(Claims{Subject: sub, Role: role, ExpiresAt: exp}, exp.Add(-time.Hour))
	require.NoError(t, err)
	return tok
}

func TestNewVerifier_RejectsShortSecret(t *testing.T) {
	_, err := NewVerifier([]byte("short"))
	assert.Error(t, err)
}

func TestVerify_ValidTokenYieldsClaims(t *testing.T) {
	v := newTestVerifier(t)
	exp := testNow.Add(time.Hour)

	claims, err := v.Verify("Bearer " + signed(t, v, "u123", "admin", exp))
	require.NoError(t, err)
	assert.Equal(t, "u123", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
	assert.True(t, claims.ExpiresAt.Equal(exp))
}

func TestVerify_MissingOrOtherScheme(t *testing.T) {
	v := newTestVerifier(t)
	tok := signed(t, v, "u123", "", testNow.Add(time.Hour))

	for _, header := range []string{
		"",
		"Bearer ",
		"bearer " + tok,
		"Bearer:" + tok,
		"Basic dXNlcjpwYXNz",
		tok,
	} {
		_, err := v.Verify(header)
		assert.ErrorIs(t, err, ErrMissing, "header %q", header)
	}
}

func TestVerify_ExpiredIsDistinguishable(t *testing.T) {
	v := newTestVerifier(t)

	_, err := v.Verify("Bearer " + signed(t, v, "u123", "", testNow.Add(-time.Second)))
	assert.ErrorIs(t, err, ErrExpired)
	assert.False(t, errors.Is(err, ErrInvalid))
	assert.Equal(t, "token expired", Reason(err))
}

func TestVerify_InvalidTokens(t *testing.T) {
	v := newTestVerifier(t)
	exp := testNow.Add(time.Hour)

	other, err := NewVerifier([]byte("ffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)
	wrongKey := signed(t, other, "u123", "", exp)

	noneTok, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "u123", "exp": exp.Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u123"}).
		SignedString([]byte(testSecret))
	require.NoError(t, err)

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).
		SignedString([]byte(testSecret))
	require.NoError(t, err)

	// expirado e com assinatura errada continua inválido, não expirado
	expiredWrongKey := signed(t, other, "u123", "", testNow.Add(-time.Hour))

	cases := map[string]string{
		"malformed":         "not.a.jwt",
		"wrong key":         wrongKey,
		"alg none":          noneTok,
		"missing exp":       noExp,
		"missing subject":   noSub,
		"expired wrong key": expiredWrongKey,
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify("Bearer " + tok)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Equal(t, "invalid token", Reason(err))
		})
	}
}
