package jwtverifier

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mint(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerify_ValidToken(t *testing.T) {
	t.Parallel()
	v := New("secret", "memberd")

	raw := mint(t, "secret", jwt.RegisteredClaims{
		Subject:   "user|42",
		Issuer:    "memberd",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	sub, err := v.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "user|42", sub)
}

func TestVerify_Rejections(t *testing.T) {
	t.Parallel()
	v := New("secret", "memberd")

	future := jwt.NewNumericDate(time.Now().Add(time.Minute))

	cases := map[string]string{
		"wrong secret": mint(t, "other", jwt.RegisteredClaims{
			Subject: "user|42", Issuer: "memberd", ExpiresAt: future,
		}),
		"wrong issuer": mint(t, "secret", jwt.RegisteredClaims{
			Subject: "user|42", Issuer: "intruder", ExpiresAt: future,
		}),
		"expired": mint(t, "secret", jwt.RegisteredClaims{
			Subject: "user|42", Issuer: "memberd",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}),
		"no expiry": mint(t, "secret", jwt.RegisteredClaims{
			Subject: "user|42", Issuer: "memberd",
		}),
		"no subject": mint(t, "secret", jwt.RegisteredClaims{
			Issuer: "memberd", ExpiresAt: future,
		}),
		"not a token": "definitely.not.jwt",
	}
	for name, raw := range cases {
		_, err := v.Verify(raw)
		assert.ErrorIs(t, err, ErrUnauthorized, name)
	}
}

func TestVerify_RejectsUnsignedAlg(t *testing.T) {
	t.Parallel()
	v := New("secret", "memberd")

	tok := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject: "user|42", Issuer: "memberd",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	raw, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.Verify(raw)
	assert.ErrorIs(t, err, ErrUnauthorized)
}
