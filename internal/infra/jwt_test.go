package infra_test

import (
	"context"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatch/internal/infra"
	"dispatch/internal/testutil"
)

func TestJWTVerifier_Valid(t *testing.T) {
	raw := testutil.GenerateJWTHS256(t, "s3cret", "courier-1", "courier", map[string]any{"approved": true})
	tok, err := infra.NewJWTVerifier("s3cret").VerifyIDToken(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "courier-1", tok.UID)
	assert.Equal(t, "courier", tok.Claims["role"])
	assert.Equal(t, true, tok.Claims["approved"])
}

func TestJWTVerifier_Rejects(t *testing.T) {
	v := infra.NewJWTVerifier("s3cret")

	wrongKey := testutil.GenerateJWTHS256(t, "other", "u1", "client", nil)
	_, err := v.VerifyIDToken(context.Background(), wrongKey)
	assert.ErrorIs(t, err, infra.ErrInvalidToken)

	_, err = v.VerifyIDToken(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, infra.ErrInvalidToken)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})
	raw, err := expired.SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = v.VerifyIDToken(context.Background(), raw)
	assert.ErrorIs(t, err, infra.ErrInvalidToken)

	noSub := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	raw, err = noSub.SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = v.VerifyIDToken(context.Background(), raw)
	assert.ErrorIs(t, err, infra.ErrInvalidToken)
}
