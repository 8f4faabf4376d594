package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func validClaims(userID uuid.UUID) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "floralens",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID: userID,
		Email:  "fern@example.com",
	}
}

func TestJWTManager_ValidateToken(t *testing.T) {
	manager := NewJWTManager(&JWTConfig{Secret: testSecret, Issuer: "floralens"})
	userID := uuid.New()

	t.Run("Valid token", func(t *testing.T) {
		token := signToken(t, testSecret, validClaims(userID))

		claims, err := manager.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, userID, claims.UserID)
		assert.Equal(t, "fern@example.com", claims.Email)
	})

	t.Run("Wrong secret", func(t *testing.T) {
		token := signToken(t, "other-secret", validClaims(userID))

		_, err := manager.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Expired token", func(t *testing.T) {
		claims := validClaims(userID)
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
		token := signToken(t, testSecret, claims)

		_, err := manager.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Missing expiry", func(t *testing.T) {
		claims := validClaims(userID)
		claims.ExpiresAt = nil
		token := signToken(t, testSecret, claims)

		_, err := manager.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Wrong issuer", func(t *testing.T) {
		claims := validClaims(userID)
		claims.Issuer = "someone-else"
		token := signToken(t, testSecret, claims)

		_, err := manager.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Unexpected signing method", func(t *testing.T) {
		// alg=none style tokens must never validate.
		token := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims(userID))
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, validateErr := manager.ValidateToken(signed)
		assert.ErrorIs(t, validateErr, ErrInvalidToken)
	})

	t.Run("Garbage input", func(t *testing.T) {
		_, err := manager.ValidateToken("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestJWTManager_IssuerOptional(t *testing.T) {
	manager := NewJWTManager(&JWTConfig{Secret: testSecret})

	claims := validClaims(uuid.New())
	claims.Issuer = "any-issuer"
	token := signToken(t, testSecret, claims)

	_, err := manager.ValidateToken(token)
	assert.NoError(t, err)
}
