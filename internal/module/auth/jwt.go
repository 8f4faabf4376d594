package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/floralens/server/internal/port/outbound"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Validation errors.
var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidTokenClaims = errors.New("invalid token claims")
)

// Claims represents JWT access token claims minted by the accounts service.
type Claims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
}

// JWTConfig holds JWT validation configuration.
type JWTConfig struct {
	Secret string
	Issuer string
}

// JWTManager validates access tokens. This gateway never issues tokens;
// it only verifies ones signed by the accounts service.
type JWTManager struct {
	config *JWTConfig
}

// NewJWTManager creates a new JWT manager.
func NewJWTManager(config *JWTConfig) *JWTManager {
	if config == nil {
		config = &JWTConfig{Issuer: "floralens"}
	}
	return &JWTManager{config: config}
}

// ValidateToken validates an access token and returns its claims.
func (m *JWTManager) ValidateToken(tokenString string) (*outbound.JWTClaims, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired(), jwt.WithLeeway(30 * time.Second)}
	if m.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.config.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.config.Secret), nil
	}, opts...)

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidTokenClaims
	}

	return &outbound.JWTClaims{
		UserID: claims.UserID,
		Email:  claims.Email,
	}, nil
}
