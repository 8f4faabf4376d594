package outbound

import "github.com/google/uuid"

// JWTClaims are the validated claims of an access token.
type JWTClaims struct {
	UserID uuid.UUID
	Email  string
}
