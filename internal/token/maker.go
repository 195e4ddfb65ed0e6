package token

import (
	"time"
)

// Maker is an interface for managing tokens.
type Maker interface {
	// CreateToken creates a new token for a specific user, role, token type and duration.
	CreateToken(userID string, role string, tokenType TokenType, duration time.Duration) (token string, payload *Payload, err error)
	// VerifyToken checks if the token is valid and of the expected type.
	VerifyToken(tokenString string, tokenType TokenType) (payload *Payload, err error)
}
