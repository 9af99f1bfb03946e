package models

import (
	"time"
)

// Session is a login session. Its ID is the jti of the issued token.
type Session struct {
	ID        string    `json:"id"`
	UserID    UserID    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
