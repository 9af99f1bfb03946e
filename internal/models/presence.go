package models

import (
	"time"
)

// Presence is the status mirrored to Redis for readers outside the relay process.
// The relay itself routes on its in-memory registry only.
type Presence struct {
	UserID   UserID    `json:"user_id"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)
