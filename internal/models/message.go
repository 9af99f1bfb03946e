package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UserID is an opaque account identity issued by the auth service.
type UserID string

func (id UserID) String() string { return string(id) }

// UnmarshalJSON accepts a JSON string or a JSON number. Clients that key
// users by numeric id send them unquoted; the number's literal text becomes
// the identity.
func (id *UserID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = UserID(s)
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("user id must be a string or number: %w", err)
	}
	*id = UserID(n.String())
	return nil
}

// Message is a persisted direct message. It is never mutated once stored.
type Message struct {
	ID        uuid.UUID `json:"_id"`
	Sender    UserID    `json:"sender"`
	Receiver  UserID    `json:"receiver"`
	Content   string    `json:"content"`
	FileURL   string    `json:"fileUrl"`
	CreatedAt time.Time `json:"timestamp"`
}

// Involves reports whether the message was exchanged between a and b, in either direction.
func (m *Message) Involves(a, b UserID) bool {
	return (m.Sender == a && m.Receiver == b) || (m.Sender == b && m.Receiver == a)
}
