package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/prudhvinik1/edgerelay/internal/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Identities end up in store keys and Redis members; control characters
	// would let one identity be read as a prefix of another.
	v.RegisterValidation("userid", func(fl validator.FieldLevel) bool {
		return !strings.ContainsFunc(fl.Field().String(), unicode.IsControl)
	})
	v.RegisterValidation("nonul", func(fl validator.FieldLevel) bool {
		return !strings.ContainsRune(fl.Field().String(), 0)
	})
	return v
}

// ValidateUserID checks a claimed identity with the same rules as message
// endpoints.
func ValidateUserID(id models.UserID) error {
	if err := validate.Var(string(id), "required,max=128,userid"); err != nil {
		return fmt.Errorf("%w: invalid user id: %w", ErrInvalidPayload, err)
	}
	return nil
}

// Event names on the wire. Clients depend on these exact strings.
const (
	EventUserOnline     = "user-online"
	EventSendMessage    = "send-message"
	EventOnlineUsers    = "online-users"
	EventReceiveMessage = "receive-message"
	EventMessageSent    = "message-sent"
	EventError          = "error"
)

// Envelope is one WebSocket text frame: {"event": "...", "data": ...}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SendMessageRequest is the payload of a send-message event.
type SendMessageRequest struct {
	Sender   models.UserID `json:"sender" validate:"omitempty,max=128,userid"`
	Receiver models.UserID `json:"receiver" validate:"required,max=128,userid"`
	Content  string        `json:"content" validate:"max=10000,nonul"`
	FileURL  string        `json:"fileUrl" validate:"omitempty,url,max=2048,nonul"`
}

// Validate checks the shape of the payload. The sender is checked against the
// session identity separately.
func (r SendMessageRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return nil
}

// ErrorPayload is the payload of an error event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

// Encode builds a frame for event carrying data.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", event, err)
	}
	return frame, nil
}

// Decode parses a frame into its envelope. A frame that is not a JSON object
// with an event name is a protocol violation.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event name", ErrMalformedFrame)
	}
	return env, nil
}
