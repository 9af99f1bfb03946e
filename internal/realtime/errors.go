package realtime

import (
	"errors"

	"github.com/prudhvinik1/edgerelay/internal/repositories"
)

var (
	// ErrUnauthenticated is returned for operations that need an identity the session does not hold.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidPayload is returned for well-formed frames whose payload is unusable.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrStoreUnavailable is returned when a message could not be persisted.
	ErrStoreUnavailable = repositories.ErrStoreUnavailable
	// ErrMalformedFrame closes the session.
	ErrMalformedFrame = errors.New("malformed frame")
)

// Error codes carried by error events.
const (
	CodeUnauthenticated  = "Unauthenticated"
	CodeStoreUnavailable = "StoreUnavailable"
	CodeInvalidPayload   = "InvalidPayload"
)

// ErrorCode maps an error to the code reported to the client.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return CodeUnauthenticated
	case errors.Is(err, ErrStoreUnavailable):
		return CodeStoreUnavailable
	default:
		return CodeInvalidPayload
	}
}
