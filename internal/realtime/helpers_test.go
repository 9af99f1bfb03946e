package realtime

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/prudhvinik1/edgerelay/internal/models"
	"github.com/prudhvinik1/edgerelay/internal/repositories"
	"github.com/stretchr/testify/require"
)

var testLog = slog.New(slog.NewTextHandler(io.Discard, nil))

// newTestConn returns a Conn without a socket; tests read its queue directly.
func newTestConn(queueSize int) *Conn {
	return NewConn(nil, queueSize, testLog)
}

func newBadgerStore(t *testing.T) *repositories.BadgerMessageRepository {
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return repositories.NewBadgerMessageRepository(db, testLog)
}

// drain returns every frame queued on conn, decoded.
func drain(t *testing.T, conn *Conn) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		select {
		case frame := <-conn.send:
			env, err := Decode(frame)
			require.NoError(t, err)
			out = append(out, env)
		default:
			return out
		}
	}
}

// only returns the frames of conn named event.
func only(t *testing.T, conn *Conn, event string) []Envelope {
	t.Helper()
	var out []Envelope
	for _, env := range drain(t, conn) {
		if env.Event == event {
			out = append(out, env)
		}
	}
	return out
}

func decodeMessage(t *testing.T, env Envelope) models.Message {
	t.Helper()
	var msg models.Message
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	return msg
}

func decodeOnline(t *testing.T, env Envelope) []models.UserID {
	t.Helper()
	var ids []models.UserID
	require.NoError(t, json.Unmarshal(env.Data, &ids))
	return ids
}

func decodeError(t *testing.T, env Envelope) ErrorPayload {
	t.Helper()
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	return payload
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
