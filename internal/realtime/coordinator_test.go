package realtime

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/edgerelay/internal/mocks"
	"github.com/prudhvinik1/edgerelay/internal/models"
	"github.com/prudhvinik1/edgerelay/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestCoordinator_SendToOnlineReceiver(t *testing.T) {
	store := newBadgerStore(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	coord := NewCoordinator(store, testLog, WithClock(fixedClock(at)))
	alice, bob := newTestConn(8), newTestConn(8)
	coord.HandleJoin("1", alice)
	coord.HandleJoin("2", bob)
	drain(t, alice)
	drain(t, bob)

	// ACT
	msg, err := coord.HandleSend(context.Background(), "1", alice, SendMessageRequest{Receiver: "2", Content: "hi"})

	// ASSERT: one receive-message for bob, one message-sent for alice, same record
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, msg.ID)

	received := drain(t, bob)
	require.Len(t, received, 1)
	assert.Equal(t, EventReceiveMessage, received[0].Event)

	sent := drain(t, alice)
	require.Len(t, sent, 1)
	assert.Equal(t, EventMessageSent, sent[0].Event)

	inbound, confirmed := decodeMessage(t, received[0]), decodeMessage(t, sent[0])
	assert.Equal(t, inbound, confirmed)
	assert.Equal(t, msg.ID, inbound.ID)
	assert.Equal(t, models.UserID("1"), inbound.Sender)
	assert.Equal(t, models.UserID("2"), inbound.Receiver)
	assert.Equal(t, "hi", inbound.Content)
	assert.True(t, inbound.CreatedAt.Equal(at))
}

func TestCoordinator_SendToOfflineReceiver(t *testing.T) {
	store := newBadgerStore(t)
	coord := NewCoordinator(store, testLog)
	alice, bystander := newTestConn(8), newTestConn(8)
	coord.HandleJoin("1", alice)
	coord.Attach(bystander)
	drain(t, alice)
	drain(t, bystander)

	msg, err := coord.HandleSend(context.Background(), "1", alice, SendMessageRequest{Receiver: "2", Content: "later"})

	require.NoError(t, err)
	assert.Empty(t, drain(t, bystander), "nobody else hears about it")
	sent := drain(t, alice)
	require.Len(t, sent, 1)
	assert.Equal(t, EventMessageSent, sent[0].Event)

	history, err := store.QueryBetween(context.Background(), "1", "2")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, msg.ID, history[0].ID)
}

func TestCoordinator_StoreFailureDeliversNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageRepository(ctrl)
	store.EXPECT().
		Insert(gomock.Any(), gomock.Any()).
		Return(errors.New("connection refused")).
		Times(1)

	coord := NewCoordinator(store, testLog)
	alice, bob := newTestConn(8), newTestConn(8)
	coord.HandleJoin("1", alice)
	coord.HandleJoin("2", bob)
	drain(t, alice)
	drain(t, bob)

	msg, err := coord.HandleSend(context.Background(), "1", alice, SendMessageRequest{Receiver: "2", Content: "hi"})

	require.Error(t, err)
	assert.Nil(t, msg)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, CodeStoreUnavailable, ErrorCode(err))
	assert.Empty(t, drain(t, bob))
	assert.Empty(t, drain(t, alice))
}

func TestCoordinator_StoreRejectionIsInvalidPayload(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageRepository(ctrl)
	store.EXPECT().
		Insert(gomock.Any(), gomock.Any()).
		Return(fmt.Errorf("%w: invalid byte sequence", repositories.ErrInvalidMessage))

	coord := NewCoordinator(store, testLog)
	alice, bob := newTestConn(8), newTestConn(8)
	coord.HandleJoin("1", alice)
	coord.HandleJoin("2", bob)
	drain(t, alice)
	drain(t, bob)

	msg, err := coord.HandleSend(context.Background(), "1", alice, SendMessageRequest{Receiver: "2", Content: "hi"})

	assert.Nil(t, msg)
	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, CodeInvalidPayload, ErrorCode(err))
	assert.Empty(t, drain(t, bob))
}

func TestCoordinator_PersistTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageRepository(ctrl)
	store.EXPECT().
		Insert(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ *models.Message) error {
			<-ctx.Done()
			return ctx.Err()
		})

	coord := NewCoordinator(store, testLog, WithPersistTimeout(20*time.Millisecond))

	_, err := coord.HandleSend(context.Background(), "1", nil, SendMessageRequest{Receiver: "2", Content: "hi"})

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCoordinator_PersistOutlivesCallerContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageRepository(ctrl)
	store.EXPECT().
		Insert(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, msg *models.Message) error {
			require.NoError(t, ctx.Err(), "store must not see the caller's cancellation")
			msg.ID = uuid.New()
			return nil
		})

	coord := NewCoordinator(store, testLog)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msg, err := coord.HandleSend(ctx, "1", nil, SendMessageRequest{Receiver: "2", Content: "hi"})

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, msg.ID)
}

func TestCoordinator_ConfirmationFallsBackToRegisteredConn(t *testing.T) {
	coord := NewCoordinator(newBadgerStore(t), testLog)
	alice := newTestConn(8)
	coord.HandleJoin("1", alice)
	drain(t, alice)

	// No origin connection, e.g. a send made over HTTP
	_, err := coord.HandleSend(context.Background(), "1", nil, SendMessageRequest{Receiver: "2", FileURL: "http://cdn/f.pdf"})

	require.NoError(t, err)
	sent := only(t, alice, EventMessageSent)
	require.Len(t, sent, 1)
	assert.Equal(t, "http://cdn/f.pdf", decodeMessage(t, sent[0]).FileURL)
}

func TestCoordinator_FullReceiverQueueDoesNotBlockSender(t *testing.T) {
	coord := NewCoordinator(newBadgerStore(t), testLog)
	alice, bob := newTestConn(8), newTestConn(1)
	coord.HandleJoin("1", alice)
	coord.HandleJoin("2", bob) // bob's queue now holds the presence frame and is full
	drain(t, alice)

	_, err := coord.HandleSend(context.Background(), "1", alice, SendMessageRequest{Receiver: "2", Content: "hi"})

	require.NoError(t, err)
	assert.Len(t, only(t, alice, EventMessageSent), 1)
	frames := drain(t, bob)
	require.Len(t, frames, 1)
	assert.Equal(t, EventOnlineUsers, frames[0].Event, "the relay frame was dropped")
}

func TestCoordinator_JoinBroadcastsToEveryConnection(t *testing.T) {
	coord := NewCoordinator(newBadgerStore(t), testLog)
	anonymous, alice, bob := newTestConn(8), newTestConn(8), newTestConn(8)
	coord.Attach(anonymous)

	coord.HandleJoin("1", alice)
	coord.HandleJoin("2", bob)

	frames := only(t, anonymous, EventOnlineUsers)
	require.Len(t, frames, 2)
	assert.Equal(t, []models.UserID{"1"}, decodeOnline(t, frames[0]))
	assert.Equal(t, []models.UserID{"1", "2"}, decodeOnline(t, frames[1]))

	bobFrames := only(t, bob, EventOnlineUsers)
	require.Len(t, bobFrames, 1)
	assert.Equal(t, []models.UserID{"1", "2"}, decodeOnline(t, bobFrames[0]))
}

func TestCoordinator_LeaveBroadcastsRemainingSet(t *testing.T) {
	coord := NewCoordinator(newBadgerStore(t), testLog)
	alice, bob := newTestConn(8), newTestConn(8)
	coord.HandleJoin("1", alice)
	coord.HandleJoin("2", bob)
	drain(t, alice)

	coord.HandleLeave(bob)

	frames := only(t, alice, EventOnlineUsers)
	require.Len(t, frames, 1)
	assert.Equal(t, []models.UserID{"1"}, decodeOnline(t, frames[0]))
	assert.Equal(t, []models.UserID{"1"}, coord.Online())
}

func TestCoordinator_ReconnectThenStaleLeave(t *testing.T) {
	coord := NewCoordinator(newBadgerStore(t), testLog)
	old, fresh, sender := newTestConn(8), newTestConn(8), newTestConn(8)
	coord.HandleJoin("2", old)
	coord.HandleJoin("2", fresh)
	coord.HandleJoin("1", sender)

	// The superseded connection closes late, twice
	coord.HandleLeave(old)
	coord.HandleLeave(old)
	drain(t, old)
	drain(t, fresh)

	assert.Equal(t, []models.UserID{"1", "2"}, coord.Online())

	_, err := coord.HandleSend(context.Background(), "1", sender, SendMessageRequest{Receiver: "2", Content: "hi"})
	require.NoError(t, err)
	assert.Len(t, only(t, fresh, EventReceiveMessage), 1)
	assert.Empty(t, drain(t, old))
}

func TestCoordinator_SendOrderPerSender(t *testing.T) {
	store := newBadgerStore(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	coord := NewCoordinator(store, testLog, WithClock(func() time.Time {
		tick++
		return now.Add(time.Duration(tick) * time.Millisecond)
	}))
	alice, bob := newTestConn(16), newTestConn(16)
	coord.HandleJoin("1", alice)
	coord.HandleJoin("2", bob)
	drain(t, bob)

	for _, content := range []string{"one", "two", "three"} {
		_, err := coord.HandleSend(context.Background(), "1", alice, SendMessageRequest{Receiver: "2", Content: content})
		require.NoError(t, err)
	}

	var got []string
	for _, env := range only(t, bob, EventReceiveMessage) {
		got = append(got, decodeMessage(t, env).Content)
	}
	assert.Equal(t, []string{"one", "two", "three"}, got)

	history, err := store.QueryBetween(context.Background(), "1", "2")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "three", history[2].Content)
}

func TestCoordinator_MirrorsPresence(t *testing.T) {
	ctrl := gomock.NewController(t)
	mirror := mocks.NewMockPresenceRepository(ctrl)
	online := make(chan struct{})
	offline := make(chan struct{})

	mirror.EXPECT().
		SetPresence(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, p *models.Presence) error {
			assert.Equal(t, models.UserID("1"), p.UserID)
			assert.Equal(t, string(models.StatusOnline), p.Status)
			close(online)
			return nil
		})
	mirror.EXPECT().
		DeletePresence(gomock.Any(), models.UserID("1")).
		DoAndReturn(func(context.Context, models.UserID) error {
			close(offline)
			return repositories.ErrNotFound
		})

	coord := NewCoordinator(newBadgerStore(t), testLog, WithPresenceMirror(mirror))
	conn := newTestConn(8)

	coord.HandleJoin("1", conn)
	waitFor(t, online)
	coord.HandleLeave(conn)
	waitFor(t, offline)
}

func TestCoordinator_Shutdown(t *testing.T) {
	coord := NewCoordinator(newBadgerStore(t), testLog)
	a, b := newTestConn(8), newTestConn(8)
	coord.Attach(a)
	coord.HandleJoin("2", b)

	coord.Shutdown()

	for _, conn := range []*Conn{a, b} {
		select {
		case <-conn.Done():
		default:
			t.Fatal("connection left open")
		}
		assert.False(t, conn.Push([]byte(`{}`)))
	}
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}
