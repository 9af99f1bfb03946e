package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/prudhvinik1/edgerelay/internal/attachments"
	"github.com/prudhvinik1/edgerelay/internal/mocks"
	"github.com/prudhvinik1/edgerelay/internal/models"
	"github.com/prudhvinik1/edgerelay/internal/realtime"
	"github.com/prudhvinik1/edgerelay/internal/repositories"
	"github.com/prudhvinik1/edgerelay/internal/services"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var testLog = slog.New(slog.NewTextHandler(io.Discard, nil))

// tokenTable authenticates the tokens it holds.
type tokenTable map[string]models.UserID

func (t tokenTable) Authenticate(_ context.Context, token string) (models.UserID, error) {
	id, ok := t[token]
	if !ok {
		return "", services.ErrInvalidToken
	}
	return id, nil
}

// accountUserID is an identity backed by an account record.
const accountUserID models.UserID = "0b7f8e52-6f0a-4c1e-9d2b-3a4f5e6d7c8b"

var testTokens = tokenTable{
	"token-1":       "1",
	"token-2":       "2",
	"token-account": accountUserID,
}

type testServer struct {
	*httptest.Server
	store    *repositories.BadgerMessageRepository
	coord    *realtime.Coordinator
	accounts *mocks.MockAccountRepository
	sessions *mocks.MockSessionRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)

	store := repositories.NewBadgerMessageRepository(db, testLog)
	coord := realtime.NewCoordinator(store, testLog)
	files, err := attachments.NewDiskStore(filepath.Join(t.TempDir(), "files"), "http://cdn.local", 1024, testLog)
	require.NoError(t, err)
	photos, err := attachments.NewDiskStore(filepath.Join(t.TempDir(), "photos"), "http://cdn.local", 1024, testLog,
		attachments.WithAllowedTypes(attachments.ImageTypes...),
		attachments.WithPublicPath("uploads/profile_photos"),
	)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	accounts := mocks.NewMockAccountRepository(ctrl)
	sessions := mocks.NewMockSessionRepository(ctrl)
	auth := services.NewAuthService(accounts, sessions, mocks.NewMockPresenceRepository(ctrl), "test-secret", time.Hour)

	router := NewRouter(
		NewAuthHandler(auth, photos, 1024, testLog),
		NewMessageHandler(store, coord, files, 1024, testLog),
		NewWSHandler(coord, testTokens, 16, 1<<16, testLog),
		testTokens,
		testLog,
	)
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		coord.Shutdown()
		srv.Close()
		_ = db.Close()
	})

	return &testServer{Server: srv, store: store, coord: coord, accounts: accounts, sessions: sessions}
}
