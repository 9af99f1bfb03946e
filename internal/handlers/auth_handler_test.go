package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prudhvinik1/edgerelay/internal/models"
	"github.com/prudhvinik1/edgerelay/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func photoBody(t *testing.T, fields map[string]string, photo []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if photo != nil {
		fw, err := mw.CreateFormFile("photo", "me.png")
		require.NoError(t, err)
		_, err = fw.Write(photo)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decodeAccount(t *testing.T, resp *http.Response) models.Account {
	t.Helper()
	var account models.Account
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&account))
	return account
}

func TestAuthHandler_ProfilePhoto(t *testing.T) {
	accountID := uuid.MustParse(string(accountUserID))

	t.Run("stores the photo and returns the updated account", func(t *testing.T) {
		srv := newTestServer(t)
		var stored string
		srv.accounts.EXPECT().
			UpdateProfilePhoto(gomock.Any(), accountID, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ uuid.UUID, url string) error {
				stored = url
				return nil
			})
		srv.accounts.EXPECT().
			GetByID(gomock.Any(), accountID).
			DoAndReturn(func(_ context.Context, id uuid.UUID) (*models.Account, error) {
				return &models.Account{ID: id, Username: "alice", ProfilePhoto: stored}, nil
			})
		body, contentType := photoBody(t, nil, pngBytes)

		resp := do(t, http.MethodPost, srv.URL+"/api/auth/profile-photo", "token-account", body, contentType)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		account := decodeAccount(t, resp)
		assert.True(t, strings.HasPrefix(account.ProfilePhoto, "http://cdn.local/uploads/profile_photos/"), account.ProfilePhoto)
		assert.Equal(t, stored, account.ProfilePhoto)
	})

	t.Run("clears the photo when none is sent", func(t *testing.T) {
		srv := newTestServer(t)
		srv.accounts.EXPECT().UpdateProfilePhoto(gomock.Any(), accountID, "").Return(nil)
		srv.accounts.EXPECT().GetByID(gomock.Any(), accountID).Return(&models.Account{ID: accountID}, nil)
		body, contentType := photoBody(t, nil, nil)

		resp := do(t, http.MethodPost, srv.URL+"/api/auth/profile-photo", "token-account", body, contentType)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, decodeAccount(t, resp).ProfilePhoto)
	})

	t.Run("rejects files that are not images", func(t *testing.T) {
		srv := newTestServer(t)
		body, contentType := photoBody(t, nil, []byte("not a picture\n"))

		resp := do(t, http.MethodPost, srv.URL+"/api/auth/profile-photo", "token-account", body, contentType)

		assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	})

	t.Run("requires a token", func(t *testing.T) {
		srv := newTestServer(t)
		body, contentType := photoBody(t, nil, pngBytes)

		resp := do(t, http.MethodPost, srv.URL+"/api/auth/profile-photo", "", body, contentType)

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("reports a caller without an account", func(t *testing.T) {
		srv := newTestServer(t)
		body, contentType := photoBody(t, nil, nil)

		resp := do(t, http.MethodPost, srv.URL+"/api/auth/profile-photo", "token-1", body, contentType)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestAuthHandler_RegisterWithPhoto(t *testing.T) {
	srv := newTestServer(t)
	srv.accounts.EXPECT().GetByEmail(gomock.Any(), "alice@example.com").Return(nil, repositories.ErrNotFound)
	srv.accounts.EXPECT().
		Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, a *models.Account) error {
			a.ID = uuid.New()
			return nil
		})
	srv.sessions.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	body, contentType := photoBody(t, map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "password123",
	}, pngBytes)

	resp := do(t, http.MethodPost, srv.URL+"/api/auth/register", "", body, contentType)

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out struct {
		Token string         `json:"token"`
		User  models.Account `json:"user"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotEmpty(t, out.Token)
	assert.True(t, strings.HasPrefix(out.User.ProfilePhoto, "http://cdn.local/uploads/profile_photos/"), out.User.ProfilePhoto)
}

func TestAuthHandler_RegisterConflict(t *testing.T) {
	srv := newTestServer(t)
	srv.accounts.EXPECT().GetByEmail(gomock.Any(), "race@example.com").Return(nil, repositories.ErrNotFound)
	srv.accounts.EXPECT().Create(gomock.Any(), gomock.Any()).Return(repositories.ErrAlreadyExists)

	resp := do(t, http.MethodPost, srv.URL+"/api/auth/register", "",
		strings.NewReader(`{"username":"race","email":"race@example.com","password":"password123"}`), "application/json")

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
