package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/prudhvinik1/edgerelay/internal/services"
)

type AuthHandler struct {
	auth          *services.AuthService
	photos        FileStore
	maxPhotoBytes int64
	log           *slog.Logger
}

func NewAuthHandler(auth *services.AuthService, photos FileStore, maxPhotoBytes int64, log *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, photos: photos, maxPhotoBytes: maxPhotoBytes, log: log}
}

// Register accepts a JSON body, or a multipart form with an optional photo.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterRequest
	if isMultipart(r) {
		url, ok := saveUpload(w, r, h.photos, h.maxPhotoBytes, "photo", h.log)
		if !ok {
			return
		}
		req = services.RegisterRequest{
			Username:     r.FormValue("username"),
			Email:        r.FormValue("email"),
			Password:     r.FormValue("password"),
			ProfilePhoto: url,
		}
	} else if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.auth.Register(r.Context(), req)
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrEmailExists):
		writeError(w, http.StatusConflict, "email already exists")
	case err != nil:
		h.log.Error("Failed to register", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	default:
		writeJSON(w, http.StatusCreated, resp)
	}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.auth.Login(r.Context(), req)
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid email or password")
	case err != nil:
		h.log.Error("Failed to login", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	err := h.auth.Logout(r.Context(), tokenFromRequest(r))
	switch {
	case errors.Is(err, services.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid token")
	case err != nil:
		h.log.Error("Failed to logout", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.auth.ListUsers(r.Context())
	if err != nil {
		h.log.Error("Failed to list users", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// ProfilePhoto replaces the caller's photo with the uploaded one. A request
// without a photo clears it.
func (h *AuthHandler) ProfilePhoto(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	url, ok := saveUpload(w, r, h.photos, h.maxPhotoBytes, "photo", h.log)
	if !ok {
		return
	}

	account, err := h.auth.SetProfilePhoto(r.Context(), userID, url)
	switch {
	case errors.Is(err, services.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, services.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		h.log.Error("Failed to update profile photo", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	default:
		writeJSON(w, http.StatusOK, account)
	}
}
