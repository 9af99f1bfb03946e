package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prudhvinik1/edgerelay/internal/models"
	"github.com/prudhvinik1/edgerelay/internal/realtime"
	"github.com/prudhvinik1/edgerelay/internal/repositories"
)

// FileStore stores an attachment and returns its public URL.
type FileStore interface {
	Save(r io.Reader) (string, error)
}

type MessageHandler struct {
	store          repositories.MessageRepository
	coord          *realtime.Coordinator
	files          FileStore
	maxUploadBytes int64
	log            *slog.Logger
}

func NewMessageHandler(store repositories.MessageRepository, coord *realtime.Coordinator, files FileStore, maxUploadBytes int64, log *slog.Logger) *MessageHandler {
	return &MessageHandler{
		store:          store,
		coord:          coord,
		files:          files,
		maxUploadBytes: maxUploadBytes,
		log:            log,
	}
}

// History returns the conversation between the caller and {userId}, oldest first.
func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	caller, _ := UserIDFromContext(r.Context())
	other := models.UserID(chi.URLParam(r, "userId"))
	if other == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	messages, err := h.store.QueryBetween(r.Context(), caller, other)
	if err != nil {
		h.log.Error("Failed to query history", "user_id", caller, "peer", other, "error", err)
		writeError(w, http.StatusServiceUnavailable, "message store unavailable")
		return
	}
	if messages == nil {
		messages = []*models.Message{}
	}

	writeJSON(w, http.StatusOK, messages)
}

// Send accepts a multipart message with an optional file. It is relayed like
// a socket send-message, so an online receiver gets it live.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	sender, _ := UserIDFromContext(r.Context())

	url, ok := saveUpload(w, r, h.files, h.maxUploadBytes, "file", h.log)
	if !ok {
		return
	}

	req := realtime.SendMessageRequest{
		Receiver: models.UserID(r.FormValue("receiver")),
		Content:  r.FormValue("content"),
		FileURL:  url,
	}

	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.coord.HandleSend(r.Context(), sender, nil, req)
	if errors.Is(err, realtime.ErrStoreUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "message could not be stored")
		return
	}
	if errors.Is(err, realtime.ErrInvalidPayload) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.log.Error("Failed to send message", "sender", sender, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, msg)
}
