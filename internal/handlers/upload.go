package handlers

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"

	"github.com/prudhvinik1/edgerelay/internal/attachments"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temp files.
const multipartMemory = 1 << 20

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// saveUpload parses the request form and stores the file in field, if any.
// It returns an empty URL when no file was sent. When ok is false the error
// response has already been written.
func saveUpload(w http.ResponseWriter, r *http.Request, files FileStore, maxBytes int64, field string, log *slog.Logger) (url string, ok bool) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartMemory)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request too large")
			return "", false
		}
		writeError(w, http.StatusBadRequest, "invalid form")
		return "", false
	}

	file, _, err := r.FormFile(field)
	switch {
	case err == nil:
		defer file.Close()
		url, err := files.Save(file)
		if err != nil {
			writeUploadError(w, err, log)
			return "", false
		}
		return url, true
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return "", true
	default:
		writeError(w, http.StatusBadRequest, "invalid file")
		return "", false
	}
}

func writeUploadError(w http.ResponseWriter, err error, log *slog.Logger) {
	switch {
	case errors.Is(err, attachments.ErrFileTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, attachments.ErrUnsupportedType):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, attachments.ErrEmptyFile):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error("Failed to store upload", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
