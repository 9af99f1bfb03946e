package attachments

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

var (
	ErrEmptyFile       = errors.New("file is empty")
	ErrFileTooLarge    = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
)

// DefaultAllowedTypes are the content types accepted as chat attachments.
var DefaultAllowedTypes = []string{
	"image/png",
	"image/jpeg",
	"image/gif",
	"image/webp",
	"application/pdf",
	"text/plain",
	"audio/mpeg",
	"audio/ogg",
	"video/mp4",
	"application/zip",
}

// ImageTypes are the content types accepted as profile photos.
var ImageTypes = []string{
	"image/png",
	"image/jpeg",
	"image/gif",
}

// DiskStore keeps uploaded attachments in a local directory and hands out
// public URLs for them.
type DiskStore struct {
	dir      string
	baseURL  string
	path     string
	maxBytes int64
	allowed  []string
	log      *slog.Logger
}

type Option func(*DiskStore)

// WithAllowedTypes replaces DefaultAllowedTypes.
func WithAllowedTypes(types ...string) Option {
	return func(s *DiskStore) {
		s.allowed = types
	}
}

// WithPublicPath sets the URL path files are published under.
func WithPublicPath(path string) Option {
	return func(s *DiskStore) {
		s.path = "/" + strings.Trim(path, "/") + "/"
	}
}

// NewDiskStore creates dir if needed. Files are published under
// baseURL/uploads/files/ unless WithPublicPath says otherwise.
func NewDiskStore(dir, baseURL string, maxBytes int64, log *slog.Logger, opts ...Option) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	s := &DiskStore{
		dir:      dir,
		baseURL:  strings.TrimRight(baseURL, "/"),
		path:     "/uploads/files/",
		maxBytes: maxBytes,
		allowed:  DefaultAllowedTypes,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Save stores the content of r and returns its public URL. The detected
// content type must be on the allow-list; the client's declared type is
// ignored.
func (s *DiskStore) Save(r io.Reader) (string, error) {
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, err := io.Copy(tmp, src)
	if err != nil {
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	if n == 0 {
		return "", ErrEmptyFile
	}
	if s.maxBytes > 0 && n > s.maxBytes {
		return "", fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, s.maxBytes)
	}

	// Cursor needs to be at the beginning to sniff
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind upload: %w", err)
	}
	mtype, err := mimetype.DetectReader(tmp)
	if err != nil {
		return "", fmt.Errorf("failed to detect file type: %w", err)
	}
	if !lo.ContainsBy(s.allowed, mtype.Is) {
		s.log.Info("Rejected attachment", "mime_type", mtype.String(), "size", n)
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mtype.String())
	}

	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close upload: %w", err)
	}

	name := uuid.NewString() + mtype.Extension()
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return "", fmt.Errorf("failed to store upload: %w", err)
	}

	s.log.Debug("Stored attachment", "name", name, "mime_type", mtype.String(), "size", n)
	return s.baseURL + s.path + name, nil
}
