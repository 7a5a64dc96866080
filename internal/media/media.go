// Package media stores message attachments and classifies them by sniffing
// their content.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"messaging-service/internal/models"
)

var (
	ErrUnsupportedMedia = errors.New("only image and video attachments are supported")
	ErrNotFound         = errors.New("media not found")
	ErrTooLarge         = errors.New("attachment too large")
)

const sniffLen = 3072

// Upload is an attachment on its way into the store.
type Upload struct {
	Filename   string
	UploaderID int64
	Content    io.Reader
}

// File describes a stored attachment.
type File struct {
	ID          string             `json:"id"`
	Filename    string             `json:"filename"`
	MimeType    string             `json:"mime_type"`
	ContentType models.ContentType `json:"content_type"`
	Size        int64              `json:"size"`
	UploadedBy  int64              `json:"uploaded_by"`
	UploadedAt  time.Time          `json:"uploaded_at"`
}

// Store persists attachments.
type Store interface {
	Save(ctx context.Context, upload Upload) (File, error)
	Open(ctx context.Context, id string) (io.ReadCloser, File, error)
}

// Sniff detects the MIME type of r and maps it to a message content type.
// The returned reader replays the sniffed prefix.
func Sniff(r io.Reader) (string, models.ContentType, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", "", nil, fmt.Errorf("sniff failed: %w", err)
	}
	head = head[:n]

	mime := mimetype.Detect(head)
	contentType, ok := ContentTypeOf(mime.String())
	if !ok {
		return mime.String(), "", nil, fmt.Errorf("%w: %s", ErrUnsupportedMedia, mime.String())
	}
	return mime.String(), contentType, io.MultiReader(bytes.NewReader(head), r), nil
}

// ContentTypeOf classifies a MIME type.
func ContentTypeOf(mime string) (models.ContentType, bool) {
	base, _, _ := strings.Cut(mime, ";")
	switch {
	case strings.HasPrefix(base, "image/"):
		return models.ContentImage, true
	case strings.HasPrefix(base, "video/"):
		return models.ContentVideo, true
	default:
		return "", false
	}
}

// URL builds the public address of a stored file.
func URL(baseURL, id string) string {
	return strings.TrimRight(baseURL, "/") + "/" + id
}
