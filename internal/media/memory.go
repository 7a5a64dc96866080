package media

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps attachments in process. Used when no MongoDB is
// configured.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string]memoryFile
}

type memoryFile struct {
	info File
	data []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string]memoryFile)}
}

func (s *MemoryStore) Save(_ context.Context, upload Upload) (File, error) {
	mime, contentType, body, err := Sniff(upload.Content)
	if err != nil {
		return File{}, err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return File{}, err
	}

	info := File{
		ID:          uuid.NewString(),
		Filename:    upload.Filename,
		MimeType:    mime,
		ContentType: contentType,
		Size:        int64(len(data)),
		UploadedBy:  upload.UploaderID,
		UploadedAt:  time.Now().UTC(),
	}
	s.mu.Lock()
	s.files[info.ID] = memoryFile{info: info, data: data}
	s.mu.Unlock()
	return info, nil
}

func (s *MemoryStore) Open(_ context.Context, id string) (io.ReadCloser, File, error) {
	s.mu.RLock()
	f, ok := s.files[id]
	s.mu.RUnlock()
	if !ok {
		return nil, File{}, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(f.data)), f.info, nil
}
