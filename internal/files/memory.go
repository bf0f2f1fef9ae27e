package files

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryUploader keeps uploaded documents in process memory, for tests.
type MemoryUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemoryUploader creates an empty in-memory uploader.
func NewMemoryUploader() *MemoryUploader {
	return &MemoryUploader{objects: make(map[string][]byte)}
}

// Upload stores the content and returns a synthetic retrieval URL.
func (u *MemoryUploader) Upload(ctx context.Context, sessionID, fileName, mediaType string, content io.Reader, size int64) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	key := sessionID + "/" + fileName
	u.mu.Lock()
	u.objects[key] = data
	u.mu.Unlock()
	return "memory://" + key, nil
}

// Get returns the stored bytes for a key, for test assertions.
func (u *MemoryUploader) Get(key string) ([]byte, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	data, ok := u.objects[key]
	return data, ok
}
