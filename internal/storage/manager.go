// Package storage keeps the files a user selected in the forms until they are
// replaced, submitted again, or their session expires.
package storage

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ai-playground/backend/internal/models"
	"github.com/google/uuid"
)

// sniffLen is how many bytes are inspected to detect the content type.
const sniffLen = 512

// Store defines the interface for selected-file storage.
type Store interface {
	Save(name string, r io.Reader) (*models.FileRef, error)
	Get(id string) (*models.FileRef, error)
	Open(id string) (io.ReadCloser, *models.FileRef, error)
	Delete(id string) error
}

// LocalStore implements Store using the local filesystem.
type LocalStore struct {
	mu        sync.RWMutex
	uploadDir string
	files     map[string]*models.FileRef
}

// NewLocalStore creates a new LocalStore.
func NewLocalStore(uploadDir string) (*LocalStore, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	return &LocalStore{
		uploadDir: uploadDir,
		files:     make(map[string]*models.FileRef),
	}, nil
}

// Save writes r to a new file and records its metadata. The content type is
// sniffed from the first bytes.
func (s *LocalStore) Save(name string, r io.Reader) (*models.FileRef, error) {
	id := uuid.New().String()
	path := filepath.Join(s.uploadDir, id)

	br := bufio.NewReaderSize(r, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, br)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}

	ref := &models.FileRef{
		ID:          id,
		Name:        name,
		ContentType: http.DetectContentType(head),
		Size:        size,
		UploadedAt:  time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = ref

	return ref, nil
}

// Get retrieves file metadata by ID.
func (s *LocalStore) Get(id string) (*models.FileRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", id)
	}

	return ref, nil
}

// Open returns a reader over the stored bytes. The caller closes it.
func (s *LocalStore) Open(id string) (io.ReadCloser, *models.FileRef, error) {
	ref, err := s.Get(id)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(filepath.Join(s.uploadDir, id))
	if err != nil {
		return nil, nil, fmt.Errorf("opening file: %w", err)
	}
	return f, ref, nil
}

// Delete removes a file from storage.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("file not found: %s", id)
	}

	path := filepath.Join(s.uploadDir, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}

	delete(s.files, id)
	return nil
}

// Count returns the number of stored files.
func (s *LocalStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}
