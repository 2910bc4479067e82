// manager_test.go - Tests for storage layer
package storage

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// 1x1 transparent PNG.
var pngBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func createTestStore(t *testing.T) *LocalStore {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func TestNewLocalStore(t *testing.T) {
	t.Run("creates upload directory", func(t *testing.T) {
		uploadDir := filepath.Join(t.TempDir(), "uploads")

		store, err := NewLocalStore(uploadDir)
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}

		if _, err := os.Stat(uploadDir); os.IsNotExist(err) {
			t.Error("Expected upload directory to be created")
		}
		if store.Count() != 0 {
			t.Errorf("Expected empty store, got %d files", store.Count())
		}
	})
}

func TestLocalStore_Save(t *testing.T) {
	t.Run("saves file from reader", func(t *testing.T) {
		store := createTestStore(t)

		content := "Hello, World!"
		ref, err := store.Save("notes.txt", strings.NewReader(content))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		if ref.ID == "" {
			t.Error("Expected ID to be set")
		}
		if ref.Name != "notes.txt" {
			t.Errorf("Expected name 'notes.txt', got %v", ref.Name)
		}
		if ref.Size != int64(len(content)) {
			t.Errorf("Expected size %d, got %d", len(content), ref.Size)
		}
		if !strings.HasPrefix(ref.ContentType, "text/plain") {
			t.Errorf("Expected text/plain content type, got %s", ref.ContentType)
		}
	})

	t.Run("sniffs image content type", func(t *testing.T) {
		store := createTestStore(t)

		ref, err := store.Save("pixel.png", bytes.NewReader(pngBytes))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}
		if ref.ContentType != "image/png" {
			t.Errorf("Expected image/png, got %s", ref.ContentType)
		}
	})

	t.Run("saves file larger than the sniff window", func(t *testing.T) {
		store := createTestStore(t)

		data := bytes.Repeat([]byte("a"), 3*sniffLen+7)
		ref, err := store.Save("big.txt", bytes.NewReader(data))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		saved, err := os.ReadFile(filepath.Join(store.uploadDir, ref.ID))
		if err != nil {
			t.Fatalf("Failed to read saved file: %v", err)
		}
		if !bytes.Equal(saved, data) {
			t.Error("Saved data doesn't match original")
		}
	})

	t.Run("saves empty file", func(t *testing.T) {
		store := createTestStore(t)

		ref, err := store.Save("empty.txt", strings.NewReader(""))
		if err != nil {
			t.Fatalf("Failed to save empty file: %v", err)
		}
		if ref.Size != 0 {
			t.Errorf("Expected size 0, got %d", ref.Size)
		}
	})
}

func TestLocalStore_Open(t *testing.T) {
	t.Run("reads back stored bytes", func(t *testing.T) {
		store := createTestStore(t)

		ref, err := store.Save("pixel.png", bytes.NewReader(pngBytes))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		rc, got, err := store.Open(ref.ID)
		if err != nil {
			t.Fatalf("Failed to open file: %v", err)
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("Failed to read file: %v", err)
		}
		if !bytes.Equal(data, pngBytes) {
			t.Error("Opened data doesn't match original")
		}
		if got.Name != "pixel.png" {
			t.Errorf("Expected name pixel.png, got %s", got.Name)
		}
	})

	t.Run("returns error for non-existent file", func(t *testing.T) {
		store := createTestStore(t)

		if _, _, err := store.Open("missing"); err == nil {
			t.Error("Expected error for non-existent file")
		}
	})
}

func TestLocalStore_Delete(t *testing.T) {
	t.Run("removes metadata and bytes", func(t *testing.T) {
		store := createTestStore(t)

		ref, err := store.Save("doc.pdf", strings.NewReader("%PDF-1.4"))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		if err := store.Delete(ref.ID); err != nil {
			t.Fatalf("Failed to delete file: %v", err)
		}

		if _, err := store.Get(ref.ID); err == nil {
			t.Error("Expected metadata to be gone")
		}
		if _, err := os.Stat(filepath.Join(store.uploadDir, ref.ID)); !os.IsNotExist(err) {
			t.Error("Expected physical file to be removed")
		}
	})

	t.Run("returns error for non-existent file", func(t *testing.T) {
		store := createTestStore(t)

		if err := store.Delete("missing"); err == nil {
			t.Error("Expected error for non-existent file")
		}
	})
}
