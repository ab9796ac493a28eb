package core

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/lumora-labs/chat-assistant/internal/store"
)

var allowedExtensions = map[string]bool{
	".txt":  true,
	".pdf":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

// UploadService stores user files under a single upload directory and, for
// documents, hands them to the indexer so answers can cite them. The indexer
// is nil in completion mode, where there is no document index.
type UploadService struct {
	dbStore   *store.SQLiteStore
	indexer   DocumentIndexer
	uploadDir string
}

func NewUploadService(db *store.SQLiteStore, indexer DocumentIndexer, uploadDir string) (*UploadService, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", uploadDir, err)
	}
	return &UploadService{
		dbStore:   db,
		indexer:   indexer,
		uploadDir: uploadDir,
	}, nil
}

// Accept validates and stores one uploaded file, indexes PDFs, and records
// the upload in the conversation history. The returned message is the
// synthetic history row; the string is the URL the file is served under.
//
// When the file was stored but indexing did not complete, the message and
// URL are still returned together with an error wrapping ErrIndexing.
func (s *UploadService) Accept(ctx context.Context, userID int64, filename string, src io.Reader) (*store.Message, string, error) {
	name := SanitizeFilename(filename)
	if name == "" {
		return nil, "", ErrNoFilename
	}

	ext := strings.ToLower(filepath.Ext(name))
	if !allowedExtensions[ext] {
		return nil, "", ErrBadExtension
	}

	storedName, path, err := s.reserveName(name, ext)
	if err != nil {
		return nil, "", err
	}

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create upload file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return nil, "", fmt.Errorf("failed to write upload file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return nil, "", fmt.Errorf("failed to flush upload file: %w", err)
	}

	var indexErr error
	if ext == ".pdf" && s.indexer != nil {
		if err := s.indexer.IndexDocument(ctx, userID, path); err != nil {
			log.Printf("Indexing failed for %s (user %d): %v", storedName, userID, err)
			indexErr = fmt.Errorf("%w: %v", ErrIndexing, err)
		}
	}

	fileURL := "/uploads/" + storedName
	msg := store.Message{
		UserID:  userID,
		Content: fmt.Sprintf("File uploaded: %s", fileURL),
		IsUser:  true,
	}
	if err := s.dbStore.CreateMessage(&msg); err != nil {
		return nil, "", fmt.Errorf("failed to store upload message: %w", err)
	}

	return &msg, fileURL, indexErr
}

// reserveName picks the on-disk name: the sanitized name when free,
// otherwise a short unique suffix before the extension. Existing files are
// never overwritten.
func (s *UploadService) reserveName(name, ext string) (string, string, error) {
	path := filepath.Join(s.uploadDir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return name, path, nil
	} else if err != nil {
		return "", "", fmt.Errorf("failed to stat upload path: %w", err)
	}

	base := strings.TrimSuffix(name, ext)
	unique := fmt.Sprintf("%s-%s%s", base, uuid.NewString()[:8], ext)
	return unique, filepath.Join(s.uploadDir, unique), nil
}

// Resolve maps a requested filename to its path inside the upload directory,
// rejecting anything that would escape it. Missing files report ErrNotFound
// from the store package so handlers can map them to 404.
func (s *UploadService) Resolve(name string) (string, error) {
	if name == "" || name != SanitizeFilename(name) {
		return "", store.ErrNotFound
	}
	path := filepath.Join(s.uploadDir, name)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", name, err)
	}
	if info.IsDir() {
		return "", store.ErrNotFound
	}
	return path, nil
}

// SanitizeFilename strips path components and collapses anything outside
// [A-Za-z0-9._-] so the result is always safe to join under the upload
// directory. The empty string means the name was unusable.
func SanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "\\", "/")
	filename = filepath.Base(filename)
	if filename == "." || filename == "/" {
		return ""
	}

	var b strings.Builder
	for _, r := range filename {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	// A name of only dots and underscores (e.g. "..") is not a real filename.
	if strings.Trim(b.String(), "._") == "" {
		return ""
	}
	return strings.TrimLeft(b.String(), ".")
}
