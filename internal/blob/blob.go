// Package blob stores uploaded files on local disk under generated names.
package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/oleg-messenger/oleg/internal/apperr"
	"github.com/oleg-messenger/oleg/internal/crypto"
	"github.com/oleg-messenger/oleg/internal/models"
)

// MaxSize is the largest accepted upload.
const MaxSize = 10 << 20

// URLPrefix is the public path files are served under.
const URLPrefix = "/files/"

var allowedExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
	".pdf": true, ".doc": true, ".docx": true, ".txt": true,
}

// Meta describes an upload.
type Meta struct {
	Name string
	Type string
}

// Store keeps blobs in a directory.
type Store struct {
	dir string
}

// New creates a store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes data and returns an attachment pointing at it.
func (s *Store) Save(_ context.Context, data []byte, meta Meta) (*models.Attachment, error) {
	name := filepath.Base(strings.TrimSpace(meta.Name))
	ext := strings.ToLower(filepath.Ext(name))
	if name == "." || name == "/" || ext == "" {
		return nil, apperr.Invalid("file name with an extension is required")
	}
	if !allowedExtensions[ext] {
		return nil, apperr.Invalid(fmt.Sprintf("file type %s is not allowed", ext))
	}
	if len(data) == 0 {
		return nil, apperr.Invalid("file is empty")
	}
	if len(data) > MaxSize {
		return nil, apperr.Invalid("file is larger than 10MB")
	}

	stored := crypto.NewULID() + ext
	if err := os.WriteFile(filepath.Join(s.dir, stored), data, 0o644); err != nil {
		return nil, fmt.Errorf("save %s: %w", name, err)
	}
	return &models.Attachment{
		Name: name,
		URL:  URLPrefix + stored,
		Type: meta.Type,
		Size: int64(len(data)),
	}, nil
}

// Path resolves a stored name to its file, rejecting anything outside the store.
func (s *Store) Path(name string) (string, error) {
	if name == "" || name != path.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("file %q: %w", name, apperr.ErrNotFound)
	}
	return filepath.Join(s.dir, name), nil
}

// Open returns the contents behind a URL produced by Save.
func (s *Store) Open(_ context.Context, url string) ([]byte, error) {
	p, err := s.Path(strings.TrimPrefix(url, URLPrefix))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("file %q: %w", url, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", url, err)
	}
	return data, nil
}
