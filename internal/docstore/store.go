package docstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pdfchat-core/server/internal/agent/model"
	logx "github.com/pdfchat-core/server/pkg/logger"
)

// ErrUnknownDocument is returned when a document id has no registry entry.
var ErrUnknownDocument = errors.New("unknown document id")

// supportedExtensions lists the file types the store tracks and indexes.
var supportedExtensions = map[string]bool{
	".pdf": true,
	".txt": true,
	".md":  true,
}

// Store manages uploaded documents on disk together with the id→filename
// registry. All registry mutations reconcile against the actual file set
// first, so stale entries disappear and new files gain ids.
type Store struct {
	dir string
	mu  sync.Mutex
}

type Config struct {
	Dir string `envconfig:"DOCS_DIR" default:"data/docs"`
}

func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("docs dir is empty")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create docs dir: %w", err)
	}
	return &Store{dir: cfg.Dir}, nil
}

// Dir returns the directory documents are stored in.
func (s *Store) Dir() string {
	return s.dir
}

// Supported reports whether the filename has an indexable extension.
func Supported(filename string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// ListFiles returns the filenames of all supported documents on disk.
func (s *Store) ListFiles() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read docs dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !Supported(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// FilePath resolves a stored filename to its absolute path inside the
// docs dir. The filename is reduced to its base name first so a caller
// can never escape the directory.
func (s *Store) FilePath(filename string) string {
	return filepath.Join(s.dir, filepath.Base(filename))
}

// ReadFile returns the raw bytes of a stored document.
func (s *Store) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(s.FilePath(filename))
}

// SaveUpload stores an uploaded document and registers it, returning the
// registry entry. Re-uploading the same filename keeps its id.
func (s *Store) SaveUpload(filename string, r io.Reader) (model.Document, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." {
		return model.Document{}, fmt.Errorf("invalid filename")
	}
	if !Supported(name) {
		return model.Document{}, fmt.Errorf("unsupported file type %q", filepath.Ext(name))
	}

	f, err := os.Create(s.FilePath(name))
	if err != nil {
		return model.Document{}, fmt.Errorf("create file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return model.Document{}, fmt.Errorf("write file: %w", err)
	}

	id, err := s.AddDocument(name)
	if err != nil {
		return model.Document{}, err
	}
	logx.Info().Str("filename", name).Str("doc_id", id).Msg("document stored")
	return model.Document{ID: id, Filename: name}, nil
}
