package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/mpapenbr/lapclock/log"
	"github.com/mpapenbr/lapclock/pkg/model"
)

func init() {
	Register(TypeFile, func(_ context.Context, cfg *Config) (Store, error) {
		return NewFileStore(cfg.File)
	})
}

// FileStore writes the snapshot as JSON file.
// Each save atomically replaces the file.
type FileStore struct {
	path string
	log  *log.Logger
}

var _ Store = (*FileStore)(nil)

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("file store: no path configured")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("file store: create dir: %w", err)
	}
	return &FileStore{
		path: path,
		log:  log.Default().Named("snapshot.file"),
	}, nil
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Save(_ context.Context, state *model.State) error {
	data, err := Encode(state)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("file store: write: %w", err)
	}
	s.log.Debug("snapshot written", log.String("path", s.path), log.Int("bytes", len(data)))
	return nil
}

func (s *FileStore) Load(_ context.Context) (*model.State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("file store: read: %w", err)
	}
	return Decode(data)
}

func (s *FileStore) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("file store: remove: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
