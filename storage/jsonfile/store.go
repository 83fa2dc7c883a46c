// Package jsonfile stores a definition collection as a single JSON document.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/cyp0633/calrecur/event"
	"github.com/cyp0633/calrecur/storage"
)

const formatVersion = 1

type document struct {
	Version int                `json:"version"`
	Events  []event.Definition `json:"events"`
}

// Store implements storage.Storage on top of one file. Every save rewrites
// the whole document through a temp file and a rename, so a crash never
// leaves a half-written collection behind.
type Store struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// New creates a store backed by path. The file does not need to exist yet.
func New(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{path: path, logger: logger}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) LoadAll(_ context.Context) ([]event.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &storage.Error{
			Type:    storage.ErrUnavailable,
			Message: "failed to read " + s.path,
			Err:     err,
		}
	}
	if len(data) == 0 {
		return nil, nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &storage.Error{
			Type:    storage.ErrInvalidInput,
			Message: "failed to decode " + s.path,
			Err:     err,
		}
	}
	if doc.Version > formatVersion {
		return nil, &storage.Error{
			Type:    storage.ErrInvalidInput,
			Message: fmt.Sprintf("unsupported format version %d", doc.Version),
		}
	}

	for _, d := range doc.Events {
		if err := d.Recurrence.Err(); err != nil {
			s.logger.Warn("recurrence rule degraded to fallback",
				"id", d.ID,
				"rule", d.Recurrence.String(),
				"error", err)
		}
	}
	s.logger.Debug("loaded definitions", "path", s.path, "count", len(doc.Events))
	return doc.Events, nil
}

func (s *Store) SaveAll(_ context.Context, defs []event.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if defs == nil {
		defs = []event.Definition{}
	}
	data, err := json.MarshalIndent(document{Version: formatVersion, Events: defs}, "", "  ")
	if err != nil {
		return &storage.Error{
			Type:    storage.ErrInvalidInput,
			Message: "failed to encode definitions",
			Err:     err,
		}
	}
	if err := writeAtomic(s.path, data); err != nil {
		return &storage.Error{
			Type:    storage.ErrUnavailable,
			Message: "failed to write " + s.path,
			Err:     err,
		}
	}
	s.logger.Debug("saved definitions", "path", s.path, "count", len(defs))
	return nil
}

// writeAtomic writes data to a temp file in the target directory and renames
// it over path.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calrecur-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
