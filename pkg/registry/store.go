package registry

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/core-tools/hsu-devlauncher/pkg/errors"
)

// Store persists the registry as a whole
type Store interface {
	// Load returns an empty mapping when nothing has been saved yet
	Load() (Entries, error)
	// Save replaces the stored mapping atomically
	Save(entries Entries) error
}

// FileStore keeps the registry in a JSON document
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load() (Entries, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Entries{}, nil
	}
	if err != nil {
		return nil, errors.NewIOError("failed to read registry", err).WithContext("path", s.path)
	}
	if len(data) == 0 {
		return Entries{}, nil
	}

	entries := Entries{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.NewValidationError("registry document is corrupt", err).WithContext("path", s.path)
	}
	return entries, nil
}

func (s *FileStore) Save(entries Entries) error {
	if entries == nil {
		entries = Entries{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return errors.NewInternalError("failed to encode registry", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewIOError("failed to create registry directory", err).WithContext("directory", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.NewIOError("failed to create temporary registry file", err).WithContext("directory", dir)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.NewIOError("failed to write registry", err).WithContext("path", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.NewIOError("failed to flush registry", err).WithContext("path", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.NewIOError("failed to close registry", err).WithContext("path", tmpName)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return errors.NewIOError("failed to replace registry", err).WithContext("path", s.path)
	}
	return nil
}
