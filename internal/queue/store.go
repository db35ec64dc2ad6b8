package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"winbridge/internal/constants"
	"winbridge/internal/models"
)

// Store persists the full queue log. Save receives the complete snapshot on every mutation.
type Store interface {
	Load(ctx context.Context) ([]models.ScheduledMessage, error)
	Save(ctx context.Context, records []models.ScheduledMessage) error
	Close() error
}

// FileStore keeps the log as a JSON array, rewritten atomically via temp file and rename
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path. The file is created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the log. A missing or empty file is an empty log.
// An unparseable file is moved aside so the next save cannot overwrite it.
func (s *FileStore) Load(ctx context.Context) ([]models.ScheduledMessage, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read queue file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var records []models.ScheduledMessage
	if err := json.Unmarshal(data, &records); err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
		if renameErr := os.Rename(s.path, aside); renameErr != nil {
			return nil, fmt.Errorf("failed to parse queue file: %w (and could not move it aside: %v)", err, renameErr)
		}
		return nil, fmt.Errorf("failed to parse queue file, moved to %s: %w", aside, err)
	}
	return records, nil
}

// Save writes the snapshot to a temp file in the same directory, syncs it and renames it over the log
func (s *FileStore) Save(ctx context.Context, records []models.ScheduledMessage) error {
	if records == nil {
		records = []models.ScheduledMessage{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode queue: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create queue directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := tmp.Chmod(constants.QueueFileMode); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to set queue file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write queue: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync queue: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace queue file: %w", err)
	}
	return nil
}

// Close is a no-op; the file is not held open between writes
func (s *FileStore) Close() error {
	return nil
}
