package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"winbridge/internal/constants"
	"winbridge/internal/migrations"
	"winbridge/internal/models"
)

// QueueStore persists the delivery queue log in SQLite.
// It satisfies the queue's Store contract: Load returns every record, Save upserts a full snapshot.
type QueueStore struct {
	db        *sqlx.DB
	encryptor *encryptor

	mu    sync.Mutex
	known map[string]struct{}
}

// New opens (creating if needed) the SQLite file at dbPath and applies the schema
func New(ctx context.Context, dbPath string, enc *encryptor) (*QueueStore, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}
	if enc == nil {
		enc = &encryptor{}
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, constants.QueueFileMode) // #nosec G304 - operator supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	schema, err := migrations.GetInitialSchema()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &QueueStore{db: db, encryptor: enc, known: make(map[string]struct{})}, nil
}

// Load returns every persisted record, oldest first
func (s *QueueStore) Load(ctx context.Context) ([]models.ScheduledMessage, error) {
	var records []models.ScheduledMessage
	err := retryableDBOperation(ctx, "load scheduled messages", func(ctx context.Context) error {
		records = records[:0]
		return s.db.SelectContext(ctx, &records, selectScheduledMessagesQuery)
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range records {
		body, err := s.encryptor.Decrypt(records[i].Body)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt message %s: %w", records[i].ID, err)
		}
		records[i].Body = body
		s.known[records[i].ID] = struct{}{}
	}
	return records, nil
}

// Save writes the snapshot in one transaction. New ids are inserted, known ids have their delivery state updated.
// Records absent from the snapshot are kept.
func (s *QueueStore) Save(ctx context.Context, records []models.ScheduledMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var inserted []string
	err := retryableDBOperation(ctx, "save scheduled messages", func(ctx context.Context) error {
		inserted = inserted[:0]
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		for _, rec := range records {
			if _, ok := s.known[rec.ID]; ok {
				if _, err := tx.NamedExecContext(ctx, updateScheduledMessageQuery, rec); err != nil {
					return fmt.Errorf("update %s: %w", rec.ID, err)
				}
				continue
			}

			row := rec
			body, err := s.encryptor.Encrypt(rec.Body)
			if err != nil {
				return fmt.Errorf("encrypt %s: %w", rec.ID, err)
			}
			row.Body = body
			if _, err := tx.NamedExecContext(ctx, insertScheduledMessageQuery, row); err != nil {
				return fmt.Errorf("insert %s: %w", rec.ID, err)
			}
			inserted = append(inserted, rec.ID)
		}
		return tx.Commit()
	})
	if err != nil {
		return err
	}

	for _, id := range inserted {
		s.known[id] = struct{}{}
	}
	return nil
}

// Count returns the number of persisted records
func (s *QueueStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, countScheduledMessagesQuery); err != nil {
		return 0, err
	}
	return n, nil
}

// Close releases the database handle
func (s *QueueStore) Close() error {
	return s.db.Close()
}
