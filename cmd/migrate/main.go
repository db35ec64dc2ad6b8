package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"winbridge/internal/constants"
	"winbridge/internal/database"
	"winbridge/internal/queue"
)

func main() {
	from := flag.String("from", constants.DefaultQueuePath, "JSON queue file to import")
	dbPath := flag.String("db", "./winbridge.db", "SQLite database to import into")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := os.Stat(*from); os.IsNotExist(err) {
		logger.Fatalf("Queue file not found: %s", *from)
	}

	imported, total, err := importQueue(ctx, *from, *dbPath)
	if err != nil {
		logger.Fatalf("Import failed: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"from":     *from,
		"db":       *dbPath,
		"imported": imported,
		"total":    total,
	}).Info("Queue import completed")
	fmt.Println("Set queue.backend to \"sqlite\" and queue.path to the database file, then restart winbridge.")
}

// importQueue copies records from a JSON queue file into the SQLite store.
// Records whose id already exists in the database are skipped, so reruns are safe.
func importQueue(ctx context.Context, from, dbPath string) (imported, total int, err error) {
	records, err := queue.NewFileStore(from).Load(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("load %s: %w", from, err)
	}

	enc, err := database.NewEncryptorFromEnv()
	if err != nil {
		return 0, 0, fmt.Errorf("initialize encryption: %w", err)
	}
	store, err := database.New(ctx, dbPath, enc)
	if err != nil {
		return 0, 0, err
	}
	defer store.Close()

	existing, err := store.Load(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("load database: %w", err)
	}
	seen := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		seen[rec.ID] = struct{}{}
	}

	fresh := records[:0]
	for _, rec := range records {
		if rec.ID == "" {
			continue
		}
		if _, ok := seen[rec.ID]; ok {
			continue
		}
		seen[rec.ID] = struct{}{}
		fresh = append(fresh, rec)
	}

	if len(fresh) > 0 {
		if err := store.Save(ctx, fresh); err != nil {
			return 0, 0, fmt.Errorf("save records: %w", err)
		}
	}

	total, err = store.Count(ctx)
	if err != nil {
		return len(fresh), 0, fmt.Errorf("count records: %w", err)
	}
	return len(fresh), total, nil
}
