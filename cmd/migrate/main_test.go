package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"winbridge/internal/database"
)

const legacyQueue = `[
  {"id":"111_7_1700000000000","discordUserId":"111","userName":"Ann","coachName":"Sam","message":"Hey Ann!","count":7,"sent":true,"sentAt":"2024-01-02T03:04:05.000Z"},
  {"id":"222_30_1700000000001","discordUserId":"222","userName":"Bo","message":"Bo! 30 days","count":30,"sent":false}
]`

func TestImportQueue(t *testing.T) {
	t.Setenv(database.EncryptionSecretEnv, "")
	dir := t.TempDir()
	from := filepath.Join(dir, "scheduled_dms.json")
	dbPath := filepath.Join(dir, "winbridge.db")
	require.NoError(t, os.WriteFile(from, []byte(legacyQueue), 0o600))

	imported, total, err := importQueue(context.Background(), from, dbPath)
	require.NoError(t, err)
	assert.Equal(t, 2, imported)
	assert.Equal(t, 2, total)

	store, err := database.New(context.Background(), dbPath, nil)
	require.NoError(t, err)
	records, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	byID := make(map[string]string)
	for _, rec := range records {
		byID[rec.ID] = rec.Trigger
	}
	assert.Equal(t, "7", byID["111_7_1700000000000"])
	assert.Equal(t, "30", byID["222_30_1700000000001"])

	imported, total, err = importQueue(context.Background(), from, dbPath)
	require.NoError(t, err)
	assert.Equal(t, 0, imported, "rerun must not duplicate records")
	assert.Equal(t, 2, total)
}

func TestImportQueue_BadFile(t *testing.T) {
	dir := t.TempDir()
	from := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(from, []byte("{not json"), 0o600))

	_, _, err := importQueue(context.Background(), from, filepath.Join(dir, "db.sqlite"))
	assert.Error(t, err)
}
