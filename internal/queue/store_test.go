package queue

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"winbridge/internal/models"
)

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "none.json"))
	records, err := fs.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFileStore_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "scheduled_dms.json")
	fs := NewFileStore(path)

	records := []models.ScheduledMessage{
		{ID: "a", TargetUserID: "U1", DisplayName: "Ann", Body: "hi", Trigger: "7", CreatedAt: baseTime},
	}
	require.NoError(t, fs.Save(context.Background(), records))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	leftovers, err := filepath.Glob(path + ".tmp-*")
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	loaded, err := fs.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "Ann", loaded[0].DisplayName)
	assert.True(t, baseTime.Equal(loaded[0].CreatedAt))
}

func TestFileStore_EmptySnapshotWritesArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.json")
	fs := NewFileStore(path)
	require.NoError(t, fs.Save(context.Background(), nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestFileStore_EmptyFileIsEmptyLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.json")
	require.NoError(t, os.WriteFile(path, nil, 0600))

	records, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}
