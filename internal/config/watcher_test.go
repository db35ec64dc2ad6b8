package config

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestTemplateWatcher_MissingFile(t *testing.T) {
	w := NewTemplateWatcher(filepath.Join(t.TempDir(), "missing.yaml"), 10*time.Millisecond, quietLogger())
	assert.Error(t, w.Start(context.Background()))
}

func TestTemplateWatcher_DefaultInterval(t *testing.T) {
	w := NewTemplateWatcher("x", 0, quietLogger())
	assert.Equal(t, defaultWatchInterval, w.interval)
}

func TestTemplateWatcher_NotifiesOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("7: hi"), 0600))

	w := NewTemplateWatcher(path, 10*time.Millisecond, quietLogger())

	var calls atomic.Int32
	w.OnChange(func(p string) error {
		assert.Equal(t, path, p)
		calls.Add(1)
		return nil
	})
	w.OnChange(func(string) error { return errors.New("bad template") })
	w.OnChange(func(string) error { panic("boom") })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("7: hello there"), 0600))
	future := time.Now().Add(time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}
