package config

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultWatchInterval = 5 * time.Second

// TemplateWatcher polls a file for modification and notifies listeners with its path
type TemplateWatcher struct {
	path      string
	interval  time.Duration
	logger    *logrus.Logger
	mu        sync.RWMutex
	callbacks []func(path string) error
}

// NewTemplateWatcher creates a watcher for path. A non-positive interval uses the default of 5s.
func NewTemplateWatcher(path string, interval time.Duration, logger *logrus.Logger) *TemplateWatcher {
	if interval <= 0 {
		interval = defaultWatchInterval
	}
	return &TemplateWatcher{
		path:     path,
		interval: interval,
		logger:   logger,
	}
}

// OnChange registers a callback invoked after the file changes. Errors are logged.
func (tw *TemplateWatcher) OnChange(callback func(path string) error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.callbacks = append(tw.callbacks, callback)
}

// Start polls until ctx is done. It fails only if the file cannot be stat'ed at startup.
func (tw *TemplateWatcher) Start(ctx context.Context) error {
	stat, err := os.Stat(tw.path)
	if err != nil {
		return err
	}
	lastModTime := stat.ModTime()
	lastSize := stat.Size()

	tw.logger.WithField("path", tw.path).Info("Template watcher started")

	ticker := time.NewTicker(tw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			tw.logger.Info("Template watcher stopping")
			return nil
		case <-ticker.C:
			stat, err := os.Stat(tw.path)
			if err != nil {
				tw.logger.WithError(err).Warn("Failed to stat template file")
				continue
			}
			if stat.ModTime().Equal(lastModTime) && stat.Size() == lastSize {
				continue
			}
			lastModTime = stat.ModTime()
			lastSize = stat.Size()
			tw.notify()
		}
	}
}

func (tw *TemplateWatcher) notify() {
	tw.mu.RLock()
	callbacks := make([]func(string) error, len(tw.callbacks))
	copy(callbacks, tw.callbacks)
	tw.mu.RUnlock()

	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					tw.logger.WithField("panic", r).Error("Template change callback panicked")
				}
			}()
			if err := cb(tw.path); err != nil {
				tw.logger.WithError(err).WithField("path", tw.path).Error("Failed to reload templates")
				return
			}
			tw.logger.WithField("path", tw.path).Info("Templates reloaded successfully")
		}()
	}
}
