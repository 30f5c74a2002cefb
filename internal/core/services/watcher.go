package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/corpora/internal/core/ports/driving"
	"github.com/custodia-labs/corpora/internal/logger"
)

// watchDebounce coalesces the burst of write events an editor produces
// while saving a file.
const watchDebounce = 500 * time.Millisecond

// Watcher auto-ingests files created or modified under a directory.
type Watcher struct {
	ingest driving.IngestService

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcher creates a watcher that feeds events into ingest.
func NewWatcher(ingest driving.IngestService) *Watcher {
	return &Watcher{
		ingest:  ingest,
		pending: make(map[string]*time.Timer),
	}
}

// Watch ingests supported files as they appear or change under dir,
// until ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context, dir string) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	logger.Info("Watching %s for new documents", dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !supportedExtensions[strings.ToLower(filepath.Ext(event.Name))] {
				continue
			}
			w.schedule(ctx, event.Name)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error: %v", err)
		}
	}
}

// schedule (re)arms the debounce timer for path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}

	w.pending[path] = time.AfterFunc(watchDebounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		if _, err := w.ingest.IngestFile(ctx, path, false); err != nil {
			logger.Warn("Auto-ingest of %s failed: %v", path, err)
		}
	})
}
