// Package ingest watches a recording drop folder and turns finished
// audio files into takes on a target track.
package ingest

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"comproom/core/comp"
	"comproom/logger"

	"github.com/fsnotify/fsnotify"
)

// audioExts are the file types accepted from the drop folder.
var audioExts = map[string]bool{
	".wav":  true,
	".aif":  true,
	".aiff": true,
	".flac": true,
	".mp3":  true,
}

// Watcher ingests dropped recordings as takes. Files are debounced
// until they stop growing so half-written recordings are not decoded.
type Watcher struct {
	engine  *comp.Engine
	trackID string
	dir     string
	settle  time.Duration

	mu      sync.Mutex
	pending map[string]time.Time // path -> last write seen
	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
	started bool
}

// NewWatcher builds a drop-folder watcher feeding one track.
func NewWatcher(engine *comp.Engine, trackID, dir string, settle time.Duration) *Watcher {
	if settle <= 0 {
		settle = 500 * time.Millisecond
	}
	return &Watcher{
		engine:  engine,
		trackID: trackID,
		dir:     dir,
		settle:  settle,
		pending: make(map[string]time.Time),
		done:    make(chan struct{}),
	}
}

// Start begins watching. Calling Start twice is an error on the second
// call's watcher, so it is guarded.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = true
	w.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return err
	}
	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()

	go w.run(ctx, watcher)
	logger.Info("drop folder watch started",
		logger.String("dir", w.dir),
		logger.String("track", w.trackID))
	return nil
}

// Stop ends the watch. Idempotent.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.watcher != nil {
			w.watcher.Close()
		}
		w.mu.Unlock()
	})
}

func (w *Watcher) run(ctx context.Context, watcher *fsnotify.Watcher) {
	ticker := time.NewTicker(w.settle)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !audioExts[strings.ToLower(filepath.Ext(event.Name))] {
				continue
			}
			w.mu.Lock()
			w.pending[event.Name] = time.Now()
			w.mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("drop folder watch error", logger.ErrorField(err))

		case <-ticker.C:
			w.ingestSettled(ctx)
		}
	}
}

// ingestSettled decodes files that have been quiet for a full settle
// window.
func (w *Watcher) ingestSettled(ctx context.Context) {
	now := time.Now()

	w.mu.Lock()
	ready := make([]string, 0, len(w.pending))
	for path, last := range w.pending {
		if now.Sub(last) >= w.settle {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		take, err := w.engine.AddTake(ctx, w.trackID, name, nil, path, 0)
		if err != nil {
			logger.Warn("drop ingest failed",
				logger.ErrorField(err),
				logger.String("file", path))
			continue
		}
		logger.Info("take ingested from drop folder",
			logger.String("file", path),
			logger.String("take", take.ID))
	}
}
