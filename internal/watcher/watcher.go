// Package watcher feeds the pipeline from a drop directory: recipe HTML
// files written or changed under the watched dir are submitted as imports.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/skillet/internal/common"
	"github.com/ternarybob/skillet/internal/models"
)

// Submitter is the slice of the imports service the watcher needs
type Submitter interface {
	Submit(ctx context.Context, source, content string, options models.PipelineOptions) (*models.ImportRecord, error)
}

// Watcher watches the drop directory and submits new or changed HTML files.
// A content hash per path suppresses editor save storms and atomic-rename
// rewrites that do not change the file.
type Watcher struct {
	dir      string
	patterns []string
	debounce time.Duration

	submitter Submitter
	fsw       *fsnotify.Watcher
	logger    arbor.ILogger

	pendingMu sync.Mutex
	pending   map[string]struct{}

	hashMu sync.Mutex
	hashes map[string]string

	wg   sync.WaitGroup
	stop context.CancelFunc
}

// New creates a watcher from config. The directory is created if missing.
func New(config *common.WatcherConfig, submitter Submitter, logger arbor.ILogger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	patterns := config.IncludePatterns
	if len(patterns) == 0 {
		patterns = []string{"**/*.html"}
	}

	return &Watcher{
		dir:       config.Dir,
		patterns:  patterns,
		debounce:  common.Duration(config.DebounceDelay, 500*time.Millisecond),
		submitter: submitter,
		fsw:       fsw,
		logger:    logger,
		pending:   make(map[string]struct{}),
		hashes:    make(map[string]string),
	}, nil
}

// Start begins watching. Files already present in the directory are
// submitted once on startup so a pre-filled drop dir is not ignored.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return err
	}
	if err := w.addWatchesRecursive(w.dir); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	w.stop = cancel

	w.enqueueExisting()

	w.wg.Add(1)
	go w.run(ctx)

	w.logger.Info().
		Str("dir", w.dir).
		Strs("patterns", w.patterns).
		Str("debounce", w.debounce.String()).
		Msg("Import watcher started")
	return nil
}

// Stop halts the watcher and waits for the run loop to exit
func (w *Watcher) Stop() error {
	if w.stop != nil {
		w.stop()
	}
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Watcher error")

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addWatchesRecursive(event.Name); err != nil {
				w.logger.Warn().Err(err).Str("path", event.Name).Msg("Failed to watch new directory")
			}
			return
		}
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}
	if !w.matches(event.Name) {
		return
	}

	w.pendingMu.Lock()
	w.pending[event.Name] = struct{}{}
	w.pendingMu.Unlock()
}

// flushPending submits every path that settled since the last tick
func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()

	for _, path := range paths {
		w.submitFile(ctx, path)
	}
}

func (w *Watcher) submitFile(ctx context.Context, path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn().Err(err).Str("path", path).Msg("Failed to read dropped file")
		}
		return
	}
	if len(content) == 0 {
		return
	}

	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])
	w.hashMu.Lock()
	previous := w.hashes[path]
	w.hashes[path] = hash
	w.hashMu.Unlock()
	if previous == hash {
		w.logger.Debug().Str("path", path).Msg("Unchanged file skipped")
		return
	}

	source := filepath.Base(path)
	if rel, err := filepath.Rel(w.dir, path); err == nil {
		source = rel
	}

	record, err := w.submitter.Submit(ctx, source, string(content), models.PipelineOptions{})
	if err != nil {
		w.logger.Error().Err(err).Str("path", path).Msg("Failed to submit dropped file")
		return
	}
	w.logger.Info().
		Str("path", path).
		Str("import_id", record.ImportID).
		Msg("Dropped file submitted")
}

// enqueueExisting marks every matching file already on disk as pending
func (w *Watcher) enqueueExisting() {
	_ = filepath.Walk(w.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if w.matches(path) {
			w.pendingMu.Lock()
			w.pending[path] = struct{}{}
			w.pendingMu.Unlock()
		}
		return nil
	})
}

func (w *Watcher) matches(path string) bool {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range w.patterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if strings.HasPrefix(base, ".") && base != "." {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch directory")
		}
		return nil
	})
}
