// Package schemawatch reloads entity metadata when its file changes on disk.
package schemawatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/hylla/slate/internal/app"
	"github.com/hylla/slate/internal/schema"
)

// DefaultDebounce coalesces editor save bursts into one reload.
const DefaultDebounce = 150 * time.Millisecond

// Reloader rebuilds the live schema from declarations.
type Reloader interface {
	Reload(context.Context, []schema.EntityDeclaration) (app.SchemaUpdated, bool, error)
}

// Loader reads declarations for one metadata path.
type Loader func(path string) ([]schema.EntityDeclaration, error)

// Watcher observes one metadata file through its parent directory.
type Watcher struct {
	path     string
	reloader Reloader
	loader   Loader
	logger   *log.Logger
	debounce time.Duration
}

// Option customizes a Watcher.
type Option func(*Watcher)

// WithDebounce overrides the reload debounce window.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLoader overrides how declarations are read.
func WithLoader(loader Loader) Option {
	return func(w *Watcher) {
		if loader != nil {
			w.loader = loader
		}
	}
}

// New constructs a watcher for path.
func New(path string, reloader Reloader, logger *log.Logger, opts ...Option) (*Watcher, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("schema metadata path is required")
	}
	if reloader == nil {
		return nil, errors.New("schema reloader is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve schema metadata path: %w", err)
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	w := &Watcher{
		path:     filepath.Clean(abs),
		reloader: reloader,
		loader:   app.LoadDeclarations,
		logger:   logger,
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Path returns the watched metadata file.
func (w *Watcher) Path() string {
	return w.path
}

// Run blocks until ctx is done, reloading the schema after each settled change.
// The directory is watched so atomic-rename saves keep being observed.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.logger.Info("watching schema metadata", "path", w.path)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("schema metadata changed", "path", event.Name, "op", event.Op.String())
			timer.Reset(w.debounce)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("schema watcher error", "err", err)
		case <-timer.C:
			w.reload(ctx)
		}
	}
}

// relevant reports whether event touches the watched file.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove)
}

// reload parses the file and swaps the live schema; failures keep the previous document.
func (w *Watcher) reload(ctx context.Context) {
	decls, err := w.loader(w.path)
	if err != nil {
		w.logger.Error("schema metadata rejected; keeping previous schema", "path", w.path, "err", err)
		return
	}
	update, changed, err := w.reloader.Reload(ctx, decls)
	if err != nil {
		w.logger.Warn("schema reload finished with errors", "err", err)
	}
	if changed {
		w.logger.Info("schema reloaded", "hash", update.Hash)
	}
}
