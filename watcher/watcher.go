// Package watcher wakes the adapter when the local config file changes on
// disk, so local mode does not have to wait for the next poll tick.
package watcher

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Watcher observes a single file through its parent directory. Watching the
// directory survives editors that save by rename.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
}

// New starts watching the directory containing path. Events begin queueing
// immediately, before Run is called.
func New(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve watch path")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create file watcher")
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close() //nolint:errcheck
		return nil, errors.Wrapf(err, "failed to watch %s", filepath.Dir(abs))
	}
	return &Watcher{path: abs, watcher: w}, nil
}

// Run calls wake for every write or create of the watched file until ctx is
// cancelled. The underlying watcher is closed on return.
func (w *Watcher) Run(ctx context.Context, wake func()) error {
	defer w.watcher.Close() //nolint:errcheck

	zap.L().Info("watching local config for changes", zap.String("path", w.path))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			zap.L().Debug("local config changed",
				zap.String("path", w.path),
				zap.String("op", event.Op.String()))
			wake()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			zap.L().Error("file watcher error", zap.Error(err))
		}
	}
}

// Watch is New followed by Run.
func Watch(ctx context.Context, path string, wake func()) error {
	w, err := New(path)
	if err != nil {
		return err
	}
	return w.Run(ctx, wake)
}
