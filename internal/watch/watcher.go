// Package watch turns filesystem events below the source root into early
// wake-ups for the sync loop.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Ning0612/mirrorsync/internal/logger"
)

// DefaultDebounce is the quiet period after the last event before a wake-up
const DefaultDebounce = 500 * time.Millisecond

// Watcher observes a directory tree and signals on Trigger after a burst of
// changes has settled. Signals coalesce: at most one is pending at a time.
type Watcher struct {
	root     string
	debounce time.Duration
	log      logger.Logger
	trigger  chan struct{}
}

// New creates a Watcher for root
func New(root string, debounce time.Duration, log logger.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		root:     root,
		debounce: debounce,
		log:      logger.OrNull(log),
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger is signalled once changes below root have settled
func (w *Watcher) Trigger() <-chan struct{} {
	return w.trigger
}

// Run watches until ctx is cancelled. Directories created while running are
// added to the watch set.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.root); err != nil {
		return err
	}
	w.log.Debug("watching source", "root", w.root)

	var settle *time.Timer
	var settled <-chan time.Time
	defer func() {
		if settle != nil {
			settle.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(fw, event.Name); err != nil {
						w.log.Warn("failed to watch new directory", "path", event.Name, "error", err)
					}
				}
			}

			if settle == nil {
				settle = time.NewTimer(w.debounce)
			} else {
				settle.Reset(w.debounce)
			}
			settled = settle.C

		case <-settled:
			settled = nil
			select {
			case w.trigger <- struct{}{}:
			default:
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "error", err)
		}
	}
}

// addTree adds root and every directory below it
func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("failed to watch %s: %w", root, err)
			}
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if err := fw.Add(path); err != nil {
			if path == root {
				return fmt.Errorf("failed to watch %s: %w", root, err)
			}
			w.log.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}
