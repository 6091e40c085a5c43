package session

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"prepflow/internal/config"
)

// Watcher re-scans a session directory whenever frames appear or disappear
// and publishes the updated summary.
type Watcher struct {
	watcher *fsnotify.Watcher
	log     *slog.Logger
	dir     string
	ses     config.Session

	Summaries chan Summary
	done      chan struct{}
}

// NewWatcher creates a watcher over the session's frame directories. Only
// directories that exist at creation time are watched.
func NewWatcher(dir string, ses config.Session, log *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:   fw,
		log:       log,
		dir:       dir,
		ses:       ses,
		Summaries: make(chan Summary, 8),
		done:      make(chan struct{}),
	}
	return w, nil
}

// Start adds the frame directories to the watch set and begins publishing.
func (w *Watcher) Start() error {
	for _, sub := range subDirs(w.ses) {
		path := filepath.Join(w.dir, sub)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := w.watcher.Add(path); err != nil {
			return err
		}
		w.log.Debug("watching frame directory", "path", path)
	}

	go w.processEvents()
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	close(w.Summaries)
	return w.watcher.Close()
}

func (w *Watcher) processEvents() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			switch {
			case event.Op&fsnotify.Create == fsnotify.Create:
			case event.Op&fsnotify.Remove == fsnotify.Remove:
			case event.Op&fsnotify.Rename == fsnotify.Rename:
			default:
				continue
			}
			if !IsFrameFile(event.Name) {
				continue
			}

			sum, err := Scan(w.dir, w.ses)
			if err != nil {
				w.log.Warn("session rescan failed", "error", err)
				continue
			}

			select {
			case <-w.done:
				return
			case w.Summaries <- sum:
			default:
				w.log.Warn("summary buffer full, dropping update", "dir", w.dir)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("session watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}
