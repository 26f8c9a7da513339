package index

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// dirWatcher reports external changes to an index directory's descriptor
// and lock file, which may flip its status without going through us.
type dirWatcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

func watchDir(dir string, logger *slog.Logger, onChange func(name string)) (*dirWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}

	dw := &dirWatcher{watcher: w, done: make(chan struct{})}
	go dw.loop(logger, onChange)
	return dw, nil
}

func (dw *dirWatcher) loop(logger *slog.Logger, onChange func(name string)) {
	defer close(dw.done)
	for {
		select {
		case event, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			name := filepath.Base(event.Name)
			if name == metaName || name == lockName {
				onChange(name)
			}
		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("index_watch_error", slog.String("error", err.Error()))
		}
	}
}

// Close stops the watcher and waits for its goroutine to exit.
func (dw *dirWatcher) Close() error {
	err := dw.watcher.Close()
	<-dw.done
	return err
}
