package config

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
)

const debounceDelay = 500 * time.Millisecond

// Watcher watches a configuration file for changes and invokes onChange
// with the freshly reloaded config, debounced exactly the way the
// teacher's watchFiles/debounceDelay does for its own env-file watch.
type Watcher struct {
	path string
	watcher *fsnotify.Watcher
	onChange func(*Config)
	onError func(error)

	mu sync.Mutex
	timer *time.Timer
	done chan struct{}
}

// NewWatcher starts watching the directory containing path.
func NewWatcher(path string, onChange func(*Config), onError func(error)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	cw := &Watcher{
		path: path,
		watcher: w,
		onChange: onChange,
		onError: onError,
		done: make(chan struct{}),
	}
	go cw.loop()
	return cw, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.debounce()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.onError != nil {
				w.onError(err)
			}
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) debounce() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceDelay, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		slog.Warn("config reload failed; keeping previous configuration", slog.String("err", err.Error()))
		if w.onError != nil {
			w.onError(err)
		}
		return
	}
	w.onChange(cfg)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

// LoadEnvFiles loads each configured env file into the process
// environment via godotenv, grounded on the teacher's own
// examples/main.go setupEnvFiles. Missing files are logged and skipped,
// never fatal.
func LoadEnvFiles(paths []string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			slog.Warn("failed to load env file", slog.String("file", p), slog.String("err", err.Error()))
		}
	}
}
