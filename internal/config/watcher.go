package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces the burst of write events one save
// from an editor typically produces into a single reload.
const DefaultWatchDebounce = 100 * time.Millisecond

// Watcher watches a config file and reloads it on change, publishing
// the parsed Config to OnChange. This is a convenience layer only --
// the authoritative live-adjustment path is the Signal Bus's "adjust"
// signal (a database row); a config-file edit here just gives a local
// operator the same effect without hand-crafting a signal row.
type Watcher struct {
	path     string
	debounce time.Duration
	fsw      *fsnotify.Watcher
	done     chan struct{}

	mu       sync.Mutex
	timer    *time.Timer
	OnChange func(*Config)
	OnError  func(error)
}

// NewWatcher starts watching path's containing directory (fsnotify
// does not support watching a single non-existent-yet file reliably
// across editors that write-then-rename) and reloads Config whenever
// path itself changes.
func NewWatcher(path string, onChange func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     filepath.Clean(path),
		debounce: DefaultWatchDebounce,
		fsw:      fsw,
		done:      make(chan struct{}),
		OnChange: onChange,
	}

	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.OnError != nil {
				w.OnError(err)
			}
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		if w.OnError != nil {
			w.OnError(err)
		}
		return
	}
	if w.OnChange != nil {
		w.OnChange(cfg)
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
