// Package watch monitors configuration sources and publishes reload
// notifications when they change.
package watch

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/drivly/miniflare/internal/notify"
)

// debounce coalesces editor save bursts into one reload.
const debounce = 250 * time.Millisecond

// Watcher publishes a notify.ConfigReloaded notification when any of
// the watched files changes on disk.
type Watcher struct {
	watcher *fsnotify.Watcher
	bus     *notify.Bus
	log     zerolog.Logger
	files   map[string]bool

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	mu      sync.Mutex
}

// New creates a watcher for the given files, publishing to bus. The
// parent directories are watched so files that are replaced rather
// than rewritten (the common editor save strategy) are still seen.
func New(bus *notify.Bus, files []string, log zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	watched := make(map[string]bool, len(files))
	dirs := make(map[string]bool)
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			fsw.Close()
			return nil, err
		}
		watched[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	return &Watcher{
		watcher: fsw,
		bus:     bus,
		log:     log,
		files:   watched,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins watching in the background.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	var timer *time.Timer
	var pending string
	var fire <-chan time.Time

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil || !w.files[abs] {
				continue
			}
			pending = abs
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.log.Info().Str("file", pending).Msg("configuration changed, reloading")
			w.bus.Publish(notify.Notification{Type: notify.ConfigReloaded, Data: pending})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("watch error")
		}
	}
}

// Stop ends watching and waits for the background loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		w.watcher.Close()
		return
	}
	w.mu.Unlock()

	close(w.stopCh)
	w.watcher.Close()
	<-w.doneCh
}
