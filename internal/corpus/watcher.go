package corpus

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"eventsearch/internal/logging"
)

// Watcher invokes a callback when the corpus file changes on disk. Editors
// and scrapers tend to emit bursts of write events, so changes are debounced
// before the callback fires.
type Watcher struct {
	fw   *fsnotify.Watcher
	done chan struct{}
}

// Watch starts watching path. onChange runs on the watcher goroutine after
// the debounce window closes; it should hand off long work elsewhere.
func Watch(path string, debounce time.Duration, onChange func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: many tools replace the file on save, which drops
	// a watch registered on the file itself.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	w := &Watcher{fw: fw, done: make(chan struct{})}
	go w.run(filepath.Base(path), debounce, onChange)
	return w, nil
}

func (w *Watcher) run(name string, debounce time.Duration, onChange func()) {
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			logging.Debug("corpus", "change detected: %s", ev)
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			onChange()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			logging.Warn("corpus", "watcher error: %v", err)
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fw.Close()
}
