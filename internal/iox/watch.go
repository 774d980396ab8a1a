package iox

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/percodb/percodb/pkg"
)

// Watcher observes a query file and invokes onChange when it is written,
// debounced so an editor's multiple write events trigger one reload.
// Watching the parent directory instead of the file itself survives the
// rename-then-replace pattern most editors use.
type Watcher struct {
	fsw  *fsnotify.Watcher
	done chan struct{}
}

func WatchFile(path string, debounce time.Duration, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create file watcher")
	}

	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, errors.Wrapf(err, "failed to watch %s", dir)
	}

	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	w := &Watcher{fsw: fsw, done: make(chan struct{})}

	go func() {
		var pending *time.Timer
		target := filepath.Clean(path)

		for {
			select {
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(debounce, func() {
					pkg.InfoLog("query file", path, "changed, triggering reread")
					onChange()
				})
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				pkg.ErrorLog("query file watcher error:", err)
			case <-w.done:
				if pending != nil {
					pending.Stop()
				}
				return
			}
		}
	}()

	return w, nil
}

func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
