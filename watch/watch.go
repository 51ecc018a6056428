// Package watch runs a handler on every measurement file that lands in a
// directory, once the file has stopped changing.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultQuiet is how long a file must go without events before it is handled
const DefaultQuiet = 500 * time.Millisecond

// Watcher hands settled *.txt files in Dir to Handle, one at a time and each
// path at most once
type Watcher struct {
	Dir    string
	Handle func(path string) error
	Log    *zap.Logger

	// Quiet is the debounce interval; zero means DefaultQuiet
	Quiet time.Duration

	// Existing also handles the files already in Dir when Run starts
	Existing bool

	pending map[string]time.Time
	done    map[string]bool
}

func (w *Watcher) quiet() time.Duration {
	if w.Quiet <= 0 {
		return DefaultQuiet
	}
	return w.Quiet
}

func (w *Watcher) logger() *zap.Logger {
	if w.Log == nil {
		return zap.NewNop()
	}
	return w.Log
}

func wanted(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, ".txt") && !strings.HasPrefix(base, ".")
}

// Run watches until ctx is done.  Handler errors are logged and do not stop
// the watch.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.Dir); err != nil {
		return errors.Wrapf(err, "watching %s", w.Dir)
	}
	log := w.logger().With(zap.String("dir", w.Dir))
	log.Info("watching")

	w.pending = map[string]time.Time{}
	w.done = map[string]bool{}
	if w.Existing {
		entries, err := os.ReadDir(w.Dir)
		if err != nil {
			return err
		}
		old := time.Now().Add(-w.quiet())
		for _, e := range entries {
			if p := filepath.Join(w.Dir, e.Name()); !e.IsDir() && wanted(p) {
				w.pending[p] = old
			}
		}
	}

	tick := time.NewTicker(w.quiet() / 4)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("stopped watching")
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !wanted(ev.Name) || w.done[ev.Name] {
				continue
			}
			w.pending[ev.Name] = time.Now()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", zap.Error(err))
		case now := <-tick.C:
			w.flush(ctx, now, log)
		}
	}
}

// flush handles the pending files that have been quiet long enough, in name
// order
func (w *Watcher) flush(ctx context.Context, now time.Time, log *zap.Logger) {
	var ready []string
	for p, last := range w.pending {
		if now.Sub(last) >= w.quiet() {
			ready = append(ready, p)
		}
	}
	sort.Strings(ready)
	for _, p := range ready {
		if ctx.Err() != nil {
			return
		}
		delete(w.pending, p)
		w.done[p] = true
		if err := w.Handle(p); err != nil {
			log.Warn("handling file", zap.String("path", p), zap.Error(err))
			continue
		}
		log.Info("handled file", zap.String("path", p))
	}
}
