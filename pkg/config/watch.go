package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 200 * time.Millisecond

// Watch monitors the config file and calls onChange with the freshly loaded
// server map whenever it is written or replaced. Events are debounced because
// editors and atomic saves produce bursts. Blocks until ctx is cancelled.
//
// The parent directory is watched rather than the file itself: atomic saves
// replace the inode, which would silently detach a file-level watch.
func (f *File) Watch(ctx context.Context, onChange func(map[string]ServerConfig)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(f.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	base := filepath.Base(f.path)

	var (
		mu            sync.Mutex
		debounceTimer *time.Timer
	)

	fire := func() {
		servers, err := f.Reload()
		if err != nil {
			// A half-written file shows up as a parse error; the next
			// write will fire again.
			return
		}
		onChange(servers)
	}

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			mu.Unlock()
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			mu.Lock()
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(watchDebounce, fire)
			mu.Unlock()

		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}
