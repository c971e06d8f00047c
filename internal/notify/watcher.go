package notify

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher calls onChange whenever the state file is rewritten, so that
// writes made by another process reach this process's observers.
type FileWatcher struct {
	path     string
	onChange func()
	log      *slog.Logger
	watcher  *fsnotify.Watcher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// WatchFile watches the directory holding path. The directory is created if
// it doesn't exist.
func WatchFile(path string, onChange func(), log *slog.Logger) (*FileWatcher, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: atomic renames replace the file's inode.
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	fw := &FileWatcher{
		path:     filepath.Clean(path),
		onChange: onChange,
		log:      log,
		watcher:  w,
		ctx:      ctx,
		cancel:   cancel,
	}
	fw.wg.Add(1)
	go fw.run()
	return fw, nil
}

func (fw *FileWatcher) Close() error {
	fw.cancel()
	err := fw.watcher.Close()
	fw.wg.Wait()
	return err
}

func (fw *FileWatcher) run() {
	defer fw.wg.Done()
	for {
		select {
		case <-fw.ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != fw.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				fw.onChange()
			}
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.log.Warn("state file watch error", slog.String("error", err.Error()))
		}
	}
}
