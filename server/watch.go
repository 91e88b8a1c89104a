package server

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
	"github.com/YuminosukeSato/titanic-survival/pkg/log"
)

// reloadDebounce is how long the artifact must stay quiet before it is reloaded.
const reloadDebounce = 250 * time.Millisecond

// watchModel reloads the model whenever the file at path is written,
// created or renamed into place. It returns when ctx is done.
func (s *Server) watchModel(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return perrors.Wrap(err, "create model watcher")
	}
	defer watcher.Close()

	// watch the directory: atomic replacement swaps the inode under the file name
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return perrors.Wrapf(err, "create model directory %s", dir)
	}
	if err := watcher.Add(dir); err != nil {
		return perrors.Wrapf(err, "watch %s", dir)
	}
	target := filepath.Clean(path)
	s.logger.Info("Watching model artifact", log.PathKey, target)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending = time.After(reloadDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("Model watcher error", err)
		case <-pending:
			pending = nil
			s.reload(target)
		}
	}
}

func (s *Server) reload(path string) {
	err := s.holder.Load(path)
	s.metrics.observeReload(err)
	if err != nil {
		s.logger.Warn("Model reload failed, keeping the current model", err, log.PathKey, path)
		return
	}
	s.logger.Info("Model reloaded", log.PathKey, path)
}
