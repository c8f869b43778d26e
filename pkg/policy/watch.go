package policy

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/assembly-hq/assembly/pkg/observability"
)

// Watch reloads the set whenever the policy file changes, until the context
// is cancelled. A reload failure keeps the last good policy set. Editors
// that replace files atomically emit Create/Rename events, so the parent
// directory is watched rather than the file itself.
func (s *Set) Watch(ctx context.Context, path string, logger *observability.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create policy watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch policy directory %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := s.Reload(path); err != nil {
					logger.WithError(err).Warn("policy reload failed, keeping previous policies")
					continue
				}
				logger.WithField("path", path).Info("policy reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("policy watcher error")
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}
