// ABOUTME: Hot reload of the prompt file via fsnotify
// ABOUTME: Watches the parent directory so editor rename-and-replace saves are seen

package prompts

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events a single save produces.
const reloadDebounce = 100 * time.Millisecond

// Watch reloads the templates whenever the file changes. It blocks until ctx
// is cancelled. A file that fails to parse is logged and the previous set kept.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	target, err := filepath.Abs(s.path)
	if err != nil {
		return fmt.Errorf("resolving prompt path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(target), err)
	}
	s.logger.Info("watching prompt file", "path", target)

	timer := time.NewTimer(reloadDebounce)
	timer.Stop()
	defer timer.Stop()

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
				timer.Reset(reloadDebounce)
			}

		case <-timer.C:
			if err := s.Reload(); err != nil {
				s.logger.Warn("prompt reload failed, keeping previous templates", "error", err)
				continue
			}
			s.logger.Info("prompts reloaded", "count", len(s.Names()))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("prompt watcher error", "error", err)
		}
	}
}
