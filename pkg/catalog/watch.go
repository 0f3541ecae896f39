package catalog

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads c from path whenever the file is written, created or
// renamed into place, until ctx is done. An invalid file is logged and the
// previous catalog stays in effect.
//
// The parent directory is watched rather than the file so that editors and
// config management tools that replace the file atomically are picked up.
func Watch(ctx context.Context, path string, c *Catalog, logger *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	logger.Info("watching role catalog", zap.String("path", target))

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
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := reload(path, c); err != nil {
				logger.Error("role catalog reload failed", zap.String("path", target), zap.Error(err))
				continue
			}
			logger.Info("role catalog reloaded", zap.String("path", target))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("role catalog watcher error", zap.Error(err))
		}
	}
}

func reload(path string, c *Catalog) error {
	def, err := Load(path)
	if err != nil {
		return err
	}
	return c.Replace(def)
}
