package config

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/turtacn/lspbridge/pkg/protocol"
)

const debounceInterval = 250 * time.Millisecond

// Watch reloads the store whenever the writable config file changes and
// calls onChange with the new snapshot. It blocks until ctx is done.
//
// The parent directory is watched rather than the file itself so that
// editors which replace the file on save are still observed.
func (s *Store) Watch(ctx context.Context, onChange func(protocol.Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := w.Add(dir); err != nil {
		return err
	}

	target := filepath.Clean(s.path)
	var debounce <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce = time.After(debounceInterval)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("config watcher error", "err", err)
		case <-debounce:
			debounce = nil
			if err := s.Reload(); err != nil {
				s.log.Error("config reload failed", "err", err)
				continue
			}
			s.log.Info("configuration reloaded", "file", s.path)
			if onChange != nil {
				onChange(s.Config())
			}
		}
	}
}

// Personal.AI order the ending
