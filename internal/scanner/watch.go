package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"

	"pendant/internal/logging"
	"pendant/internal/watcher"
)

// Watch follows the volume's target folder and calls notify, debounced by the
// settle interval, after files are created or written. It blocks until ctx
// ends. A missing folder or watch failure is returned immediately.
func (s *Scanner) Watch(ctx context.Context, volume watcher.Volume, notify func()) error {
	folder, ok, err := s.Folder(volume.MountPoint)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("target folder %q not present on %s", s.target, volume.MountPoint)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create folder watch: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(folder); err != nil {
		return fmt.Errorf("watch %s: %w", folder, err)
	}

	logger := s.logger.With(logging.String(logging.FieldDevice, volume.DeviceID))
	logger.Debug("watching target folder", logging.String("folder", folder))

	delay := s.settle
	if delay <= 0 {
		delay = time.Second
	}
	timer := time.NewTimer(delay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Write) {
				continue
			}
			if !s.Accepts(evt.Name) {
				continue
			}
			timer.Reset(delay)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("folder watch error; periodic rescans still apply",
				logging.Error(err),
				logging.String(logging.FieldEventType, "folder_watch_error"),
			)
		case <-timer.C:
			if notify != nil {
				notify()
			}
		}
	}
}
