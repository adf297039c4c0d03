package inventory

import (
	"context"
	"path/filepath"
	"time"

	"github.com/frudas24/farmdeck/internal/logging"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

const reloadDelay = 100 * time.Millisecond

// Watch reloads reg whenever the inventory file at path changes, until ctx is done.
// A file that fails to load leaves the registry unchanged.
func Watch(ctx context.Context, path string, reg *Registry) error {
	log := logging.For("inventory")
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	defer w.Close()

	// Watch the directory so editors that replace the file are still seen.
	target := filepath.Clean(path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return errors.Wrapf(err, "watch %s", filepath.Dir(target))
	}

	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	defer timer.Stop()

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
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				timer.Reset(reloadDelay)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warnf("watch error: %v", err)
		case <-timer.C:
			devices, err := Load(target)
			if err != nil {
				log.Warnf("inventory reload failed, keeping %d devices: %v", reg.Len(), err)
				continue
			}
			reg.Replace(devices)
			log.WithField("devices", len(devices)).Info("inventory reloaded")
		}
	}
}
