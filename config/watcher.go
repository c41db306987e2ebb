package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// settle is how long to wait for an editor to finish writing.
const settle = time.Second / 10

var (
	gLock   sync.RWMutex
	gConfig *Config
)

// Get returns the configuration last loaded by Load.
func Get() *Config {
	gLock.RLock()
	defer gLock.RUnlock()
	return gConfig
}

func set(c *Config) {
	gLock.Lock()
	defer gLock.Unlock()
	gConfig = c
}

// Load reads the configuration at path and keeps reloading it when the file
// changes until ctx is done. onChange, if set, receives every configuration
// reloaded after the first. A file that fails to parse is logged and
// ignored.
func Load(ctx context.Context, path string, onChange func(*Config)) error {
	c, err := FromFile(path)
	if err != nil {
		return err
	}
	set(c)

	// Watch the directory so files replaced by editors are still seen.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "watch config")
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return errors.Wrap(err, "watch config")
	}
	name := filepath.Clean(path)

	go func() {
		defer watcher.Close()
		var reload <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-watcher.Errors:
				log.Errorf("Error waiting for config change: %v", err)
			case ev := <-watcher.Events:
				if filepath.Clean(ev.Name) != name || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				reload = time.After(settle)
			case <-reload:
				reload = nil
				c, err := FromFile(path)
				if err != nil {
					log.Errorf("Failed to load new config: %v", err)
					continue
				}
				set(c)
				log.Infof("Reloaded configuration from %s", path)
				if onChange != nil {
					onChange(c)
				}
			}
		}
	}()
	return nil
}
