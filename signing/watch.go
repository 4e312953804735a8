package signing

import (
	"context"
	"crypto/rsa"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/golang-jwt/jwt/v5"
)

// keyFileExt is the extension of key files; the file name without it is the key id.
const keyFileExt = ".pem"

// LoadDir reads every <kid>.pem file in dir. Files that fail to parse are
// returned in skipped and do not abort the load.
func LoadDir(dir string) (keys map[string]*rsa.PublicKey, skipped []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read key directory: %w", err)
	}

	keys = make(map[string]*rsa.PublicKey)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != keyFileExt {
			continue
		}
		kid := strings.TrimSuffix(entry.Name(), keyFileExt)
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			skipped = append(skipped, entry.Name())
			continue
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM(data)
		if err != nil {
			skipped = append(skipped, entry.Name())
			continue
		}
		keys[kid] = key
	}
	return keys, skipped, nil
}

// ReloadDir replaces the contents of the set with the keys in dir.
func (s *KeySet) ReloadDir(dir string) error {
	keys, skipped, err := LoadDir(dir)
	if err != nil {
		return err
	}
	for _, name := range skipped {
		s.logger.Warn("Skipping unreadable signing key", "file", name)
	}
	s.Replace(keys)
	s.logger.Info("Loaded signing keys", "dir", dir, "count", len(keys))
	return nil
}

// WatchDir loads the keys in dir and reloads them whenever a file in dir is
// written, created or removed, until ctx is done. The set is owned by the
// directory from then on: keys added by other means are dropped on reload.
func (s *KeySet) WatchDir(ctx context.Context, dir string) error {
	if err := s.ReloadDir(dir); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create key watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch key directory: %w", err)
	}

	reload := make(chan struct{}, 1)
	go s.handleWatcher(ctx, watcher, reload)
	go s.scheduleReload(ctx, reload, dir)
	return nil
}

func (s *KeySet) handleWatcher(ctx context.Context, watcher *fsnotify.Watcher, reload chan<- struct{}) {
	defer func() { _ = watcher.Close() }()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write | fsnotify.Remove | fsnotify.Create | fsnotify.Rename) {
				select {
				case reload <- struct{}{}:
				default:
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("Key watcher error", "error", err)
		}
	}
}

func (s *KeySet) scheduleReload(ctx context.Context, reload <-chan struct{}, dir string) {
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-reload:
			if timer != nil {
				timer.Reset(s.reloadDelay)
			} else {
				timer = time.NewTimer(s.reloadDelay)
				fire = timer.C
			}
		case <-fire:
			timer, fire = nil, nil
			if err := s.ReloadDir(dir); err != nil {
				s.logger.Warn("Failed to reload signing keys", "dir", dir, "error", err)
			}
		}
	}
}
