// TLS CA bundle hot reload, grounded on the teacher's internal/config.Watcher:
// the same fsnotify.Watcher plus 500ms debounce pattern, narrowed from
// "reload the whole YAML config" to "reload one PEM bundle file", since a
// live client connection has no equivalent of the teacher's whole-config
// hot-swap — only subsequently dialed connections pick up the new CA pool.
package pglink

import (
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// CAWatcher reloads a PEM CA bundle file into an *x509.CertPool whenever
// the file changes, debounced by 500ms exactly like the teacher's
// config.Watcher.
type CAWatcher struct {
	path    string
	mu      sync.RWMutex
	pool    *x509.CertPool
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// NewCAWatcher loads path once and starts watching it for changes.
func NewCAWatcher(path string) (*CAWatcher, error) {
	pool, err := loadCertPool(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("pglink: creating CA file watcher: %w", err)
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, fmt.Errorf("pglink: watching CA file: %w", err)
	}

	w := &CAWatcher{path: path, pool: pool, watcher: fw, stopCh: make(chan struct{})}
	go w.run()
	return w, nil
}

func loadCertPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pglink: reading CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("pglink: no valid certificates found in %s", path)
	}
	return pool, nil
}

func (w *CAWatcher) run() {
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, w.reload)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("pglink: CA bundle watcher error", "err", err)
		case <-w.stopCh:
			return
		}
	}
}

func (w *CAWatcher) reload() {
	pool, err := loadCertPool(w.path)
	if err != nil {
		slog.Warn("pglink: CA bundle hot-reload failed", "path", w.path, "err", err)
		return
	}
	w.mu.Lock()
	w.pool = pool
	w.mu.Unlock()
	slog.Info("pglink: CA bundle reloaded", "path", w.path)
}

// Pool returns the current *x509.CertPool; subsequently dialed connections
// should call this at dial time, not cache the result.
func (w *CAWatcher) Pool() *x509.CertPool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pool
}

// Stop stops watching and releases the underlying fsnotify watcher.
func (w *CAWatcher) Stop() error {
	close(w.stopCh)
	return w.watcher.Close()
}
