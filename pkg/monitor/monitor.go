// Package monitor watches directories with fsnotify and hands settled files
// to a scan callback. Files are debounced: a file is only dispatched once its
// modification time is older than the configured delay, so half-written
// downloads are not evaluated mid-copy.
package monitor

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

var LogLevel = &slog.LevelVar{}

var logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
	Level: LogLevel,
}))

// ScanFunc receives each settled path. It is called from the monitor's own
// goroutines and must be safe for concurrent use with itself.
type ScanFunc func(path string) error

// Config tunes monitoring behavior. The zero value watches without periodic
// rescans and dispatches files as soon as an event settles.
type Config struct {
	// PreScan dispatches every watched path once when it is added.
	PreScan bool
	// RescanPeriod re-dispatches all watched paths on a fixed interval.
	// Zero disables periodic rescans.
	RescanPeriod time.Duration
	// ModDelay is how long a file must be unmodified before dispatch.
	ModDelay time.Duration
}

// Monitor tracks a set of paths and funnels filesystem events into scans.
type Monitor struct {
	watcher *fsnotify.Watcher
	scan    ScanFunc
	cfg     Config

	wg     sync.WaitGroup
	stop   context.Context
	cancel context.CancelFunc

	pathsMu sync.Mutex
	paths   map[string]struct{}

	pendingMu sync.Mutex
	pending   map[string]struct{}
}

func NewMonitor(scan ScanFunc, cfg Config) (*Monitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	stop, cancel := context.WithCancel(context.Background())
	return &Monitor{
		watcher: watcher,
		scan:    scan,
		cfg:     cfg,
		stop:    stop,
		cancel:  cancel,
		paths:   map[string]struct{}{},
		pending: map[string]struct{}{},
	}, nil
}

func (m *Monitor) Close() {
	m.watcher.Close()
	m.cancel()
	m.wg.Wait()
}

func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.collect()
	m.wg.Add(1)
	go m.dispatch()
	if m.cfg.RescanPeriod != 0 {
		m.wg.Add(1)
		go m.rescan()
	}
}

// Add puts path under watch. Directories created later inside it are added
// automatically by the event loop.
func (m *Monitor) Add(path string) error {
	if err := m.watcher.Add(path); err != nil {
		return err
	}
	m.pathsMu.Lock()
	m.paths[path] = struct{}{}
	m.pathsMu.Unlock()
	if m.cfg.PreScan {
		go func() {
			if err := m.scan(path); err != nil {
				logger.Error("pre-scan failed", slog.String("path", path), slog.String("error", err.Error()))
			}
		}()
	}
	return nil
}

func (m *Monitor) Remove(path string) error {
	m.pathsMu.Lock()
	delete(m.paths, path)
	m.pathsMu.Unlock()
	return m.watcher.Remove(path)
}

// collect turns raw watcher events into pending entries.
func (m *Monitor) collect() {
	defer m.wg.Done()
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			logger.Debug("new event", slog.String("event", event.String()))
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := m.watcher.Add(event.Name); err != nil {
					logger.Warn("could not watch new directory", slog.String("path", event.Name), slog.String("error", err.Error()))
				}
				continue
			}
			m.pendingMu.Lock()
			m.pending[event.Name] = struct{}{}
			m.pendingMu.Unlock()
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			logger.Error("watcher error", slog.String("error", err.Error()))
		}
	}
}

var (
	DispatchLoopPause = time.Millisecond * 100
	Since             = time.Since
)

// dispatch scans pending files once their modification time has settled.
func (m *Monitor) dispatch() {
	defer m.wg.Done()
	ticker := time.NewTicker(DispatchLoopPause)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop.Done():
			return
		case <-ticker.C:
			for _, path := range m.settled() {
				if err := m.scan(path); err != nil {
					logger.Error("scan failed", slog.String("path", path), slog.String("error", err.Error()))
				}
			}
		}
	}
}

// settled removes and returns the pending paths whose files stopped changing.
// Paths that vanished are dropped without a scan.
func (m *Monitor) settled() []string {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	var ready []string
	for path := range m.pending {
		info, err := os.Stat(path)
		if err != nil {
			delete(m.pending, path)
			continue
		}
		if Since(info.ModTime()) > m.cfg.ModDelay {
			ready = append(ready, path)
			delete(m.pending, path)
		}
	}
	return ready
}

func (m *Monitor) rescan() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.RescanPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop.Done():
			return
		case <-ticker.C:
			m.pathsMu.Lock()
			paths := make([]string, 0, len(m.paths))
			for path := range m.paths {
				paths = append(paths, path)
			}
			m.pathsMu.Unlock()
			for _, path := range paths {
				if err := m.scan(path); err != nil {
					logger.Error("periodic rescan failed", slog.String("path", path), slog.String("error", err.Error()))
				}
			}
		}
	}
}
