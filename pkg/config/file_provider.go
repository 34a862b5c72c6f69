package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Snapshot is one immutable view of the configuration. Generation increases
// on every successful reload; consumers use it to invalidate caches.
type Snapshot struct {
	Generation int64
	Config     Config
}

// FileConfigProvider serves configuration from a local file and reloads it on
// change. A reload that fails to parse or validate keeps the last good snapshot.
type FileConfigProvider struct {
	path        string
	logger      *slog.Logger
	mu          sync.RWMutex
	snapshot    Snapshot
	subscribers []chan Snapshot
	watcher     *fsnotify.Watcher
	cancel      context.CancelFunc
}

// NewFileConfigProvider creates a provider watching the specified file.
func NewFileConfigProvider(path string, logger *slog.Logger) (*FileConfigProvider, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &FileConfigProvider{
		path:    absPath,
		logger:  logger.With("component", "config"),
		watcher: watcher,
		cancel:  cancel,
	}

	if err := p.load(); err != nil {
		_ = watcher.Close()
		cancel()
		return nil, fmt.Errorf("initial config load: %w", err)
	}

	// Watch the directory, not the file: editors replace files on save.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		_ = watcher.Close()
		cancel()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	go p.watchLoop(ctx)

	return p, nil
}

// CurrentSnapshot returns the current configuration snapshot.
func (p *FileConfigProvider) CurrentSnapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot
}

// Subscribe returns a channel that receives configuration updates. The current
// snapshot is delivered immediately.
func (p *FileConfigProvider) Subscribe() <-chan Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan Snapshot, 1)
	p.subscribers = append(p.subscribers, ch)
	ch <- p.snapshot
	return ch
}

// Close stops the watcher and cleans up resources.
func (p *FileConfigProvider) Close() error {
	p.cancel()
	return p.watcher.Close()
}

func (p *FileConfigProvider) watchLoop(ctx context.Context) {
	var debounceTimer *time.Timer
	debounceDuration := 100 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != p.path {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Chmod) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					if err := p.load(); err != nil {
						p.logger.Error("config reload failed, keeping previous snapshot",
							"path", p.path, "error", err)
					} else {
						p.logger.Info("configuration reloaded",
							"path", p.path, "generation", p.CurrentSnapshot().Generation)
					}
				})
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("config watcher error", "error", err)
		}
	}
}

func (p *FileConfigProvider) load() error {
	//nolint:gosec // Config file path is controlled by the operator
	data, err := os.ReadFile(p.path)
	if err != nil {
		return err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		if jsonErr := json.Unmarshal(data, &cfg); jsonErr != nil {
			return fmt.Errorf("failed to parse config file: %v", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	p.mu.Lock()
	p.snapshot = Snapshot{Generation: p.snapshot.Generation + 1, Config: cfg}
	snapshot := p.snapshot
	subscribers := make([]chan Snapshot, len(p.subscribers))
	copy(subscribers, p.subscribers)
	p.mu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- snapshot:
		default:
			// Slow consumer, skip this update.
		}
	}

	return nil
}
