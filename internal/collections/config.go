package collections

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// CollectionSettings binds one kind to its upstream collection. A kind
// with an empty CollectionID is "unconfigured" and is skipped by the
// refresher; fetches for it degrade through the fallback chain.
type CollectionSettings struct {
	CollectionID string
	TTL          time.Duration
}

// Config holds the kind → collection mapping. It is safe for concurrent
// readers while the watcher replaces it underneath.
type Config struct {
	mu      sync.RWMutex
	entries map[Kind]CollectionSettings
	logger  *log.Logger
}

func NewConfig(entries map[Kind]CollectionSettings, logger *log.Logger) *Config {
	if logger == nil {
		logger = log.Default()
	}
	copied := make(map[Kind]CollectionSettings, len(entries))
	for kind, settings := range entries {
		copied[kind] = settings
	}
	return &Config{entries: copied, logger: logger}
}

// CollectionID returns the upstream collection id for a kind.
func (c *Config) CollectionID(kind Kind) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	settings, ok := c.entries[kind]
	if !ok || strings.TrimSpace(settings.CollectionID) == "" {
		return "", false
	}
	return settings.CollectionID, true
}

// TTL returns the per-kind TTL override, if one is configured.
func (c *Config) TTL(kind Kind) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	settings, ok := c.entries[kind]
	if !ok || settings.TTL <= 0 {
		return 0, false
	}
	return settings.TTL, true
}

// Configured lists kinds with a non-empty collection id, in Kinds order.
func (c *Config) Configured() []Kind {
	var out []Kind
	for _, kind := range Kinds() {
		if _, ok := c.CollectionID(kind); ok {
			out = append(out, kind)
		}
	}
	return out
}

// Unconfigured lists kinds without a collection id, in Kinds order.
func (c *Config) Unconfigured() []Kind {
	var out []Kind
	for _, kind := range Kinds() {
		if _, ok := c.CollectionID(kind); !ok {
			out = append(out, kind)
		}
	}
	return out
}

// Replace swaps the whole mapping atomically.
func (c *Config) Replace(entries map[Kind]CollectionSettings) {
	copied := make(map[Kind]CollectionSettings, len(entries))
	for kind, settings := range entries {
		copied[kind] = settings
	}
	c.mu.Lock()
	c.entries = copied
	c.mu.Unlock()
}

type configFile struct {
	Collections map[string]configFileEntry `json:"collections"`
}

type configFileEntry struct {
	ID  string `json:"id"`
	TTL string `json:"ttl,omitempty"`
}

// LoadConfigFile reads the kind mapping from a JSON file shaped like
// {"collections": {"project": {"id": "...", "ttl": "2m"}}}.
func LoadConfigFile(path string) (map[Kind]CollectionSettings, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var parsed configFile
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	entries := make(map[Kind]CollectionSettings, len(parsed.Collections))
	for raw, entry := range parsed.Collections {
		kind, ok := ParseKind(raw)
		if !ok {
			return nil, fmt.Errorf("parse %s: unknown collection kind %q", path, raw)
		}
		settings := CollectionSettings{CollectionID: strings.TrimSpace(entry.ID)}
		if strings.TrimSpace(entry.TTL) != "" {
			ttl, err := time.ParseDuration(entry.TTL)
			if err != nil {
				return nil, fmt.Errorf("parse %s: ttl for %q: %w", path, raw, err)
			}
			settings.TTL = ttl
		}
		entries[kind] = settings
	}
	return entries, nil
}

// Watch reloads the mapping whenever the file changes. A reload that
// fails to parse keeps the previous mapping and logs. Watch returns when
// ctx is cancelled or the watcher cannot be created.
func (c *Config) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors replace files via rename, which
	// drops a watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
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
			entries, err := LoadConfigFile(path)
			if err != nil {
				c.logger.Printf("collections: config reload failed, keeping previous mapping: %v", err)
				continue
			}
			c.Replace(entries)
			c.logger.Printf("collections: config reloaded from %s (%d kinds configured)", path, len(entries))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Printf("collections: config watcher error: %v", err)
		}
	}
}
