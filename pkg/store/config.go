package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	fileMode = 0600
	dirMode  = 0700
)

// ConfigStore is a synchronous string-keyed store persisted as a single
// JSON file. The whole file is read once at open time; reads after that
// never touch the disk, so a caller can consult it before any slower
// storage resolves.
type ConfigStore struct {
	path string
	mu   sync.RWMutex
	data map[string]string
}

// OpenConfig opens (or creates) the config store at dir.
// A corrupted config file is treated as empty rather than fatal; the lock
// configuration is always recoverable by running setup again.
func OpenConfig(dir string) (*ConfigStore, error) {
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, fmt.Errorf("store: failed to create state directory: %w", err)
	}

	c := &ConfigStore{
		path: filepath.Join(dir, ConfigFileName),
		data: make(map[string]string),
	}

	raw, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("store: failed to read config: %w", err)
	}
	if err := json.Unmarshal(raw, &c.data); err != nil {
		c.data = make(map[string]string)
	}
	return c, nil
}

// Get returns the value for key, or ErrNotFound.
func (c *ConfigStore) Get(key string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set writes key=value and persists the file before returning.
func (c *ConfigStore) Set(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = value
	return c.flushLocked()
}

// SetMany writes several keys and persists the file once.
func (c *ConfigStore) SetMany(values map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range values {
		c.data[k] = v
	}
	return c.flushLocked()
}

// All returns a copy of every key/value pair.
func (c *ConfigStore) All() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]string, len(c.data))
	for k, v := range c.data {
		out[k] = v
	}
	return out
}

// Delete removes key. Deleting an absent key is not an error.
func (c *ConfigStore) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, key)
	return c.flushLocked()
}

// Clear removes every key and persists the empty file.
func (c *ConfigStore) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = make(map[string]string)
	return c.flushLocked()
}

func (c *ConfigStore) flushLocked() error {
	raw, err := json.MarshalIndent(c.data, "", "  ")
	if err != nil {
		return fmt.Errorf("store: failed to marshal config: %w", err)
	}
	if err := os.WriteFile(c.path, raw, fileMode); err != nil {
		return fmt.Errorf("store: failed to write config: %w", err)
	}
	return nil
}
