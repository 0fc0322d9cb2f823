// Package cache holds the two persistent lookup maps the enrichment pass
// depends on: national-dex id -> English species name, and Japanese
// species name -> species record. Both are JSON blobs on disk, loaded at
// startup and rewritten after every successful external resolution.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// DexResolver fetches the English species name for a dex id from the
// species endpoint. ok=false means the id could not be resolved.
type DexResolver func(ctx context.Context, dexID int) (string, bool)

// DexCache is the read-through dex-id -> English-name map. Concurrent
// misses on the same id coalesce into a single outbound request.
type DexCache struct {
	path    string
	resolve DexResolver

	mu      sync.RWMutex
	entries map[int]string
	sf      singleflight.Group
}

// NewDexCache loads the cache file if present. A corrupt file starts fresh.
func NewDexCache(path string, resolve DexResolver) (*DexCache, error) {
	c := &DexCache{
		path:    path,
		resolve: resolve,
		entries: make(map[int]string),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dex cache: %w", err)
	}
	raw := map[string]string{}
	if err := json.Unmarshal(data, &raw); err == nil {
		for k, v := range raw {
			if id, err := strconv.Atoi(k); err == nil {
				c.entries[id] = v
			}
		}
	}
	return c, nil
}

// EnglishName returns the English species name for dexID, resolving and
// persisting on miss.
func (c *DexCache) EnglishName(ctx context.Context, dexID int) (string, bool) {
	c.mu.RLock()
	name, ok := c.entries[dexID]
	c.mu.RUnlock()
	if ok {
		return name, true
	}

	v, err, _ := c.sf.Do(strconv.Itoa(dexID), func() (any, error) {
		// Another waiter may have stored the entry while we queued.
		c.mu.RLock()
		name, ok := c.entries[dexID]
		c.mu.RUnlock()
		if ok {
			return name, nil
		}

		name, ok = c.resolve(ctx, dexID)
		if !ok {
			return "", fmt.Errorf("dex %d: unresolved", dexID)
		}

		c.mu.Lock()
		c.entries[dexID] = name
		c.mu.Unlock()
		if err := c.save(); err != nil {
			return name, nil // entry stays usable in memory
		}
		return name, nil
	})
	if err != nil {
		return "", false
	}
	return v.(string), true
}

// Len reports the number of cached entries.
func (c *DexCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *DexCache) save() error {
	c.mu.RLock()
	raw := make(map[string]string, len(c.entries))
	for id, name := range c.entries {
		raw[strconv.Itoa(id)] = name
	}
	c.mu.RUnlock()

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dex cache: %w", err)
	}
	return writeFile(c.path, data)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}
	}
	return os.WriteFile(path, data, 0644)
}
