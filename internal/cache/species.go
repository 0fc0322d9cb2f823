package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/guarzo/pkmpricewatch/internal/textnorm"
)

// Species is one entry of the Japanese-name map: the dex id, the canonical
// English name, and the normalized search key derived from it.
type Species struct {
	DexID  int    `json:"dexId"`
	NameEn string `json:"enName"`
	Key    string `json:"normalizedKey"`
}

// IndexWalker walks the paginated species index once, calling emit for
// every species discovered with its Japanese name.
type IndexWalker func(ctx context.Context, emit func(jaName string, sp Species)) error

// SpeciesCache maps normalized Japanese species names to Species records.
// It is built by a single index walk and only rebuilt when the file is
// missing or empty.
type SpeciesCache struct {
	path string

	mu      sync.RWMutex
	entries map[string]Species
}

// NewSpeciesCache loads the cache file if present.
func NewSpeciesCache(path string) (*SpeciesCache, error) {
	c := &SpeciesCache{
		path:    path,
		entries: make(map[string]Species),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read species cache: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &c.entries); err != nil {
			c.entries = make(map[string]Species)
		}
	}
	return c, nil
}

// Ensure builds the map via walk when it is empty; otherwise it is a no-op.
// Entries are flushed to disk periodically during the walk and once at the
// end, so an interrupted build resumes with partial coverage rather than
// from scratch.
func (c *SpeciesCache) Ensure(ctx context.Context, walk IndexWalker) error {
	if c.Len() > 0 {
		return nil
	}

	const flushEvery = 50
	added := 0
	err := walk(ctx, func(jaName string, sp Species) {
		key := textnorm.Normalize(jaName)
		if key == "" {
			return
		}
		c.mu.Lock()
		c.entries[key] = sp
		c.mu.Unlock()
		added++
		if added%flushEvery == 0 {
			c.save()
		}
	})
	if serr := c.save(); serr != nil && err == nil {
		err = serr
	}
	if err != nil {
		return fmt.Errorf("build species map: %w", err)
	}
	return nil
}

// Lookup resolves a Japanese species name (any diacritic/spacing form).
func (c *SpeciesCache) Lookup(jaName string) (Species, bool) {
	key := textnorm.Normalize(jaName)
	c.mu.RLock()
	defer c.mu.RUnlock()
	sp, ok := c.entries[key]
	return sp, ok
}

// Len reports the number of cached species.
func (c *SpeciesCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *SpeciesCache) save() error {
	c.mu.RLock()
	data, err := json.MarshalIndent(c.entries, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal species cache: %w", err)
	}
	return writeFile(c.path, data)
}
