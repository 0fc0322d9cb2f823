package cache

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
)

func TestDexCacheReadThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dex.json")

	var resolves int32
	resolve := func(ctx context.Context, dexID int) (string, bool) {
		atomic.AddInt32(&resolves, 1)
		if dexID == 25 {
			return "pikachu", true
		}
		return "", false
	}

	c, err := NewDexCache(path, resolve)
	if err != nil {
		t.Fatal(err)
	}

	name, ok := c.EnglishName(context.Background(), 25)
	if !ok || name != "pikachu" {
		t.Fatalf("got %q/%v, want pikachu/true", name, ok)
	}

	// Second lookup must be served from memory.
	c.EnglishName(context.Background(), 25)
	if n := atomic.LoadInt32(&resolves); n != 1 {
		t.Errorf("resolves = %d, want 1", n)
	}

	// Unresolvable ids report a miss and are not cached.
	if _, ok := c.EnglishName(context.Background(), 9999); ok {
		t.Error("expected miss for unknown id")
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}

	// A fresh cache over the same file sees the persisted entry.
	c2, err := NewDexCache(path, func(context.Context, int) (string, bool) {
		t.Error("resolver must not be called for persisted entry")
		return "", false
	})
	if err != nil {
		t.Fatal(err)
	}
	if name, ok := c2.EnglishName(context.Background(), 25); !ok || name != "pikachu" {
		t.Errorf("persisted entry lost: %q/%v", name, ok)
	}
}

func TestDexCacheCoalescesConcurrentMisses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dex.json")

	var resolves int32
	block := make(chan struct{})
	resolve := func(ctx context.Context, dexID int) (string, bool) {
		atomic.AddInt32(&resolves, 1)
		<-block
		return "mew", true
	}

	c, err := NewDexCache(path, resolve)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if name, ok := c.EnglishName(context.Background(), 151); !ok || name != "mew" {
				t.Errorf("got %q/%v", name, ok)
			}
		}()
	}
	close(block)
	wg.Wait()

	if n := atomic.LoadInt32(&resolves); n != 1 {
		t.Errorf("resolves = %d, want 1 (singleflight)", n)
	}
}

func TestSpeciesCacheEnsureAndLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "species.json")

	c, err := NewSpeciesCache(path)
	if err != nil {
		t.Fatal(err)
	}

	var walks int32
	walk := func(ctx context.Context, emit func(string, Species)) error {
		atomic.AddInt32(&walks, 1)
		emit("ピカチュウ", Species{DexID: 25, NameEn: "Pikachu", Key: "pikachu"})
		emit("リザードン", Species{DexID: 6, NameEn: "Charizard", Key: "charizard"})
		return nil
	}
	if err := c.Ensure(context.Background(), walk); err != nil {
		t.Fatal(err)
	}

	sp, ok := c.Lookup("ピカチュウ")
	if !ok || sp.DexID != 25 || sp.Key != "pikachu" {
		t.Fatalf("lookup = %+v/%v", sp, ok)
	}

	// A populated cache never rewalks, in memory or from disk.
	if err := c.Ensure(context.Background(), walk); err != nil {
		t.Fatal(err)
	}
	c2, err := NewSpeciesCache(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := c2.Ensure(context.Background(), walk); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&walks); n != 1 {
		t.Errorf("walks = %d, want 1", n)
	}
	if c2.Len() != 2 {
		t.Errorf("Len = %d, want 2", c2.Len())
	}
}
