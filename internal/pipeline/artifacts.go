// Package pipeline drives the full run: catalog build, validation,
// sales collection, the rolling window, aggregation, and the persisted
// JSON artifacts.
package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/guarzo/pkmpricewatch/internal/aggregate"
	"github.com/guarzo/pkmpricewatch/internal/model"
)

const (
	DefaultDataDir = "data"

	CatalogFile = "catalog.json"
	SalesFile   = "sales_30d.json"
	PricesFile  = "prices.json"
	MetaFile    = "meta.json"
)

// Meta is the run metadata artifact. Only updatedAt is contractual; the
// counters are informational.
type Meta struct {
	UpdatedAt  time.Time `json:"updatedAt"`
	Cards      int       `json:"cards,omitempty"`
	Sales      int       `json:"sales,omitempty"`
	DurationMs int64     `json:"durationMs,omitempty"`
}

// ArtifactStore owns the output directory and the artifact documents.
type ArtifactStore struct {
	dir string
}

func NewArtifactStore(dir string) *ArtifactStore {
	if dir == "" {
		dir = DefaultDataDir
	}
	return &ArtifactStore{dir: dir}
}

// SalesPath is where the rolling-window store keeps its file.
func (s *ArtifactStore) SalesPath() string {
	return filepath.Join(s.dir, SalesFile)
}

type catalogDoc struct {
	Cards []model.Card `json:"cards"`
}

// LoadCatalog reads the persisted catalog. A missing file yields an
// empty catalog, not an error.
func (s *ArtifactStore) LoadCatalog() ([]model.Card, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, CatalogFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var doc catalogDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return doc.Cards, nil
}

func (s *ArtifactStore) SaveCatalog(cards []model.Card) error {
	if cards == nil {
		cards = []model.Card{}
	}
	return s.write(CatalogFile, catalogDoc{Cards: cards})
}

type pricesDoc struct {
	ByCard aggregate.ByCard `json:"byCard"`
}

func (s *ArtifactStore) SavePrices(byCard aggregate.ByCard) error {
	if byCard == nil {
		byCard = aggregate.ByCard{}
	}
	return s.write(PricesFile, pricesDoc{ByCard: byCard})
}

func (s *ArtifactStore) SaveMeta(meta Meta) error {
	return s.write(MetaFile, meta)
}

func (s *ArtifactStore) write(name string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
