// Package window persists the rolling sales window: the last 30 days of
// accepted sales, deduplicated across runs, stored as one JSON document.
package window

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/guarzo/pkmpricewatch/internal/model"
)

// DefaultDays is the retention horizon.
const DefaultDays = 30

type fileFormat struct {
	Sales []model.Sale `json:"sales"`
}

// Store owns one sales-window file.
type Store struct {
	path string
	days int
	now  func() time.Time
}

// New builds a Store over path. days <= 0 selects DefaultDays.
func New(path string, days int) *Store {
	if days <= 0 {
		days = DefaultDays
	}
	return &Store{path: path, days: days, now: time.Now}
}

// Load reads the previous run's window, already pruned to the retention
// horizon. A missing file is an empty window, not an error.
func (s *Store) Load() ([]model.Sale, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sales window: %w", err)
	}
	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse sales window: %w", err)
	}
	return s.prune(f.Sales), nil
}

// Merge appends incoming sales onto the retained window, collapsing
// duplicate observations onto their dedup key. Retained order wins;
// new sales append in collection order.
func (s *Store) Merge(retained, incoming []model.Sale) []model.Sale {
	seen := make(map[string]bool, len(retained)+len(incoming))
	out := make([]model.Sale, 0, len(retained)+len(incoming))
	for _, sale := range retained {
		key := sale.DedupKey()
		if !seen[key] {
			seen[key] = true
			out = append(out, sale)
		}
	}
	for _, sale := range incoming {
		key := sale.DedupKey()
		if !seen[key] {
			seen[key] = true
			out = append(out, sale)
		}
	}
	return s.prune(out)
}

// Save writes the window back to disk atomically enough for a single
// writer: temp file then rename.
func (s *Store) Save(sales []model.Sale) error {
	if sales == nil {
		sales = []model.Sale{}
	}
	data, err := json.MarshalIndent(fileFormat{Sales: sales}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sales window: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write sales window: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace sales window: %w", err)
	}
	return nil
}

// prune drops sales older than the retention horizon.
func (s *Store) prune(sales []model.Sale) []model.Sale {
	cutoff := s.now().UTC().AddDate(0, 0, -s.days)
	out := sales[:0:len(sales)]
	for _, sale := range sales {
		if !sale.CollectedAt.Before(cutoff) {
			out = append(out, sale)
		}
	}
	return out
}
