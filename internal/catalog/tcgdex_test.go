package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/guarzo/pkmpricewatch/internal/fetch"
	"github.com/guarzo/pkmpricewatch/internal/model"
)

func TestDexIDsUnmarshalShapes(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{`{"dexId": 25}`, 25},
		{`{"dexId": [6, 150]}`, 6},
		{`{"dexId": "133"}`, 133},
		{`{"dexId": " 133 "}`, 133},
		{`{"dexId": "not-a-number"}`, 0},
		{`{"dexId": {"weird": true}}`, 0},
		{`{}`, 0},
	}
	for _, tt := range tests {
		var detail TCGdexCardDetail
		if err := json.Unmarshal([]byte(tt.raw), &detail); err != nil {
			t.Errorf("unmarshal %s: %v", tt.raw, err)
			continue
		}
		if got := detail.DexIDs.First(); got != tt.want {
			t.Errorf("First() for %s = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestLargeImage(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"https://img.example/cards/sv2a/6", "https://img.example/cards/sv2a/6/high.webp"},
		{"https://img.example/cards/sv2a/6/high.png", "https://img.example/cards/sv2a/6/high.png"},
	}
	for _, tt := range tests {
		if got := largeImage(tt.in); got != tt.want {
			t.Errorf("largeImage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func newTCGdexTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/en/sets", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"sv2a","name":"Pokemon 151","cardCount":{"total":207,"official":165}},{"id":"pocket1","name":"Pocket Genetic Apex","cardCount":{"total":10,"official":10}}]`))
	})
	mux.HandleFunc("/en/sets/sv2a", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"sv2a","name":"Pokemon 151","cardCount":{"total":207,"official":165},
			"serie":{"id":"sv","name":"Scarlet & Violet"},
			"cards":[
				{"id":"sv2a-6","localId":"6","name":"Charizard ex","image":"https://img.example/sv2a/6","rarity":"Double Rare"},
				{"id":"sv2a-25","localId":"25","name":"Pikachu","image":"https://img.example/sv2a/25","rarity":"Common"},
				{"id":"sv2a-bad","localId":"","name":"nameless"}
			]}`))
	})
	mux.HandleFunc("/en/sets/pocket1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"pocket1","name":"Pocket Genetic Apex","serie":{"id":"tcgp","name":"Pocket"},
			"cards":[{"id":"pocket1-1","localId":"1","name":"Bulbasaur"}]}`))
	})
	mux.HandleFunc("/ja/sets", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"sv2a","name":"ポケモンカード151","cardCount":{"total":207,"official":165}}]`))
	})
	mux.HandleFunc("/ja/sets/sv2a", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"sv2a","name":"ポケモンカード151","cardCount":{"total":207,"official":165},
			"serie":{"id":"sv","name":"スカーレット&バイオレット"},
			"cards":[{"id":"sv2a-6","localId":"6","name":"リザードンex","rarity":"RR"}]}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	return httptest.NewServer(mux)
}

func TestTCGdexWalkDualLanguage(t *testing.T) {
	srv := newTCGdexTestServer(t)
	defer srv.Close()

	client := NewTCGdexClient(srv.URL, fetch.New(1))
	agg := NewAggregate()
	if err := NewTCGdexAdapter(client).Walk(context.Background(), agg); err != nil {
		t.Fatalf("Walk: %v", err)
	}

	// The nameless row and the excluded pocket serie contribute nothing.
	if agg.Len() != 2 {
		t.Fatalf("got %d records, want 2", agg.Len())
	}

	var charizard *PartialRecord
	for _, rec := range agg.Records() {
		if rec.Number == "6" {
			charizard = rec
		}
	}
	if charizard == nil {
		t.Fatal("sv2a/6 not accumulated")
	}
	if charizard.NameEn != "Charizard ex" || charizard.NameJa != "リザードンex" {
		t.Errorf("names = %q / %q", charizard.NameEn, charizard.NameJa)
	}
	if !charizard.FromEn || !charizard.FromJa {
		t.Error("both walks must flag provenance")
	}
	if charizard.NumberFull != "6/165" {
		t.Errorf("numberFull = %q", charizard.NumberFull)
	}
	// English walk won first sight, so its rarity sticks.
	if charizard.Rarity != "Double Rare" {
		t.Errorf("rarity = %q", charizard.Rarity)
	}
	if charizard.ImageLarge != "https://img.example/sv2a/6/high.webp" {
		t.Errorf("image = %q", charizard.ImageLarge)
	}
	if charizard.DetailIDEn != "sv2a-6" || charizard.DetailIDJa != "sv2a-6" {
		t.Errorf("detail ids = %q / %q", charizard.DetailIDEn, charizard.DetailIDJa)
	}

	// Appearing in the ja set walk marks the set japanese-observed.
	if !agg.IsJapaneseExclusive("sv2a") {
		t.Error("sv2a must be marked after the ja walk")
	}
}

func TestTCGdexSetImages(t *testing.T) {
	srv := newTCGdexTestServer(t)
	defer srv.Close()

	client := NewTCGdexClient(srv.URL, fetch.New(1))
	images := client.SetImages(context.Background(), model.LangEN, "sv2a")
	if images["6"] != "https://img.example/sv2a/6/high.webp" {
		t.Errorf("images[6] = %q", images["6"])
	}
	if images["25"] != "https://img.example/sv2a/25/high.webp" {
		t.Errorf("images[25] = %q", images["25"])
	}
}
