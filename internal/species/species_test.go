package species

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/guarzo/pkmpricewatch/internal/cache"
	"github.com/guarzo/pkmpricewatch/internal/fetch"
)

func speciesServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/pokemon-species", func(w http.ResponseWriter, r *http.Request) {
		base := "http://" + r.Host
		if r.URL.Query().Get("offset") == "2" {
			fmt.Fprintf(w, `{"next":null,"results":[{"url":"%s/pokemon-species/151/"}]}`, base)
			return
		}
		fmt.Fprintf(w, `{"next":"%s/pokemon-species?limit=2&offset=2","results":[{"url":"%s/pokemon-species/25/"},{"url":"%s/pokemon-species/6/"}]}`,
			base, base, base)
	})
	mux.HandleFunc("/pokemon-species/25/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":25,"name":"pikachu","names":[{"language":{"name":"ja"},"name":"ピカチュウ"},{"language":{"name":"en"},"name":"Pikachu"}]}`)
	})
	mux.HandleFunc("/pokemon-species/6/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":6,"name":"charizard","names":[{"language":{"name":"ja-Hrkt"},"name":"リザードン"},{"language":{"name":"en"},"name":"Charizard"}]}`)
	})
	mux.HandleFunc("/pokemon-species/151/", func(w http.ResponseWriter, r *http.Request) {
		// No Japanese locale: must be skipped by the walk.
		fmt.Fprint(w, `{"id":151,"name":"mew","names":[{"language":{"name":"en"},"name":"Mew"}]}`)
	})
	return httptest.NewServer(mux)
}

func TestEnglishName(t *testing.T) {
	srv := speciesServer(t)
	defer srv.Close()

	c := NewClient(srv.URL, fetch.New(1))
	name, ok := c.EnglishName(context.Background(), 25)
	if !ok || name != "Pikachu" {
		t.Errorf("got %q/%v, want Pikachu/true", name, ok)
	}
	if _, ok := c.EnglishName(context.Background(), 404); ok {
		t.Error("expected miss for unknown id")
	}
}

func TestWalkIndex(t *testing.T) {
	srv := speciesServer(t)
	defer srv.Close()

	c := NewClient(srv.URL, fetch.New(1))
	got := map[string]cache.Species{}
	err := c.WalkIndex(context.Background(), func(ja string, sp cache.Species) {
		got[ja] = sp
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(got) != 2 {
		t.Fatalf("walked %d species, want 2 (got %v)", len(got), got)
	}
	if sp := got["ピカチュウ"]; sp.DexID != 25 || sp.NameEn != "Pikachu" || sp.Key != "pikachu" {
		t.Errorf("pikachu entry = %+v", sp)
	}
	if sp := got["リザードン"]; sp.DexID != 6 || sp.Key != "charizard" {
		t.Errorf("charizard entry = %+v", sp)
	}
}
