package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/guarzo/pkmpricewatch/internal/fetch"
)

func TestPTCGAPIWalkPaginates(t *testing.T) {
	var pagesServed []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/cards" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("q"); got != "supertype:pokemon" {
			t.Errorf("q = %q", got)
		}
		page := r.URL.Query().Get("page")
		pagesServed = append(pagesServed, page)
		switch page {
		case "1":
			fmt.Fprint(w, `{"totalCount":251,"data":[
				{"id":"sv1-25","name":"Pikachu","number":"25","rarity":"Common",
				 "set":{"id":"sv1","name":"Scarlet & Violet","printedTotal":198},
				 "nationalPokedexNumbers":[25],
				 "images":{"large":"https://img.example/sv1/25_hires.png"}}]}`)
		case "2":
			fmt.Fprint(w, `{"totalCount":251,"data":[
				{"id":"sv1-6","name":"Charizard ex","number":"6",
				 "set":{"id":"sv1","name":"Scarlet & Violet","printedTotal":198}}]}`)
		default:
			fmt.Fprint(w, `{"totalCount":251,"data":[]}`)
		}
	}))
	defer srv.Close()

	a := NewPTCGAPIAdapter(srv.URL, "", fetch.New(1), nil)
	agg := NewAggregate()
	if err := a.Walk(context.Background(), agg); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if agg.Len() != 2 {
		t.Fatalf("got %d records, want 2", agg.Len())
	}
	if len(pagesServed) != 2 {
		t.Errorf("pages served = %v, want exactly 1 and 2", pagesServed)
	}

	rec := agg.Records()[0]
	if rec.NameEn != "Pikachu" || rec.SetID != "sv1" || rec.Number != "25" {
		t.Errorf("first record = %+v", rec)
	}
	if rec.NumberFull != "25/198" {
		t.Errorf("numberFull = %q", rec.NumberFull)
	}
	// No dex cache wired, so the key falls back to the normalized name.
	if rec.PokemonKey != "pikachu" {
		t.Errorf("pokemonKey = %q", rec.PokemonKey)
	}
	if rec.DexID != 25 {
		t.Errorf("dexID = %d", rec.DexID)
	}
	if !rec.FromAPI {
		t.Error("provenance flag not set")
	}
}

func TestPTCGAPIWalkAuthFailureIsSourceFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	a := NewPTCGAPIAdapter(srv.URL, "bad-key", fetch.New(1), nil)
	err := a.Walk(context.Background(), NewAggregate())
	if !errors.Is(err, ErrSourceFailed) {
		t.Fatalf("err = %v, want ErrSourceFailed", err)
	}
}

func TestPTCGAPIWalkEmptyFirstPageIsSourceFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"totalCount":18000,"data":[]}`)
	}))
	defer srv.Close()

	a := NewPTCGAPIAdapter(srv.URL, "", fetch.New(1), nil)
	err := a.Walk(context.Background(), NewAggregate())
	if !errors.Is(err, ErrSourceFailed) {
		t.Fatalf("err = %v, want ErrSourceFailed", err)
	}
}

func TestPTCGAPIWalkTruncatedWalkIsSourceFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			fmt.Fprint(w, `{"totalCount":500,"data":[
				{"id":"sv1-25","name":"Pikachu","number":"25",
				 "set":{"id":"sv1","name":"Scarlet & Violet","printedTotal":198}}]}`)
			return
		}
		fmt.Fprint(w, `{"totalCount":500,"data":[]}`)
	}))
	defer srv.Close()

	a := NewPTCGAPIAdapter(srv.URL, "", fetch.New(1), nil)
	agg := NewAggregate()
	err := a.Walk(context.Background(), agg)
	if !errors.Is(err, ErrSourceFailed) {
		t.Fatalf("err = %v, want ErrSourceFailed (truncated walk must trigger fallback)", err)
	}
	// Partials accumulated before the truncation stay mergeable.
	if agg.Len() != 1 {
		t.Errorf("got %d partials, want 1", agg.Len())
	}
}

func TestPTCGAPIWalkServerErrorIsSourceFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewPTCGAPIAdapter(srv.URL, "", fetch.New(2), nil)
	err := a.Walk(context.Background(), NewAggregate())
	if !errors.Is(err, ErrSourceFailed) {
		t.Fatalf("err = %v, want ErrSourceFailed", err)
	}
}

func TestPTCGAPISendsAPIKeyHeader(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		fmt.Fprint(w, `{"totalCount":0,"data":[]}`)
	}))
	defer srv.Close()

	a := NewPTCGAPIAdapter(srv.URL, "secret", fetch.New(1), nil)
	if err := a.Walk(context.Background(), NewAggregate()); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if gotKey != "secret" {
		t.Errorf("X-Api-Key = %q", gotKey)
	}
}
