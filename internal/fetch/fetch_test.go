package fetch

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/andybalholm/brotli"
)

func TestJSONRetriesOn500ThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"value":42}`))
	}))
	defer srv.Close()

	c := New(4)
	var out struct {
		Value int `json:"value"`
	}
	if !c.JSON(context.Background(), srv.URL, nil, &out) {
		t.Fatal("expected success after retries")
	}
	if out.Value != 42 {
		t.Errorf("value = %d, want 42", out.Value)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestJSONNoRetryOn404(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(4)
	var out map[string]any
	ok, status := c.JSONStatus(context.Background(), srv.URL, nil, &out)
	if ok {
		t.Fatal("expected miss on 404")
	}
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1 (4xx must not retry)", got)
	}
}

func TestJSONGivesUpAfterRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(2)
	var out map[string]any
	ok, status := c.JSONStatus(context.Background(), srv.URL, nil, &out)
	if ok {
		t.Fatal("expected failure")
	}
	if status != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", status)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestHTMLDecodesGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		zw.Write([]byte("<html>hello</html>"))
		zw.Close()
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	c := New(1)
	if got := c.HTML(context.Background(), srv.URL, nil); got != "<html>hello</html>" {
		t.Errorf("got %q", got)
	}
}

func TestHTMLDecodesBrotli(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		bw.Write([]byte("<html>br</html>"))
		bw.Close()
		w.Header().Set("Content-Encoding", "br")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	c := New(1)
	if got := c.HTML(context.Background(), srv.URL, nil); got != "<html>br</html>" {
		t.Errorf("got %q", got)
	}
}

func TestHTMLMissingReturnsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(1)
	if got := c.HTML(context.Background(), srv.URL, nil); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestCustomHeadersForwarded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(1)
	var out map[string]any
	if !c.JSON(context.Background(), srv.URL, map[string]string{"X-Api-Key": "secret"}, &out) {
		t.Fatal("expected api key header to be sent")
	}
}
