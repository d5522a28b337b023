package embedding

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func newMockSidecar(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/encode/text", func(w http.ResponseWriter, r *http.Request) {
		var req textRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(encodeResponse{Embedding: []float32{0.6, 0.8}})
	})
	mux.HandleFunc("/encode/image", func(w http.ResponseWriter, r *http.Request) {
		var req imageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if _, err := base64.StdEncoding.DecodeString(req.Image); err != nil {
			http.Error(w, "bad image payload", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(encodeResponse{Embedding: []float32{1, 0}})
	})
	return httptest.NewServer(mux)
}

func TestClipProviderEncodeText(t *testing.T) {
	srv := newMockSidecar(t)
	defer srv.Close()

	p := NewClipProvider(Config{Endpoint: srv.URL, Model: "clip-vit-b-32"})

	vec, err := p.EncodeText(context.Background(), "black leather wallet")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 2 {
		t.Fatalf("got dimension %d, want 2", len(vec))
	}
	if p.Dimension() != 2 {
		t.Errorf("got cached dimension %d, want 2", p.Dimension())
	}
	if p.Model() != "clip-vit-b-32" {
		t.Errorf("got model %q", p.Model())
	}
}

func TestClipProviderEncodeImage(t *testing.T) {
	srv := newMockSidecar(t)
	defer srv.Close()

	p := NewClipProvider(Config{Endpoint: srv.URL, Model: "clip-vit-b-32"})

	vec, err := p.EncodeImage(context.Background(), []byte{0xff, 0xd8, 0xff})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 2 {
		t.Fatalf("got dimension %d, want 2", len(vec))
	}
}

func TestClipProviderEncodeImage_Empty(t *testing.T) {
	p := NewClipProvider(Config{Endpoint: "http://unused", Model: "m"})
	if _, err := p.EncodeImage(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty image bytes")
	}
}

func TestClipProviderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewClipProvider(Config{Endpoint: srv.URL, Model: "m"})
	if _, err := p.EncodeText(context.Background(), "anything"); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestClipProviderDimension_Concurrent(t *testing.T) {
	srv := newMockSidecar(t)
	defer srv.Close()

	p := NewClipProvider(Config{Endpoint: srv.URL, Model: "m", Dimension: 512})

	// Dimension readers race the first encode; every read must see
	// either the configured default or the observed value.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if d := p.Dimension(); d != 512 && d != 2 {
				t.Errorf("got dimension %d, want 512 or 2", d)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := p.EncodeText(context.Background(), "wallet"); err != nil {
				t.Errorf("encode: %v", err)
			}
		}()
	}
	wg.Wait()

	if d := p.Dimension(); d != 2 {
		t.Errorf("got dimension %d after encodes, want observed 2", d)
	}
}

func TestClipProviderDimension_Fallback(t *testing.T) {
	p := NewClipProvider(Config{Endpoint: "http://unused", Model: "m", Dimension: 512})

	// Before any encode call, Dimension should return the configured default.
	if d := p.Dimension(); d != 512 {
		t.Errorf("got dimension %d, want configured default 512", d)
	}
}
