package zarr

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Set("a/0.0", []byte{1, 2, 3, 4})

	got, err := s.Get(ctx, "a/0.0")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("Get = %v", got)
	}

	if _, err := s.Get(ctx, "a/0.1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing key: %v, expected ErrNotFound", err)
	}

	ok, err := s.Has(ctx, "a/0.0")
	if err != nil || !ok {
		t.Errorf("Has = %v, %v", ok, err)
	}

	part, err := s.GetRange(ctx, "a/0.0", 1, 2)
	if err != nil {
		t.Fatalf("GetRange: %v", err)
	}
	if !bytes.Equal(part, []byte{2, 3}) {
		t.Errorf("GetRange = %v", part)
	}
}

func TestMemoryStoreCanceledContext(t *testing.T) {
	s := NewMemoryStore()
	s.Set("k", []byte{1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Get(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get on canceled ctx: %v", err)
	}
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "air"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "air", "0.0"), []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	got, err := s.Get(ctx, "air/0.0")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("Get = %q", got)
	}

	if _, err := s.Get(ctx, "air/9.9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing key: %v, expected ErrNotFound", err)
	}

	part, err := s.GetRange(ctx, "air/0.0", 3, 4)
	if err != nil {
		t.Fatalf("GetRange: %v", err)
	}
	if string(part) != "load" {
		t.Errorf("GetRange = %q", part)
	}

	ok, err := s.Has(ctx, "air/0.0")
	if err != nil || !ok {
		t.Errorf("Has = %v, %v", ok, err)
	}
}

func TestHTTPStore(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ds/air/0.0" {
			http.NotFound(w, r)
			return
		}
		// Ignores Range on purpose; clients must slice.
		w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	s := NewHTTPStore(srv.URL+"/ds", nil)
	got, err := s.Get(ctx, "air/0.0")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "0123456789" {
		t.Errorf("Get = %q", got)
	}

	if _, err := s.Get(ctx, "air/missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing key: %v, expected ErrNotFound", err)
	}

	part, err := s.GetRange(ctx, "air/0.0", 2, 3)
	if err != nil {
		t.Fatalf("GetRange: %v", err)
	}
	if string(part) != "234" {
		t.Errorf("GetRange = %q, expected slice of full response", part)
	}

	ok, err := s.Has(ctx, "air/0.0")
	if err != nil || !ok {
		t.Errorf("Has = %v, %v", ok, err)
	}
	ok, err = s.Has(ctx, "air/missing")
	if err != nil || ok {
		t.Errorf("Has(missing) = %v, %v", ok, err)
	}
}
