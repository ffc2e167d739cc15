package zarr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound indicates a requested key does not exist in the store.
//
// Callers use errors.Is to distinguish missing chunks (which decode as
// fill value) from transport failures.
var ErrNotFound = errors.New("zarr: key not found")

// Store provides read access to a chunked-array store.
//
// A store maps logical keys ("0/air/.zarray", "0/air/1.2") to byte blobs.
// Implementations must be safe for concurrent use. All reads accept a
// context and must return promptly when it is canceled.
type Store interface {
	// Get returns the full value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// GetRange returns length bytes of the value starting at offset.
	// Stores that cannot serve ranges may return the full value; callers
	// slice defensively.
	GetRange(ctx context.Context, key string, offset, length int64) ([]byte, error)

	// Has reports whether the key exists without fetching its value.
	Has(ctx context.Context, key string) (bool, error)
}

// MemoryStore is an in-memory Store, primarily for tests and fixtures.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Set stores value under key, replacing any previous value.
func (s *MemoryStore) Set(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// SetJSON stores a raw JSON document under key.
func (s *MemoryStore) SetJSON(key, doc string) {
	s.Set(key, []byte(doc))
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	out := make([]byte, len(d))
	copy(out, d)
	return out, nil
}

func (s *MemoryStore) GetRange(ctx context.Context, key string, offset, length int64) ([]byte, error) {
	d, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if offset >= int64(len(d)) {
		return nil, nil
	}
	end := offset + length
	if end > int64(len(d)) {
		end = int64(len(d))
	}
	return d[offset:end], nil
}

func (s *MemoryStore) Has(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok, nil
}

// LocalStore reads a store rooted at a filesystem directory.
type LocalStore struct {
	base string
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore creates a store rooted at base.
func NewLocalStore(base string) (*LocalStore, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, err
	}
	return &LocalStore{base: abs}, nil
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.base, filepath.FromSlash(key))
}

func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return d, err
}

func (s *LocalStore) GetRange(ctx context.Context, key string, offset, length int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(key))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, length)
	n, err := f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

func (s *LocalStore) Has(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(s.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// HTTPStore reads a store served over HTTP(S), one object per key.
//
// Keys are resolved relative to the base URL. Range reads use the HTTP
// Range header; servers that ignore it still work because callers slice
// the returned payload.
type HTTPStore struct {
	base   string
	client *http.Client
}

var _ Store = (*HTTPStore)(nil)

// NewHTTPStore creates a store for the given base URL.
//
// A nil client uses http.DefaultClient.
func NewHTTPStore(baseURL string, client *http.Client) *HTTPStore {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPStore{
		base:   strings.TrimRight(baseURL, "/"),
		client: client,
	}
}

func (s *HTTPStore) url(key string) string {
	return s.base + "/" + strings.TrimLeft(key, "/")
}

func (s *HTTPStore) do(ctx context.Context, key string, rangeHeader string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url(key), nil)
	if err != nil {
		return nil, err
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	case resp.StatusCode >= 300:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("zarr: GET %s: unexpected status %s", key, resp.Status)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, fmt.Errorf("zarr: read %s: %w", key, err)
	}
	return buf.Bytes(), nil
}

func (s *HTTPStore) Get(ctx context.Context, key string) ([]byte, error) {
	return s.do(ctx, key, "")
}

func (s *HTTPStore) GetRange(ctx context.Context, key string, offset, length int64) ([]byte, error) {
	d, err := s.do(ctx, key, fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
	if err != nil {
		return nil, err
	}
	// Server may have ignored Range and returned the whole object.
	if int64(len(d)) > length {
		if offset >= int64(len(d)) {
			return nil, nil
		}
		end := offset + length
		if end > int64(len(d)) {
			end = int64(len(d))
		}
		return d[offset:end], nil
	}
	return d, nil
}

func (s *HTTPStore) Has(ctx context.Context, key string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.url(key), nil)
	if err != nil {
		return false, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode < 300, nil
}
