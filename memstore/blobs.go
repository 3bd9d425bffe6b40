package memstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"civicgpt/tax-advisor/store"
)

type object struct {
	body        []byte
	contentType string
}

// BlobStore keeps objects in memory and hands out fake signed URLs under
// baseURL. FailPut makes Put fail for matching paths.
type BlobStore struct {
	mu      sync.Mutex
	baseURL string
	objects map[string]object

	FailPut func(path string) bool
}

func NewBlobStore(baseURL string) *BlobStore {
	return &BlobStore{baseURL: baseURL, objects: make(map[string]object)}
}

func (b *BlobStore) Put(_ context.Context, path string, body []byte, contentType string) error {
	if b.FailPut != nil && b.FailPut(path) {
		return errors.New("upload rejected")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[path] = object{body: slices.Clone(body), contentType: contentType}
	return nil
}

func (b *BlobStore) SignedURL(_ context.Context, path string, ttl time.Duration) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.objects[path]; !ok {
		return "", fmt.Errorf("object %s: %w", path, store.ErrNotFound)
	}
	return fmt.Sprintf("%s/%s?expires=%d", b.baseURL, url.PathEscape(path), int(ttl.Seconds())), nil
}

func (b *BlobStore) Remove(_ context.Context, paths ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range paths {
		delete(b.objects, p)
	}
	return nil
}

// ServeHTTP serves stored objects at the URLs SignedURL hands out. Mount
// it on a "{key}" pattern, e.g. "GET /blobs/{key}".
func (b *BlobStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	obj, ok := b.objects[r.PathValue("key")]
	b.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	if obj.contentType != "" {
		w.Header().Set("Content-Type", obj.contentType)
	}
	w.Write(obj.body)
}

// Paths lists stored object keys in sorted order.
func (b *BlobStore) Paths() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for p := range b.objects {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}
