package supabase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"civicgpt/tax-advisor/store"

	storage_go "github.com/supabase-community/storage-go"
)

// BlobStore keeps uploads in a Supabase Storage bucket.
type BlobStore struct {
	url    string
	key    string
	bucket string
}

func NewBlobStore(supabaseURL, key, bucket string) *BlobStore {
	return &BlobStore{url: strings.TrimRight(supabaseURL, "/") + "/storage/v1", key: key, bucket: bucket}
}

// client returns a fresh storage client per call: storage_go keeps upload
// options as headers on its shared transport, which parallel uploads would
// overwrite.
func (b *BlobStore) client() *storage_go.Client {
	return storage_go.NewClient(b.url, b.key, map[string]string{"apikey": b.key})
}

func (b *BlobStore) Put(_ context.Context, path string, body []byte, contentType string) error {
	upsert := false
	opts := storage_go.FileOptions{Upsert: &upsert}
	if contentType != "" {
		opts.ContentType = &contentType
	}

	if _, err := b.client().UploadFile(b.bucket, path, bytes.NewReader(body), opts); err != nil {
		return fmt.Errorf("failed to upload %s: %w", path, mapStorageError(err))
	}
	return nil
}

func (b *BlobStore) SignedURL(_ context.Context, path string, ttl time.Duration) (string, error) {
	resp, err := b.client().CreateSignedUrl(b.bucket, path, int(ttl.Seconds()))
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", path, mapStorageError(err))
	}
	return resp.SignedURL, nil
}

func (b *BlobStore) Remove(_ context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	if _, err := b.client().RemoveFile(b.bucket, paths); err != nil {
		return fmt.Errorf("failed to remove objects: %w", mapStorageError(err))
	}
	return nil
}

func mapStorageError(err error) error {
	var storageErr *storage_go.StorageError
	if errors.As(err, &storageErr) && storageErr.Status == http.StatusNotFound {
		return fmt.Errorf("%s: %w", storageErr.Message, store.ErrNotFound)
	}
	return err
}
