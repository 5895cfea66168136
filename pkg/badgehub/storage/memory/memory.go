package memory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sync"

	"github.com/badgeteam/badgehub/pkg/badgehub"
)

// Backend is an in-memory implementation of the badgehub.BlobStore
// interface, keyed by SHA-256 digest.
type Backend struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// New creates a new in-memory storage backend
func New() badgehub.BlobStore {
	return &Backend{
		objects: make(map[string][]byte),
	}
}

// Put stores the reader's bytes under their SHA-256 digest. Re-putting
// existing content is a no-op.
func (b *Backend) Put(ctx context.Context, reader io.Reader) (string, int64, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", 0, err
	}

	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[digest]; !exists {
		b.objects[digest] = data
	}
	return digest, int64(len(data)), nil
}

// Get retrieves the bytes for a digest
func (b *Backend) Get(ctx context.Context, digest string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[digest]
	if !exists {
		return nil, badgehub.ErrContentNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Exists reports whether bytes for the digest are stored
func (b *Backend) Exists(ctx context.Context, digest string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, exists := b.objects[digest]
	return exists, nil
}

// Delete removes the bytes for a digest
func (b *Backend) Delete(ctx context.Context, digest string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[digest]; !exists {
		return badgehub.ErrContentNotFound
	}
	delete(b.objects, digest)
	return nil
}
