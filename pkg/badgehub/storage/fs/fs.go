package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/badgeteam/badgehub/pkg/badgehub"
)

// Backend is a filesystem implementation of the badgehub.BlobStore
// interface. Blobs live at <baseDir>/<d[0:2]>/<d[2:4]>/<digest> so no
// single directory grows unbounded.
type Backend struct {
	baseDir string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Base directory for storing blobs
}

// New creates a new filesystem storage backend
func New(config Config) (badgehub.BlobStore, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{baseDir: config.BaseDir}, nil
}

func (b *Backend) blobPath(digest string) string {
	return filepath.Join(b.baseDir, digest[:2], digest[2:4], digest)
}

// Put streams the reader into a temp file while hashing, then renames
// the temp file to its digest path. The rename makes a concurrent Put of
// the same content harmless: last writer wins with identical bytes.
func (b *Backend) Put(ctx context.Context, reader io.Reader) (string, int64, error) {
	tmp, err := os.CreateTemp(b.baseDir, "put-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), reader)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", 0, fmt.Errorf("failed to write blob: %w", err)
	}

	digest := hex.EncodeToString(hasher.Sum(nil))
	target := b.blobPath(digest)

	if _, err := os.Stat(target); err == nil {
		return digest, size, nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create blob directory: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", 0, fmt.Errorf("failed to store blob: %w", err)
	}

	return digest, size, nil
}

// Get opens the blob file for a digest
func (b *Backend) Get(ctx context.Context, digest string) (io.ReadCloser, error) {
	if len(digest) < 4 {
		return nil, badgehub.ErrContentNotFound
	}

	file, err := os.Open(b.blobPath(digest))
	if os.IsNotExist(err) {
		return nil, badgehub.ErrContentNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return file, nil
}

// Exists reports whether a blob file exists for the digest
func (b *Backend) Exists(ctx context.Context, digest string) (bool, error) {
	if len(digest) < 4 {
		return false, nil
	}

	_, err := os.Stat(b.blobPath(digest))
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to stat blob: %w", err)
	}
	return true, nil
}

// Delete removes the blob file for a digest
func (b *Backend) Delete(ctx context.Context, digest string) error {
	if len(digest) < 4 {
		return badgehub.ErrContentNotFound
	}

	err := os.Remove(b.blobPath(digest))
	if os.IsNotExist(err) {
		return badgehub.ErrContentNotFound
	}
	return err
}
