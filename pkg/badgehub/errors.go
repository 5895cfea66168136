package badgehub

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrProjectNotFound indicates the project does not exist or is not
	// visible. Soft-deleted projects and private drafts report the same
	// error so callers cannot probe for their existence.
	ErrProjectNotFound = errors.New("project not found")

	// ErrVersionNotFound indicates the requested revision or alias does
	// not resolve to a visible version.
	ErrVersionNotFound = errors.New("version not found")

	// ErrFileNotFound indicates no live file row exists at the path.
	ErrFileNotFound = errors.New("file not found")

	// ErrContentNotFound indicates the blob store has no bytes for a digest.
	ErrContentNotFound = errors.New("content not found")

	// ErrProjectExists indicates a create collided with an existing slug.
	ErrProjectExists = errors.New("project already exists")

	// ErrNoDraft indicates a publish found no draft version to freeze.
	ErrNoDraft = errors.New("project has no draft version")

	// ErrInvalidSlug indicates a slug that does not match the slug pattern.
	ErrInvalidSlug = errors.New("invalid project slug")

	// ErrInvalidSelector indicates an unparseable revision path segment.
	ErrInvalidSelector = errors.New("invalid revision selector")

	// ErrInvalidSortKey indicates an unknown listing sort key.
	ErrInvalidSortKey = errors.New("invalid sort key")

	// ErrInvalidMetadata indicates app metadata that failed validation.
	ErrInvalidMetadata = errors.New("invalid app metadata")
)

// IsValidationError reports whether err is a caller fault that should be
// reported synchronously without side effects.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidSlug) ||
		errors.Is(err, ErrInvalidSelector) ||
		errors.Is(err, ErrInvalidSortKey) ||
		errors.Is(err, ErrInvalidMetadata)
}

// IsConflictError reports whether err is a conflict distinct from
// not-found.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrProjectExists) || errors.Is(err, ErrNoDraft)
}

// IsNotFoundError reports whether err maps to a 404-class response.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrProjectNotFound) ||
		errors.Is(err, ErrVersionNotFound) ||
		errors.Is(err, ErrFileNotFound) ||
		errors.Is(err, ErrContentNotFound)
}

// ProjectError represents an error related to project operations
type ProjectError struct {
	Slug string
	Op   string
	Err  error
}

func (e *ProjectError) Error() string {
	return fmt.Sprintf("project operation %s failed for %s: %v", e.Op, e.Slug, e.Err)
}

func (e *ProjectError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to blob store operations
type StorageError struct {
	Digest string
	Op     string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for digest %s: %v", e.Op, e.Digest, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
