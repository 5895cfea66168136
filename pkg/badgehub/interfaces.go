package badgehub

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// BlobStore is the content-addressed file store. Keys are lowercase hex
// SHA-256 digests of the stored bytes, so identical content is stored
// once no matter how many revisions reference it. Puts are idempotent
// and stored bytes are immutable.
type BlobStore interface {
	// Put stores the reader's bytes and returns their digest and size.
	// Storing bytes that already exist is a cheap no-op.
	Put(ctx context.Context, reader io.Reader) (digest string, size int64, err error)

	// Get returns the bytes for a digest, or ErrContentNotFound.
	Get(ctx context.Context, digest string) (io.ReadCloser, error)

	// Exists reports whether bytes for the digest are stored.
	Exists(ctx context.Context, digest string) (bool, error)

	// Delete removes the bytes for a digest. The engine never calls this
	// for content referenced by a version; it exists for offline garbage
	// collection.
	Delete(ctx context.Context, digest string) error
}

// MetadataRepository is the relational store for projects, versions and
// file rows. It owns the per-project revision sequence and the publish
// transaction.
type MetadataRepository interface {
	// Project operations
	CreateProject(ctx context.Context, project *Project, draftMeta AppMetadata) error
	GetProject(ctx context.Context, slug string) (*Project, error)
	UpdateProject(ctx context.Context, slug string, changes ProjectChanges) error
	DeleteProject(ctx context.Context, slug string) error

	// Version operations.
	// ResolveVersion applies the visibility rules: the draft only via the
	// draft alias, explicit numbers only when published, nothing for
	// soft-deleted projects.
	ResolveVersion(ctx context.Context, slug string, sel RevisionSelector) (*Version, error)
	UpdateDraftMetadata(ctx context.Context, slug string, meta AppMetadata) error

	// PublishVersion atomically freezes the draft at the given instant,
	// creates the inheriting next draft (metadata and live file rows
	// copied) and repoints the project's revision pointers. Concurrent
	// publishes of the same project serialize on the project row.
	PublishVersion(ctx context.Context, slug string, at time.Time) error

	// File operations. Draft file rows are addressed through the owning
	// project's draft pointer so a publish can never race a stale
	// version id held by a caller.
	UpsertDraftFile(ctx context.Context, slug string, file *FileMetadata) error
	DeleteDraftFile(ctx context.Context, slug, dir, name, ext string) error
	GetFile(ctx context.Context, slug string, sel RevisionSelector, dir, name, ext string) (*FileMetadata, error)
	ListFiles(ctx context.Context, versionID uuid.UUID) ([]FileMetadata, error)

	// Listing and reporting
	ListProjectSummaries(ctx context.Context, filter SummaryFilter) ([]ProjectSummary, error)
	LatestRevisions(ctx context.Context, slugs []string) (map[string]int, error)
	GetStats(ctx context.Context) (*Stats, error)

	RecordUsageReport(ctx context.Context, report *UsageReport) error
	// RefreshInstallCounts rebuilds the distinct-install aggregate the
	// listing engine sorts on. Called by an out-of-core scheduler.
	RefreshInstallCounts(ctx context.Context) error
	RegisterBadge(ctx context.Context, id, mac string) error
}
