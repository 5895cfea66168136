package badgehub

import (
	"context"
	"io"
	"time"
)

// Service defines the main interface of the badgehub library: the
// revision/publish engine plus the read surface the HTTP layer exposes.
type Service interface {
	// Project operations
	CreateProject(ctx context.Context, req CreateProjectRequest) (*Project, error)
	UpdateProject(ctx context.Context, slug string, changes ProjectChanges) error
	DeleteProject(ctx context.Context, slug string) error
	GetProject(ctx context.Context, slug string, sel RevisionSelector) (*ProjectDetails, error)
	GetVersion(ctx context.Context, slug string, sel RevisionSelector) (*Version, error)

	// Publish freezes the draft into an immutable revision and opens the
	// inheriting next draft. PublishAt takes a clock override for
	// deterministic fixtures.
	Publish(ctx context.Context, slug string) error
	PublishAt(ctx context.Context, slug string, at time.Time) error

	// Draft mutation
	UploadDraftFile(ctx context.Context, req UploadDraftFileRequest) (*FileMetadata, error)
	DeleteDraftFile(ctx context.Context, slug, filePath string) error
	UpdateDraftMetadata(ctx context.Context, slug string, meta AppMetadata) error

	// File reads
	GetFileMetadata(ctx context.Context, slug string, sel RevisionSelector, filePath string) (*FileMetadata, error)
	GetFileContents(ctx context.Context, slug string, sel RevisionSelector, filePath string) (io.ReadCloser, *FileMetadata, error)

	// Catalogue reads
	GetProjectSummaries(ctx context.Context, filter SummaryFilter) ([]ProjectSummary, error)
	GetLatestRevisions(ctx context.Context, slugs []string) (map[string]int, error)
	GetStats(ctx context.Context) (*Stats, error)

	// Reporting and device registry
	RecordReport(ctx context.Context, req RecordReportRequest) error
	RefreshInstallCounts(ctx context.Context) error
	RegisterBadge(ctx context.Context, id, mac string) error

	// Configured vocabularies
	Badges() []string
	Categories() []string
}
