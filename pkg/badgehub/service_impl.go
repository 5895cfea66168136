package badgehub

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"
)

// service implements the Service interface
type service struct {
	repository MetadataRepository
	blobStore  BlobStore
	badges     []string
	categories []string
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the metadata repository for the service
func WithRepository(repo MetadataRepository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the content-addressed blob store
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobStore = store
	}
}

// WithBadges sets the known badge-device vocabulary. When set, app
// metadata may only reference badges from this list.
func WithBadges(badges ...string) Option {
	return func(s *service) {
		s.badges = badges
	}
}

// WithCategories sets the category vocabulary. When set, app metadata
// may only reference categories from this list.
func WithCategories(categories ...string) Option {
	return func(s *service) {
		s.categories = categories
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}

	return s, nil
}

// Project operations

func (s *service) CreateProject(ctx context.Context, req CreateProjectRequest) (*Project, error) {
	if err := ValidateSlug(req.Slug); err != nil {
		return nil, err
	}
	if req.IDPUserID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidMetadata)
	}

	now := time.Now().UTC()
	project := &Project{
		Slug:      req.Slug,
		IDPUserID: req.IDPUserID,
		GitURL:    req.GitURL,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// The initial draft starts with the slug as its name and, when a
	// badge vocabulary is configured, the first badge preselected.
	draftMeta := AppMetadata{
		MetadataVersion: AppMetadataVersion,
		Name:            req.Slug,
	}
	if len(s.badges) > 0 {
		draftMeta.Badges = s.badges[:1]
	}

	if err := s.repository.CreateProject(ctx, project, draftMeta); err != nil {
		return nil, &ProjectError{Slug: req.Slug, Op: "create", Err: err}
	}

	return project, nil
}

func (s *service) UpdateProject(ctx context.Context, slug string, changes ProjectChanges) error {
	if err := s.repository.UpdateProject(ctx, slug, changes); err != nil {
		return &ProjectError{Slug: slug, Op: "update", Err: err}
	}
	return nil
}

func (s *service) DeleteProject(ctx context.Context, slug string) error {
	if err := s.repository.DeleteProject(ctx, slug); err != nil {
		return &ProjectError{Slug: slug, Op: "delete", Err: err}
	}
	return nil
}

func (s *service) GetProject(ctx context.Context, slug string, sel RevisionSelector) (*ProjectDetails, error) {
	version, err := s.GetVersion(ctx, slug, sel)
	if err != nil {
		return nil, err
	}

	project, err := s.repository.GetProject(ctx, slug)
	if err != nil {
		return nil, err
	}

	return &ProjectDetails{
		Project: *project,
		Version: *version,
	}, nil
}

func (s *service) GetVersion(ctx context.Context, slug string, sel RevisionSelector) (*Version, error) {
	version, err := s.repository.ResolveVersion(ctx, slug, sel)
	if err != nil {
		return nil, err
	}

	files, err := s.repository.ListFiles(ctx, version.ID)
	if err != nil {
		return nil, err
	}
	version.Files = files

	return version, nil
}

// Publish

func (s *service) Publish(ctx context.Context, slug string) error {
	return s.PublishAt(ctx, slug, time.Now().UTC())
}

func (s *service) PublishAt(ctx context.Context, slug string, at time.Time) error {
	if err := s.repository.PublishVersion(ctx, slug, at.UTC()); err != nil {
		return &ProjectError{Slug: slug, Op: "publish", Err: err}
	}
	return nil
}

// Draft mutation

func (s *service) UploadDraftFile(ctx context.Context, req UploadDraftFileRequest) (*FileMetadata, error) {
	dir, name, ext := SplitFilePath(req.FilePath)
	if name == "" {
		return nil, fmt.Errorf("%w: empty file path", ErrInvalidMetadata)
	}

	digest, size, err := s.blobStore.Put(ctx, bytes.NewReader(req.Content))
	if err != nil {
		return nil, &StorageError{Digest: digest, Op: "put", Err: err}
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	now := time.Now().UTC()
	file := &FileMetadata{
		Dir:           dir,
		Name:          name,
		Ext:           ext,
		MimeType:      mimeType,
		SizeOfContent: size,
		SHA256:        digest,
		ImageWidth:    req.ImageWidth,
		ImageHeight:   req.ImageHeight,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repository.UpsertDraftFile(ctx, req.Slug, file); err != nil {
		return nil, &ProjectError{Slug: req.Slug, Op: "upload", Err: err}
	}

	return file, nil
}

func (s *service) DeleteDraftFile(ctx context.Context, slug, filePath string) error {
	dir, name, ext := SplitFilePath(filePath)
	if err := s.repository.DeleteDraftFile(ctx, slug, dir, name, ext); err != nil {
		return &ProjectError{Slug: slug, Op: "delete_file", Err: err}
	}
	return nil
}

func (s *service) UpdateDraftMetadata(ctx context.Context, slug string, meta AppMetadata) error {
	if err := s.validateAppMetadata(meta); err != nil {
		return err
	}
	if meta.MetadataVersion == 0 {
		meta.MetadataVersion = AppMetadataVersion
	}
	if err := s.repository.UpdateDraftMetadata(ctx, slug, meta); err != nil {
		return &ProjectError{Slug: slug, Op: "update_metadata", Err: err}
	}
	return nil
}

func (s *service) validateAppMetadata(meta AppMetadata) error {
	if strings.TrimSpace(meta.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidMetadata)
	}
	if len(s.categories) > 0 {
		for _, c := range meta.Categories {
			if !slices.Contains(s.categories, c) {
				return fmt.Errorf("%w: unknown category %q", ErrInvalidMetadata, c)
			}
		}
	}
	if len(s.badges) > 0 {
		for _, b := range meta.Badges {
			if !slices.Contains(s.badges, b) {
				return fmt.Errorf("%w: unknown badge %q", ErrInvalidMetadata, b)
			}
		}
	}
	return nil
}

// File reads

func (s *service) GetFileMetadata(ctx context.Context, slug string, sel RevisionSelector, filePath string) (*FileMetadata, error) {
	dir, name, ext := SplitFilePath(filePath)
	return s.repository.GetFile(ctx, slug, sel, dir, name, ext)
}

func (s *service) GetFileContents(ctx context.Context, slug string, sel RevisionSelector, filePath string) (io.ReadCloser, *FileMetadata, error) {
	file, err := s.GetFileMetadata(ctx, slug, sel, filePath)
	if err != nil {
		return nil, nil, err
	}

	reader, err := s.blobStore.Get(ctx, file.SHA256)
	if err != nil {
		return nil, nil, &StorageError{Digest: file.SHA256, Op: "get", Err: err}
	}

	return reader, file, nil
}

// Catalogue reads

func (s *service) GetProjectSummaries(ctx context.Context, filter SummaryFilter) ([]ProjectSummary, error) {
	if err := filter.OrderBy.Validate(); err != nil {
		return nil, err
	}
	if filter.OrderBy == "" {
		filter.OrderBy = SortByPublishedAt
	}
	return s.repository.ListProjectSummaries(ctx, filter)
}

func (s *service) GetLatestRevisions(ctx context.Context, slugs []string) (map[string]int, error) {
	return s.repository.LatestRevisions(ctx, slugs)
}

func (s *service) GetStats(ctx context.Context) (*Stats, error) {
	return s.repository.GetStats(ctx)
}

// Reporting and device registry

func (s *service) RecordReport(ctx context.Context, req RecordReportRequest) error {
	switch req.Kind {
	case ReportInstall, ReportLaunch, ReportCrash:
	default:
		return fmt.Errorf("%w: unknown report kind %q", ErrInvalidMetadata, req.Kind)
	}

	// Reports only make sense against a published revision; resolving it
	// also keeps drafts unguessable through the reporting endpoints.
	if _, err := s.repository.ResolveVersion(ctx, req.Slug, SelectRevision(req.Revision)); err != nil {
		return err
	}

	report := &UsageReport{
		ProjectSlug: req.Slug,
		Revision:    req.Revision,
		Kind:        req.Kind,
		BadgeID:     req.BadgeID,
		Reason:      req.Reason,
		ReportedAt:  time.Now().UTC(),
	}
	return s.repository.RecordUsageReport(ctx, report)
}

func (s *service) RefreshInstallCounts(ctx context.Context) error {
	return s.repository.RefreshInstallCounts(ctx)
}

func (s *service) RegisterBadge(ctx context.Context, id, mac string) error {
	if id == "" {
		return fmt.Errorf("%w: badge id is required", ErrInvalidMetadata)
	}
	return s.repository.RegisterBadge(ctx, id, mac)
}

// Configured vocabularies

func (s *service) Badges() []string {
	return slices.Clone(s.badges)
}

func (s *service) Categories() []string {
	return slices.Clone(s.categories)
}
