package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/badgeteam/badgehub/pkg/badgehub"
)

// Repository implements badgehub.MetadataRepository using in-memory
// storage. The single RWMutex gives it the same serialization guarantee
// the Postgres repository gets from row locking: two publishes of the
// same project can never interleave.
type Repository struct {
	mu            sync.RWMutex
	projects      map[string]*badgehub.Project
	versions      map[uuid.UUID]*badgehub.Version
	versionIDs    map[string]map[int]uuid.UUID // slug -> revision -> version id
	files         map[uuid.UUID]map[string]*badgehub.FileMetadata
	reports       []*badgehub.UsageReport
	installCounts map[string]int64
	badges        map[string]*badgehub.RegisteredBadge
	nextFileID    int64
	nextReportID  int64
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		projects:      make(map[string]*badgehub.Project),
		versions:      make(map[uuid.UUID]*badgehub.Version),
		versionIDs:    make(map[string]map[int]uuid.UUID),
		files:         make(map[uuid.UUID]map[string]*badgehub.FileMetadata),
		installCounts: make(map[string]int64),
		badges:        make(map[string]*badgehub.RegisteredBadge),
	}
}

func fileKey(dir, name, ext string) string {
	return dir + "\x00" + name + "\x00" + ext
}

// Project operations

func (r *Repository) CreateProject(ctx context.Context, project *badgehub.Project, draftMeta badgehub.AppMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.projects[project.Slug]; exists {
		return badgehub.ErrProjectExists
	}

	draft := &badgehub.Version{
		ID:          uuid.New(),
		ProjectSlug: project.Slug,
		Revision:    0,
		AppMetadata: draftMeta.Clone(),
		CreatedAt:   project.CreatedAt,
		UpdatedAt:   project.UpdatedAt,
	}

	projectCopy := *project
	projectCopy.DraftRevision = 0
	projectCopy.LatestRevision = nil

	r.projects[project.Slug] = &projectCopy
	r.versions[draft.ID] = draft
	r.versionIDs[project.Slug] = map[int]uuid.UUID{0: draft.ID}
	r.files[draft.ID] = make(map[string]*badgehub.FileMetadata)

	project.DraftRevision = 0
	project.LatestRevision = nil
	return nil
}

func (r *Repository) GetProject(ctx context.Context, slug string) (*badgehub.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	project, err := r.liveProjectLocked(slug)
	if err != nil {
		return nil, err
	}
	projectCopy := *project
	return &projectCopy, nil
}

func (r *Repository) liveProjectLocked(slug string) (*badgehub.Project, error) {
	project, exists := r.projects[slug]
	if !exists || project.DeletedAt != nil {
		return nil, badgehub.ErrProjectNotFound
	}
	return project, nil
}

func (r *Repository) UpdateProject(ctx context.Context, slug string, changes badgehub.ProjectChanges) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	project, err := r.liveProjectLocked(slug)
	if err != nil {
		return err
	}
	if changes.GitURL != nil {
		project.GitURL = *changes.GitURL
	}
	project.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repository) DeleteProject(ctx context.Context, slug string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	project, err := r.liveProjectLocked(slug)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	project.DeletedAt = &now
	project.UpdatedAt = now
	return nil
}

// Version operations

func (r *Repository) ResolveVersion(ctx context.Context, slug string, sel badgehub.RevisionSelector) (*badgehub.Version, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	version, err := r.resolveLocked(slug, sel)
	if err != nil {
		return nil, err
	}
	return copyVersion(version), nil
}

func (r *Repository) resolveLocked(slug string, sel badgehub.RevisionSelector) (*badgehub.Version, error) {
	project, err := r.liveProjectLocked(slug)
	if err != nil {
		return nil, err
	}

	var revision int
	switch {
	case sel.IsDraft():
		revision = project.DraftRevision
	case sel.IsLatest():
		if project.LatestRevision == nil {
			return nil, badgehub.ErrVersionNotFound
		}
		revision = *project.LatestRevision
	default:
		n, _ := sel.Number()
		id, exists := r.versionIDs[slug][n]
		if !exists {
			return nil, badgehub.ErrVersionNotFound
		}
		version := r.versions[id]
		// Numbered lookups only see published revisions; the draft stays
		// unreachable by guessing its revision number.
		if version.PublishedAt == nil {
			return nil, badgehub.ErrVersionNotFound
		}
		return version, nil
	}

	id, exists := r.versionIDs[slug][revision]
	if !exists {
		return nil, badgehub.ErrVersionNotFound
	}
	return r.versions[id], nil
}

func copyVersion(v *badgehub.Version) *badgehub.Version {
	versionCopy := *v
	versionCopy.AppMetadata = v.AppMetadata.Clone()
	versionCopy.Files = nil
	return &versionCopy
}

func (r *Repository) UpdateDraftMetadata(ctx context.Context, slug string, meta badgehub.AppMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	draft, err := r.resolveLocked(slug, badgehub.SelectDraft())
	if err != nil {
		return err
	}
	draft.AppMetadata = meta.Clone()
	draft.UpdatedAt = time.Now().UTC()
	return nil
}

// PublishVersion freezes the draft, creates the inheriting next draft
// with copies of all live file rows, and repoints both revision
// pointers, all under the write lock.
func (r *Repository) PublishVersion(ctx context.Context, slug string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	project, err := r.liveProjectLocked(slug)
	if err != nil {
		return err
	}
	draftID, exists := r.versionIDs[slug][project.DraftRevision]
	if !exists {
		return badgehub.ErrNoDraft
	}
	draft := r.versions[draftID]

	publishedAt := at
	draft.PublishedAt = &publishedAt
	draft.UpdatedAt = at

	next := &badgehub.Version{
		ID:          uuid.New(),
		ProjectSlug: slug,
		Revision:    draft.Revision + 1,
		AppMetadata: draft.AppMetadata.Clone(),
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	r.versions[next.ID] = next
	r.versionIDs[slug][next.Revision] = next.ID

	nextFiles := make(map[string]*badgehub.FileMetadata, len(r.files[draftID]))
	for key, file := range r.files[draftID] {
		if file.DeletedAt != nil {
			continue
		}
		r.nextFileID++
		fileCopy := *file
		fileCopy.ID = r.nextFileID
		fileCopy.VersionID = next.ID
		nextFiles[key] = &fileCopy
	}
	r.files[next.ID] = nextFiles

	published := draft.Revision
	project.LatestRevision = &published
	project.DraftRevision = next.Revision
	project.UpdatedAt = at
	return nil
}

// File operations

func (r *Repository) UpsertDraftFile(ctx context.Context, slug string, file *badgehub.FileMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	draft, err := r.resolveLocked(slug, badgehub.SelectDraft())
	if err != nil {
		return err
	}

	key := fileKey(file.Dir, file.Name, file.Ext)
	if existing, ok := r.files[draft.ID][key]; ok {
		existing.MimeType = file.MimeType
		existing.SizeOfContent = file.SizeOfContent
		existing.SHA256 = file.SHA256
		existing.ImageWidth = file.ImageWidth
		existing.ImageHeight = file.ImageHeight
		existing.UpdatedAt = file.UpdatedAt
		existing.DeletedAt = nil
		file.ID = existing.ID
		file.VersionID = draft.ID
		file.CreatedAt = existing.CreatedAt
		return nil
	}

	r.nextFileID++
	fileCopy := *file
	fileCopy.ID = r.nextFileID
	fileCopy.VersionID = draft.ID
	r.files[draft.ID][key] = &fileCopy

	file.ID = fileCopy.ID
	file.VersionID = draft.ID
	return nil
}

func (r *Repository) DeleteDraftFile(ctx context.Context, slug, dir, name, ext string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	draft, err := r.resolveLocked(slug, badgehub.SelectDraft())
	if err != nil {
		return err
	}

	file, ok := r.files[draft.ID][fileKey(dir, name, ext)]
	if !ok || file.DeletedAt != nil {
		return badgehub.ErrFileNotFound
	}
	now := time.Now().UTC()
	file.DeletedAt = &now
	return nil
}

func (r *Repository) GetFile(ctx context.Context, slug string, sel badgehub.RevisionSelector, dir, name, ext string) (*badgehub.FileMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	version, err := r.resolveLocked(slug, sel)
	if err != nil {
		return nil, err
	}

	file, ok := r.files[version.ID][fileKey(dir, name, ext)]
	if !ok || file.DeletedAt != nil {
		return nil, badgehub.ErrFileNotFound
	}
	fileCopy := *file
	return &fileCopy, nil
}

func (r *Repository) ListFiles(ctx context.Context, versionID uuid.UUID) ([]badgehub.FileMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []badgehub.FileMetadata
	for _, file := range r.files[versionID] {
		if file.DeletedAt == nil {
			result = append(result, *file)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].FullPath() < result[j].FullPath()
	})
	return result, nil
}

// Listing and reporting

func (r *Repository) ListProjectSummaries(ctx context.Context, filter badgehub.SummaryFilter) ([]badgehub.ProjectSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []badgehub.ProjectSummary
	for slug, project := range r.projects {
		if project.DeletedAt != nil || project.LatestRevision == nil {
			continue
		}
		version := r.versions[r.versionIDs[slug][*project.LatestRevision]]
		if !matchesFilter(project, version, filter) {
			continue
		}

		meta := version.AppMetadata
		name := meta.Name
		if name == "" {
			name = slug
		}
		result = append(result, badgehub.ProjectSummary{
			Slug:        slug,
			IDPUserID:   project.IDPUserID,
			GitURL:      project.GitURL,
			Name:        name,
			Description: meta.Description,
			LicenseType: meta.LicenseType,
			Categories:  append([]string(nil), meta.Categories...),
			Badges:      append([]string(nil), meta.Badges...),
			IconMap:     meta.Clone().IconMap,
			Hidden:      meta.Hidden,
			Revision:    version.Revision,
			PublishedAt: version.PublishedAt,
			UpdatedAt:   version.UpdatedAt,
			Installs:    r.installCounts[slug],
		})
	}

	sortSummaries(result, filter.OrderBy)
	return paginate(result, filter.PageStart, filter.PageLength), nil
}

func matchesFilter(project *badgehub.Project, version *badgehub.Version, filter badgehub.SummaryFilter) bool {
	meta := version.AppMetadata

	if len(filter.Slugs) > 0 {
		if !containsString(filter.Slugs, project.Slug) {
			return false
		}
	} else if meta.Hidden {
		// Hidden projects stay out of the public listing but remain
		// reachable through an explicit slug lookup.
		return false
	}

	if len(filter.Badges) > 0 && !overlaps(meta.Badges, filter.Badges) {
		return false
	}
	if len(filter.Categories) > 0 && !overlaps(meta.Categories, filter.Categories) {
		return false
	}
	if filter.UserID != nil && project.IDPUserID != *filter.UserID {
		return false
	}

	if filter.Search != "" {
		needle := strings.ToLower(filter.Search)
		match := strings.Contains(strings.ToLower(meta.Name), needle) ||
			strings.Contains(strings.ToLower(meta.Description), needle) ||
			strings.Contains(strings.ToLower(project.Slug), needle)
		if !match {
			for _, c := range meta.Categories {
				if strings.Contains(strings.ToLower(c), needle) {
					match = true
					break
				}
			}
		}
		if !match {
			return false
		}
	}

	return true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func overlaps(have, want []string) bool {
	for _, w := range want {
		if containsString(have, w) {
			return true
		}
	}
	return false
}

func sortSummaries(summaries []badgehub.ProjectSummary, orderBy badgehub.SortKey) {
	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		switch orderBy {
		case badgehub.SortByUpdatedAt:
			return a.UpdatedAt.After(b.UpdatedAt)
		case badgehub.SortByInstalls:
			if a.Installs != b.Installs {
				return a.Installs > b.Installs
			}
			return a.Slug < b.Slug
		default:
			at, bt := a.PublishedAt, b.PublishedAt
			if at == nil || bt == nil {
				return bt == nil && at != nil
			}
			return at.After(*bt)
		}
	})
}

func paginate(summaries []badgehub.ProjectSummary, start, length int) []badgehub.ProjectSummary {
	if start > 0 {
		if start >= len(summaries) {
			return []badgehub.ProjectSummary{}
		}
		summaries = summaries[start:]
	}
	if length > 0 && length < len(summaries) {
		summaries = summaries[:length]
	}
	return summaries
}

func (r *Repository) LatestRevisions(ctx context.Context, slugs []string) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]int)
	for slug, project := range r.projects {
		if project.DeletedAt != nil || project.LatestRevision == nil {
			continue
		}
		if len(slugs) > 0 && !containsString(slugs, slug) {
			continue
		}
		result[slug] = *project.LatestRevision
	}
	return result, nil
}

func (r *Repository) GetStats(ctx context.Context) (*badgehub.Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	authors := make(map[string]struct{})
	var apps int64
	for _, project := range r.projects {
		authors[project.IDPUserID] = struct{}{}
		if project.DeletedAt == nil {
			apps++
		}
	}
	return &badgehub.Stats{
		Apps:       apps,
		AppAuthors: int64(len(authors)),
		Badges:     int64(len(r.badges)),
	}, nil
}

func (r *Repository) RecordUsageReport(ctx context.Context, report *badgehub.UsageReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextReportID++
	reportCopy := *report
	reportCopy.ID = r.nextReportID
	r.reports = append(r.reports, &reportCopy)
	report.ID = reportCopy.ID
	return nil
}

// RefreshInstallCounts recomputes the distinct-install aggregate the
// listing sort uses, mirroring the materialized view refresh of the
// Postgres repository.
func (r *Repository) RefreshInstallCounts(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[string]int64)
	seen := make(map[string]map[string]struct{})
	for _, report := range r.reports {
		if report.Kind != badgehub.ReportInstall {
			continue
		}
		if seen[report.ProjectSlug] == nil {
			seen[report.ProjectSlug] = make(map[string]struct{})
		}
		if _, dup := seen[report.ProjectSlug][report.BadgeID]; dup {
			continue
		}
		seen[report.ProjectSlug][report.BadgeID] = struct{}{}
		counts[report.ProjectSlug]++
	}
	r.installCounts = counts
	return nil
}

func (r *Repository) RegisterBadge(ctx context.Context, id, mac string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if badge, exists := r.badges[id]; exists {
		if badge.MAC == "" {
			badge.MAC = mac
		}
		badge.LastSeenAt = now
		return nil
	}
	r.badges[id] = &badgehub.RegisteredBadge{ID: id, MAC: mac, LastSeenAt: now}
	return nil
}
