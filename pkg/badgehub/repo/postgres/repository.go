package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/badgeteam/badgehub/pkg/badgehub"
)

// DBTX is an interface that allows us to use either a connection pool or
// a transaction. Begin is needed because publish runs as a transaction of
// its own.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository implements badgehub.MetadataRepository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) badgehub.MetadataRepository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) badgehub.MetadataRepository {
	return &Repository{db: pool}
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if strings.Contains(pgErr.ConstraintName, "projects") {
				return badgehub.ErrProjectExists
			}
			return fmt.Errorf("duplicate entry in %s", operation)
		case "23503": // foreign_key_violation
			return fmt.Errorf("referenced record not found in %s", operation)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Project operations

func (r *Repository) CreateProject(ctx context.Context, project *badgehub.Project, draftMeta badgehub.AppMetadata) error {
	metaRaw, err := json.Marshal(draftMeta)
	if err != nil {
		return fmt.Errorf("encode app metadata: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return r.handlePostgresError("create project", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO projects (slug, idp_user_id, git_url, draft_revision, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, $5)`,
		project.Slug, project.IDPUserID, nullString(project.GitURL),
		project.CreatedAt, project.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create project", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO versions (id, project_slug, revision, app_metadata, created_at, updated_at)
		VALUES ($1, $2, 0, $3, $4, $5)`,
		uuid.New(), project.Slug, metaRaw, project.CreatedAt, project.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create draft version", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return r.handlePostgresError("create project", err)
	}

	project.DraftRevision = 0
	project.LatestRevision = nil
	return nil
}

func (r *Repository) GetProject(ctx context.Context, slug string) (*badgehub.Project, error) {
	query := `
        SELECT slug, idp_user_id, COALESCE(git_url, ''), draft_revision, latest_revision,
               created_at, updated_at
        FROM projects WHERE slug = $1 AND deleted_at IS NULL`

	var project badgehub.Project
	err := r.db.QueryRow(ctx, query, slug).Scan(
		&project.Slug, &project.IDPUserID, &project.GitURL,
		&project.DraftRevision, &project.LatestRevision,
		&project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, badgehub.ErrProjectNotFound
		}
		return nil, r.handlePostgresError("get project", err)
	}

	return &project, nil
}

func (r *Repository) UpdateProject(ctx context.Context, slug string, changes badgehub.ProjectChanges) error {
	query := `
		UPDATE projects SET
			git_url = COALESCE($2, git_url),
			updated_at = NOW()
		WHERE slug = $1 AND deleted_at IS NULL`

	tag, err := r.db.Exec(ctx, query, slug, changes.GitURL)
	if err != nil {
		return r.handlePostgresError("update project", err)
	}
	if tag.RowsAffected() == 0 {
		return badgehub.ErrProjectNotFound
	}
	return nil
}

func (r *Repository) DeleteProject(ctx context.Context, slug string) error {
	// Soft delete: revisions and file rows stay behind the tombstone.
	query := `UPDATE projects SET deleted_at = NOW(), updated_at = NOW()
	          WHERE slug = $1 AND deleted_at IS NULL`

	tag, err := r.db.Exec(ctx, query, slug)
	if err != nil {
		return r.handlePostgresError("delete project", err)
	}
	if tag.RowsAffected() == 0 {
		return badgehub.ErrProjectNotFound
	}
	return nil
}

// Version operations

func (r *Repository) ResolveVersion(ctx context.Context, slug string, sel badgehub.RevisionSelector) (*badgehub.Version, error) {
	project, err := r.GetProject(ctx, slug)
	if err != nil {
		return nil, err
	}

	var (
		revision      int
		publishedOnly bool
	)
	switch {
	case sel.IsDraft():
		revision = project.DraftRevision
	case sel.IsLatest():
		if project.LatestRevision == nil {
			return nil, badgehub.ErrVersionNotFound
		}
		revision = *project.LatestRevision
	default:
		// Numbered lookups only see published revisions, so the draft
		// cannot be reached by guessing its revision number.
		revision, _ = sel.Number()
		publishedOnly = true
	}

	query := `
        SELECT id, revision, app_metadata, published_at, created_at, updated_at
        FROM versions WHERE project_slug = $1 AND revision = $2`
	if publishedOnly {
		query += ` AND published_at IS NOT NULL`
	}

	version := badgehub.Version{ProjectSlug: slug}
	var metaRaw []byte
	err = r.db.QueryRow(ctx, query, slug, revision).Scan(
		&version.ID, &version.Revision, &metaRaw,
		&version.PublishedAt, &version.CreatedAt, &version.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, badgehub.ErrVersionNotFound
		}
		return nil, r.handlePostgresError("resolve version", err)
	}

	if err := json.Unmarshal(metaRaw, &version.AppMetadata); err != nil {
		return nil, fmt.Errorf("decode app metadata: %w", err)
	}
	return &version, nil
}

func (r *Repository) UpdateDraftMetadata(ctx context.Context, slug string, meta badgehub.AppMetadata) error {
	metaRaw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode app metadata: %w", err)
	}

	query := `
		UPDATE versions v SET app_metadata = $2, updated_at = NOW()
		FROM projects p
		WHERE v.project_slug = p.slug AND v.revision = p.draft_revision
		  AND p.slug = $1 AND p.deleted_at IS NULL`

	tag, err := r.db.Exec(ctx, query, slug, metaRaw)
	if err != nil {
		return r.handlePostgresError("update draft metadata", err)
	}
	if tag.RowsAffected() == 0 {
		return badgehub.ErrProjectNotFound
	}
	return nil
}

// PublishVersion runs the publish as a single transaction: lock the
// project row, freeze the draft, insert the inheriting next draft, copy
// the live file rows and repoint both revision pointers. The row lock
// serializes concurrent publishes of the same project.
func (r *Repository) PublishVersion(ctx context.Context, slug string, at time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return r.handlePostgresError("publish", err)
	}
	defer tx.Rollback(ctx)

	var draftRevision int
	err = tx.QueryRow(ctx, `
		SELECT draft_revision FROM projects
		WHERE slug = $1 AND deleted_at IS NULL
		FOR UPDATE`, slug).Scan(&draftRevision)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return badgehub.ErrProjectNotFound
		}
		return r.handlePostgresError("publish", err)
	}

	var (
		draftID uuid.UUID
		metaRaw []byte
	)
	err = tx.QueryRow(ctx, `
		UPDATE versions SET published_at = $3, updated_at = $3
		WHERE project_slug = $1 AND revision = $2 AND published_at IS NULL
		RETURNING id, app_metadata`, slug, draftRevision, at).Scan(&draftID, &metaRaw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return badgehub.ErrNoDraft
		}
		return r.handlePostgresError("publish", err)
	}

	nextID := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO versions (id, project_slug, revision, app_metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`,
		nextID, slug, draftRevision+1, metaRaw, at)
	if err != nil {
		return r.handlePostgresError("publish", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO files (version_id, dir, name, ext, mimetype, size_of_content,
		                   sha256, image_width, image_height, created_at, updated_at)
		SELECT $2, dir, name, ext, mimetype, size_of_content,
		       sha256, image_width, image_height, created_at, updated_at
		FROM files WHERE version_id = $1 AND deleted_at IS NULL`,
		draftID, nextID)
	if err != nil {
		return r.handlePostgresError("publish", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE projects SET latest_revision = $2, draft_revision = $3, updated_at = $4
		WHERE slug = $1`, slug, draftRevision, draftRevision+1, at)
	if err != nil {
		return r.handlePostgresError("publish", err)
	}

	return tx.Commit(ctx)
}

// File operations

func (r *Repository) UpsertDraftFile(ctx context.Context, slug string, file *badgehub.FileMetadata) error {
	// Logical overwrite: a path re-upload updates the existing row in
	// place and clears its tombstone, so one draft never accumulates
	// duplicate rows per path.
	query := `
		INSERT INTO files (version_id, dir, name, ext, mimetype, size_of_content,
		                   sha256, image_width, image_height, created_at, updated_at)
		SELECT v.id, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10
		FROM versions v
		JOIN projects p ON p.slug = v.project_slug AND v.revision = p.draft_revision
		WHERE p.slug = $1 AND p.deleted_at IS NULL
		ON CONFLICT (version_id, dir, name, ext) DO UPDATE SET
			mimetype = EXCLUDED.mimetype,
			size_of_content = EXCLUDED.size_of_content,
			sha256 = EXCLUDED.sha256,
			image_width = EXCLUDED.image_width,
			image_height = EXCLUDED.image_height,
			updated_at = EXCLUDED.updated_at,
			deleted_at = NULL
		RETURNING id, version_id, created_at`

	err := r.db.QueryRow(ctx, query,
		slug, file.Dir, file.Name, file.Ext, file.MimeType,
		file.SizeOfContent, file.SHA256, file.ImageWidth, file.ImageHeight,
		file.UpdatedAt).Scan(&file.ID, &file.VersionID, &file.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return badgehub.ErrProjectNotFound
		}
		return r.handlePostgresError("upsert draft file", err)
	}
	return nil
}

func (r *Repository) DeleteDraftFile(ctx context.Context, slug, dir, name, ext string) error {
	draft, err := r.ResolveVersion(ctx, slug, badgehub.SelectDraft())
	if err != nil {
		return err
	}

	query := `
		UPDATE files SET deleted_at = NOW()
		WHERE version_id = $1 AND dir = $2 AND name = $3 AND ext = $4
		  AND deleted_at IS NULL`

	tag, err := r.db.Exec(ctx, query, draft.ID, dir, name, ext)
	if err != nil {
		return r.handlePostgresError("delete draft file", err)
	}
	if tag.RowsAffected() == 0 {
		return badgehub.ErrFileNotFound
	}
	return nil
}

func (r *Repository) GetFile(ctx context.Context, slug string, sel badgehub.RevisionSelector, dir, name, ext string) (*badgehub.FileMetadata, error) {
	version, err := r.ResolveVersion(ctx, slug, sel)
	if err != nil {
		return nil, err
	}

	query := `
        SELECT id, version_id, dir, name, ext, mimetype, size_of_content,
               sha256, image_width, image_height, created_at, updated_at
        FROM files
        WHERE version_id = $1 AND dir = $2 AND name = $3 AND ext = $4
          AND deleted_at IS NULL`

	var file badgehub.FileMetadata
	err = r.db.QueryRow(ctx, query, version.ID, dir, name, ext).Scan(
		&file.ID, &file.VersionID, &file.Dir, &file.Name, &file.Ext,
		&file.MimeType, &file.SizeOfContent, &file.SHA256,
		&file.ImageWidth, &file.ImageHeight, &file.CreatedAt, &file.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, badgehub.ErrFileNotFound
		}
		return nil, r.handlePostgresError("get file", err)
	}

	return &file, nil
}

func (r *Repository) ListFiles(ctx context.Context, versionID uuid.UUID) ([]badgehub.FileMetadata, error) {
	query := `
        SELECT id, version_id, dir, name, ext, mimetype, size_of_content,
               sha256, image_width, image_height, created_at, updated_at
        FROM files
        WHERE version_id = $1 AND deleted_at IS NULL
        ORDER BY dir, name, ext`

	rows, err := r.db.Query(ctx, query, versionID)
	if err != nil {
		return nil, r.handlePostgresError("list files", err)
	}
	defer rows.Close()

	var files []badgehub.FileMetadata
	for rows.Next() {
		var file badgehub.FileMetadata
		err := rows.Scan(
			&file.ID, &file.VersionID, &file.Dir, &file.Name, &file.Ext,
			&file.MimeType, &file.SizeOfContent, &file.SHA256,
			&file.ImageWidth, &file.ImageHeight, &file.CreatedAt, &file.UpdatedAt)
		if err != nil {
			return nil, r.handlePostgresError("list files", err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// Listing and reporting

func (r *Repository) ListProjectSummaries(ctx context.Context, filter badgehub.SummaryFilter) ([]badgehub.ProjectSummary, error) {
	var (
		conditions []string
		args       []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	query := `
        SELECT p.slug, p.idp_user_id, COALESCE(p.git_url, ''), v.revision,
               v.app_metadata, v.published_at, v.updated_at, COALESCE(ic.installs, 0)
        FROM projects p
        JOIN versions v ON v.project_slug = p.slug AND v.revision = p.latest_revision
        LEFT JOIN project_install_counts ic ON ic.project_slug = p.slug
        WHERE p.deleted_at IS NULL`

	if len(filter.Slugs) > 0 {
		// An explicit slug list is an opt-in lookup, so it bypasses the
		// hidden-project filter.
		conditions = append(conditions, fmt.Sprintf("p.slug = ANY(%s)", arg(filter.Slugs)))
	} else {
		conditions = append(conditions, "NOT COALESCE((v.app_metadata->>'hidden')::boolean, false)")
	}
	if len(filter.Badges) > 0 {
		conditions = append(conditions, fmt.Sprintf("v.app_metadata->'badges' ?| %s::text[]", arg(filter.Badges)))
	}
	if len(filter.Categories) > 0 {
		conditions = append(conditions, fmt.Sprintf("v.app_metadata->'categories' ?| %s::text[]", arg(filter.Categories)))
	}
	if filter.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("p.idp_user_id = %s", arg(*filter.UserID)))
	}
	if filter.Search != "" {
		pattern := arg("%" + filter.Search + "%")
		conditions = append(conditions, fmt.Sprintf(`(
			v.app_metadata->>'name' ILIKE %[1]s
			OR v.app_metadata->>'description' ILIKE %[1]s
			OR p.slug ILIKE %[1]s
			OR EXISTS (
				SELECT 1 FROM jsonb_array_elements_text(COALESCE(v.app_metadata->'categories', '[]'::jsonb)) c(value)
				WHERE c.value ILIKE %[1]s
			))`, pattern))
	}

	for _, condition := range conditions {
		query += " AND " + condition
	}

	switch filter.OrderBy {
	case badgehub.SortByUpdatedAt:
		query += " ORDER BY v.updated_at DESC"
	case badgehub.SortByInstalls:
		query += " ORDER BY COALESCE(ic.installs, 0) DESC, p.slug"
	default:
		query += " ORDER BY v.published_at DESC NULLS LAST"
	}

	if filter.PageStart > 0 {
		query += " OFFSET " + arg(filter.PageStart)
	}
	if filter.PageLength > 0 {
		query += " LIMIT " + arg(filter.PageLength)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("list project summaries", err)
	}
	defer rows.Close()

	summaries := []badgehub.ProjectSummary{}
	for rows.Next() {
		var (
			summary badgehub.ProjectSummary
			metaRaw []byte
		)
		err := rows.Scan(
			&summary.Slug, &summary.IDPUserID, &summary.GitURL, &summary.Revision,
			&metaRaw, &summary.PublishedAt, &summary.UpdatedAt, &summary.Installs)
		if err != nil {
			return nil, r.handlePostgresError("list project summaries", err)
		}

		var meta badgehub.AppMetadata
		if err := json.Unmarshal(metaRaw, &meta); err != nil {
			return nil, fmt.Errorf("decode app metadata: %w", err)
		}
		summary.Name = meta.Name
		if summary.Name == "" {
			summary.Name = summary.Slug
		}
		summary.Description = meta.Description
		summary.LicenseType = meta.LicenseType
		summary.Categories = meta.Categories
		summary.Badges = meta.Badges
		summary.IconMap = meta.IconMap
		summary.Hidden = meta.Hidden

		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

func (r *Repository) LatestRevisions(ctx context.Context, slugs []string) (map[string]int, error) {
	query := `
        SELECT slug, latest_revision FROM projects
        WHERE deleted_at IS NULL AND latest_revision IS NOT NULL`
	var args []interface{}
	if len(slugs) > 0 {
		query += ` AND slug = ANY($1)`
		args = append(args, slugs)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("latest revisions", err)
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var (
			slug     string
			revision int
		)
		if err := rows.Scan(&slug, &revision); err != nil {
			return nil, r.handlePostgresError("latest revisions", err)
		}
		result[slug] = revision
	}
	return result, rows.Err()
}

func (r *Repository) GetStats(ctx context.Context) (*badgehub.Stats, error) {
	query := `
        SELECT (SELECT COUNT(*) FROM projects WHERE deleted_at IS NULL),
               (SELECT COUNT(DISTINCT idp_user_id) FROM projects),
               (SELECT COUNT(*) FROM registered_badges)`

	var stats badgehub.Stats
	err := r.db.QueryRow(ctx, query).Scan(&stats.Apps, &stats.AppAuthors, &stats.Badges)
	if err != nil {
		return nil, r.handlePostgresError("get stats", err)
	}
	return &stats, nil
}

func (r *Repository) RecordUsageReport(ctx context.Context, report *badgehub.UsageReport) error {
	query := `
		INSERT INTO install_reports (project_slug, revision, kind, badge_id, reason, reported_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		report.ProjectSlug, report.Revision, report.Kind,
		report.BadgeID, nullString(report.Reason), report.ReportedAt).Scan(&report.ID)
	if err != nil {
		return r.handlePostgresError("record usage report", err)
	}
	return nil
}

func (r *Repository) RefreshInstallCounts(ctx context.Context) error {
	// CONCURRENTLY keeps the listing readable during the rebuild; it
	// needs the unique index on project_slug the migration creates.
	_, err := r.db.Exec(ctx, `REFRESH MATERIALIZED VIEW CONCURRENTLY project_install_counts`)
	if err != nil {
		return r.handlePostgresError("refresh install counts", err)
	}
	return nil
}

func (r *Repository) RegisterBadge(ctx context.Context, id, mac string) error {
	query := `
		INSERT INTO registered_badges (id, mac, last_seen_at)
		VALUES ($1, NULLIF($2, ''), NOW())
		ON CONFLICT (id) DO UPDATE SET
			mac = COALESCE(registered_badges.mac, EXCLUDED.mac),
			last_seen_at = EXCLUDED.last_seen_at`

	_, err := r.db.Exec(ctx, query, id, mac)
	if err != nil {
		return r.handlePostgresError("register badge", err)
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
