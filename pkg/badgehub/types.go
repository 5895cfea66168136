package badgehub

import (
	"path"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// AppMetadataVersion is the current schema version written into new
// app_metadata documents. Older documents without the tag are treated
// as version 1.
const AppMetadataVersion = 1

// validSlug is the pattern every project slug must match.
var validSlug = regexp.MustCompile(`^[a-z][a-z_0-9]{2,100}$`)

// ValidateSlug reports whether slug is acceptable as a project identifier.
func ValidateSlug(slug string) error {
	if !validSlug.MatchString(slug) {
		return ErrInvalidSlug
	}
	return nil
}

// Project is the catalogue entry for one app. It carries the two revision
// pointers that drive version resolution: DraftRevision always points at
// the single mutable version, LatestRevision at the newest published
// revision (nil until the first publish).
type Project struct {
	Slug           string     `json:"slug"`
	IDPUserID      string     `json:"idp_user_id"`
	GitURL         string     `json:"git_url,omitempty"`
	DraftRevision  int        `json:"draft_revision"`
	LatestRevision *int       `json:"latest_revision,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// AppMetadata is the structured content of a version's metadata document.
// It is stored as a JSON column but validated at the store boundary; the
// MetadataVersion tag keeps the document extensible without resorting to
// an open map.
type AppMetadata struct {
	MetadataVersion int               `json:"metadata_version,omitempty"`
	Name            string            `json:"name"`
	Description     string            `json:"description,omitempty"`
	Author          string            `json:"author,omitempty"`
	LicenseType     string            `json:"license_type,omitempty"`
	Version         string            `json:"version,omitempty"`
	Categories      []string          `json:"categories,omitempty"`
	Badges          []string          `json:"badges,omitempty"`
	IconMap         map[string]string `json:"icon_map,omitempty"`
	Hidden          bool              `json:"hidden,omitempty"`
	MainExecutable  string            `json:"main_executable,omitempty"`
}

// Clone returns a deep copy so a new draft never aliases the slices and
// maps of the revision it was copied from.
func (m AppMetadata) Clone() AppMetadata {
	out := m
	if m.Categories != nil {
		out.Categories = append([]string(nil), m.Categories...)
	}
	if m.Badges != nil {
		out.Badges = append([]string(nil), m.Badges...)
	}
	if m.IconMap != nil {
		out.IconMap = make(map[string]string, len(m.IconMap))
		for k, v := range m.IconMap {
			out.IconMap[k] = v
		}
	}
	return out
}

// Version is one draft or published revision of a project.
// PublishedAt == nil marks the draft; once set, the row and its file set
// are immutable.
type Version struct {
	ID          uuid.UUID   `json:"-"`
	ProjectSlug string      `json:"project_slug,omitempty"`
	Revision    int         `json:"revision"`
	AppMetadata AppMetadata `json:"app_metadata"`
	PublishedAt *time.Time  `json:"published_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`

	// Files is populated by the service layer, not persisted on the row.
	Files []FileMetadata `json:"files,omitempty"`
}

// FileMetadata describes one file of a version. Content bytes live in the
// blob store under SHA256; the row only records where the path points.
// Rows are soft-deleted so published revisions keep their history.
type FileMetadata struct {
	ID            int64      `json:"-"`
	VersionID     uuid.UUID  `json:"-"`
	Dir           string     `json:"dir"`
	Name          string     `json:"name"`
	Ext           string     `json:"ext"`
	MimeType      string     `json:"mimetype"`
	SizeOfContent int64      `json:"size_of_content"`
	SHA256        string     `json:"sha256"`
	ImageWidth    *int       `json:"image_width,omitempty"`
	ImageHeight   *int       `json:"image_height,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeletedAt     *time.Time `json:"-"`
}

// FullPath joins dir, name and extension back into the uploaded path.
func (f FileMetadata) FullPath() string {
	return path.Join(f.Dir, f.Name+f.Ext)
}

// SplitFilePath breaks an uploaded file path into the (dir, name, ext)
// triple used as the uniqueness key of a file row.
func SplitFilePath(filePath string) (dir, name, ext string) {
	cleaned := path.Clean("/" + filePath)[1:]
	dir = path.Dir(cleaned)
	if dir == "." {
		dir = ""
	}
	base := path.Base(cleaned)
	ext = path.Ext(base)
	name = base[:len(base)-len(ext)]
	return dir, name, ext
}

// ProjectDetails combines a project with one resolved version and its
// live file list.
type ProjectDetails struct {
	Project
	Version Version `json:"version"`
}

// ProjectSummary is one row of the catalogue listing, built from a
// project's latest published version.
type ProjectSummary struct {
	Slug        string            `json:"slug"`
	IDPUserID   string            `json:"idp_user_id"`
	GitURL      string            `json:"git_url,omitempty"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	LicenseType string            `json:"license_type,omitempty"`
	Categories  []string          `json:"categories,omitempty"`
	Badges      []string          `json:"badges,omitempty"`
	IconMap     map[string]string `json:"icon_map,omitempty"`
	Hidden      bool              `json:"hidden,omitempty"`
	Revision    int               `json:"revision"`
	PublishedAt *time.Time        `json:"published_at,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Installs    int64             `json:"installs"`
}

// SortKey selects the ordering of a catalogue listing.
type SortKey string

const (
	SortByPublishedAt SortKey = "published_at"
	SortByUpdatedAt   SortKey = "updated_at"
	SortByInstalls    SortKey = "installs"
)

// Validate rejects unknown sort keys. An empty key is allowed and means
// the default (published date).
func (k SortKey) Validate() error {
	switch k {
	case "", SortByPublishedAt, SortByUpdatedAt, SortByInstalls:
		return nil
	}
	return ErrInvalidSortKey
}

// ReportKind distinguishes the raw usage reports badges send in.
type ReportKind string

const (
	ReportInstall ReportKind = "install"
	ReportLaunch  ReportKind = "launch"
	ReportCrash   ReportKind = "crash"
)

// UsageReport is one raw install/launch/crash report from a badge.
// Distinct-install aggregates are derived from these rows by the
// periodic refresh, outside the publish engine.
type UsageReport struct {
	ID          int64      `json:"-"`
	ProjectSlug string     `json:"project_slug"`
	Revision    int        `json:"revision"`
	Kind        ReportKind `json:"kind"`
	BadgeID     string     `json:"badge_id,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	ReportedAt  time.Time  `json:"reported_at"`
}

// RegisteredBadge is a badge device that has pinged the hub.
type RegisteredBadge struct {
	ID         string    `json:"id"`
	MAC        string    `json:"mac,omitempty"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// Stats is the public counters snapshot of the hub.
type Stats struct {
	Apps       int64 `json:"apps"`
	AppAuthors int64 `json:"app_authors"`
	Badges     int64 `json:"badges"`
}
