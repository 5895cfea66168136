package badgehub

// Request/Response DTOs

// CreateProjectRequest contains parameters for registering a new project.
type CreateProjectRequest struct {
	Slug      string
	IDPUserID string
	GitURL    string
}

// ProjectChanges holds the core-info fields a project edit may change.
// Nil fields are left untouched.
type ProjectChanges struct {
	GitURL *string
}

// UploadDraftFileRequest contains parameters for writing one file into a
// project's draft. Image dimensions are pass-through values supplied by
// the caller; the engine does not probe content.
type UploadDraftFileRequest struct {
	Slug        string
	FilePath    string
	MimeType    string
	Content     []byte
	ImageWidth  *int
	ImageHeight *int
}

// SummaryFilter defines the filters and ordering of a catalogue listing.
// An explicit Slugs list bypasses the hidden-project filter; all other
// filters combine with AND. Badge and category filters match when the
// project's tag set overlaps the given values.
type SummaryFilter struct {
	Slugs      []string
	Badges     []string
	Categories []string
	Search     string
	UserID     *string
	PageStart  int
	PageLength int
	OrderBy    SortKey
}

// RecordReportRequest contains parameters for one badge usage report.
type RecordReportRequest struct {
	Slug     string
	Revision int
	Kind     ReportKind
	BadgeID  string
	Reason   string
}
