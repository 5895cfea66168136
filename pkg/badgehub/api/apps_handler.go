package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/badgeteam/badgehub/pkg/badgehub"
)

// AppsHandler exposes the public catalogue reads and the private project
// lifecycle endpoints.
type AppsHandler struct {
	service badgehub.Service
}

func NewAppsHandler(service badgehub.Service) *AppsHandler {
	return &AppsHandler{service: service}
}

// CreateAppRequest represents the request to register a new app
type CreateAppRequest struct {
	GitURL string `json:"git_url,omitempty"`
}

// UpdateAppRequest represents the request to change an app's core info
type UpdateAppRequest struct {
	GitURL *string `json:"git_url,omitempty"`
}

// ListApps returns the catalogue of latest published app versions
func (h *AppsHandler) ListApps(w http.ResponseWriter, r *http.Request) {
	filter, ok := summaryFilterFromQuery(w, r)
	if !ok {
		return
	}

	summaries, err := h.service.GetProjectSummaries(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, summaries)
}

func summaryFilterFromQuery(w http.ResponseWriter, r *http.Request) (badgehub.SummaryFilter, bool) {
	q := r.URL.Query()
	filter := badgehub.SummaryFilter{
		Badges:     q["badge"],
		Categories: q["category"],
		Search:     q.Get("search"),
		OrderBy:    badgehub.SortKey(q.Get("orderBy")),
	}
	if slugs := q.Get("slugs"); slugs != "" {
		filter.Slugs = strings.Split(slugs, ",")
	}
	if userID := q.Get("userId"); userID != "" {
		filter.UserID = &userID
	}

	for name, target := range map[string]*int{
		"pageStart":  &filter.PageStart,
		"pageLength": &filter.PageLength,
	} {
		value := q.Get(name)
		if value == "" {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, ErrorResponse{Error: "invalid " + name + " parameter"})
			return filter, false
		}
		*target = n
	}
	return filter, true
}

// GetApp returns the latest published version of an app
func (h *AppsHandler) GetApp(w http.ResponseWriter, r *http.Request) {
	h.getApp(w, r, badgehub.SelectLatest())
}

// GetAppRevision returns an app at an explicit revision selector
func (h *AppsHandler) GetAppRevision(w http.ResponseWriter, r *http.Request) {
	sel, err := badgehub.ParseRevisionSelector(chi.URLParam(r, "rev"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	// The draft is private; it is served by the authenticated routes only.
	if sel.IsDraft() {
		writeError(w, r, badgehub.ErrVersionNotFound)
		return
	}
	h.getApp(w, r, sel)
}

func (h *AppsHandler) getApp(w http.ResponseWriter, r *http.Request, sel badgehub.RevisionSelector) {
	slug := chi.URLParam(r, "slug")
	details, err := h.service.GetProject(r.Context(), slug, sel)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, details)
}

// CreateApp registers a new app owned by the authenticated user
func (h *AppsHandler) CreateApp(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req CreateAppRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, badgehub.ErrInvalidMetadata)
			return
		}
	}

	project, err := h.service.CreateProject(r.Context(), badgehub.CreateProjectRequest{
		Slug:      chi.URLParam(r, "slug"),
		IDPUserID: userID,
		GitURL:    req.GitURL,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("App created", "slug", project.Slug, "user", userID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, project)
}

// UpdateApp changes an app's core info
func (h *AppsHandler) UpdateApp(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if !authorizeOwner(h.service, w, r, slug) {
		return
	}

	var req UpdateAppRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, badgehub.ErrInvalidMetadata)
		return
	}

	if err := h.service.UpdateProject(r.Context(), slug, badgehub.ProjectChanges{GitURL: req.GitURL}); err != nil {
		writeError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

// DeleteApp soft-deletes an app
func (h *AppsHandler) DeleteApp(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if !authorizeOwner(h.service, w, r, slug) {
		return
	}

	if err := h.service.DeleteProject(r.Context(), slug); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("App deleted", "slug", slug)
	render.NoContent(w, r)
}

// PublishApp freezes the draft into a published revision
func (h *AppsHandler) PublishApp(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if !authorizeOwner(h.service, w, r, slug) {
		return
	}

	if err := h.service.Publish(r.Context(), slug); err != nil {
		writeError(w, r, err)
		return
	}

	project, err := h.service.GetProject(r.Context(), slug, badgehub.SelectLatest())
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("App published", "slug", slug, "revision", project.Version.Revision)
	render.JSON(w, r, project)
}

// GetDraft returns the authenticated owner's draft version
func (h *AppsHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if !authorizeOwner(h.service, w, r, slug) {
		return
	}
	h.getApp(w, r, badgehub.SelectDraft())
}

// UpdateDraftMetadata replaces the draft's app metadata document
func (h *AppsHandler) UpdateDraftMetadata(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if !authorizeOwner(h.service, w, r, slug) {
		return
	}

	var meta badgehub.AppMetadata
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		writeError(w, r, badgehub.ErrInvalidMetadata)
		return
	}

	if err := h.service.UpdateDraftMetadata(r.Context(), slug, meta); err != nil {
		writeError(w, r, err)
		return
	}
	render.NoContent(w, r)
}
