package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/badgeteam/badgehub/pkg/badgehub"
)

// HubHandler exposes the hub-wide endpoints: health, stats, vocabularies
// and the device-facing reporting surface.
type HubHandler struct {
	service badgehub.Service
}

func NewHubHandler(service badgehub.Service) *HubHandler {
	return &HubHandler{service: service}
}

// Routes returns the router for hub-wide endpoints
func (h *HubHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/ping", h.Ping)
	r.Get("/stats", h.GetStats)
	r.Get("/badges", h.GetBadges)
	r.Get("/categories", h.GetCategories)
	r.Get("/latest-revisions", h.GetLatestRevisions)
	r.Post("/reports", h.RecordReport)
	r.Post("/devices/register", h.RegisterBadge)
	return r
}

// ReportRequest is one usage report from a badge device
type ReportRequest struct {
	Slug     string `json:"slug"`
	Revision int    `json:"revision"`
	Kind     string `json:"kind"`
	BadgeID  string `json:"badge_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// RegisterBadgeRequest identifies a badge device checking in
type RegisterBadgeRequest struct {
	ID  string `json:"id"`
	MAC string `json:"mac,omitempty"`
}

// Ping is the health check used by badges to detect connectivity
func (h *HubHandler) Ping(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

// GetStats returns the public counters of the hub
func (h *HubHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, stats)
}

// GetBadges returns the configured badge-device vocabulary
func (h *HubHandler) GetBadges(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Badges())
}

// GetCategories returns the configured category vocabulary
func (h *HubHandler) GetCategories(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Categories())
}

// GetLatestRevisions returns the latest published revision per slug, the
// cheap poll badges use to detect available updates.
func (h *HubHandler) GetLatestRevisions(w http.ResponseWriter, r *http.Request) {
	var slugs []string
	if param := r.URL.Query().Get("slugs"); param != "" {
		slugs = strings.Split(param, ",")
	}

	revisions, err := h.service.GetLatestRevisions(r.Context(), slugs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, revisions)
}

// RecordReport stores one install/launch/crash report
func (h *HubHandler) RecordReport(w http.ResponseWriter, r *http.Request) {
	var req ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, badgehub.ErrInvalidMetadata)
		return
	}

	err := h.service.RecordReport(r.Context(), badgehub.RecordReportRequest{
		Slug:     req.Slug,
		Revision: req.Revision,
		Kind:     badgehub.ReportKind(req.Kind),
		BadgeID:  req.BadgeID,
		Reason:   req.Reason,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{"status": "recorded"})
}

// RegisterBadge records a badge device checking in
func (h *HubHandler) RegisterBadge(w http.ResponseWriter, r *http.Request) {
	var req RegisterBadgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, badgehub.ErrInvalidMetadata)
		return
	}

	if err := h.service.RegisterBadge(r.Context(), req.ID, req.MAC); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("Badge registered", "id", req.ID)
	render.JSON(w, r, map[string]string{"status": "registered"})
}
