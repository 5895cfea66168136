package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/badgeteam/badgehub/pkg/badgehub"
)

// maxUploadSize caps a single draft file upload.
const maxUploadSize = 32 << 20

// FilesHandler serves version file downloads and draft file mutations.
type FilesHandler struct {
	service badgehub.Service
}

func NewFilesHandler(service badgehub.Service) *FilesHandler {
	return &FilesHandler{service: service}
}

func publicSelector(w http.ResponseWriter, r *http.Request) (badgehub.RevisionSelector, bool) {
	sel, err := badgehub.ParseRevisionSelector(chi.URLParam(r, "rev"))
	if err != nil {
		writeError(w, r, err)
		return sel, false
	}
	if sel.IsDraft() {
		// Drafts are only reachable through the authenticated routes.
		writeError(w, r, badgehub.ErrVersionNotFound)
		return sel, false
	}
	return sel, true
}

// DownloadFile streams one file of a published version
func (h *FilesHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	sel, ok := publicSelector(w, r)
	if !ok {
		return
	}
	slug := chi.URLParam(r, "slug")
	filePath := chi.URLParam(r, "*")

	reader, file, err := h.service.GetFileContents(r.Context(), slug, sel, filePath)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", file.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(file.SizeOfContent, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name+file.Ext))
	w.Header().Set("ETag", `"`+file.SHA256+`"`)
	if _, numbered := sel.Number(); numbered {
		// Published revisions never change, so their files can be cached
		// forever. The latest alias moves, so it gets no such promise.
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	}

	if _, err := io.Copy(w, reader); err != nil {
		slog.Warn("File download aborted", "slug", slug, "path", filePath, "error", err)
	}
}

// GetFileMetadata returns the metadata row of one file
func (h *FilesHandler) GetFileMetadata(w http.ResponseWriter, r *http.Request) {
	sel, ok := publicSelector(w, r)
	if !ok {
		return
	}

	file, err := h.service.GetFileMetadata(r.Context(), chi.URLParam(r, "slug"), sel, chi.URLParam(r, "*"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, file)
}

// UploadDraftFile writes the request body as one file of the draft
func (h *FilesHandler) UploadDraftFile(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if !authorizeOwner(h.service, w, r, slug) {
		return
	}

	content, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadSize))
	if err != nil {
		render.Status(r, http.StatusRequestEntityTooLarge)
		render.JSON(w, r, ErrorResponse{Error: "upload too large"})
		return
	}

	file, err := h.service.UploadDraftFile(r.Context(), badgehub.UploadDraftFileRequest{
		Slug:     slug,
		FilePath: chi.URLParam(r, "*"),
		MimeType: r.Header.Get("Content-Type"),
		Content:  content,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("Draft file uploaded", "slug", slug, "path", file.FullPath(), "sha256", file.SHA256)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, file)
}

// DeleteDraftFile removes one file from the draft
func (h *FilesHandler) DeleteDraftFile(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if !authorizeOwner(h.service, w, r, slug) {
		return
	}

	if err := h.service.DeleteDraftFile(r.Context(), slug, chi.URLParam(r, "*")); err != nil {
		writeError(w, r, err)
		return
	}
	render.NoContent(w, r)
}
