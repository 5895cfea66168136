package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth"

	"github.com/badgeteam/badgehub/pkg/badgehub"
)

// NewRouter assembles the full /api/v3 surface: public catalogue reads
// and device endpoints, plus the JWT-protected project mutations.
func NewRouter(service badgehub.Service, tokenAuth *jwtauth.JWTAuth) chi.Router {
	apps := NewAppsHandler(service)
	files := NewFilesHandler(service)
	hub := NewHubHandler(service)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api/v3", func(r chi.Router) {
		// Public surface
		r.Mount("/", hub.Routes())
		r.Route("/apps", func(r chi.Router) {
			r.Get("/", apps.ListApps)
			r.Get("/{slug}", apps.GetApp)
			r.Get("/{slug}/{rev}", apps.GetAppRevision)
			r.Get("/{slug}/{rev}/files/*", files.DownloadFile)
			r.Get("/{slug}/{rev}/files-meta/*", files.GetFileMetadata)
		})

		// Authenticated surface
		r.Route("/users/apps", func(r chi.Router) {
			r.Use(jwtauth.Verifier(tokenAuth))
			r.Use(jwtauth.Authenticator)
			r.Post("/{slug}", apps.CreateApp)
			r.Patch("/{slug}", apps.UpdateApp)
			r.Delete("/{slug}", apps.DeleteApp)
			r.Post("/{slug}/publish", apps.PublishApp)
			r.Get("/{slug}/draft", apps.GetDraft)
			r.Put("/{slug}/draft/metadata", apps.UpdateDraftMetadata)
			r.Post("/{slug}/draft/files/*", files.UploadDraftFile)
			r.Delete("/{slug}/draft/files/*", files.DeleteDraftFile)
		})
	})

	return r
}
