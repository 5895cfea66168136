package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/badgeteam/badgehub/pkg/badgehub"
	"github.com/badgeteam/badgehub/pkg/badgehub/api"
	"github.com/badgeteam/badgehub/pkg/badgehub/repo/memory"
	memorystorage "github.com/badgeteam/badgehub/pkg/badgehub/storage/memory"
)

type testServer struct {
	router    chi.Router
	tokenAuth *jwtauth.JWTAuth
}

func newTestServer(t *testing.T) *testServer {
	svc, err := badgehub.New(
		badgehub.WithRepository(memory.New()),
		badgehub.WithBlobStore(memorystorage.New()),
		badgehub.WithBadges("why2025"),
		badgehub.WithCategories("Games", "Silly"),
	)
	require.NoError(t, err)

	tokenAuth := api.NewTokenAuth("test-secret")
	return &testServer{
		router:    api.NewRouter(svc, tokenAuth),
		tokenAuth: tokenAuth,
	}
}

func (s *testServer) tokenFor(t *testing.T, userID string) string {
	_, tokenString, err := s.tokenAuth.Encode(map[string]interface{}{"sub": userID})
	require.NoError(t, err)
	return tokenString
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch payload := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(payload)
	default:
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	s.router.ServeHTTP(recorder, req)
	return recorder
}

func TestPing(t *testing.T) {
	server := newTestServer(t)
	resp := server.do(t, http.MethodGet, "/api/v3/ping", "", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestAppLifecycleOverHTTP(t *testing.T) {
	server := newTestServer(t)
	owner := server.tokenFor(t, "user-1")

	t.Run("create requires authentication", func(t *testing.T) {
		resp := server.do(t, http.MethodPost, "/api/v3/users/apps/my_app", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("create app", func(t *testing.T) {
		resp := server.do(t, http.MethodPost, "/api/v3/users/apps/my_app", owner, nil)
		require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

		var project badgehub.Project
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &project))
		assert.Equal(t, "my_app", project.Slug)
		assert.Equal(t, 0, project.DraftRevision)
	})

	t.Run("duplicate create conflicts", func(t *testing.T) {
		resp := server.do(t, http.MethodPost, "/api/v3/users/apps/my_app", owner, nil)
		assert.Equal(t, http.StatusConflict, resp.Code)
	})

	t.Run("invalid slug is a bad request", func(t *testing.T) {
		resp := server.do(t, http.MethodPost, "/api/v3/users/apps/Bad-Slug", owner, nil)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("only the owner can mutate", func(t *testing.T) {
		stranger := server.tokenFor(t, "user-2")
		resp := server.do(t, http.MethodPost, "/api/v3/users/apps/my_app/publish", stranger, nil)
		assert.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("draft metadata and file upload", func(t *testing.T) {
		meta := badgehub.AppMetadata{
			Name:       "My App",
			Categories: []string{"Games"},
		}
		resp := server.do(t, http.MethodPut, "/api/v3/users/apps/my_app/draft/metadata", owner, meta)
		require.Equal(t, http.StatusNoContent, resp.Code, resp.Body.String())

		resp = server.do(t, http.MethodPost, "/api/v3/users/apps/my_app/draft/files/app.py", owner, []byte("print('hi')"))
		require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

		var file badgehub.FileMetadata
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &file))
		assert.Equal(t, "app.py", file.Name+file.Ext)
		assert.Len(t, file.SHA256, 64)
	})

	t.Run("unknown metadata is rejected", func(t *testing.T) {
		meta := badgehub.AppMetadata{Name: "My App", Categories: []string{"Bogus"}}
		resp := server.do(t, http.MethodPut, "/api/v3/users/apps/my_app/draft/metadata", owner, meta)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("publish and read back", func(t *testing.T) {
		resp := server.do(t, http.MethodPost, "/api/v3/users/apps/my_app/publish", owner, nil)
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

		resp = server.do(t, http.MethodGet, "/api/v3/apps/my_app", "", nil)
		require.Equal(t, http.StatusOK, resp.Code)

		var details badgehub.ProjectDetails
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &details))
		assert.Equal(t, 0, details.Version.Revision)
		assert.Equal(t, "My App", details.Version.AppMetadata.Name)
	})

	t.Run("published file download", func(t *testing.T) {
		resp := server.do(t, http.MethodGet, "/api/v3/apps/my_app/rev0/files/app.py", "", nil)
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "print('hi')", resp.Body.String())
		assert.Contains(t, resp.Header().Get("Content-Disposition"), "app.py")
		// Numbered revisions are immutable and cacheable forever.
		assert.Equal(t, "public, max-age=31536000, immutable", resp.Header().Get("Cache-Control"))
	})

	t.Run("latest download is not marked immutable", func(t *testing.T) {
		resp := server.do(t, http.MethodGet, "/api/v3/apps/my_app/latest/files/app.py", "", nil)
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Empty(t, resp.Header().Get("Cache-Control"))
	})

	t.Run("draft is not reachable publicly", func(t *testing.T) {
		resp := server.do(t, http.MethodGet, "/api/v3/apps/my_app/draft", "", nil)
		assert.Equal(t, http.StatusNotFound, resp.Code)

		resp = server.do(t, http.MethodGet, "/api/v3/apps/my_app/rev1", "", nil)
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("owner reads the draft", func(t *testing.T) {
		resp := server.do(t, http.MethodGet, "/api/v3/users/apps/my_app/draft", owner, nil)
		require.Equal(t, http.StatusOK, resp.Code)

		var details badgehub.ProjectDetails
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &details))
		assert.Equal(t, 1, details.Version.Revision)
	})

	t.Run("bad selector is a bad request", func(t *testing.T) {
		resp := server.do(t, http.MethodGet, "/api/v3/apps/my_app/newest", "", nil)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("unknown app is not found", func(t *testing.T) {
		resp := server.do(t, http.MethodGet, "/api/v3/apps/no_such_app", "", nil)
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}

func TestCatalogueEndpoints(t *testing.T) {
	server := newTestServer(t)
	owner := server.tokenFor(t, "user-1")

	require.Equal(t, http.StatusCreated,
		server.do(t, http.MethodPost, "/api/v3/users/apps/listed_app", owner, nil).Code)
	require.Equal(t, http.StatusOK,
		server.do(t, http.MethodPost, "/api/v3/users/apps/listed_app/publish", owner, nil).Code)

	t.Run("listing returns published apps", func(t *testing.T) {
		resp := server.do(t, http.MethodGet, "/api/v3/apps", "", nil)
		require.Equal(t, http.StatusOK, resp.Code)

		var summaries []badgehub.ProjectSummary
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &summaries))
		require.Len(t, summaries, 1)
		assert.Equal(t, "listed_app", summaries[0].Slug)
	})

	t.Run("invalid paging parameter", func(t *testing.T) {
		resp := server.do(t, http.MethodGet, "/api/v3/apps?pageStart=minus", "", nil)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("latest revisions", func(t *testing.T) {
		resp := server.do(t, http.MethodGet, "/api/v3/latest-revisions?slugs=listed_app", "", nil)
		require.Equal(t, http.StatusOK, resp.Code)

		var revisions map[string]int
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &revisions))
		assert.Equal(t, map[string]int{"listed_app": 0}, revisions)
	})

	t.Run("report and stats", func(t *testing.T) {
		resp := server.do(t, http.MethodPost, "/api/v3/reports", "", api.ReportRequest{
			Slug:    "listed_app",
			Kind:    "install",
			BadgeID: "badge-a",
		})
		assert.Equal(t, http.StatusAccepted, resp.Code, resp.Body.String())

		resp = server.do(t, http.MethodPost, "/api/v3/devices/register", "", api.RegisterBadgeRequest{
			ID: "badge-a",
		})
		require.Equal(t, http.StatusOK, resp.Code)

		resp = server.do(t, http.MethodGet, "/api/v3/stats", "", nil)
		require.Equal(t, http.StatusOK, resp.Code)

		var stats badgehub.Stats
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &stats))
		assert.Equal(t, int64(1), stats.Apps)
		assert.Equal(t, int64(1), stats.Badges)
	})

	t.Run("vocabularies", func(t *testing.T) {
		resp := server.do(t, http.MethodGet, "/api/v3/badges", "", nil)
		require.Equal(t, http.StatusOK, resp.Code)

		var badges []string
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &badges))
		assert.Equal(t, []string{"why2025"}, badges)
	})
}
