package badgehub_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/badgeteam/badgehub/pkg/badgehub"
	"github.com/badgeteam/badgehub/pkg/badgehub/repo/memory"
	memorystorage "github.com/badgeteam/badgehub/pkg/badgehub/storage/memory"
)

func TestServiceCreation(t *testing.T) {
	tests := []struct {
		name        string
		options     []badgehub.Option
		expectError bool
	}{
		{
			name:        "no options should fail",
			options:     []badgehub.Option{},
			expectError: true,
		},
		{
			name: "repository without blob store should fail",
			options: []badgehub.Option{
				badgehub.WithRepository(memory.New()),
			},
			expectError: true,
		},
		{
			name: "repository and blob store should succeed",
			options: []badgehub.Option{
				badgehub.WithRepository(memory.New()),
				badgehub.WithBlobStore(memorystorage.New()),
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := badgehub.New(tt.options...)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func setupTestService(t *testing.T) badgehub.Service {
	svc, err := badgehub.New(
		badgehub.WithRepository(memory.New()),
		badgehub.WithBlobStore(memorystorage.New()),
		badgehub.WithBadges("why2025", "mch2022"),
		badgehub.WithCategories("Games", "Silly", "Utility"),
	)
	require.NoError(t, err)
	require.NotNil(t, svc)

	return svc
}

func createTestProject(t *testing.T, svc badgehub.Service, slug string) *badgehub.Project {
	project, err := svc.CreateProject(context.Background(), badgehub.CreateProjectRequest{
		Slug:      slug,
		IDPUserID: "user-1",
	})
	require.NoError(t, err)
	return project
}

func TestCreateProject(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	t.Run("creates project with initial draft", func(t *testing.T) {
		project := createTestProject(t, svc, "flappy_bird")
		assert.Equal(t, 0, project.DraftRevision)
		assert.Nil(t, project.LatestRevision)

		details, err := svc.GetProject(ctx, "flappy_bird", badgehub.SelectDraft())
		require.NoError(t, err)
		assert.Equal(t, 0, details.Version.Revision)
		assert.Nil(t, details.Version.PublishedAt)
		// The draft starts out named after the slug with the first badge
		// preselected.
		assert.Equal(t, "flappy_bird", details.Version.AppMetadata.Name)
		assert.Equal(t, []string{"why2025"}, details.Version.AppMetadata.Badges)
	})

	t.Run("rejects duplicate slug", func(t *testing.T) {
		_, err := svc.CreateProject(ctx, badgehub.CreateProjectRequest{
			Slug:      "flappy_bird",
			IDPUserID: "user-2",
		})
		assert.ErrorIs(t, err, badgehub.ErrProjectExists)
	})

	t.Run("rejects invalid slugs", func(t *testing.T) {
		for _, slug := range []string{"", "ab", "Upper", "1leading", "has-dash", "has space"} {
			_, err := svc.CreateProject(ctx, badgehub.CreateProjectRequest{
				Slug:      slug,
				IDPUserID: "user-1",
			})
			assert.ErrorIs(t, err, badgehub.ErrInvalidSlug, "slug %q", slug)
		}
	})

	t.Run("requires a user id", func(t *testing.T) {
		_, err := svc.CreateProject(ctx, badgehub.CreateProjectRequest{Slug: "no_owner"})
		assert.ErrorIs(t, err, badgehub.ErrInvalidMetadata)
	})
}

func TestVersionResolution(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	createTestProject(t, svc, "resolver_app")

	t.Run("latest fails before first publish", func(t *testing.T) {
		_, err := svc.GetVersion(ctx, "resolver_app", badgehub.SelectLatest())
		assert.ErrorIs(t, err, badgehub.ErrVersionNotFound)
	})

	t.Run("draft revision number is not reachable", func(t *testing.T) {
		_, err := svc.GetVersion(ctx, "resolver_app", badgehub.SelectRevision(0))
		assert.ErrorIs(t, err, badgehub.ErrVersionNotFound)
	})

	require.NoError(t, svc.Publish(ctx, "resolver_app"))

	t.Run("published revision resolves by number and alias", func(t *testing.T) {
		byNumber, err := svc.GetVersion(ctx, "resolver_app", badgehub.SelectRevision(0))
		require.NoError(t, err)
		require.NotNil(t, byNumber.PublishedAt)

		byAlias, err := svc.GetVersion(ctx, "resolver_app", badgehub.SelectLatest())
		require.NoError(t, err)
		assert.Equal(t, byNumber.Revision, byAlias.Revision)
	})

	t.Run("new draft is only reachable via the alias", func(t *testing.T) {
		draft, err := svc.GetVersion(ctx, "resolver_app", badgehub.SelectDraft())
		require.NoError(t, err)
		assert.Equal(t, 1, draft.Revision)

		_, err = svc.GetVersion(ctx, "resolver_app", badgehub.SelectRevision(1))
		assert.ErrorIs(t, err, badgehub.ErrVersionNotFound)
	})

	t.Run("deleted project resolves nothing", func(t *testing.T) {
		require.NoError(t, svc.DeleteProject(ctx, "resolver_app"))
		for _, sel := range []badgehub.RevisionSelector{
			badgehub.SelectDraft(), badgehub.SelectLatest(), badgehub.SelectRevision(0),
		} {
			_, err := svc.GetVersion(ctx, "resolver_app", sel)
			assert.ErrorIs(t, err, badgehub.ErrProjectNotFound, "selector %s", sel)
		}
	})
}

func TestPublishFlow(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	createTestProject(t, svc, "publish_app")

	meta := badgehub.AppMetadata{
		Name:        "Publish App",
		Description: "An app that gets published",
		Categories:  []string{"Games"},
		Badges:      []string{"why2025"},
	}
	require.NoError(t, svc.UpdateDraftMetadata(ctx, "publish_app", meta))

	_, err := svc.UploadDraftFile(ctx, badgehub.UploadDraftFileRequest{
		Slug:     "publish_app",
		FilePath: "app.py",
		Content:  []byte("print('hello')"),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Publish(ctx, "publish_app"))

	t.Run("published revision is frozen with the draft state", func(t *testing.T) {
		rev0, err := svc.GetVersion(ctx, "publish_app", badgehub.SelectRevision(0))
		require.NoError(t, err)
		require.NotNil(t, rev0.PublishedAt)
		assert.Equal(t, "Publish App", rev0.AppMetadata.Name)
		require.Len(t, rev0.Files, 1)
		assert.Equal(t, "app.py", rev0.Files[0].FullPath())
	})

	t.Run("next draft inherits metadata and files", func(t *testing.T) {
		draft, err := svc.GetVersion(ctx, "publish_app", badgehub.SelectDraft())
		require.NoError(t, err)
		assert.Equal(t, 1, draft.Revision)
		assert.Nil(t, draft.PublishedAt)
		assert.Equal(t, "Publish App", draft.AppMetadata.Name)
		require.Len(t, draft.Files, 1)
		assert.Equal(t, "app.py", draft.Files[0].FullPath())
	})

	t.Run("draft edits do not leak into the published revision", func(t *testing.T) {
		_, err := svc.UploadDraftFile(ctx, badgehub.UploadDraftFileRequest{
			Slug:     "publish_app",
			FilePath: "app.py",
			Content:  []byte("print('changed')"),
		})
		require.NoError(t, err)

		reader, _, err := svc.GetFileContents(ctx, "publish_app", badgehub.SelectRevision(0), "app.py")
		require.NoError(t, err)
		defer reader.Close()
		content, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, "print('hello')", string(content))
	})

	t.Run("republish without further edits still succeeds", func(t *testing.T) {
		require.NoError(t, svc.Publish(ctx, "publish_app"))

		rev1, err := svc.GetVersion(ctx, "publish_app", badgehub.SelectRevision(1))
		require.NoError(t, err)
		require.NotNil(t, rev1.PublishedAt)

		draft, err := svc.GetVersion(ctx, "publish_app", badgehub.SelectDraft())
		require.NoError(t, err)
		assert.Equal(t, 2, draft.Revision)

		latest, err := svc.GetVersion(ctx, "publish_app", badgehub.SelectLatest())
		require.NoError(t, err)
		assert.Equal(t, 1, latest.Revision)
	})

	t.Run("publish of unknown project fails", func(t *testing.T) {
		err := svc.Publish(ctx, "missing_app")
		assert.ErrorIs(t, err, badgehub.ErrProjectNotFound)
	})
}

func TestDraftFiles(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	createTestProject(t, svc, "files_app")

	t.Run("re-upload overwrites the row instead of duplicating it", func(t *testing.T) {
		first, err := svc.UploadDraftFile(ctx, badgehub.UploadDraftFileRequest{
			Slug:     "files_app",
			FilePath: "icons/icon.png",
			MimeType: "image/png",
			Content:  []byte("old icon"),
		})
		require.NoError(t, err)

		second, err := svc.UploadDraftFile(ctx, badgehub.UploadDraftFileRequest{
			Slug:     "files_app",
			FilePath: "icons/icon.png",
			MimeType: "image/png",
			Content:  []byte("new icon"),
		})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.NotEqual(t, first.SHA256, second.SHA256)

		draft, err := svc.GetVersion(ctx, "files_app", badgehub.SelectDraft())
		require.NoError(t, err)
		require.Len(t, draft.Files, 1)
		assert.Equal(t, second.SHA256, draft.Files[0].SHA256)
	})

	t.Run("identical content shares one digest", func(t *testing.T) {
		a, err := svc.UploadDraftFile(ctx, badgehub.UploadDraftFileRequest{
			Slug:     "files_app",
			FilePath: "a.txt",
			Content:  []byte("same bytes"),
		})
		require.NoError(t, err)

		b, err := svc.UploadDraftFile(ctx, badgehub.UploadDraftFileRequest{
			Slug:     "files_app",
			FilePath: "b.txt",
			Content:  []byte("same bytes"),
		})
		require.NoError(t, err)
		assert.Equal(t, a.SHA256, b.SHA256)
	})

	t.Run("delete removes the file from the draft only", func(t *testing.T) {
		require.NoError(t, svc.Publish(ctx, "files_app"))
		require.NoError(t, svc.DeleteDraftFile(ctx, "files_app", "a.txt"))

		_, err := svc.GetFileMetadata(ctx, "files_app", badgehub.SelectDraft(), "a.txt")
		assert.ErrorIs(t, err, badgehub.ErrFileNotFound)

		// The published revision keeps its copy.
		_, err = svc.GetFileMetadata(ctx, "files_app", badgehub.SelectRevision(0), "a.txt")
		assert.NoError(t, err)
	})

	t.Run("deleted files are not carried into the next revision", func(t *testing.T) {
		require.NoError(t, svc.Publish(ctx, "files_app"))

		rev1, err := svc.GetVersion(ctx, "files_app", badgehub.SelectRevision(1))
		require.NoError(t, err)
		for _, file := range rev1.Files {
			assert.NotEqual(t, "a.txt", file.FullPath())
		}
	})

	t.Run("deleting a missing file fails", func(t *testing.T) {
		err := svc.DeleteDraftFile(ctx, "files_app", "nope.txt")
		assert.ErrorIs(t, err, badgehub.ErrFileNotFound)
	})
}

func TestDraftMetadataValidation(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	createTestProject(t, svc, "meta_app")

	tests := []struct {
		name string
		meta badgehub.AppMetadata
	}{
		{"empty name", badgehub.AppMetadata{Name: "   "}},
		{"unknown category", badgehub.AppMetadata{Name: "App", Categories: []string{"Bogus"}}},
		{"unknown badge", badgehub.AppMetadata{Name: "App", Badges: []string{"badge9000"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.UpdateDraftMetadata(ctx, "meta_app", tt.meta)
			assert.ErrorIs(t, err, badgehub.ErrInvalidMetadata)
		})
	}

	t.Run("valid metadata is accepted", func(t *testing.T) {
		err := svc.UpdateDraftMetadata(ctx, "meta_app", badgehub.AppMetadata{
			Name:       "Meta App",
			Categories: []string{"Silly"},
			Badges:     []string{"mch2022"},
		})
		assert.NoError(t, err)
	})
}

func TestProjectSummaries(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	publishAt := func(slug string, meta badgehub.AppMetadata, at time.Time) {
		createTestProject(t, svc, slug)
		require.NoError(t, svc.UpdateDraftMetadata(ctx, slug, meta))
		require.NoError(t, svc.PublishAt(ctx, slug, at))
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	publishAt("game_one", badgehub.AppMetadata{Name: "Game One", Categories: []string{"Games"}}, base)
	publishAt("silly_two", badgehub.AppMetadata{Name: "Silly Two", Categories: []string{"Silly"}}, base.Add(time.Hour))
	publishAt("hidden_app", badgehub.AppMetadata{Name: "Hidden App", Hidden: true}, base.Add(2*time.Hour))
	createTestProject(t, svc, "unpublished")

	t.Run("lists latest published, newest first", func(t *testing.T) {
		summaries, err := svc.GetProjectSummaries(ctx, badgehub.SummaryFilter{})
		require.NoError(t, err)
		require.Len(t, summaries, 2)
		assert.Equal(t, "silly_two", summaries[0].Slug)
		assert.Equal(t, "game_one", summaries[1].Slug)
	})

	t.Run("explicit slugs bypass the hidden filter", func(t *testing.T) {
		summaries, err := svc.GetProjectSummaries(ctx, badgehub.SummaryFilter{
			Slugs: []string{"hidden_app"},
		})
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		assert.Equal(t, "hidden_app", summaries[0].Slug)
		assert.True(t, summaries[0].Hidden)
	})

	t.Run("category filter matches any", func(t *testing.T) {
		summaries, err := svc.GetProjectSummaries(ctx, badgehub.SummaryFilter{
			Categories: []string{"Silly"},
		})
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		assert.Equal(t, "silly_two", summaries[0].Slug)
	})

	t.Run("search matches name case-insensitively", func(t *testing.T) {
		summaries, err := svc.GetProjectSummaries(ctx, badgehub.SummaryFilter{
			Search: "game",
		})
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		assert.Equal(t, "game_one", summaries[0].Slug)
	})

	t.Run("pagination", func(t *testing.T) {
		summaries, err := svc.GetProjectSummaries(ctx, badgehub.SummaryFilter{
			PageStart:  1,
			PageLength: 1,
		})
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		assert.Equal(t, "game_one", summaries[0].Slug)
	})

	t.Run("rejects unknown sort key", func(t *testing.T) {
		_, err := svc.GetProjectSummaries(ctx, badgehub.SummaryFilter{OrderBy: "bogus"})
		assert.ErrorIs(t, err, badgehub.ErrInvalidSortKey)
	})

	t.Run("sorts by installs after refresh", func(t *testing.T) {
		report := func(slug, badgeID string) {
			require.NoError(t, svc.RecordReport(ctx, badgehub.RecordReportRequest{
				Slug:    slug,
				Kind:    badgehub.ReportInstall,
				BadgeID: badgeID,
			}))
		}
		report("game_one", "badge-a")
		report("game_one", "badge-b")
		report("game_one", "badge-b") // duplicate badge, counted once
		report("silly_two", "badge-a")

		require.NoError(t, svc.RefreshInstallCounts(ctx))

		summaries, err := svc.GetProjectSummaries(ctx, badgehub.SummaryFilter{
			OrderBy: badgehub.SortByInstalls,
		})
		require.NoError(t, err)
		require.Len(t, summaries, 2)
		assert.Equal(t, "game_one", summaries[0].Slug)
		assert.Equal(t, int64(2), summaries[0].Installs)
		assert.Equal(t, int64(1), summaries[1].Installs)
	})
}

func TestReportsAndStats(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	createTestProject(t, svc, "report_app")
	require.NoError(t, svc.Publish(ctx, "report_app"))

	t.Run("rejects unknown report kind", func(t *testing.T) {
		err := svc.RecordReport(ctx, badgehub.RecordReportRequest{
			Slug: "report_app",
			Kind: "telemetry",
		})
		assert.ErrorIs(t, err, badgehub.ErrInvalidMetadata)
	})

	t.Run("rejects reports against the draft revision", func(t *testing.T) {
		err := svc.RecordReport(ctx, badgehub.RecordReportRequest{
			Slug:     "report_app",
			Revision: 1,
			Kind:     badgehub.ReportCrash,
		})
		assert.ErrorIs(t, err, badgehub.ErrVersionNotFound)
	})

	t.Run("accepts reports against published revisions", func(t *testing.T) {
		err := svc.RecordReport(ctx, badgehub.RecordReportRequest{
			Slug:    "report_app",
			Kind:    badgehub.ReportLaunch,
			BadgeID: "badge-a",
		})
		assert.NoError(t, err)
	})

	t.Run("stats count apps, authors and badges", func(t *testing.T) {
		require.NoError(t, svc.RegisterBadge(ctx, "badge-a", "aa:bb:cc:dd:ee:ff"))
		require.NoError(t, svc.RegisterBadge(ctx, "badge-a", "")) // check-in keeps the MAC
		require.NoError(t, svc.RegisterBadge(ctx, "badge-b", ""))

		stats, err := svc.GetStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Apps)
		assert.Equal(t, int64(1), stats.AppAuthors)
		assert.Equal(t, int64(2), stats.Badges)
	})

	t.Run("latest revisions map", func(t *testing.T) {
		revisions, err := svc.GetLatestRevisions(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"report_app": 0}, revisions)
	})
}
