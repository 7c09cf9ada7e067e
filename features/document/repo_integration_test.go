package document_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docforge/features/document"
	"docforge/internal/testutils"
)

func TestDocumentRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	repo := document.NewPostgresRepo(s.DB)
	ctx := context.Background()

	// 1. Upsert creates with status pending
	doc := &document.Document{
		ID:          "11111111-1111-4111-8111-111111111111",
		Filename:    "report.xml",
		Domain:      "SPACE",
		Variant:     "FES-Space",
		RawKey:      "uploads/SPACE/11111111-1111-4111-8111-111111111111/report.xml",
		SizeBytes:   2048,
		ContentType: "application/xml",
	}
	action, err := repo.Upsert(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, document.ActionCreated, action)

	created, err := repo.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusPending, created.Status)
	assert.Nil(t, created.ProcessedAt)

	// 2. Re-upsert with metadata merges without touching status
	doc.Title = "Mission Report"
	doc.Authors = []string{"N. Armstrong", "B. Aldrin"}
	doc.Keywords = []string{"lunar"}
	doc.Extras = map[string]string{"prodinfo": "FES"}
	action, err = repo.Upsert(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, document.ActionUpdated, action)

	merged, err := repo.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusPending, merged.Status)
	assert.Equal(t, "Mission Report", merged.Title)
	assert.Equal(t, []string{"N. Armstrong", "B. Aldrin"}, merged.Authors)
	assert.Equal(t, "FES", merged.Extras["prodinfo"])

	// 3. Status walk pending -> processing -> completed
	require.NoError(t, repo.TransitionStatus(ctx, doc.ID, document.StatusPending, document.StatusProcessing, ""))
	require.NoError(t, repo.TransitionStatus(ctx, doc.ID, document.StatusProcessing, document.StatusCompleted, ""))

	completed, err := repo.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusCompleted, completed.Status)
	assert.NotNil(t, completed.ProcessedAt)

	// 4. Terminal state is immutable
	err = repo.TransitionStatus(ctx, doc.ID, document.StatusCompleted, document.StatusFailed, "nope")
	assert.ErrorIs(t, err, document.ErrInvalidTransition)

	// Stale guard: the row is no longer processing
	err = repo.TransitionStatus(ctx, doc.ID, document.StatusProcessing, document.StatusFailed, "nope")
	assert.ErrorIs(t, err, document.ErrInvalidTransition)

	// 5. Failure path records the message
	failing := &document.Document{
		ID:          "22222222-2222-4222-8222-222222222222",
		Filename:    "broken.xml",
		Domain:      "SPACE",
		Variant:     "FES-Space",
		RawKey:      "uploads/SPACE/22222222-2222-4222-8222-222222222222/broken.xml",
		SizeBytes:   10,
		ContentType: "application/xml",
	}
	_, err = repo.Upsert(ctx, failing)
	require.NoError(t, err)
	require.NoError(t, repo.TransitionStatus(ctx, failing.ID, document.StatusPending, document.StatusProcessing, ""))
	require.NoError(t, repo.TransitionStatus(ctx, failing.ID, document.StatusProcessing, document.StatusFailed,
		"index: indexed 6/10 chunks: connection refused"))

	failed, err := repo.Get(ctx, failing.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusFailed, failed.Status)
	assert.Equal(t, "index: indexed 6/10 chunks: connection refused", failed.FailureMsg)

	// 6. Container children
	parent := &document.Document{
		ID:          "33333333-3333-4333-8333-333333333333",
		Filename:    "bundle.zip",
		Domain:      "SPACE",
		RawKey:      "uploads/SPACE/33333333-3333-4333-8333-333333333333/bundle.zip",
		SizeBytes:   4096,
		ContentType: "application/zip",
		IsContainer: true,
	}
	_, err = repo.Upsert(ctx, parent)
	require.NoError(t, err)

	child := &document.Document{
		ID:          "44444444-4444-4444-8444-444444444444",
		Filename:    "inner.xml",
		Domain:      "SPACE",
		Variant:     "FES-Space",
		RawKey:      "uploads/SPACE/44444444-4444-4444-8444-444444444444/inner.xml",
		SizeBytes:   128,
		ContentType: "application/xml",
		ParentID:    parent.ID,
	}
	_, err = repo.Upsert(ctx, child)
	require.NoError(t, err)

	children, err := repo.Children(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, child.ID, children[0].ID)
	assert.Equal(t, parent.ID, children[0].ParentID)

	// 7. Listing and missing lookups
	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 4)

	_, err = repo.Get(ctx, "55555555-5555-4555-8555-555555555555")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
