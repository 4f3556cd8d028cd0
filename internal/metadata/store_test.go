package metadata

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "extracts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestInsertAndGet(t *testing.T) {
	store := newTestStore(t)

	doc := &domain.Document{
		Filename:      "report.pdf",
		ExtractedText: "Renewable energy adoption grew last year.",
		PageCount:     12,
		Cleaned:       true,
		ChunkEmbeddings: [][]float64{
			{0.1, 0.2},
			{0.3, 0.4},
		},
	}
	require.NoError(t, store.Insert(doc))
	assert.Positive(t, doc.ID)
	assert.False(t, doc.ExtractionDate.IsZero())

	got, err := store.GetByFilename("report.pdf")
	require.NoError(t, err)
	assert.Equal(t, doc.ExtractedText, got.ExtractedText)
	assert.Equal(t, 12, got.PageCount)
	assert.True(t, got.Cleaned)
	assert.Equal(t, doc.ChunkEmbeddings, got.ChunkEmbeddings)
	assert.WithinDuration(t, time.Now().UTC(), got.ExtractionDate, time.Minute)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetByFilename("absent.pdf")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDuplicateFilenamesAccumulate(t *testing.T) {
	store := newTestStore(t)

	first := &domain.Document{Filename: "dup.pdf", ExtractedText: "old text"}
	second := &domain.Document{Filename: "dup.pdf", ExtractedText: "new text"}
	require.NoError(t, store.Insert(first))
	require.NoError(t, store.Insert(second))

	n, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n, "re-ingestion must insert a new row, not upsert")

	got, err := store.GetByFilename("dup.pdf")
	require.NoError(t, err)
	assert.Equal(t, "new text", got.ExtractedText)
}

func TestAllReturnsInsertionOrder(t *testing.T) {
	store := newTestStore(t)
	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		require.NoError(t, store.Insert(&domain.Document{
			Filename:        name,
			ChunkEmbeddings: [][]float64{{1}},
		}))
	}

	docs, err := store.All()
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "a.pdf", docs[0].Filename)
	assert.Equal(t, "b.pdf", docs[1].Filename)
	assert.Equal(t, "c.pdf", docs[2].Filename)
	for i := 1; i < len(docs); i++ {
		assert.Greater(t, docs[i].ID, docs[i-1].ID)
	}
}

func TestInsertEmptyEmbeddings(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Insert(&domain.Document{Filename: "empty.pdf"}))
	got, err := store.GetByFilename("empty.pdf")
	require.NoError(t, err)
	assert.Empty(t, got.ChunkEmbeddings)
}
