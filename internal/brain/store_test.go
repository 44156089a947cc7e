package brain

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"appforge/internal/db"
	"appforge/pkg/models"
)

// stubEmbedder returns canned vectors keyed by exact text, or an error
// to exercise the text-search fallback.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, EmbeddingSource, error) {
	if s.err != nil {
		return nil, "", s.err
	}
	if vec, ok := s.vectors[text]; ok {
		return vec, SourceOpenAI, nil
	}
	return placeholderEmbedding(text), SourcePlaceholder, nil
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := db.New("", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database.DB
}

// axis returns a unit vector along the given axis, padded to the store
// dimension.
func axis(i int) []float32 {
	vec := make([]float32, models.EmbeddingDim)
	vec[i] = 1
	return vec
}

// blend mixes two axes so similarity against either is between 0 and 1.
func blend(i, j int, wi, wj float32) []float32 {
	vec := make([]float32, models.EmbeddingDim)
	vec[i] = wi
	vec[j] = wj
	return normalize(vec)
}

func TestSaveTagsEmbeddingSource(t *testing.T) {
	t.Parallel()

	store := NewStore(testDB(t), &stubEmbedder{vectors: map[string][]float32{}}, nil)

	entry, err := store.Save(context.Background(), "p1", "u1", "we chose postgres", models.EntryDecision, map[string]string{"source": "architect"})
	require.NoError(t, err)

	meta := entry.MetadataMap()
	assert.Equal(t, "architect", meta["source"])
	assert.Equal(t, string(SourcePlaceholder), meta["embedding_source"])
	assert.Len(t, entry.EmbeddingVector(), models.EmbeddingDim)
	assert.NotEmpty(t, entry.ID)
}

func TestSaveRequiresProjectAndContent(t *testing.T) {
	t.Parallel()

	store := NewStore(testDB(t), &stubEmbedder{}, nil)

	_, err := store.Save(context.Background(), "", "u1", "content", models.EntryConcept, nil)
	assert.Error(t, err)

	_, err = store.Save(context.Background(), "p1", "u1", "", models.EntryConcept, nil)
	assert.Error(t, err)
}

func TestSearchRanksBySimilarityAndFiltersThreshold(t *testing.T) {
	t.Parallel()

	embedder := &stubEmbedder{vectors: map[string][]float32{
		"close match":   blend(0, 1, 0.95, 0.31),   // ~0.95 vs axis(0)
		"partial match": blend(0, 1, 0.75, 0.66),   // ~0.75 vs axis(0)
		"far away":      axis(2),                   // 0.0 vs axis(0)
		"todo app":      axis(0),                   // the query
	}}

	store := NewStore(testDB(t), embedder, nil)
	ctx := context.Background()

	for _, content := range []string{"close match", "partial match", "far away"} {
		_, err := store.Save(ctx, "p1", "u1", content, models.EntryConcept, map[string]string{"source": "architect"})
		require.NoError(t, err)
	}

	results, err := store.Search(ctx, "p1", "todo app", 5)
	require.NoError(t, err)

	require.Len(t, results, 2, "entries below the 0.7 threshold are excluded")
	assert.Equal(t, "close match", results[0].Content)
	assert.Equal(t, "partial match", results[1].Content)
}

func TestSearchScopedToProject(t *testing.T) {
	t.Parallel()

	embedder := &stubEmbedder{vectors: map[string][]float32{
		"entry":  axis(0),
		"entry2": axis(0),
		"query":  axis(0),
	}}
	store := NewStore(testDB(t), embedder, nil)
	ctx := context.Background()

	_, err := store.Save(ctx, "p1", "u1", "entry", models.EntryConcept, nil)
	require.NoError(t, err)
	_, err = store.Save(ctx, "p2", "u1", "entry2", models.EntryConcept, nil)
	require.NoError(t, err)

	results, err := store.Search(ctx, "p1", "query", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p1", results[0].ProjectID)
}

func TestSearchFallsBackToTextSearch(t *testing.T) {
	t.Parallel()

	// First a working embedder to insert entries, then break it.
	embedder := &stubEmbedder{vectors: map[string][]float32{}}
	store := NewStore(testDB(t), embedder, nil)
	ctx := context.Background()

	_, err := store.Save(ctx, "p1", "u1", "The Todo App uses Postgres", models.EntryConcept, nil)
	require.NoError(t, err)
	_, err = store.Save(ctx, "p1", "u1", "Unrelated marketing copy", models.EntryMarketing, nil)
	require.NoError(t, err)

	embedder.err = errors.New("embedding provider down")

	results, err := store.Search(ctx, "p1", "todo app", 5)
	require.NoError(t, err, "fallback must never surface the similarity error")
	require.Len(t, results, 1)
	assert.Contains(t, strings.ToLower(results[0].Content), "todo app")
}

func TestRelevantContextFormatsBlocks(t *testing.T) {
	t.Parallel()

	embedder := &stubEmbedder{vectors: map[string][]float32{
		"concept text": axis(0),
		"query":        axis(0),
	}}
	store := NewStore(testDB(t), embedder, nil)
	ctx := context.Background()

	_, err := store.Save(ctx, "p1", "u1", "concept text", models.EntryConcept, map[string]string{"source": "architect"})
	require.NoError(t, err)

	text := store.RelevantContext(ctx, "p1", "query", 3)
	assert.Contains(t, text, "[CONCEPT] concept text")
	assert.Contains(t, text, "Quelle: architect")
}

func TestRelevantContextSentinel(t *testing.T) {
	t.Parallel()

	store := NewStore(testDB(t), &stubEmbedder{}, nil)
	text := store.RelevantContext(context.Background(), "empty-project", "anything", 3)
	assert.Equal(t, NoRelevantKnowledge, text)
}

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, CosineSimilarity(axis(0), axis(0)), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity(axis(0), axis(1)), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity(nil, axis(0)))
	assert.Equal(t, 0.0, CosineSimilarity(axis(0), make([]float32, 3)))
}

func TestPlaceholderEmbeddingDeterministic(t *testing.T) {
	t.Parallel()

	a := placeholderEmbedding("same input")
	b := placeholderEmbedding("same input")
	c := placeholderEmbedding("different input")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, models.EmbeddingDim)
}
