// Package brain implements the per-project knowledge store: append-only
// knowledge entries with vector embeddings, nearest-neighbor search,
// and a text-search fallback.
package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"appforge/internal/logging"
	"appforge/internal/metrics"
	"appforge/pkg/models"
)

// Defaults for the search contract.
const (
	DefaultSearchLimit        = 5
	DefaultSimilarityThreshold = 0.7
	DefaultContextEntries     = 3
)

// NoRelevantKnowledge is the sentinel returned by RelevantContext when
// search yields zero entries. Callers must treat it as "no context",
// never inject it into prompts as content.
const NoRelevantKnowledge = "No relevant knowledge found."

// Store persists and retrieves knowledge entries. Entries are
// append-only: nothing updates or deletes them, so concurrent writes
// from different pipeline stages are safe.
type Store struct {
	db       *gorm.DB
	embedder Embedder
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// NewStore creates a knowledge store over the given database.
func NewStore(db *gorm.DB, embedder Embedder, m *metrics.Metrics) *Store {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Store{
		db:       db,
		embedder: embedder,
		metrics:  m,
		log:      logging.L().Named("brain"),
	}
}

// Save embeds content and persists a new entry scoped to the owner and
// project. The embedding source is recorded in metadata so placeholder
// vectors are distinguishable from real ones.
func (s *Store) Save(ctx context.Context, projectID, ownerID, content string, entryType models.EntryType, metadata map[string]string) (*models.KnowledgeEntry, error) {
	if projectID == "" || content == "" {
		return nil, fmt.Errorf("projectID and content are required")
	}

	vec, source, err := s.embedder.Embed(ctx, content)
	if err != nil {
		// The chain embedder guarantees a placeholder, but a custom
		// Embedder may not; persist without a vector rather than fail.
		s.log.Warn("embedding failed, saving entry without vector", zap.Error(err))
		vec = nil
	}

	if metadata == nil {
		metadata = map[string]string{}
	}
	metadata["embedding_source"] = string(source)

	embeddingJSON := ""
	if len(vec) > 0 {
		raw, err := json.Marshal(vec)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize embedding: %w", err)
		}
		embeddingJSON = string(raw)
	}

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize metadata: %w", err)
	}

	entry := &models.KnowledgeEntry{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		OwnerID:   ownerID,
		Content:   content,
		Embedding: embeddingJSON,
		EntryType: entryType,
		Metadata:  string(metadataJSON),
		CreatedAt: time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to persist knowledge entry: %w", err)
	}

	s.metrics.KnowledgeEntriesTotal.WithLabelValues(string(entryType)).Inc()
	s.log.Debug("knowledge entry saved",
		zap.String("project_id", projectID),
		zap.String("entry_type", string(entryType)),
		zap.String("embedding_source", string(source)))

	return entry, nil
}

// Search returns the project's entries most similar to the query,
// filtered to a similarity threshold and capped at limit. Any failure
// on the similarity path falls back to a case-insensitive substring
// match ordered by recency; Search itself never returns an error from
// the similarity path.
func (s *Store) Search(ctx context.Context, projectID, query string, limit int) ([]models.KnowledgeEntry, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	entries, err := s.searchBySimilarity(ctx, projectID, query, limit)
	if err != nil {
		s.metrics.KnowledgeSearchFallbck.Inc()
		s.log.Warn("similarity search failed, falling back to text search",
			zap.String("project_id", projectID), zap.Error(err))
		return s.searchByText(ctx, projectID, query, limit)
	}
	return entries, nil
}

// scoredEntry pairs an entry with its similarity for ranking.
type scoredEntry struct {
	entry      models.KnowledgeEntry
	similarity float64
}

func (s *Store) searchBySimilarity(ctx context.Context, projectID, query string, limit int) ([]models.KnowledgeEntry, error) {
	queryVec, source, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}
	_ = source

	var candidates []models.KnowledgeEntry
	err = s.db.WithContext(ctx).
		Where("project_id = ? AND embedding <> ''", projectID).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate entries: %w", err)
	}

	scored := make([]scoredEntry, 0, len(candidates))
	for _, entry := range candidates {
		sim := CosineSimilarity(queryVec, entry.EmbeddingVector())
		if sim >= DefaultSimilarityThreshold {
			scored = append(scored, scoredEntry{entry: entry, similarity: sim})
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		return scored[i].similarity > scored[j].similarity
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}

	results := make([]models.KnowledgeEntry, len(scored))
	for i, sc := range scored {
		results[i] = sc.entry
	}
	return results, nil
}

func (s *Store) searchByText(ctx context.Context, projectID, query string, limit int) ([]models.KnowledgeEntry, error) {
	var results []models.KnowledgeEntry
	pattern := "%" + strings.ToLower(query) + "%"

	err := s.db.WithContext(ctx).
		Where("project_id = ? AND lower(content) LIKE ?", projectID, pattern).
		Order("created_at DESC").
		Limit(limit).
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("text search failed: %w", err)
	}
	return results, nil
}

// RelevantContext formats the top search results for prompt injection.
// Returns the NoRelevantKnowledge sentinel when nothing matches.
func (s *Store) RelevantContext(ctx context.Context, projectID, query string, maxEntries int) string {
	if maxEntries <= 0 {
		maxEntries = DefaultContextEntries
	}

	entries, err := s.Search(ctx, projectID, query, maxEntries)
	if err != nil || len(entries) == 0 {
		return NoRelevantKnowledge
	}

	blocks := make([]string, 0, len(entries))
	for _, entry := range entries {
		source := entry.MetadataMap()["source"]
		if source == "" {
			source = "unknown"
		}
		blocks = append(blocks, fmt.Sprintf("[%s] %s\nQuelle: %s",
			strings.ToUpper(string(entry.EntryType)), entry.Content, source))
	}

	return strings.Join(blocks, "\n---\n")
}

// Recent returns the newest entries of an entry type for a project.
// DocuBot uses this to render the decision log.
func (s *Store) Recent(ctx context.Context, projectID string, entryType models.EntryType, limit int) ([]models.KnowledgeEntry, error) {
	var results []models.KnowledgeEntry
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND entry_type = ?", projectID, entryType).
		Order("created_at DESC").
		Limit(limit).
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recent entries: %w", err)
	}
	return results, nil
}
