// Package models defines the persisted data model for AppForge.
package models

import (
	"encoding/json"
	"time"
)

// EntryType categorizes what kind of knowledge an entry captures.
type EntryType string

const (
	EntryConcept       EntryType = "concept"
	EntryDesign        EntryType = "design"
	EntryDecision      EntryType = "decision"
	EntryDocumentation EntryType = "documentation"
	EntryMarketing     EntryType = "marketing"
)

// EmbeddingDim is the fixed embedding dimensionality used across the
// knowledge store and all embedding providers.
const EmbeddingDim = 1536

// KnowledgeEntry is one append-only record in a project's brain. The
// embedding is JSON-serialized into a text column so the same schema
// works on both postgres and sqlite; entries written by agents of type
// concept/design/decision/marketing always carry a "source" metadata
// tag naming the producing agent.
type KnowledgeEntry struct {
	ID        string    `json:"id" gorm:"primarykey;type:uuid"`
	ProjectID string    `json:"project_id" gorm:"index;not null"`
	OwnerID   string    `json:"owner_id" gorm:"index;not null"`
	Content   string    `json:"content" gorm:"not null"`
	Embedding string    `json:"-" gorm:"type:text"` // JSON []float32, EmbeddingDim wide, empty when absent
	EntryType EntryType `json:"entry_type" gorm:"index;not null"`
	Metadata  string    `json:"metadata" gorm:"type:text"` // JSON object
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// EmbeddingVector decodes the stored embedding. Absent or corrupt
// embeddings decode to nil, which excludes the entry from similarity
// ranking without failing the search.
func (e *KnowledgeEntry) EmbeddingVector() []float32 {
	if e.Embedding == "" {
		return nil
	}
	var vec []float32
	if err := json.Unmarshal([]byte(e.Embedding), &vec); err != nil {
		return nil
	}
	return vec
}

// MetadataMap decodes the metadata JSON, returning an empty map for
// absent or corrupt metadata.
func (e *KnowledgeEntry) MetadataMap() map[string]string {
	m := map[string]string{}
	if e.Metadata != "" {
		_ = json.Unmarshal([]byte(e.Metadata), &m)
	}
	return m
}

// Project is the unit of ownership for knowledge entries and generated
// artifacts. The orchestrator runs one pipeline per project at a time.
type Project struct {
	ID        string    `json:"id" gorm:"primarykey;type:uuid"`
	OwnerID   string    `json:"owner_id" gorm:"index;not null"`
	Name      string    `json:"name" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Entries []KnowledgeEntry `json:"-" gorm:"foreignKey:ProjectID"`
}
