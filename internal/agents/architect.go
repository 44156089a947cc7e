package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"appforge/internal/ai"
	"appforge/internal/logging"
)

// Architect produces the business concept, the database schema, and
// the marketing strategy. The three operations are independent; the
// orchestrator sequences them.
type Architect struct {
	gw  ModelCaller
	log *zap.Logger
}

// NewArchitect creates an architect agent.
func NewArchitect(gw ModelCaller) *Architect {
	return &Architect{gw: gw, log: logging.L().Named("architect")}
}

const conceptSystem = `You are a product strategist. Answer in markdown with exactly these sections:
## Business Summary
## Target Audience
## Features
## Tech Stack
## Database Schema
## Marketing Strategy
Features and Tech Stack are bullet lists. Keep each section concrete and specific.`

// CreateConcept builds a business concept from the optimized prompt by
// parsing the markdown sections of the model response. Every section is
// optional; missing ones fall back to fixed defaults so the concept is
// never partially empty.
func (a *Architect) CreateConcept(ctx context.Context, optimizedPrompt string) (BusinessConcept, error) {
	cfg := a.gw.SelectModel(ai.TaskReasoning, ai.ComplexityHigh)
	if cfg == nil {
		return BusinessConcept{}, fmt.Errorf("architect concept: %w", ai.ErrNoProvider)
	}

	resp, err := a.gw.Call(ctx, cfg, "Develop a business concept for:\n\n"+optimizedPrompt, conceptSystem, ai.DefaultMaxRetries)
	if err != nil {
		a.log.Warn("concept model call failed, using default concept", zap.Error(err))
		return DefaultConcept(optimizedPrompt), nil
	}

	return ParseConceptMarkdown(resp.Content, optimizedPrompt), nil
}

// sectionPattern matches a markdown heading for the named section,
// tolerating heading level and bold-only headings.
func sectionPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?im)^(?:#{1,4}\s*|\*\*)` + name + `\*{0,2}\s*:?\s*$`)
}

var conceptSections = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"Business Summary", sectionPattern("Business Summary")},
	{"Target Audience", sectionPattern("Target Audience")},
	{"Features", sectionPattern("Features")},
	{"Tech Stack", sectionPattern("Tech Stack")},
	{"Database Schema", sectionPattern("Database Schema")},
	{"Marketing Strategy", sectionPattern("Marketing Strategy")},
}

// ParseConceptMarkdown extracts the concept sections via heading
// pattern matching, defaulting each absent section.
func ParseConceptMarkdown(markdown, optimizedPrompt string) BusinessConcept {
	sections := splitSections(markdown)
	def := DefaultConcept(optimizedPrompt)

	concept := BusinessConcept{
		Summary:           textOr(sections["Business Summary"], def.Summary),
		TargetAudience:    textOr(sections["Target Audience"], def.TargetAudience),
		Features:          listOr(sections["Features"], def.Features),
		TechStack:         listOr(sections["Tech Stack"], def.TechStack),
		DBSchema:          strings.TrimSpace(sections["Database Schema"]),
		MarketingStrategy: strings.TrimSpace(sections["Marketing Strategy"]),
	}
	return concept
}

// splitSections cuts the markdown into named section bodies.
func splitSections(markdown string) map[string]string {
	type hit struct {
		name  string
		start int // index after the heading line
		pos   int // index of the heading itself
	}

	var hits []hit
	for _, sec := range conceptSections {
		loc := sec.pattern.FindStringIndex(markdown)
		if loc != nil {
			hits = append(hits, hit{name: sec.name, start: loc[1], pos: loc[0]})
		}
	}

	// Order by position in the document.
	for i := 0; i < len(hits); i++ {
		for j := i + 1; j < len(hits); j++ {
			if hits[j].pos < hits[i].pos {
				hits[i], hits[j] = hits[j], hits[i]
			}
		}
	}

	sections := make(map[string]string, len(hits))
	for i, h := range hits {
		end := len(markdown)
		if i+1 < len(hits) {
			end = hits[i+1].pos
		}
		sections[h.name] = markdown[h.start:end]
	}
	return sections
}

func textOr(section, fallback string) string {
	text := strings.TrimSpace(section)
	if text == "" {
		return fallback
	}
	return text
}

var listItemPattern = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+[.)])\s+(.+)$`)

func listOr(section string, fallback []string) []string {
	matches := listItemPattern.FindAllStringSubmatch(section, -1)
	if len(matches) == 0 {
		return fallback
	}
	items := make([]string, 0, len(matches))
	for _, m := range matches {
		item := strings.TrimSpace(strings.Trim(m[1], "*_`"))
		if item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}

const schemaSystem = `You are a database architect. Respond with a single JSON object:
{
  "tables": [
    {
      "name": "<table name>",
      "description": "<what it stores>",
      "columns": [{"name": "...", "type": "...", "constraints": "..."}],
      "relationships": [{"table": "...", "cardinality": "1:n"}]
    }
  ],
  "migrations": ["<complete SQL statement>"]
}
Only output valid JSON, no additional text.`

// CreateSchema derives a database schema from the concept. Row-level
// multi-tenant isolation and audit timestamp columns are hard
// requirements passed into the prompt; a response without tables or
// migrations falls back to the minimal one-table schema.
func (a *Architect) CreateSchema(ctx context.Context, concept BusinessConcept) (DatabaseSchema, error) {
	cfg := a.gw.SelectModel(ai.TaskCoding, ai.ComplexityHigh)
	if cfg == nil {
		return DatabaseSchema{}, fmt.Errorf("architect schema: %w", ai.ErrNoProvider)
	}

	prompt := fmt.Sprintf(`Design the database schema for this product.

Summary: %s
Features:
- %s

Hard requirements:
1. Every table carries a user_id column and a row-level security policy so tenants only see their own rows.
2. Every table carries created_at and updated_at timestamptz audit columns.
3. Migrations must be complete, runnable SQL.`,
		concept.Summary, strings.Join(concept.Features, "\n- "))

	fallback := DefaultSchema()

	resp, err := a.gw.Call(ctx, cfg, prompt, schemaSystem, ai.DefaultMaxRetries)
	if err != nil {
		a.log.Warn("schema model call failed, using fallback schema", zap.Error(err))
		return fallback, nil
	}

	schema := ai.ParseJSONFromText(resp.Content, []string{"tables", "migrations"}, fallback)
	return schema, nil
}

// CreateMarketing writes a short marketing strategy for the concept.
func (a *Architect) CreateMarketing(ctx context.Context, concept BusinessConcept) (string, error) {
	cfg := a.gw.SelectModel(ai.TaskCreative, ai.ComplexityMedium)
	if cfg == nil {
		return "", fmt.Errorf("architect marketing: %w", ai.ErrNoProvider)
	}

	prompt := fmt.Sprintf(`Write a concise go-to-market strategy in markdown for this product.

Summary: %s
Target audience: %s
Features:
- %s

Cover positioning, launch channels, and one growth loop.`,
		concept.Summary, concept.TargetAudience, strings.Join(concept.Features, "\n- "))

	resp, err := a.gw.Call(ctx, cfg, prompt, "", ai.DefaultMaxRetries)
	if err != nil {
		a.log.Warn("marketing model call failed, using concept summary", zap.Error(err))
		return "## Marketing Strategy\n\n" + concept.Summary, nil
	}

	return resp.Content, nil
}
