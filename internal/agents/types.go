// Package agents implements the specialized pipeline agents: prompt
// optimizer, architect, designer, QA reviewer, and the decision logger.
// Each agent is a stateless function over (input, context) that uses
// the model gateway and the structured-output extractor, with typed
// fallback defaults for every malformed model response.
package agents

import (
	"context"

	"appforge/internal/ai"
)

// ModelCaller is the slice of the gateway the agents need. *ai.Gateway
// satisfies it; tests substitute fakes.
type ModelCaller interface {
	SelectModel(task ai.TaskType, complexity ai.Complexity) *ai.ModelConfig
	Call(ctx context.Context, cfg *ai.ModelConfig, prompt, systemInstruction string, maxRetries int) (*ai.ModelResponse, error)
}

// PromptAnalysis is the optimizer's structured result.
type PromptAnalysis struct {
	Intent                string   `json:"intent"`
	MissingDetails        []string `json:"missing_details"`
	DesignRequirements    []string `json:"design_requirements"`
	TechnicalRequirements []string `json:"technical_requirements"`
	OptimizedPrompt       string   `json:"optimized_prompt"`
}

// ReferenceDesign is the output of an external reference-URL analysis
// collaborator, folded into the optimizer's context when present.
type ReferenceDesign struct {
	Colors     []string `json:"colors"`
	Style      string   `json:"style"`
	Layout     string   `json:"layout"`
	Typography string   `json:"typography"`
	Components []string `json:"components"`
	Patterns   []string `json:"patterns"`
}

// OptimizeContext carries what the optimizer already knows about the
// project.
type OptimizeContext struct {
	ExistingFiles   []string
	DesignSystem    *DesignSystem
	ReferenceDesign *ReferenceDesign
}

// BusinessConcept is built once per user request by parsing a markdown
// response. It is never partially nil: missing sections fall back to
// fixed defaults.
type BusinessConcept struct {
	Summary           string   `json:"summary"`
	TargetAudience    string   `json:"target_audience"`
	Features          []string `json:"features"`
	TechStack         []string `json:"tech_stack"`
	DBSchema          string   `json:"db_schema,omitempty"`
	MarketingStrategy string   `json:"marketing_strategy,omitempty"`
}

// Column describes one table column.
type Column struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Constraints string `json:"constraints,omitempty"`
}

// Relationship links a table to another with a cardinality.
type Relationship struct {
	Table       string `json:"table"`
	Cardinality string `json:"cardinality"`
}

// Table describes one table in the generated schema.
type Table struct {
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Columns       []Column       `json:"columns"`
	Relationships []Relationship `json:"relationships,omitempty"`
}

// DatabaseSchema is the architect's structured schema output.
type DatabaseSchema struct {
	Tables     []Table  `json:"tables"`
	Migrations []string `json:"migrations"`
}

// ColorPalette holds the nine fixed color roles of a design system,
// each a hex string.
type ColorPalette struct {
	Primary    string `json:"primary"`
	Secondary  string `json:"secondary"`
	Background string `json:"background"`
	Surface    string `json:"surface"`
	Text       string `json:"text"`
	Accent     string `json:"accent"`
	Success    string `json:"success"`
	Warning    string `json:"warning"`
	Error      string `json:"error"`
}

// Typography holds the font family and the six named sizes.
type Typography struct {
	FontFamily string `json:"font_family"`
	SizeXS     string `json:"size_xs"`
	SizeSM     string `json:"size_sm"`
	SizeBase   string `json:"size_base"`
	SizeLG     string `json:"size_lg"`
	SizeXL     string `json:"size_xl"`
	Size2XL    string `json:"size_2xl"`
}

// Spacing holds the five named scale steps.
type Spacing struct {
	XS string `json:"xs"`
	SM string `json:"sm"`
	MD string `json:"md"`
	LG string `json:"lg"`
	XL string `json:"xl"`
}

// BorderRadius holds the four named scale steps.
type BorderRadius struct {
	SM   string `json:"sm"`
	MD   string `json:"md"`
	LG   string `json:"lg"`
	Full string `json:"full"`
}

// DesignSystem is always fully populated: ValidateDesignSystem
// backfills any missing field from the default system, field by field.
type DesignSystem struct {
	Theme        string       `json:"theme"`
	Colors       ColorPalette `json:"colors"`
	Typography   Typography   `json:"typography"`
	Spacing      Spacing      `json:"spacing"`
	BorderRadius BorderRadius `json:"border_radius"`
	Assets       []string     `json:"assets"`
}

// ImagePrompt describes one asset to generate.
type ImagePrompt struct {
	Description string `json:"description"`
	Style       string `json:"style"`
	Dimensions  string `json:"dimensions"`
	UseCase     string `json:"use_case"`
}

// Issue classification.
type IssueType string

const (
	IssueError   IssueType = "error"
	IssueWarning IssueType = "warning"
	IssueInfo    IssueType = "info"
)

// IssueSeverity grades how bad an issue is.
type IssueSeverity string

const (
	SeverityCritical IssueSeverity = "critical"
	SeverityHigh     IssueSeverity = "high"
	SeverityMedium   IssueSeverity = "medium"
	SeverityLow      IssueSeverity = "low"
)

// CodeIssue is one finding in a file. Ephemeral: produced by review,
// consumed immediately by fix.
type CodeIssue struct {
	Type       IssueType     `json:"type"`
	Severity   IssueSeverity `json:"severity"`
	File       string        `json:"file"`
	Line       int           `json:"line,omitempty"`
	Message    string        `json:"message"`
	Suggestion string        `json:"suggestion,omitempty"`
}

// CodeReview is the reviewer's result for one file. Passed is always
// recomputed from the issue list, never trusted from a model response.
type CodeReview struct {
	Issues      []CodeIssue `json:"issues"`
	Score       int         `json:"score"`
	Passed      bool        `json:"passed"`
	Suggestions []string    `json:"suggestions"`
}

// Recompute derives Score and Passed from the issue list. Passed is
// true iff no issue is critical or high; the score starts at 100 and
// loses 30 per critical, 15 per high, and 5 per issue overall.
func (r *CodeReview) Recompute() {
	critical, high := 0, 0
	for _, issue := range r.Issues {
		switch issue.Severity {
		case SeverityCritical:
			critical++
		case SeverityHigh:
			high++
		}
	}

	score := 100 - 30*critical - 15*high - 5*len(r.Issues)
	if score < 0 {
		score = 0
	}
	r.Score = score
	r.Passed = critical == 0 && high == 0
}
