package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appforge/internal/ai"
)

// fakeCaller scripts the gateway: every Call returns the next response
// from the list, or err when set. A nil cfg marker simulates no
// available provider.
type fakeCaller struct {
	noProvider bool
	responses  []string
	err        error
	calls      int
	lastPrompt string
	lastSystem string
}

func (f *fakeCaller) SelectModel(task ai.TaskType, complexity ai.Complexity) *ai.ModelConfig {
	if f.noProvider {
		return nil
	}
	return &ai.ModelConfig{Provider: ai.ProviderClaude, ModelName: "test-model", TaskType: task, Complexity: complexity}
}

func (f *fakeCaller) Call(ctx context.Context, cfg *ai.ModelConfig, prompt, systemInstruction string, maxRetries int) (*ai.ModelResponse, error) {
	f.calls++
	f.lastPrompt = prompt
	f.lastSystem = systemInstruction
	if f.err != nil {
		return nil, f.err
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return &ai.ModelResponse{Content: f.responses[idx], Provider: cfg.Provider, ModelName: cfg.ModelName}, nil
}

func TestOptimizerParsesModelResponse(t *testing.T) {
	fc := &fakeCaller{responses: []string{`Here you go:
{"intent": "todo app", "missing_details": [], "design_requirements": ["dark mode"], "technical_requirements": ["react"], "optimized_prompt": "Build a todo app with dark mode"}`}}
	o := NewOptimizer(fc)

	analysis, err := o.Optimize(context.Background(), "make me a todo app", OptimizeContext{})
	require.NoError(t, err)
	assert.Equal(t, "todo app", analysis.Intent)
	assert.Equal(t, "Build a todo app with dark mode", analysis.OptimizedPrompt)
	assert.Equal(t, []string{"dark mode"}, analysis.DesignRequirements)
}

func TestOptimizerFallsBackOnCallFailure(t *testing.T) {
	fc := &fakeCaller{err: errors.New("provider down")}
	o := NewOptimizer(fc)

	analysis, err := o.Optimize(context.Background(), "make me a todo app", OptimizeContext{})
	require.NoError(t, err)
	assert.Equal(t, "make me a todo app", analysis.Intent)
	assert.Contains(t, analysis.OptimizedPrompt, "make me a todo app")
	assert.NotEmpty(t, analysis.TechnicalRequirements)
}

func TestOptimizerFallsBackOnMissingRequiredField(t *testing.T) {
	// intent present but optimized_prompt empty: required-field check
	// rejects the parse.
	fc := &fakeCaller{responses: []string{`{"intent": "x", "optimized_prompt": ""}`}}
	o := NewOptimizer(fc)

	analysis, err := o.Optimize(context.Background(), "build a shop", OptimizeContext{})
	require.NoError(t, err)
	assert.Equal(t, "build a shop", analysis.Intent)
}

func TestOptimizerNoProvider(t *testing.T) {
	o := NewOptimizer(&fakeCaller{noProvider: true})
	_, err := o.Optimize(context.Background(), "anything", OptimizeContext{})
	require.ErrorIs(t, err, ai.ErrNoProvider)
}

func TestOptimizerPromptIncludesContext(t *testing.T) {
	fc := &fakeCaller{responses: []string{`{"intent": "x", "optimized_prompt": "y"}`}}
	o := NewOptimizer(fc)
	ds := DefaultDesignSystem()

	_, err := o.Optimize(context.Background(), "add a settings page", OptimizeContext{
		ExistingFiles: []string{"src/App.tsx"},
		DesignSystem:  &ds,
	})
	require.NoError(t, err)
	assert.Contains(t, fc.lastPrompt, "src/App.tsx")
	assert.Contains(t, fc.lastPrompt, ds.Colors.Primary)
}

func TestParseConceptMarkdown(t *testing.T) {
	markdown := `## Business Summary
A marketplace for vintage cameras.

## Target Audience
Photography collectors.

## Features
- listings with photos
- escrow payments
2. seller ratings

## Tech Stack
* React
* PostgreSQL

## Marketing Strategy
Partner with photography forums.`

	concept := ParseConceptMarkdown(markdown, "camera marketplace")
	assert.Equal(t, "A marketplace for vintage cameras.", concept.Summary)
	assert.Equal(t, "Photography collectors.", concept.TargetAudience)
	assert.Equal(t, []string{"listings with photos", "escrow payments", "seller ratings"}, concept.Features)
	assert.Equal(t, []string{"React", "PostgreSQL"}, concept.TechStack)
	assert.Equal(t, "Partner with photography forums.", concept.MarketingStrategy)
}

func TestParseConceptMarkdownDefaultsMissingSections(t *testing.T) {
	concept := ParseConceptMarkdown("## Business Summary\nJust a summary.", "fallback input")
	def := DefaultConcept("fallback input")

	assert.Equal(t, "Just a summary.", concept.Summary)
	assert.Equal(t, def.TargetAudience, concept.TargetAudience)
	assert.Equal(t, def.Features, concept.Features)
	assert.Equal(t, def.TechStack, concept.TechStack)
}

func TestArchitectConceptFallsBackOnError(t *testing.T) {
	a := NewArchitect(&fakeCaller{err: errors.New("down")})
	concept, err := a.CreateConcept(context.Background(), "a recipe app")
	require.NoError(t, err)
	assert.Equal(t, DefaultConcept("a recipe app"), concept)
}

func TestArchitectSchemaFallsBackOnGarbage(t *testing.T) {
	a := NewArchitect(&fakeCaller{responses: []string{"sorry, I cannot produce SQL today"}})
	schema, err := a.CreateSchema(context.Background(), DefaultConcept("x"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSchema(), schema)
	require.NotEmpty(t, schema.Tables)
	assert.NotEmpty(t, schema.Migrations)
}

func TestArchitectSchemaParsesResponse(t *testing.T) {
	a := NewArchitect(&fakeCaller{responses: []string{`{"tables": [{"name": "recipes", "description": "user recipes", "columns": [{"name": "id", "type": "uuid"}]}], "migrations": ["CREATE TABLE recipes (id uuid primary key);"]}`}})
	schema, err := a.CreateSchema(context.Background(), DefaultConcept("x"))
	require.NoError(t, err)
	require.Len(t, schema.Tables, 1)
	assert.Equal(t, "recipes", schema.Tables[0].Name)
	assert.Len(t, schema.Migrations, 1)
}

func TestDesignerValidatesPartialSystem(t *testing.T) {
	// Model returns only colors; everything else must be backfilled.
	d := NewDesigner(&fakeCaller{responses: []string{`{"colors": {"primary": "#123456"}, "typography": {"font_family": "Inter"}}`}}, nil)

	ds, err := d.CreateDesignSystem(context.Background(), DefaultConcept("x"))
	require.NoError(t, err)
	assert.Equal(t, "#123456", ds.Colors.Primary)
	assert.Equal(t, "Inter", ds.Typography.FontFamily)

	def := DefaultDesignSystem()
	assert.Equal(t, def.Colors.Background, ds.Colors.Background)
	assert.Equal(t, def.Spacing.MD, ds.Spacing.MD)
	assert.Equal(t, def.BorderRadius.Full, ds.BorderRadius.Full)
}

func TestDesignerKeepsSchemaConformantResponse(t *testing.T) {
	// A response using exactly the keys the system prompt asks for must
	// survive validation instead of being replaced by defaults.
	d := NewDesigner(&fakeCaller{responses: []string{`{
  "theme": "calm productivity",
  "colors": {"primary": "#0f172a", "secondary": "#334155", "accent": "#38bdf8", "background": "#f8fafc", "surface": "#ffffff", "text": "#0f172a", "success": "#22c55e", "warning": "#eab308", "error": "#ef4444"},
  "typography": {"font_family": "Inter", "size_xs": "0.7rem", "size_sm": "0.85rem", "size_base": "1.05rem", "size_lg": "1.3rem", "size_xl": "1.6rem", "size_2xl": "2.1rem"},
  "spacing": {"xs": "2px", "sm": "6px", "md": "14px", "lg": "22px", "xl": "30px"},
  "border_radius": {"sm": "2px", "md": "6px", "lg": "10px", "full": "9999px"},
  "assets": ["minimal logo"]
}`}}, nil)

	ds, err := d.CreateDesignSystem(context.Background(), DefaultConcept("x"))
	require.NoError(t, err)

	def := DefaultDesignSystem()
	assert.NotEqual(t, def.Typography, ds.Typography)
	assert.Equal(t, "0.7rem", ds.Typography.SizeXS)
	assert.Equal(t, "2.1rem", ds.Typography.Size2XL)
	assert.Equal(t, "#eab308", ds.Colors.Warning)
	assert.Equal(t, "14px", ds.Spacing.MD)
}

func TestDesignerImagePromptsFallback(t *testing.T) {
	d := NewDesigner(&fakeCaller{responses: []string{"no json here"}}, nil)
	ds := DefaultDesignSystem()

	prompts, err := d.GenerateImagePrompts(context.Background(), DefaultConcept("x"), ds)
	require.NoError(t, err)
	assert.Equal(t, DefaultImagePrompts(ds), prompts)
}

func TestDesignerImagePromptsParsed(t *testing.T) {
	d := NewDesigner(&fakeCaller{responses: []string{`[{"description": "minimal mark", "style": "flat", "dimensions": "512x512", "use_case": "logo"}]`}}, nil)

	prompts, err := d.GenerateImagePrompts(context.Background(), DefaultConcept("x"), DefaultDesignSystem())
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	assert.Equal(t, "logo", prompts[0].UseCase)
}

func TestDesignerGenerateImagesWithoutGenerator(t *testing.T) {
	d := NewDesigner(&fakeCaller{}, nil)
	urls, err := d.GenerateImages(context.Background(), DefaultImagePrompts(DefaultDesignSystem()))
	require.NoError(t, err)
	assert.Nil(t, urls)
}

func TestCodeReviewRecompute(t *testing.T) {
	review := CodeReview{
		Issues: []CodeIssue{
			{Severity: SeverityCritical},
			{Severity: SeverityHigh},
			{Severity: SeverityLow},
		},
		// Model claims passing; Recompute must override.
		Passed: true,
		Score:  100,
	}
	review.Recompute()

	// 100 - 30 (critical) - 15 (high) - 3*5 (per issue) = 40
	assert.Equal(t, 40, review.Score)
	assert.False(t, review.Passed)
}

func TestCodeReviewRecomputeFloorsAtZero(t *testing.T) {
	var review CodeReview
	for i := 0; i < 5; i++ {
		review.Issues = append(review.Issues, CodeIssue{Severity: SeverityCritical})
	}
	review.Recompute()
	assert.Equal(t, 0, review.Score)
	assert.False(t, review.Passed)
}

func TestCodeReviewRecomputeClean(t *testing.T) {
	var review CodeReview
	review.Recompute()
	assert.Equal(t, 100, review.Score)
	assert.True(t, review.Passed)
}

func TestHeuristicReviewFindsCredentials(t *testing.T) {
	content := `const apiKey = "sk_live_abcdef1234567890";
console.log("starting");`
	review := HeuristicReview("src/config.ts", content)

	var severities []IssueSeverity
	for _, issue := range review.Issues {
		severities = append(severities, issue.Severity)
	}
	assert.Contains(t, severities, SeverityCritical)
	assert.Contains(t, severities, SeverityLow)
	assert.False(t, review.Passed)
}

func TestHeuristicReviewCleanFilePasses(t *testing.T) {
	review := HeuristicReview("src/util.ts", "export const add = (a: number, b: number) => a + b;\n")
	assert.True(t, review.Passed)
	assert.Equal(t, 100, review.Score)
}

func TestReviewerRecomputesModelVerdict(t *testing.T) {
	// Model reports a critical issue but claims passed=true with a
	// perfect score; the local recompute must win.
	r := NewReviewer(&fakeCaller{responses: []string{`{"issues": [{"type": "error", "severity": "critical", "message": "sql injection"}], "score": 100, "passed": true}`}})

	review, err := r.Review(context.Background(), "src/db.ts", "...")
	require.NoError(t, err)
	assert.False(t, review.Passed)
	assert.Equal(t, 65, review.Score)
	assert.Equal(t, "src/db.ts", review.Issues[0].File)
}

func TestFixCodeStripsFences(t *testing.T) {
	r := NewReviewer(&fakeCaller{responses: []string{"```tsx\nconst fixed = true;\n```"}})
	fixed, err := r.FixCode(context.Background(), "src/App.tsx", "const broken = ;", CodeReview{})
	require.NoError(t, err)
	assert.Equal(t, "const fixed = true;", fixed)
}

func TestFixCodeKeepsOriginalOnFailure(t *testing.T) {
	r := NewReviewer(&fakeCaller{err: errors.New("down")})
	fixed, err := r.FixCode(context.Background(), "src/App.tsx", "original", CodeReview{})
	require.NoError(t, err)
	assert.Equal(t, "original", fixed)
}

func TestValidateDesignCompliance(t *testing.T) {
	r := NewReviewer(&fakeCaller{})
	ds := DefaultDesignSystem()

	files := map[string]string{
		"src/App.tsx":   "const c = \"" + ds.Colors.Primary + "\";",
		"src/Style.css": ".foo { color: #ff00aa; }",
		"notes.md":      "#ff00aa is not checked here",
	}
	compliance := r.ValidateDesignCompliance(files, ds)
	assert.False(t, compliance.Compliant)
	require.Len(t, compliance.Violations, 1)
	assert.Equal(t, "src/Style.css", compliance.Violations[0].File)

	clean := r.ValidateDesignCompliance(map[string]string{
		"src/App.tsx": "const c = \"" + ds.Colors.Primary + "\";",
	}, ds)
	assert.True(t, clean.Compliant)
	assert.Empty(t, clean.Violations)
}

func TestDefaultImagePromptsCarryTheme(t *testing.T) {
	ds := DefaultDesignSystem()
	prompts := DefaultImagePrompts(ds)
	require.NotEmpty(t, prompts)
	for _, p := range prompts {
		assert.NotEmpty(t, p.UseCase)
		assert.NotEmpty(t, p.Description)
	}
}
