// Package orchestrator sequences the agent pipeline for one user
// request: optimize, plan, design, code, review, build. Stages run
// strictly in order; the only looping is inside the build pipeline.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"appforge/internal/agents"
	"appforge/internal/ai"
	"appforge/internal/brain"
	"appforge/internal/logging"
	"appforge/internal/metrics"
	"appforge/internal/pipeline"
	"appforge/pkg/models"
)

// Reserved artifact paths written into the project tree.
const (
	PathConcept   = "brain/concept.md"
	PathMarketing = "brain/marketing.md"
	PathDesign    = "brain/design.json"
	PathDatabase  = "brain/database.md"
)

// Request describes one orchestration run. ProjectID and OwnerID are
// optional; without a project the knowledge store is skipped and only
// the in-memory tree is produced.
type Request struct {
	ProjectID        string
	OwnerID          string
	UserInput        string
	InterviewAnswers []string
	ExistingTree     *FileTree
}

// Result is the terminal outcome of a run. Partial artifacts written
// before a failure stay in Tree; nothing is rolled back.
type Result struct {
	Stage    Stage
	Tree     *FileTree
	Analysis agents.PromptAnalysis
	Concept  agents.BusinessConcept
	Design   agents.DesignSystem
	Schema   agents.DatabaseSchema
	Reviews  map[string]agents.CodeReview
	Build    *pipeline.BuildResult
	Events   []Event
	Err      string
}

// Failed reports whether the run ended in the failed state.
func (r *Result) Failed() bool { return r.Stage == StageFailed }

// Orchestrator owns the agents and sequences them. One orchestrator
// serves many runs; per-run state lives in the run struct.
type Orchestrator struct {
	gw        agents.ModelCaller
	optimizer *agents.Optimizer
	architect *agents.Architect
	designer  *agents.Designer
	reviewer  *agents.Reviewer
	docs      *agents.DocuBot
	store     *brain.Store
	builder   *pipeline.Pipeline
	metrics   *metrics.Metrics
	log       *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBrain attaches the knowledge store used for RAG context and
// artifact persistence.
func WithBrain(store *brain.Store) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithImageGenerator routes designer asset generation.
func WithImageGenerator(images agents.ImageGenerator) Option {
	return func(o *Orchestrator) { o.designer = agents.NewDesigner(o.gw, images) }
}

// WithMetrics attaches prometheus counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithPipeline overrides the build pipeline, mainly for tests.
func WithPipeline(p *pipeline.Pipeline) Option {
	return func(o *Orchestrator) { o.builder = p }
}

// New creates an orchestrator around a model gateway.
func New(gw agents.ModelCaller, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gw:        gw,
		optimizer: agents.NewOptimizer(gw),
		architect: agents.NewArchitect(gw),
		designer:  agents.NewDesigner(gw, nil),
		reviewer:  agents.NewReviewer(gw),
		metrics:   metrics.NewNop(),
		log:       logging.L().Named("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.builder == nil {
		o.builder = pipeline.New(gw, o.reviewer)
	}
	o.docs = agents.NewDocuBot(gw, o.store)
	return o
}

// run is the per-request state.
type run struct {
	o       *Orchestrator
	req     Request
	control *Control
	sink    EventSink
	events  *eventLog
	tree    *FileTree
	stage   Stage
}

// RunOption configures one orchestration.
type RunOption func(*run)

// WithControl attaches a pause/resume/abort token.
func WithControl(c *Control) RunOption {
	return func(r *run) { r.control = c }
}

// WithEventSink mirrors the event log to a live sink.
func WithEventSink(sink EventSink) RunOption {
	return func(r *run) { r.sink = sink }
}

// Orchestrate executes the full pipeline for one request and always
// returns a terminal result. A stage panic is caught here, logged as
// critical, and surfaced as a failed result; artifacts already in the
// tree are kept.
func (o *Orchestrator) Orchestrate(ctx context.Context, req Request, opts ...RunOption) (result *Result) {
	r := &run{
		o:       o,
		req:     req,
		control: NewControl(),
		events:  &eventLog{},
		tree:    req.ExistingTree,
		stage:   StageIdle,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.events.sink = r.sink
	if r.tree == nil {
		r.tree = NewFileTree()
	}

	result = &Result{Stage: StageIdle, Tree: r.tree, Reviews: map[string]agents.CodeReview{}}

	defer func() {
		if rec := recover(); rec != nil {
			msg := fmt.Sprintf("stage %s panicked: %v", r.stage, rec)
			r.events.append(r.stage, "orchestrator", LevelCritical, msg)
			o.log.Error("orchestration panic", zap.String("stage", string(r.stage)), zap.Any("panic", rec))
			result.Stage = StageFailed
			result.Err = msg
		}
		result.Tree = r.tree
		result.Events = r.events.snapshot()
		o.metrics.PipelineRunsTotal.WithLabelValues(string(result.Stage)).Inc()
	}()

	if err := r.execute(ctx, result); err != nil {
		r.events.append(r.stage, "orchestrator", LevelCritical, err.Error())
		result.Stage = StageFailed
		result.Err = err.Error()
		return result
	}

	result.Stage = StageSuccess
	r.events.append(StageSuccess, "orchestrator", LevelSuccess,
		fmt.Sprintf("pipeline finished with %d files", len(r.tree.Files())))
	return result
}

// execute runs the stage sequence, checking the control token between
// stages.
func (r *run) execute(ctx context.Context, result *Result) error {
	input := strings.TrimSpace(r.req.UserInput)
	if input == "" {
		return fmt.Errorf("empty user input")
	}
	if len(r.req.InterviewAnswers) > 0 {
		input += "\n\nAdditional details:\n- " + strings.Join(r.req.InterviewAnswers, "\n- ")
	}

	// Stage 1: optimize, with RAG context prepended when available.
	if err := r.enter(ctx, StageOptimizing, "optimizer", "analyzing request"); err != nil {
		return err
	}
	input = r.withRAGContext(ctx, input)
	analysis, err := r.o.optimizer.Optimize(ctx, input, agents.OptimizeContext{
		ExistingFiles: existingPaths(r.req.ExistingTree),
	})
	if err != nil {
		return fmt.Errorf("optimizing: %w", err)
	}
	result.Analysis = analysis
	r.events.append(StageOptimizing, "optimizer", LevelSuccess, "request analyzed: "+analysis.Intent)

	// Stage 2: business concept.
	if err := r.enter(ctx, StageConcept, "architect", "developing business concept"); err != nil {
		return err
	}
	concept, err := r.o.architect.CreateConcept(ctx, analysis.OptimizedPrompt)
	if err != nil {
		return fmt.Errorf("planning concept: %w", err)
	}
	result.Concept = concept
	r.writeArtifact(ctx, PathConcept, renderConcept(concept), models.EntryConcept, "architect")

	// Stage 3: marketing strategy.
	if err := r.enter(ctx, StageMarketing, "architect", "writing marketing strategy"); err != nil {
		return err
	}
	marketing, err := r.o.architect.CreateMarketing(ctx, concept)
	if err != nil {
		return fmt.Errorf("planning marketing: %w", err)
	}
	concept.MarketingStrategy = marketing
	result.Concept = concept
	r.writeArtifact(ctx, PathMarketing, marketing, models.EntryMarketing, "architect")

	// Stage 4: design system.
	if err := r.enter(ctx, StageDesigning, "designer", "creating design system"); err != nil {
		return err
	}
	design, err := r.o.designer.CreateDesignSystem(ctx, concept)
	if err != nil {
		return fmt.Errorf("designing: %w", err)
	}
	result.Design = design
	designJSON, _ := json.MarshalIndent(design, "", "  ")
	r.writeArtifact(ctx, PathDesign, string(designJSON), models.EntryDesign, "designer")
	r.generateAssets(ctx, concept, design)

	// Stage 5: database schema.
	if err := r.enter(ctx, StageSchema, "architect", "designing database schema"); err != nil {
		return err
	}
	schema, err := r.o.architect.CreateSchema(ctx, concept)
	if err != nil {
		return fmt.Errorf("planning schema: %w", err)
	}
	result.Schema = schema
	r.writeArtifact(ctx, PathDatabase, renderSchema(schema), models.EntryDocumentation, "architect")

	// Stage 6: code generation.
	if err := r.enter(ctx, StageCoding, "coder", "generating application code"); err != nil {
		return err
	}
	files, err := r.generateCode(ctx, analysis, concept, design)
	if err != nil {
		return fmt.Errorf("coding: %w", err)
	}
	for path, content := range files {
		r.tree = r.tree.Write(path, content)
	}
	r.events.append(StageCoding, "coder", LevelSuccess, fmt.Sprintf("generated %d files", len(files)))

	// Stage 7: per-file QA review.
	if err := r.enter(ctx, StageReviewing, "reviewer", "reviewing generated code"); err != nil {
		return err
	}
	for path, content := range files {
		review, err := r.o.reviewer.Review(ctx, path, content)
		if err != nil {
			return fmt.Errorf("reviewing: %w", err)
		}
		result.Reviews[path] = review
		if !review.Passed {
			r.events.append(StageReviewing, "reviewer", LevelWarning,
				fmt.Sprintf("%s scored %d", path, review.Score))
		}
	}
	compliance := r.o.reviewer.ValidateDesignCompliance(files, design)
	if !compliance.Compliant {
		for _, issue := range compliance.Violations {
			r.events.append(StageReviewing, "reviewer", LevelInfo, issue.File+": "+issue.Message)
		}
	}

	// Stage 8: build loop.
	if err := r.enter(ctx, StageBuilding, "pipeline", "running build pipeline"); err != nil {
		return err
	}
	build, err := r.o.builder.Run(ctx, files)
	if err != nil {
		return fmt.Errorf("building: %w", err)
	}
	result.Build = build
	for path, content := range build.Files {
		r.tree = r.tree.Write(path, content)
	}
	if !build.Success {
		return fmt.Errorf("build failed with %d errors after %d attempts", len(build.Errors), build.Attempts)
	}
	r.events.append(StageBuilding, "pipeline", LevelSuccess,
		fmt.Sprintf("build passed, code quality %s", build.Metrics.CodeQuality))

	// Documentation is best-effort and never fails the run.
	readme := r.o.docs.WriteDocs(ctx, r.req.ProjectID, concept, r.tree.Paths())
	r.tree = r.tree.Write("README.md", readme)

	return nil
}

// enter advances to the next stage after a control checkpoint.
func (r *run) enter(ctx context.Context, stage Stage, source, message string) error {
	if err := r.control.Checkpoint(ctx); err != nil {
		return err
	}
	r.stage = stage
	r.o.metrics.PipelineStagesTotal.WithLabelValues(string(stage)).Inc()
	r.events.append(stage, source, LevelInfo, message)
	return nil
}

// writeArtifact puts a stage artifact into the tree, persists it to
// the knowledge store when a project context exists, and logs it.
// Store failures are logged and swallowed.
func (r *run) writeArtifact(ctx context.Context, path, content string, entryType models.EntryType, source string) {
	r.tree = r.tree.Write(path, content)
	if r.req.ProjectID != "" {
		r.o.docs.LogArtifact(ctx, r.req.ProjectID, r.req.OwnerID, source, content, entryType)
	}
	r.events.append(r.stage, source, LevelSuccess, "wrote "+path)
}

// generateAssets runs image prompt generation and rendering when an
// image generator is configured. Asset generation is best-effort and
// never fails the run.
func (r *run) generateAssets(ctx context.Context, concept agents.BusinessConcept, design agents.DesignSystem) {
	if !r.o.designer.HasImages() {
		return
	}
	prompts, err := r.o.designer.GenerateImagePrompts(ctx, concept, design)
	if err != nil {
		r.events.append(StageDesigning, "designer", LevelWarning, "image prompt generation failed: "+err.Error())
		return
	}
	urls, err := r.o.designer.GenerateImages(ctx, prompts)
	if err != nil {
		r.events.append(StageDesigning, "designer", LevelWarning, "image generation failed: "+err.Error())
		return
	}

	manifest := make(map[string]string, len(urls))
	for i, url := range urls {
		if i < len(prompts) {
			manifest[prompts[i].UseCase] = url
		}
	}
	manifestJSON, _ := json.MarshalIndent(manifest, "", "  ")
	r.tree = r.tree.Write("assets/manifest.json", string(manifestJSON))
	r.events.append(StageDesigning, "designer", LevelSuccess,
		fmt.Sprintf("generated %d assets", len(urls)))
}

// withRAGContext prepends relevant knowledge-store entries to the
// optimizer input when the project has any.
func (r *run) withRAGContext(ctx context.Context, input string) string {
	if r.o.store == nil || r.req.ProjectID == "" {
		return input
	}
	knowledge := r.o.store.RelevantContext(ctx, r.req.ProjectID, input, brain.DefaultContextEntries)
	if knowledge == brain.NoRelevantKnowledge {
		return input
	}
	r.events.append(r.stage, "brain", LevelInfo, "prepended knowledge context")
	return "Known project context:\n" + knowledge + "\n\nRequest:\n" + input
}

const codingSystem = `You are a senior full-stack engineer generating a complete application.
Respond with a single JSON array, one object per file:
[{"path": "src/App.tsx", "content": "<complete file content>"}]
Generate complete, working TypeScript React files. Only output valid JSON, no additional text.`

// generateCode runs the coding stage: one large prompt, a JSON file
// array back. A parse failure gets one QA repair pass over the raw
// text before the stage gives up.
func (r *run) generateCode(ctx context.Context, analysis agents.PromptAnalysis, concept agents.BusinessConcept, design agents.DesignSystem) (map[string]string, error) {
	cfg := r.o.gw.SelectModel(ai.TaskCoding, ai.ComplexityHigh)
	if cfg == nil {
		return nil, ai.ErrNoProvider
	}

	prompt := fmt.Sprintf(`Generate the application.

Build prompt: %s

Concept: %s
Features:
- %s

Design colors: primary %s, background %s, text %s.

Existing files:
%s`,
		analysis.OptimizedPrompt,
		concept.Summary,
		strings.Join(concept.Features, "\n- "),
		design.Colors.Primary, design.Colors.Background, design.Colors.Text,
		strings.Join(r.tree.Paths(), "\n"))

	resp, err := r.o.gw.Call(ctx, cfg, prompt, codingSystem, ai.DefaultMaxRetries)
	if err != nil {
		return nil, err
	}

	files, err := pipeline.ParseGeneratedFiles(resp.Content)
	if err == nil {
		return files, nil
	}

	// One JSON-repair pass through the QA fixer before giving up.
	r.events.append(StageCoding, "coder", LevelWarning, "file array did not parse, attempting repair")
	repaired, fixErr := r.o.reviewer.FixCode(ctx, "generated-files.json", resp.Content, agents.CodeReview{
		Issues: []agents.CodeIssue{{
			Type:     agents.IssueError,
			Severity: agents.SeverityHigh,
			File:     "generated-files.json",
			Message:  "response must be a valid JSON array of {path, content} objects",
		}},
	})
	if fixErr != nil {
		return nil, err
	}
	return pipeline.ParseGeneratedFiles(repaired)
}

func existingPaths(tree *FileTree) []string {
	if tree == nil {
		return nil
	}
	return tree.Paths()
}

func renderConcept(c agents.BusinessConcept) string {
	var b strings.Builder
	b.WriteString("# Business Concept\n\n## Summary\n\n" + c.Summary + "\n\n")
	b.WriteString("## Target Audience\n\n" + c.TargetAudience + "\n\n## Features\n\n")
	for _, f := range c.Features {
		b.WriteString("- " + f + "\n")
	}
	b.WriteString("\n## Tech Stack\n\n")
	for _, t := range c.TechStack {
		b.WriteString("- " + t + "\n")
	}
	return b.String()
}

func renderSchema(s agents.DatabaseSchema) string {
	var b strings.Builder
	b.WriteString("# Database Schema\n\n")
	for _, t := range s.Tables {
		b.WriteString("## " + t.Name + "\n\n" + t.Description + "\n\n")
		for _, c := range t.Columns {
			b.WriteString(fmt.Sprintf("- `%s` %s %s\n", c.Name, c.Type, c.Constraints))
		}
		b.WriteString("\n")
	}
	b.WriteString("## Migrations\n\n```sql\n")
	for _, m := range s.Migrations {
		b.WriteString(m + "\n")
	}
	b.WriteString("```\n")
	return b.String()
}
