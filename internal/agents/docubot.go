package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"appforge/internal/ai"
	"appforge/internal/brain"
	"appforge/internal/logging"
	"appforge/pkg/models"
)

// DocuBot records pipeline decisions into the project brain and
// assembles the final documentation. Documentation is best-effort:
// every operation swallows its errors after logging them, because a
// failed doc write must never fail a build.
type DocuBot struct {
	gw    ModelCaller
	store *brain.Store
	log   *zap.Logger
}

// NewDocuBot creates a documentation agent. store may be nil, in which
// case decision logging is a no-op.
func NewDocuBot(gw ModelCaller, store *brain.Store) *DocuBot {
	return &DocuBot{gw: gw, store: store, log: logging.L().Named("docubot")}
}

// LogDecision appends a decision entry to the project brain.
func (d *DocuBot) LogDecision(ctx context.Context, projectID, ownerID, stage, decision string) {
	if d.store == nil {
		return
	}
	content := fmt.Sprintf("[%s] %s", stage, decision)
	if _, err := d.store.Save(ctx, projectID, ownerID, content, models.EntryDecision, map[string]string{"stage": stage}); err != nil {
		d.log.Warn("decision log failed", zap.String("stage", stage), zap.Error(err))
	}
}

// LogArtifact stores a stage artifact (concept, design, marketing) as
// a typed brain entry so later stages can retrieve it.
func (d *DocuBot) LogArtifact(ctx context.Context, projectID, ownerID, source, content string, entryType models.EntryType) {
	if d.store == nil {
		return
	}
	if _, err := d.store.Save(ctx, projectID, ownerID, content, entryType, map[string]string{"source": source}); err != nil {
		d.log.Warn("artifact log failed",
			zap.String("source", source), zap.String("entry_type", string(entryType)), zap.Error(err))
	}
}

const docsSystem = `You are a technical writer. Write the README.md of a newly generated application in markdown. Cover: what the app does, the feature list, how the code is organized, and how decisions were made during generation. Be factual, skip filler.`

// WriteDocs assembles the project README from the concept and the
// decision trail. Model failure degrades to a minimal generated README
// rather than an error.
func (d *DocuBot) WriteDocs(ctx context.Context, projectID string, concept BusinessConcept, files []string) string {
	decisions := d.recentDecisions(ctx, projectID)

	cfg := d.gw.SelectModel(ai.TaskCreative, ai.ComplexityLow)
	if cfg == nil {
		d.log.Warn("no provider for docs, using minimal README")
		return minimalReadme(concept, files)
	}

	prompt := fmt.Sprintf(`Write the README for this generated application.

Summary: %s
Features:
- %s

Files:
%s

Decision trail:
%s`,
		concept.Summary,
		strings.Join(concept.Features, "\n- "),
		strings.Join(files, "\n"),
		decisions)

	resp, err := d.gw.Call(ctx, cfg, prompt, docsSystem, ai.DefaultMaxRetries)
	if err != nil {
		d.log.Warn("docs model call failed, using minimal README", zap.Error(err))
		return minimalReadme(concept, files)
	}
	return resp.Content
}

func (d *DocuBot) recentDecisions(ctx context.Context, projectID string) string {
	if d.store == nil {
		return "(no decisions recorded)"
	}
	entries, err := d.store.Recent(ctx, projectID, models.EntryDecision, 20)
	if err != nil || len(entries) == 0 {
		return "(no decisions recorded)"
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, "- "+e.Content)
	}
	return strings.Join(lines, "\n")
}

func minimalReadme(concept BusinessConcept, files []string) string {
	var b strings.Builder
	b.WriteString("# Generated Application\n\n")
	b.WriteString(concept.Summary + "\n\n## Features\n\n")
	for _, f := range concept.Features {
		b.WriteString("- " + f + "\n")
	}
	b.WriteString("\n## Files\n\n")
	for _, f := range files {
		b.WriteString("- `" + f + "`\n")
	}
	return b.String()
}
