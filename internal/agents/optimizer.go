package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"appforge/internal/ai"
	"appforge/internal/logging"
)

// Optimizer turns a raw user request into an analyzed, enriched prompt
// for the downstream agents.
type Optimizer struct {
	gw  ModelCaller
	log *zap.Logger
}

// NewOptimizer creates a prompt optimizer.
func NewOptimizer(gw ModelCaller) *Optimizer {
	return &Optimizer{gw: gw, log: logging.L().Named("optimizer")}
}

const optimizerSystem = `You analyze product ideas for an AI app builder.
Respond with a single JSON object:
{
  "intent": "<one sentence describing what the user wants to build>",
  "missing_details": ["<detail the user did not specify>"],
  "design_requirements": ["<visual or UX requirement>"],
  "technical_requirements": ["<technical requirement>"],
  "optimized_prompt": "<a complete, specific build prompt>"
}
Only output valid JSON, no additional text.`

// Optimize analyzes the user input. On any model or parse failure it
// falls back to a templated prompt assembled directly from the input.
func (o *Optimizer) Optimize(ctx context.Context, userInput string, octx OptimizeContext) (PromptAnalysis, error) {
	cfg := o.gw.SelectModel(ai.TaskReasoning, ai.ComplexityMedium)
	if cfg == nil {
		return PromptAnalysis{}, fmt.Errorf("prompt optimizer: %w", ai.ErrNoProvider)
	}

	prompt := o.buildPrompt(userInput, octx)

	fallback := fallbackAnalysis(userInput, octx)

	resp, err := o.gw.Call(ctx, cfg, prompt, optimizerSystem, ai.DefaultMaxRetries)
	if err != nil {
		o.log.Warn("optimizer model call failed, using templated fallback", zap.Error(err))
		return fallback, nil
	}

	analysis := ai.ParseJSONFromText(resp.Content, []string{"intent", "optimized_prompt"}, fallback)
	return analysis, nil
}

func (o *Optimizer) buildPrompt(userInput string, octx OptimizeContext) string {
	var sb strings.Builder

	sb.WriteString("User request:\n")
	sb.WriteString(userInput)
	sb.WriteString("\n")

	if len(octx.ExistingFiles) > 0 {
		sb.WriteString("\nExisting project files:\n")
		for _, f := range octx.ExistingFiles {
			sb.WriteString("- " + f + "\n")
		}
	}

	if octx.DesignSystem != nil {
		sb.WriteString(fmt.Sprintf("\nThe project already has a %q design system with primary color %s; keep new requirements consistent with it.\n",
			octx.DesignSystem.Theme, octx.DesignSystem.Colors.Primary))
	}

	if ref := octx.ReferenceDesign; ref != nil {
		sb.WriteString("\nReference design analysis:\n")
		if ref.Style != "" {
			sb.WriteString("Style: " + ref.Style + "\n")
		}
		if ref.Layout != "" {
			sb.WriteString("Layout: " + ref.Layout + "\n")
		}
		if ref.Typography != "" {
			sb.WriteString("Typography: " + ref.Typography + "\n")
		}
		if len(ref.Colors) > 0 {
			sb.WriteString("Colors: " + strings.Join(ref.Colors, ", ") + "\n")
		}
		if len(ref.Components) > 0 {
			sb.WriteString("Components: " + strings.Join(ref.Components, ", ") + "\n")
		}
		if len(ref.Patterns) > 0 {
			sb.WriteString("Patterns: " + strings.Join(ref.Patterns, ", ") + "\n")
		}
	}

	return sb.String()
}

// fallbackAnalysis assembles the templated analysis used when the model
// path fails.
func fallbackAnalysis(userInput string, octx OptimizeContext) PromptAnalysis {
	missing := []string{"target audience", "preferred visual style"}

	var sb strings.Builder
	sb.WriteString("Build a complete, production-ready web application: ")
	sb.WriteString(userInput)
	sb.WriteString(". Include responsive layout, accessible components, and clear empty/loading/error states.")
	if octx.DesignSystem != nil {
		sb.WriteString(" Follow the existing design system (theme ")
		sb.WriteString(octx.DesignSystem.Theme)
		sb.WriteString(").")
	}

	return PromptAnalysis{
		Intent:                userInput,
		MissingDetails:        missing,
		DesignRequirements:    []string{"responsive layout", "consistent color usage"},
		TechnicalRequirements: []string{"TypeScript", "component-based architecture"},
		OptimizedPrompt:       sb.String(),
	}
}
