package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"appforge/internal/ai"
	"appforge/internal/logging"
)

// ImageGenerator renders one image per prompt and returns the stored
// asset URLs, index-aligned with the input prompts.
type ImageGenerator interface {
	Generate(ctx context.Context, prompts []ImagePrompt) ([]string, error)
}

// Designer produces the design system and the image assets.
type Designer struct {
	gw     ModelCaller
	images ImageGenerator
	log    *zap.Logger
}

// NewDesigner creates a designer agent. images may be nil, in which
// case GenerateImages returns no assets.
func NewDesigner(gw ModelCaller, images ImageGenerator) *Designer {
	return &Designer{gw: gw, images: images, log: logging.L().Named("designer")}
}

const designSystem = `You are a senior UI designer. Respond with a single JSON object:
{
  "theme": "<one-line theme description>",
  "colors": {"primary": "#hex", "secondary": "#hex", "accent": "#hex", "background": "#hex", "surface": "#hex", "text": "#hex", "success": "#hex", "warning": "#hex", "error": "#hex"},
  "typography": {"font_family": "...", "size_xs": "...", "size_sm": "...", "size_base": "...", "size_lg": "...", "size_xl": "...", "size_2xl": "..."},
  "spacing": {"xs": "...", "sm": "...", "md": "...", "lg": "...", "xl": "..."},
  "border_radius": {"sm": "...", "md": "...", "lg": "...", "full": "9999px"},
  "assets": ["<asset description>"]
}
All colors are hex values. Only output valid JSON, no additional text.`

// HasImages reports whether an image generator is configured.
func (d *Designer) HasImages() bool { return d.images != nil }

// CreateDesignSystem derives a design system from the concept. The
// result always passes validation: any field the model left empty or
// malformed is backfilled from the default system.
func (d *Designer) CreateDesignSystem(ctx context.Context, concept BusinessConcept) (DesignSystem, error) {
	cfg := d.gw.SelectModel(ai.TaskCreative, ai.ComplexityMedium)
	if cfg == nil {
		return DesignSystem{}, fmt.Errorf("designer: %w", ai.ErrNoProvider)
	}

	prompt := fmt.Sprintf(`Design a complete visual design system for this product.

Summary: %s
Target audience: %s
Features:
- %s`,
		concept.Summary, concept.TargetAudience, strings.Join(concept.Features, "\n- "))

	resp, err := d.gw.Call(ctx, cfg, prompt, designSystem, ai.DefaultMaxRetries)
	if err != nil {
		d.log.Warn("design system model call failed, using default system", zap.Error(err))
		return DefaultDesignSystem(), nil
	}

	ds := ai.ParseJSONFromText(resp.Content, []string{"colors", "typography"}, DefaultDesignSystem())
	return ValidateDesignSystem(ds), nil
}

const imagePromptSystem = `You are an art director. Respond with a single JSON array of image prompts:
[{"description": "...", "style": "...", "dimensions": "512x512", "use_case": "logo|hero|feature"}]
Only output valid JSON, no additional text.`

// GenerateImagePrompts asks for asset prompts matching the design
// system, falling back to the fixed logo/hero/feature set.
func (d *Designer) GenerateImagePrompts(ctx context.Context, concept BusinessConcept, ds DesignSystem) ([]ImagePrompt, error) {
	cfg := d.gw.SelectModel(ai.TaskCreative, ai.ComplexityLow)
	if cfg == nil {
		return nil, fmt.Errorf("designer image prompts: %w", ai.ErrNoProvider)
	}

	prompt := fmt.Sprintf(`Create image generation prompts for this product's assets.

Summary: %s
Theme: %s
Primary color: %s
Needed assets: one logo, one hero image, one feature illustration per major feature (max 3).`,
		concept.Summary, ds.Theme, ds.Colors.Primary)

	resp, err := d.gw.Call(ctx, cfg, prompt, imagePromptSystem, ai.DefaultMaxRetries)
	if err != nil {
		d.log.Warn("image prompt model call failed, using default prompts", zap.Error(err))
		return DefaultImagePrompts(ds), nil
	}

	return parseImagePrompts(resp.Content, DefaultImagePrompts(ds)), nil
}

// parseImagePrompts slices the first JSON array out of the model text.
// Anything short of a non-empty, parseable array yields the fallback.
func parseImagePrompts(text string, fallback []ImagePrompt) []ImagePrompt {
	raw, ok := ai.ExtractJSONArray(text)
	if !ok {
		return fallback
	}
	var prompts []ImagePrompt
	if err := json.Unmarshal([]byte(raw), &prompts); err != nil || len(prompts) == 0 {
		return fallback
	}
	return prompts
}

// GenerateImages renders the prompts through the configured image
// generator. A nil generator yields no assets rather than an error so
// the pipeline continues without images.
func (d *Designer) GenerateImages(ctx context.Context, prompts []ImagePrompt) ([]string, error) {
	if d.images == nil {
		d.log.Info("no image generator configured, skipping asset generation")
		return nil, nil
	}
	urls, err := d.images.Generate(ctx, prompts)
	if err != nil {
		return nil, fmt.Errorf("generate images: %w", err)
	}
	return urls, nil
}
