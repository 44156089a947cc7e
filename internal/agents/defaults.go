package agents

// Fixed fallback values used whenever a model response cannot be
// parsed. The pipeline continues with these rather than aborting.

// DefaultConcept returns the fallback business concept assembled from
// the raw user input.
func DefaultConcept(userInput string) BusinessConcept {
	return BusinessConcept{
		Summary:        "A web application based on: " + userInput,
		TargetAudience: "General users",
		Features:       []string{"Core functionality", "User-friendly interface", "Responsive design"},
		TechStack:      []string{"React", "TypeScript", "Tailwind CSS", "Supabase"},
	}
}

// DefaultSchema returns the minimal one-table fallback schema used when
// the architect's structured output lacks tables or migrations.
func DefaultSchema() DatabaseSchema {
	return DatabaseSchema{
		Tables: []Table{
			{
				Name:        "items",
				Description: "Generic items table",
				Columns: []Column{
					{Name: "id", Type: "uuid", Constraints: "primary key default gen_random_uuid()"},
					{Name: "user_id", Type: "uuid", Constraints: "not null references auth.users(id)"},
					{Name: "title", Type: "text", Constraints: "not null"},
					{Name: "created_at", Type: "timestamptz", Constraints: "not null default now()"},
					{Name: "updated_at", Type: "timestamptz", Constraints: "not null default now()"},
				},
			},
		},
		Migrations: []string{
			`create table if not exists items (
  id uuid primary key default gen_random_uuid(),
  user_id uuid not null references auth.users(id),
  title text not null,
  created_at timestamptz not null default now(),
  updated_at timestamptz not null default now()
);`,
			`alter table items enable row level security;`,
			`create policy "items are scoped to their owner" on items
  for all using (auth.uid() = user_id);`,
		},
	}
}

// DefaultDesignSystem returns the hardcoded design system used for
// field-by-field backfilling.
func DefaultDesignSystem() DesignSystem {
	return DesignSystem{
		Theme: "modern",
		Colors: ColorPalette{
			Primary:    "#6366f1",
			Secondary:  "#8b5cf6",
			Background: "#0f172a",
			Surface:    "#1e293b",
			Text:       "#f8fafc",
			Accent:     "#22d3ee",
			Success:    "#22c55e",
			Warning:    "#f59e0b",
			Error:      "#ef4444",
		},
		Typography: Typography{
			FontFamily: "Inter, system-ui, sans-serif",
			SizeXS:     "0.75rem",
			SizeSM:     "0.875rem",
			SizeBase:   "1rem",
			SizeLG:     "1.125rem",
			SizeXL:     "1.25rem",
			Size2XL:    "1.5rem",
		},
		Spacing: Spacing{
			XS: "0.25rem",
			SM: "0.5rem",
			MD: "1rem",
			LG: "1.5rem",
			XL: "2rem",
		},
		BorderRadius: BorderRadius{
			SM:   "0.25rem",
			MD:   "0.5rem",
			LG:   "1rem",
			Full: "9999px",
		},
		Assets: []string{},
	}
}

// ValidateDesignSystem backfills every missing field of a partial
// design system from the defaults, field by field. Fields present in
// the input are preserved unchanged; the input is never replaced
// wholesale.
func ValidateDesignSystem(ds DesignSystem) DesignSystem {
	def := DefaultDesignSystem()

	fill := func(dst *string, fallback string) {
		if *dst == "" {
			*dst = fallback
		}
	}

	fill(&ds.Theme, def.Theme)

	fill(&ds.Colors.Primary, def.Colors.Primary)
	fill(&ds.Colors.Secondary, def.Colors.Secondary)
	fill(&ds.Colors.Background, def.Colors.Background)
	fill(&ds.Colors.Surface, def.Colors.Surface)
	fill(&ds.Colors.Text, def.Colors.Text)
	fill(&ds.Colors.Accent, def.Colors.Accent)
	fill(&ds.Colors.Success, def.Colors.Success)
	fill(&ds.Colors.Warning, def.Colors.Warning)
	fill(&ds.Colors.Error, def.Colors.Error)

	fill(&ds.Typography.FontFamily, def.Typography.FontFamily)
	fill(&ds.Typography.SizeXS, def.Typography.SizeXS)
	fill(&ds.Typography.SizeSM, def.Typography.SizeSM)
	fill(&ds.Typography.SizeBase, def.Typography.SizeBase)
	fill(&ds.Typography.SizeLG, def.Typography.SizeLG)
	fill(&ds.Typography.SizeXL, def.Typography.SizeXL)
	fill(&ds.Typography.Size2XL, def.Typography.Size2XL)

	fill(&ds.Spacing.XS, def.Spacing.XS)
	fill(&ds.Spacing.SM, def.Spacing.SM)
	fill(&ds.Spacing.MD, def.Spacing.MD)
	fill(&ds.Spacing.LG, def.Spacing.LG)
	fill(&ds.Spacing.XL, def.Spacing.XL)

	fill(&ds.BorderRadius.SM, def.BorderRadius.SM)
	fill(&ds.BorderRadius.MD, def.BorderRadius.MD)
	fill(&ds.BorderRadius.LG, def.BorderRadius.LG)
	fill(&ds.BorderRadius.Full, def.BorderRadius.Full)

	if ds.Assets == nil {
		ds.Assets = []string{}
	}

	return ds
}

// DefaultImagePrompts is the fixed 3-prompt set used when image prompt
// generation or parsing fails.
func DefaultImagePrompts(ds DesignSystem) []ImagePrompt {
	style := ds.Theme + " style, " + ds.Colors.Primary + " as primary color"
	return []ImagePrompt{
		{
			Description: "Minimal app logo on a transparent background",
			Style:       style,
			Dimensions:  "512x512",
			UseCase:     "logo",
		},
		{
			Description: "Hero banner showing the product in use",
			Style:       style,
			Dimensions:  "1536x640",
			UseCase:     "hero",
		},
		{
			Description: "Illustration highlighting the main feature",
			Style:       style,
			Dimensions:  "1024x768",
			UseCase:     "feature",
		},
	}
}
