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

// Reviewer is the QA agent: it reviews generated files, repairs the
// ones that fail, and checks design-system compliance.
type Reviewer struct {
	gw  ModelCaller
	log *zap.Logger
}

// NewReviewer creates a QA reviewer agent.
func NewReviewer(gw ModelCaller) *Reviewer {
	return &Reviewer{gw: gw, log: logging.L().Named("reviewer")}
}

const reviewSystem = `You are a strict code reviewer. Respond with a single JSON object:
{
  "issues": [{"type": "error|warning|info", "severity": "critical|high|medium|low", "file": "...", "line": 0, "message": "...", "suggestion": "..."}],
  "suggestions": ["<general improvement>"]
}
Report real defects only. Only output valid JSON, no additional text.`

// Review runs a model review over one file. When the model is
// unavailable or its answer does not parse, the heuristic review runs
// instead so the pipeline always gets a usable verdict. Score and
// Passed are recomputed locally in both paths.
func (r *Reviewer) Review(ctx context.Context, path, content string) (CodeReview, error) {
	cfg := r.gw.SelectModel(ai.TaskCoding, ai.ComplexityMedium)
	if cfg == nil {
		return CodeReview{}, fmt.Errorf("reviewer: %w", ai.ErrNoProvider)
	}

	prompt := fmt.Sprintf("Review this file for bugs, security problems, and quality issues.\n\nFile: %s\n\n%s", path, content)

	resp, err := r.gw.Call(ctx, cfg, prompt, reviewSystem, ai.DefaultMaxRetries)
	if err != nil {
		r.log.Warn("review model call failed, using heuristic review",
			zap.String("file", path), zap.Error(err))
		return HeuristicReview(path, content), nil
	}

	review := ai.ParseJSONFromText(resp.Content, nil, HeuristicReview(path, content))
	for i := range review.Issues {
		if review.Issues[i].File == "" {
			review.Issues[i].File = path
		}
	}
	review.Recompute()
	return review, nil
}

var (
	debugPrintPattern = regexp.MustCompile(`console\.\s*(log|debug|trace)\s*\(`)
	credentialPattern = regexp.MustCompile(`(?i)(api[_-]?key|secret|password|token)\s*[:=]\s*["'][A-Za-z0-9_\-]{8,}["']`)
	unhandledAwait    = regexp.MustCompile(`(?m)^\s*await\s+\w`)
)

// HeuristicReview is the model-free review path: a small set of
// pattern checks for debug output, hardcoded credentials, and
// fire-and-forget async calls outside try/catch.
func HeuristicReview(path, content string) CodeReview {
	var review CodeReview

	for i, line := range strings.Split(content, "\n") {
		if debugPrintPattern.MatchString(line) {
			review.Issues = append(review.Issues, CodeIssue{
				Type:       IssueWarning,
				Severity:   SeverityLow,
				File:       path,
				Line:       i + 1,
				Message:    "debug console output left in code",
				Suggestion: "remove console.log/debug calls before shipping",
			})
		}
		if credentialPattern.MatchString(line) {
			review.Issues = append(review.Issues, CodeIssue{
				Type:       IssueError,
				Severity:   SeverityCritical,
				File:       path,
				Line:       i + 1,
				Message:    "hardcoded credential",
				Suggestion: "load secrets from environment configuration",
			})
		}
	}

	if unhandledAwait.MatchString(content) && !strings.Contains(content, "try") && !strings.Contains(content, ".catch(") {
		review.Issues = append(review.Issues, CodeIssue{
			Type:       IssueWarning,
			Severity:   SeverityMedium,
			File:       path,
			Message:    "await without surrounding error handling",
			Suggestion: "wrap async calls in try/catch or attach .catch",
		})
	}

	review.Recompute()
	return review
}

const fixSystem = `You are a code repair assistant. Return the complete corrected file content. No explanations, no surrounding prose. A markdown code fence around the file is acceptable.`

// FixCode asks the model to repair a file given its review. The
// response is fence-stripped; an empty repair or a failed call keeps
// the original content.
func (r *Reviewer) FixCode(ctx context.Context, path, content string, review CodeReview) (string, error) {
	cfg := r.gw.SelectModel(ai.TaskCoding, ai.ComplexityHigh)
	if cfg == nil {
		return content, fmt.Errorf("reviewer fix: %w", ai.ErrNoProvider)
	}

	var issues strings.Builder
	for _, issue := range review.Issues {
		fmt.Fprintf(&issues, "- [%s/%s] line %d: %s\n", issue.Type, issue.Severity, issue.Line, issue.Message)
	}

	prompt := fmt.Sprintf("Fix the following issues in %s:\n\n%sFile content:\n\n%s", path, issues.String(), content)

	resp, err := r.gw.Call(ctx, cfg, prompt, fixSystem, ai.DefaultMaxRetries)
	if err != nil {
		r.log.Warn("fix model call failed, keeping original content",
			zap.String("file", path), zap.Error(err))
		return content, nil
	}

	fixed := ai.StripCodeFences(resp.Content)
	if strings.TrimSpace(fixed) == "" {
		return content, nil
	}
	return fixed, nil
}

// DesignCompliance is the verdict of a design-system check.
// Compliant is true iff no violation was found.
type DesignCompliance struct {
	Compliant  bool        `json:"compliant"`
	Violations []CodeIssue `json:"violations"`
}

// ValidateDesignCompliance checks generated files against the design
// system with cheap string checks: files styling the UI should use the
// palette's hex values rather than foreign colors.
func (r *Reviewer) ValidateDesignCompliance(files map[string]string, ds DesignSystem) DesignCompliance {
	palette := map[string]bool{}
	for _, hex := range []string{
		ds.Colors.Primary, ds.Colors.Secondary, ds.Colors.Accent,
		ds.Colors.Background, ds.Colors.Surface, ds.Colors.Text,
		ds.Colors.Warning, ds.Colors.Success, ds.Colors.Error,
	} {
		palette[strings.ToLower(hex)] = true
	}

	hexPattern := regexp.MustCompile(`#[0-9a-fA-F]{6}\b`)

	var violations []CodeIssue
	for path, content := range files {
		if !strings.HasSuffix(path, ".css") && !strings.HasSuffix(path, ".tsx") && !strings.HasSuffix(path, ".jsx") {
			continue
		}
		for _, hex := range hexPattern.FindAllString(content, -1) {
			if !palette[strings.ToLower(hex)] {
				violations = append(violations, CodeIssue{
					Type:     IssueInfo,
					Severity: SeverityLow,
					File:     path,
					Message:  fmt.Sprintf("color %s is not part of the design system palette", hex),
				})
			}
		}
	}
	return DesignCompliance{Compliant: len(violations) == 0, Violations: violations}
}
