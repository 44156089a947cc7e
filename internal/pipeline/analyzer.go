package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"appforge/internal/agents"
)

// anyParamThreshold is how many `any`-typed annotations a file may
// carry before the overuse warning fires.
const anyParamThreshold = 5

var (
	reactHookPattern  = regexp.MustCompile(`\buse(State|Effect|Memo|Callback|Ref|Context|Reducer)\s*\(`)
	reactImport       = regexp.MustCompile(`import\s+.*\bfrom\s+['"]react['"]`)
	iconUsagePattern  = regexp.MustCompile(`<([A-Z][A-Za-z0-9]*Icon)\b`)
	anyTypePattern    = regexp.MustCompile(`:\s*any\b`)
	effectNoDeps      = regexp.MustCompile(`useEffect\s*\(\s*(?:\(\)|async \(\)|function)`)
	effectDepsPattern = regexp.MustCompile(`useEffect\s*\([\s\S]*?\}\s*,\s*\[`)
	unsafeHTMLPattern = regexp.MustCompile(`dangerouslySetInnerHTML|\.innerHTML\s*=|document\.write\s*\(`)
)

// AnalyzeFile runs the static checks over a single source file and
// returns the error and warning findings.
func AnalyzeFile(path, content string) (errors, warnings []agents.CodeIssue) {
	if strings.TrimSpace(content) == "" {
		warnings = append(warnings, issue(agents.IssueWarning, agents.SeverityLow, path,
			"empty file", "delete the file or add its implementation"))
		return errors, warnings
	}

	if opens, closes := strings.Count(content, "{"), strings.Count(content, "}"); opens != closes {
		errors = append(errors, issue(agents.IssueError, agents.SeverityHigh, path,
			fmt.Sprintf("unequal braces: %d opening vs %d closing", opens, closes),
			"balance the braces"))
	}
	if opens, closes := strings.Count(content, "("), strings.Count(content, ")"); opens != closes {
		errors = append(errors, issue(agents.IssueError, agents.SeverityHigh, path,
			fmt.Sprintf("unequal parentheses: %d opening vs %d closing", opens, closes),
			"balance the parentheses"))
	}

	if reactHookPattern.MatchString(content) && !reactImport.MatchString(content) {
		errors = append(errors, issue(agents.IssueError, agents.SeverityHigh, path,
			"react hooks used without a react import",
			`add: import { useState, useEffect } from "react"`))
	}

	for _, name := range dedupe(iconUsagePattern.FindAllStringSubmatch(content, -1)) {
		if !importedIdent(content, name) {
			warnings = append(warnings, issue(agents.IssueWarning, agents.SeverityMedium, path,
				fmt.Sprintf("icon component %s used without an import", name),
				"import the icon from the icon library"))
		}
	}

	if n := len(anyTypePattern.FindAllString(content, -1)); n > anyParamThreshold {
		warnings = append(warnings, issue(agents.IssueWarning, agents.SeverityLow, path,
			fmt.Sprintf("%d `any` type annotations", n),
			"replace `any` with concrete types"))
	}

	if effectNoDeps.MatchString(content) && !effectDepsPattern.MatchString(content) {
		warnings = append(warnings, issue(agents.IssueWarning, agents.SeverityMedium, path,
			"useEffect without a dependency array",
			"add a dependency array to avoid re-running on every render"))
	}

	if unsafeHTMLPattern.MatchString(content) {
		warnings = append(warnings, issue(agents.IssueWarning, agents.SeverityHigh, path,
			"unsafe HTML injection API",
			"sanitize the markup or render through the framework"))
	}

	return errors, warnings
}

func issue(t agents.IssueType, sev agents.IssueSeverity, file, message, suggestion string) agents.CodeIssue {
	return agents.CodeIssue{Type: t, Severity: sev, File: file, Message: message, Suggestion: suggestion}
}

// importedIdent reports whether any import line mentions the
// identifier.
func importedIdent(content, ident string) bool {
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "import") && strings.Contains(line, ident) {
			return true
		}
	}
	return false
}

// dedupe collapses submatch results to unique first-group values.
func dedupe(matches [][]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range matches {
		if len(m) > 1 && !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// securityPattern flags files counted into the securityIssues metric.
var securityPattern = regexp.MustCompile(`\beval\s*\(|dangerouslySetInnerHTML|\.innerHTML\s*=`)

var (
	declTokens        = regexp.MustCompile(`\bfunction\b|\bconst\b|=>`)
	conditionalTokens = regexp.MustCompile(`\bif\b|\bswitch\b|\bcase\b|\?\s*[^.:]`)
	loopTokens        = regexp.MustCompile(`\bfor\b|\bwhile\b|\.map\s*\(|\.forEach\s*\(`)
)

// BuildMetrics summarizes the analyzed file set.
type BuildMetrics struct {
	TotalFiles     int     `json:"total_files"`
	TotalLines     int     `json:"total_lines"`
	Complexity     float64 `json:"complexity"`
	CodeQuality    string  `json:"code_quality"`
	SecurityIssues int     `json:"security_issues"`
}

// ComputeMetrics derives the file and line counts, the weighted
// complexity average, its quality bucket, and the security-issue file
// count.
func ComputeMetrics(files map[string]string) BuildMetrics {
	if len(files) == 0 {
		return BuildMetrics{CodeQuality: "excellent"}
	}

	total := 0
	lines := 0
	security := 0
	for _, content := range files {
		lines += strings.Count(content, "\n") + 1
		total += len(declTokens.FindAllString(content, -1))
		total += 2 * len(conditionalTokens.FindAllString(content, -1))
		total += 2 * len(loopTokens.FindAllString(content, -1))
		if securityPattern.MatchString(content) {
			security++
		}
	}

	avg := float64(total) / float64(len(files))

	quality := "excellent"
	switch {
	case avg > 50:
		quality = "poor"
	case avg > 30:
		quality = "fair"
	case avg > 15:
		quality = "good"
	}

	return BuildMetrics{
		TotalFiles:     len(files),
		TotalLines:     lines,
		Complexity:     avg,
		CodeQuality:    quality,
		SecurityIssues: security,
	}
}
