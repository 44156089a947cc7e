// Package pipeline implements the build-analyze-fix loop over a
// generated file set: static analysis, bounded-concurrency AI
// analysis, metric computation, and a per-file auto-fix retry cycle
// with a content-hash result cache.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"appforge/internal/agents"
	"appforge/internal/ai"
	"appforge/internal/logging"
	"appforge/internal/metrics"
)

const (
	// DefaultMaxRetries bounds the analyze/fix cycles per run.
	DefaultMaxRetries = 3
	// SpeedProfileRetries is the reduced bound under the speed profile.
	SpeedProfileRetries = 2

	aiAnalysisConcurrency = 3
	aiAnalysisMaxChars    = 2000
)

// Fixer repairs one file given its review. *agents.Reviewer satisfies
// it.
type Fixer interface {
	FixCode(ctx context.Context, path, content string, review agents.CodeReview) (string, error)
}

// BuildResult is the outcome of one pipeline run. Fixed reports
// whether auto-fix changed any file; BuildLog carries one summary line
// per attempt.
type BuildResult struct {
	Success       bool               `json:"success"`
	Errors        []agents.CodeIssue `json:"errors"`
	Warnings      []agents.CodeIssue `json:"warnings"`
	Suggestions   []string           `json:"suggestions"`
	Fixed         bool               `json:"fixed"`
	BuildLog      string             `json:"build_log"`
	Metrics       BuildMetrics       `json:"metrics"`
	Attempts      int                `json:"attempts"`
	Files         map[string]string  `json:"-"`
	Optimizations []string           `json:"optimizations,omitempty"`
}

// Pipeline runs the build loop. gw and fixer may be nil: without a
// gateway the AI analysis phase is skipped, without a fixer the loop
// cannot repair and returns after the first failing analysis.
type Pipeline struct {
	gw         agents.ModelCaller
	fixer      Fixer
	cache      *resultCache
	metrics    *metrics.Metrics
	maxRetries int
	log        *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMaxRetries overrides the analyze/fix cycle bound.
func WithMaxRetries(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxRetries = n
		}
	}
}

// WithSpeedProfile reduces the cycle bound for fast iterations.
func WithSpeedProfile() Option {
	return func(p *Pipeline) { p.maxRetries = SpeedProfileRetries }
}

// WithMetrics attaches prometheus counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New creates a pipeline.
func New(gw agents.ModelCaller, fixer Fixer, opts ...Option) *Pipeline {
	p := &Pipeline{
		gw:         gw,
		fixer:      fixer,
		cache:      newResultCache(),
		metrics:    metrics.NewNop(),
		maxRetries: DefaultMaxRetries,
		log:        logging.L().Named("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes up to maxRetries analyze/fix cycles over the file map
// and returns as soon as a cycle finds zero errors. The input map is
// not mutated; fixed content lands in the result's Files.
func (p *Pipeline) Run(ctx context.Context, files map[string]string) (*BuildResult, error) {
	key := HashFiles(files)
	if cached, ok := p.cache.get(key); ok {
		p.metrics.BuildCacheHitsTotal.Inc()
		p.log.Debug("build cache hit", zap.String("key", key))
		return cached, nil
	}
	p.metrics.BuildCacheMissTotal.Inc()

	working := make(map[string]string, len(files))
	for k, v := range files {
		working[k] = v
	}

	result := &BuildResult{Files: working}
	var optimizations []string
	var logLines []string
	seenSuggestions := make(map[string]bool)

	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p.metrics.BuildAttemptsTotal.Inc()
		result.Attempts = attempt

		errs, warns, suggestions := p.analyze(ctx, working)
		result.Errors = errs
		result.Warnings = warns
		result.Metrics = ComputeMetrics(working)
		for _, s := range suggestions {
			if !seenSuggestions[s] {
				seenSuggestions[s] = true
				result.Suggestions = append(result.Suggestions, s)
			}
		}
		logLines = append(logLines, fmt.Sprintf("attempt %d: %d errors, %d warnings", attempt, len(errs), len(warns)))

		if len(errs) == 0 {
			result.Success = true
			break
		}

		p.log.Info("build attempt found errors",
			zap.Int("attempt", attempt), zap.Int("errors", len(errs)))

		if attempt == p.maxRetries || p.fixer == nil {
			break
		}

		fixed := p.autoFix(ctx, working, errs)
		if len(fixed) > 0 {
			result.Fixed = true
			logLines = append(logLines, fmt.Sprintf("attempt %d: auto-fixed %d file(s)", attempt, len(fixed)))
		}
		for path, content := range fixed {
			working[path] = content
			optimizations = append(optimizations, fmt.Sprintf("auto-fixed %s on attempt %d", path, attempt))
		}
	}

	if result.Success {
		logLines = append(logLines, "build succeeded")
	} else {
		logLines = append(logLines, fmt.Sprintf("build failed after %d attempt(s)", result.Attempts))
	}
	result.BuildLog = strings.Join(logLines, "\n")
	result.Optimizations = optimizations
	p.cache.put(key, result)
	return result, nil
}

// analyze runs static analysis over every file, then the AI phase over
// the critical subset, and merges the findings.
func (p *Pipeline) analyze(ctx context.Context, files map[string]string) (errs, warns []agents.CodeIssue, suggestions []string) {
	for path, content := range files {
		e, w := AnalyzeFile(path, content)
		errs = append(errs, e...)
		warns = append(warns, w...)
	}

	aiErrs, aiWarns, aiSuggestions := p.aiAnalyze(ctx, files)
	errs = append(errs, aiErrs...)
	warns = append(warns, aiWarns...)
	return errs, warns, aiSuggestions
}

// IsCriticalFile reports whether the AI analysis phase covers the path.
func IsCriticalFile(path string) bool {
	lower := strings.ToLower(path)
	for _, marker := range []string{"app", "index", "main", "component"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

const aiAnalysisSystem = `You are a code analyzer. Respond with a single JSON object:
{"errors": [{"file": "...", "message": "..."}], "warnings": [{"file": "...", "message": "..."}], "suggestions": ["..."]}
Report only defects you are certain about. Only output valid JSON.`

type aiFinding struct {
	File    string `json:"file"`
	Message string `json:"message"`
}

type aiAnalysisResult struct {
	Errors      []aiFinding `json:"errors"`
	Warnings    []aiFinding `json:"warnings"`
	Suggestions []string    `json:"suggestions"`
}

// aiAnalyze fans the critical files out to the model with a bounded
// worker count. Individual call failures are logged and dropped; the
// static findings stand on their own.
func (p *Pipeline) aiAnalyze(ctx context.Context, files map[string]string) (errs, warns []agents.CodeIssue, suggestions []string) {
	if p.gw == nil {
		return nil, nil, nil
	}
	cfg := p.gw.SelectModel(ai.TaskCoding, ai.ComplexityLow)
	if cfg == nil {
		return nil, nil, nil
	}

	type target struct{ path, content string }
	var targets []target
	for path, content := range files {
		if !IsCriticalFile(path) || strings.TrimSpace(content) == "" {
			continue
		}
		if len(content) > aiAnalysisMaxChars {
			content = content[:aiAnalysisMaxChars]
		}
		targets = append(targets, target{path, content})
	}
	if len(targets) == 0 {
		return nil, nil, nil
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, aiAnalysisConcurrency)

	for _, t := range targets {
		wg.Add(1)
		sem <- struct{}{}
		go func(t target) {
			defer wg.Done()
			defer func() { <-sem }()

			prompt := fmt.Sprintf("Analyze this file for defects.\n\nFile: %s\n\n%s", t.path, t.content)
			resp, err := p.gw.Call(ctx, cfg, prompt, aiAnalysisSystem, ai.DefaultMaxRetries)
			if err != nil {
				p.log.Warn("ai analysis call failed", zap.String("file", t.path), zap.Error(err))
				return
			}

			parsed := ai.ParseJSONFromText(resp.Content, nil, aiAnalysisResult{})

			mu.Lock()
			defer mu.Unlock()
			for _, f := range parsed.Errors {
				errs = append(errs, agents.CodeIssue{
					Type: agents.IssueError, Severity: agents.SeverityHigh,
					File: fileOr(f.File, t.path), Message: f.Message,
				})
			}
			for _, f := range parsed.Warnings {
				warns = append(warns, agents.CodeIssue{
					Type: agents.IssueWarning, Severity: agents.SeverityLow,
					File: fileOr(f.File, t.path), Message: f.Message,
				})
			}
			suggestions = append(suggestions, parsed.Suggestions...)
		}(t)
	}
	wg.Wait()

	return errs, warns, suggestions
}

func fileOr(file, fallback string) string {
	if file == "" {
		return fallback
	}
	return file
}

// autoFix groups the errors by file and runs the fixer once per
// affected file, returning the repaired contents.
func (p *Pipeline) autoFix(ctx context.Context, files map[string]string, errs []agents.CodeIssue) map[string]string {
	byFile := map[string][]agents.CodeIssue{}
	for _, e := range errs {
		byFile[e.File] = append(byFile[e.File], e)
	}

	fixed := make(map[string]string)
	for path, issues := range byFile {
		content, ok := files[path]
		if !ok {
			continue
		}
		review := agents.CodeReview{Issues: issues}
		review.Recompute()

		repaired, err := p.fixer.FixCode(ctx, path, content, review)
		if err != nil {
			p.log.Warn("auto-fix failed", zap.String("file", path), zap.Error(err))
			continue
		}
		if repaired != content {
			fixed[path] = repaired
		}
	}
	return fixed
}

// ParseGeneratedFiles decodes a coding-stage response: a JSON array of
// {path, content} objects, tolerating surrounding prose and fences.
func ParseGeneratedFiles(text string) (map[string]string, error) {
	raw, ok := ai.ExtractJSONArray(ai.StripCodeFences(text))
	if !ok {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var entries []struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("parse generated files: %w", err)
	}

	files := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.Path == "" {
			continue
		}
		files[e.Path] = e.Content
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("response contained no files")
	}
	return files, nil
}
