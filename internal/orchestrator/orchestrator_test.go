package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appforge/internal/ai"
)

// stageCaller dispatches scripted responses by matching substrings of
// the system instruction, so one fake drives the whole pipeline.
type stageCaller struct {
	mu         sync.Mutex
	noProvider bool
	responses  map[string]string // system-prompt substring → response
	calls      []string
}

func (f *stageCaller) SelectModel(task ai.TaskType, complexity ai.Complexity) *ai.ModelConfig {
	if f.noProvider {
		return nil
	}
	return &ai.ModelConfig{Provider: ai.ProviderClaude, ModelName: "test-model", TaskType: task, Complexity: complexity}
}

func (f *stageCaller) Call(ctx context.Context, cfg *ai.ModelConfig, prompt, systemInstruction string, maxRetries int) (*ai.ModelResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, systemInstruction)
	f.mu.Unlock()
	for marker, response := range f.responses {
		if strings.Contains(systemInstruction, marker) {
			return &ai.ModelResponse{Content: response, Provider: cfg.Provider}, nil
		}
	}
	return &ai.ModelResponse{Content: "unscripted response", Provider: cfg.Provider}, nil
}

// happyResponses covers every stage with well-formed output.
func happyResponses() map[string]string {
	return map[string]string{
		"product ideas":      `{"intent": "todo app", "optimized_prompt": "Build a todo app with projects and due dates"}`,
		"product strategist": "## Business Summary\nA focused todo app.\n\n## Target Audience\nBusy professionals.\n\n## Features\n- task lists\n- due dates\n\n## Tech Stack\n- React\n\n## Marketing Strategy\nLaunch on product forums.",
		"database architect": `{"tables": [{"name": "tasks", "description": "user tasks", "columns": [{"name": "id", "type": "uuid"}]}], "migrations": ["CREATE TABLE tasks (id uuid primary key);"]}`,
		"UI designer":        `{"colors": {"primary": "#22c55e"}, "typography": {"font_family": "Inter"}}`,
		"art director":       `[{"description": "logo", "style": "flat", "dimensions": "512x512", "use_case": "logo"}]`,
		"full-stack engineer": `[{"path": "src/App.tsx", "content": "import { useState } from \"react\";\nexport default function App() { const [n] = useState(0); return null; }"},
{"path": "src/index.tsx", "content": "import App from \"./App\";\nexport default App;"}]`,
		"code reviewer":    `{"issues": [], "suggestions": []}`,
		"code analyzer":    `{"errors": [], "warnings": [], "suggestions": []}`,
		"technical writer": "# Todo App\n\nGenerated documentation.",
	}
}

func TestOrchestrateHappyPath(t *testing.T) {
	gw := &stageCaller{responses: happyResponses()}
	o := New(gw)

	result := o.Orchestrate(context.Background(), Request{UserInput: "Build a simple todo app"})

	require.Equal(t, StageSuccess, result.Stage, "events: %v", result.Events)
	assert.Empty(t, result.Err)

	files := result.Tree.Files()
	for _, path := range []string{PathConcept, PathMarketing, PathDesign, PathDatabase, "src/App.tsx", "src/index.tsx", "README.md"} {
		assert.Contains(t, files, path)
	}

	assert.Equal(t, "A focused todo app.", result.Concept.Summary)
	assert.Equal(t, "#22c55e", result.Design.Colors.Primary)
	require.NotNil(t, result.Build)
	assert.True(t, result.Build.Success)
	assert.Contains(t, result.Reviews, "src/App.tsx")
}

func TestOrchestrateNoProviderFailsBeforeArtifacts(t *testing.T) {
	o := New(&stageCaller{noProvider: true})

	result := o.Orchestrate(context.Background(), Request{UserInput: "Build a simple todo app"})

	require.Equal(t, StageFailed, result.Stage)
	assert.Contains(t, result.Err, "no available model provider")

	// No brain/ artifacts may exist after an immediate failure.
	for path := range result.Tree.Files() {
		assert.False(t, strings.HasPrefix(path, "brain/"), "unexpected artifact %s", path)
	}
}

func TestOrchestratePartialArtifactsKeptOnLateFailure(t *testing.T) {
	// Coding stage returns garbage and the repair pass returns garbage
	// too, so the run fails after the planning artifacts are written.
	responses := happyResponses()
	responses["full-stack engineer"] = "I refuse to emit JSON."
	responses["repair assistant"] = "still not JSON"
	gw := &stageCaller{responses: responses}
	o := New(gw)

	result := o.Orchestrate(context.Background(), Request{UserInput: "Build a todo app"})

	require.Equal(t, StageFailed, result.Stage)
	assert.Contains(t, result.Err, "coding")

	files := result.Tree.Files()
	assert.Contains(t, files, PathConcept)
	assert.Contains(t, files, PathMarketing)
	assert.Contains(t, files, PathDesign)
	assert.Contains(t, files, PathDatabase)
}

func TestOrchestrateCodingRepairPass(t *testing.T) {
	responses := happyResponses()
	responses["full-stack engineer"] = "Sure! Here is the app but not as JSON."
	responses["repair assistant"] = `[{"path": "src/App.tsx", "content": "import { useState } from \"react\";\nexport default function App() { const [n] = useState(0); return null; }"}]`
	gw := &stageCaller{responses: responses}
	o := New(gw)

	result := o.Orchestrate(context.Background(), Request{UserInput: "Build a todo app"})

	require.Equal(t, StageSuccess, result.Stage, "events: %v", result.Events)
	_, ok := result.Tree.Read("src/App.tsx")
	assert.True(t, ok)
}

func TestOrchestrateAbort(t *testing.T) {
	gw := &stageCaller{responses: happyResponses()}
	o := New(gw)

	control := NewControl()
	control.Abort()

	result := o.Orchestrate(context.Background(), Request{UserInput: "Build a todo app"}, WithControl(control))
	require.Equal(t, StageFailed, result.Stage)
	assert.Contains(t, result.Err, "aborted")
}

func TestOrchestratePauseResume(t *testing.T) {
	gw := &stageCaller{responses: happyResponses()}
	o := New(gw)

	control := NewControl()
	control.Pause()

	done := make(chan *Result, 1)
	go func() {
		done <- o.Orchestrate(context.Background(), Request{UserInput: "Build a todo app"}, WithControl(control))
	}()

	select {
	case <-done:
		t.Fatal("orchestration finished while paused")
	case <-time.After(50 * time.Millisecond):
	}

	control.Resume()
	select {
	case result := <-done:
		assert.Equal(t, StageSuccess, result.Stage)
	case <-time.After(5 * time.Second):
		t.Fatal("orchestration did not resume")
	}
}

func TestOrchestrateEmptyInput(t *testing.T) {
	o := New(&stageCaller{responses: happyResponses()})
	result := o.Orchestrate(context.Background(), Request{UserInput: "   "})
	require.Equal(t, StageFailed, result.Stage)
}

func TestOrchestrateEventLogIsAppendOnly(t *testing.T) {
	gw := &stageCaller{responses: happyResponses()}
	o := New(gw)

	result := o.Orchestrate(context.Background(), Request{UserInput: "Build a todo app"})
	require.NotEmpty(t, result.Events)

	// Stages must appear in pipeline order.
	order := map[Stage]int{
		StageOptimizing: 1, StageConcept: 2, StageMarketing: 3,
		StageDesigning: 4, StageSchema: 5, StageCoding: 6,
		StageReviewing: 7, StageBuilding: 8, StageSuccess: 9,
	}
	last := 0
	for _, ev := range result.Events {
		if rank, ok := order[ev.Stage]; ok {
			assert.GreaterOrEqual(t, rank, last, "stage %s out of order", ev.Stage)
			if rank > last {
				last = rank
			}
		}
	}
	assert.Equal(t, 9, last)
}
