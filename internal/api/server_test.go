package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appforge/internal/ai"
	"appforge/internal/orchestrator"
)

// scriptedClient implements ai.ModelClient, answering by system-prompt
// markers so one client drives the whole pipeline.
type scriptedClient struct {
	responses map[string]string
}

func (f *scriptedClient) Provider() ai.Provider { return ai.ProviderClaude }

func (f *scriptedClient) Supports(task ai.TaskType, complexity ai.Complexity) bool { return true }

func (f *scriptedClient) DefaultModel(task ai.TaskType, complexity ai.Complexity) string {
	return "test-model"
}

func (f *scriptedClient) Usage() *ai.ProviderUsage {
	return &ai.ProviderUsage{Provider: ai.ProviderClaude}
}

func (f *scriptedClient) Call(ctx context.Context, model, prompt, systemInstruction string) (*ai.ModelResponse, error) {
	for marker, response := range f.responses {
		if strings.Contains(systemInstruction, marker) {
			return &ai.ModelResponse{Content: response, Provider: ai.ProviderClaude}, nil
		}
	}
	return &ai.ModelResponse{Content: "{}", Provider: ai.ProviderClaude}, nil
}

func pipelineResponses() map[string]string {
	return map[string]string{
		"product ideas":      `{"intent": "todo app", "optimized_prompt": "Build a todo app"}`,
		"product strategist": "## Business Summary\nA todo app.\n\n## Features\n- tasks",
		"database architect": `{"tables": [{"name": "tasks", "description": "tasks"}], "migrations": ["CREATE TABLE tasks (id uuid primary key);"]}`,
		"UI designer":        `{"colors": {"primary": "#123456"}, "typography": {"font_family": "Inter"}}`,
		"full-stack engineer": `[{"path": "src/App.tsx", "content": "import { useState } from \"react\";\nexport default function App() { return null; }"}]`,
		"code reviewer":      `{"issues": [], "suggestions": []}`,
		"code analyzer":      `{"errors": [], "warnings": [], "suggestions": []}`,
		"technical writer":   "# Docs",
	}
}

func newTestServer(t *testing.T, clients ...ai.ModelClient) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gw := ai.NewGateway(clients)
	srv := NewServer(gw, orchestrator.New(gw), nil, nil)

	router := gin.New()
	router.GET("/health", srv.Health)
	srv.Register(router)
	return srv, router
}

func post(router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestOrchestrateRejectsMissingInput(t *testing.T) {
	_, router := newTestServer(t, &scriptedClient{})
	w := post(router, "/api/orchestrate", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrchestrateWithoutProviders(t *testing.T) {
	_, router := newTestServer(t)
	w := post(router, "/api/orchestrate", map[string]string{"user_input": "Build a todo app"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "no model provider")
}

func TestOrchestrateRunLifecycle(t *testing.T) {
	_, router := newTestServer(t, &scriptedClient{responses: pipelineResponses()})

	w := post(router, "/api/orchestrate", map[string]string{"user_input": "Build a todo app"})
	require.Equal(t, http.StatusAccepted, w.Code)

	var accepted struct {
		RunID string `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.RunID)

	deadline := time.Now().Add(10 * time.Second)
	for {
		w = httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs/"+accepted.RunID, nil))
		require.Equal(t, http.StatusOK, w.Code)

		var status struct {
			Status string             `json:"status"`
			Stage  orchestrator.Stage `json:"stage"`
			Files  []string           `json:"files"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
		if status.Status == "finished" {
			assert.Equal(t, orchestrator.StageSuccess, status.Stage)
			assert.Contains(t, status.Files, "src/App.tsx")
			assert.Contains(t, status.Files, orchestrator.PathConcept)
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("run never finished")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestRunControlsUnknownRun(t *testing.T) {
	_, router := newTestServer(t, &scriptedClient{})
	for _, path := range []string{
		"/api/runs/nope/pause",
		"/api/runs/nope/resume",
		"/api/runs/nope/abort",
	} {
		w := post(router, path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestSearchKnowledgeWithoutStore(t *testing.T) {
	_, router := newTestServer(t, &scriptedClient{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/projects/p1/knowledge?q=todo", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestEvictStaleDropsExpiredFinishedRuns(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedClient{})
	base := time.Now()
	srv.now = func() time.Time { return base }

	srv.runs["expired"] = &activeRun{done: true, finishedAt: base.Add(-finishedRunTTL - time.Minute)}
	srv.runs["fresh"] = &activeRun{done: true, finishedAt: base.Add(-time.Minute)}
	srv.runs["running"] = &activeRun{control: orchestrator.NewControl(), startedAt: base.Add(-2 * time.Hour)}

	srv.mu.Lock()
	srv.evictStale()
	srv.mu.Unlock()

	assert.NotContains(t, srv.runs, "expired")
	assert.Contains(t, srv.runs, "fresh")
	// Long-running entries are never evicted, only finished ones.
	assert.Contains(t, srv.runs, "running")
}

func TestEvictStaleCapsFinishedRuns(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedClient{})
	base := time.Now()
	srv.now = func() time.Time { return base }

	for i := 0; i < maxRuns; i++ {
		srv.runs[fmt.Sprintf("run-%03d", i)] = &activeRun{
			done:       true,
			finishedAt: base.Add(time.Duration(i) * time.Second),
		}
	}

	srv.mu.Lock()
	srv.evictStale()
	srv.mu.Unlock()

	assert.Len(t, srv.runs, maxRuns-1)
	assert.NotContains(t, srv.runs, "run-000")
	assert.Contains(t, srv.runs, fmt.Sprintf("run-%03d", maxRuns-1))
}
