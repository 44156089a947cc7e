// Package api exposes the orchestration pipeline over HTTP: start a
// run, control a running pipeline, query the knowledge store, and
// inspect provider usage.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"appforge/internal/ai"
	"appforge/internal/brain"
	"appforge/internal/logging"
	"appforge/internal/orchestrator"
	"appforge/internal/stream"
)

const (
	// runTimeout bounds one orchestration end to end; individual model
	// calls have no per-call deadline beyond the retry bound.
	runTimeout = 30 * time.Minute
	// finishedRunTTL is how long a finished run's result stays
	// queryable before the table drops it.
	finishedRunTTL = 30 * time.Minute
	maxRuns        = 200
)

// Server holds the API dependencies and the table of active runs.
type Server struct {
	gateway *ai.Gateway
	orch    *orchestrator.Orchestrator
	store   *brain.Store
	hub     *stream.Hub
	log     *zap.Logger
	now     func() time.Time

	mu   sync.RWMutex
	runs map[string]*activeRun
}

type activeRun struct {
	projectID string
	control   *orchestrator.Control
	startedAt time.Time

	done       bool
	finishedAt time.Time
	result     *orchestrator.Result
}

// NewServer creates the API server. store and hub may be nil.
func NewServer(gateway *ai.Gateway, orch *orchestrator.Orchestrator, store *brain.Store, hub *stream.Hub) *Server {
	return &Server{
		gateway: gateway,
		orch:    orch,
		store:   store,
		hub:     hub,
		log:     logging.L().Named("api"),
		now:     time.Now,
		runs:    make(map[string]*activeRun),
	}
}

// evictStale drops finished runs past their TTL and, while the table
// is still at capacity, the oldest finished runs. Running entries are
// never evicted. Callers must hold mu.
func (s *Server) evictStale() {
	now := s.now()
	for id, run := range s.runs {
		if run.done && now.Sub(run.finishedAt) > finishedRunTTL {
			delete(s.runs, id)
		}
	}
	for len(s.runs) >= maxRuns {
		oldestID := ""
		var oldest time.Time
		for id, run := range s.runs {
			if !run.done {
				continue
			}
			if oldestID == "" || run.finishedAt.Before(oldest) {
				oldestID, oldest = id, run.finishedAt
			}
		}
		if oldestID == "" {
			break
		}
		delete(s.runs, oldestID)
	}
}

// Register mounts all routes on the router group.
func (s *Server) Register(r gin.IRouter) {
	r.POST("/api/orchestrate", s.Orchestrate)
	r.GET("/api/runs/:runId", s.GetRun)
	r.POST("/api/runs/:runId/pause", s.PauseRun)
	r.POST("/api/runs/:runId/resume", s.ResumeRun)
	r.POST("/api/runs/:runId/abort", s.AbortRun)
	r.GET("/api/projects/:projectId/knowledge", s.SearchKnowledge)
	r.GET("/api/usage", s.Usage)
}

// Health reports readiness and whether any model provider is
// configured.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"providers": s.gateway.HasProviders(),
	})
}

type orchestrateRequest struct {
	ProjectID        string   `json:"project_id"`
	OwnerID          string   `json:"owner_id"`
	UserInput        string   `json:"user_input" binding:"required"`
	InterviewAnswers []string `json:"interview_answers"`
}

// Orchestrate starts a pipeline run asynchronously and returns its run
// id. Progress streams over the project's websocket room; the final
// result is available under /api/runs/:runId.
func (s *Server) Orchestrate(c *gin.Context) {
	var req orchestrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !s.gateway.HasProviders() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "no model provider configured, set at least one API key",
		})
		return
	}

	runID := uuid.New().String()
	run := &activeRun{
		projectID: req.ProjectID,
		control:   orchestrator.NewControl(),
		startedAt: time.Now(),
	}
	s.mu.Lock()
	s.evictStale()
	s.runs[runID] = run
	s.mu.Unlock()

	go s.execute(runID, run, req)

	c.JSON(http.StatusAccepted, gin.H{
		"run_id":     runID,
		"project_id": req.ProjectID,
	})
}

func (s *Server) execute(runID string, run *activeRun, req orchestrateRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	opts := []orchestrator.RunOption{orchestrator.WithControl(run.control)}
	if s.hub != nil && req.ProjectID != "" {
		opts = append(opts, orchestrator.WithEventSink(s.hub.ProjectSink(req.ProjectID)))
	}

	result := s.orch.Orchestrate(ctx, orchestrator.Request{
		ProjectID:        req.ProjectID,
		OwnerID:          req.OwnerID,
		UserInput:        req.UserInput,
		InterviewAnswers: req.InterviewAnswers,
	}, opts...)

	s.mu.Lock()
	run.done = true
	run.finishedAt = s.now()
	run.result = result
	s.mu.Unlock()

	s.log.Info("run finished",
		zap.String("run_id", runID),
		zap.String("stage", string(result.Stage)),
		zap.Duration("took", time.Since(run.startedAt)),
	)
}

func (s *Server) lookup(c *gin.Context) (*activeRun, bool) {
	s.mu.RLock()
	run, ok := s.runs[c.Param("runId")]
	s.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
	}
	return run, ok
}

// GetRun reports a run's state and, once finished, its full result.
func (s *Server) GetRun(c *gin.Context) {
	run, ok := s.lookup(c)
	if !ok {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !run.done {
		c.JSON(http.StatusOK, gin.H{
			"status":     "running",
			"paused":     run.control.Paused(),
			"started_at": run.startedAt,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "finished",
		"stage":   run.result.Stage,
		"error":   run.result.Err,
		"files":   run.result.Tree.Paths(),
		"events":  run.result.Events,
		"reviews": run.result.Reviews,
		"build":   run.result.Build,
	})
}

// PauseRun suspends a run at its next stage boundary.
func (s *Server) PauseRun(c *gin.Context) {
	run, ok := s.lookup(c)
	if !ok {
		return
	}
	run.control.Pause()
	c.JSON(http.StatusOK, gin.H{"status": "pausing"})
}

// ResumeRun releases a paused run.
func (s *Server) ResumeRun(c *gin.Context) {
	run, ok := s.lookup(c)
	if !ok {
		return
	}
	run.control.Resume()
	c.JSON(http.StatusOK, gin.H{"status": "resumed"})
}

// AbortRun terminates a run at its next stage boundary. Artifacts
// already written stay available on the result.
func (s *Server) AbortRun(c *gin.Context) {
	run, ok := s.lookup(c)
	if !ok {
		return
	}
	run.control.Abort()
	c.JSON(http.StatusOK, gin.H{"status": "aborting"})
}

// SearchKnowledge queries a project's knowledge store.
func (s *Server) SearchKnowledge(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "knowledge store not configured"})
		return
	}
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q is required"})
		return
	}

	entries, err := s.store.Search(c.Request.Context(), c.Param("projectId"), query, brain.DefaultSearchLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// Usage reports per-provider token and call counts.
func (s *Server) Usage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": s.gateway.Usage()})
}
