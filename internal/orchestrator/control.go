package orchestrator

import (
	"context"
	"errors"
	"sync"
)

// ErrAborted is returned by Checkpoint when the run was aborted.
var ErrAborted = errors.New("orchestration aborted")

// Control is the cooperative pause/resume/abort token for one
// orchestration. The orchestrator calls Checkpoint between stages:
// it returns immediately when running, blocks while paused, and
// returns ErrAborted after Abort. Pause and Abort are safe to call
// from any goroutine.
type Control struct {
	mu      sync.Mutex
	paused  bool
	aborted bool
	resume  chan struct{}
}

// NewControl creates a running control token.
func NewControl() *Control {
	return &Control{}
}

// Pause suspends the orchestration at the next checkpoint.
func (c *Control) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused || c.aborted {
		return
	}
	c.paused = true
	c.resume = make(chan struct{})
}

// Resume releases a paused orchestration.
func (c *Control) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	close(c.resume)
	c.resume = nil
}

// Abort terminates the orchestration at the next checkpoint. A paused
// run is released first so the checkpoint can observe the abort.
func (c *Control) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aborted = true
	if c.paused {
		c.paused = false
		close(c.resume)
		c.resume = nil
	}
}

// Checkpoint blocks while paused and reports abort or context
// cancellation. Stages between checkpoints run to completion; this is
// cooperative, not preemptive.
func (c *Control) Checkpoint(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.aborted {
			c.mu.Unlock()
			return ErrAborted
		}
		if !c.paused {
			c.mu.Unlock()
			return nil
		}
		resume := c.resume
		c.mu.Unlock()

		select {
		case <-resume:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Paused reports whether the token currently requests a pause.
func (c *Control) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}
