package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControlRunningCheckpointReturnsImmediately(t *testing.T) {
	c := NewControl()
	require.NoError(t, c.Checkpoint(context.Background()))
}

func TestControlAbort(t *testing.T) {
	c := NewControl()
	c.Abort()
	assert.ErrorIs(t, c.Checkpoint(context.Background()), ErrAborted)
}

func TestControlPauseBlocksUntilResume(t *testing.T) {
	c := NewControl()
	c.Pause()
	assert.True(t, c.Paused())

	done := make(chan error, 1)
	go func() { done <- c.Checkpoint(context.Background()) }()

	select {
	case <-done:
		t.Fatal("checkpoint returned while paused")
	case <-time.After(20 * time.Millisecond):
	}

	c.Resume()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("checkpoint did not unblock on resume")
	}
}

func TestControlAbortWhilePaused(t *testing.T) {
	c := NewControl()
	c.Pause()

	done := make(chan error, 1)
	go func() { done <- c.Checkpoint(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	c.Abort()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrAborted)
	case <-time.After(time.Second):
		t.Fatal("checkpoint did not observe abort")
	}
}

func TestControlContextCancellationWhilePaused(t *testing.T) {
	c := NewControl()
	c.Pause()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Checkpoint(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("checkpoint did not observe cancellation")
	}
}

func TestControlResumeWithoutPauseIsNoop(t *testing.T) {
	c := NewControl()
	c.Resume()
	require.NoError(t, c.Checkpoint(context.Background()))
}
