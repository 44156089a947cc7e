package stream

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appforge/internal/orchestrator"
)

func newTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws/:projectId", hub.Handler)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, projectID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + projectID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForSubscribers(t *testing.T, hub *Hub, projectID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers(projectID) != want {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber count never reached %d", want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubDeliversEventsToSubscriber(t *testing.T) {
	hub := NewHub()
	srv := newTestServer(t, hub)
	conn := dial(t, srv, "proj-1")
	waitForSubscribers(t, hub, "proj-1", 1)

	sink := hub.ProjectSink("proj-1")
	sink.Publish(orchestrator.Event{
		Stage:   orchestrator.StageOptimizing,
		Source:  "optimizer",
		Level:   orchestrator.LevelInfo,
		Message: "analyzing request",
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev orchestrator.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, orchestrator.StageOptimizing, ev.Stage)
	assert.Equal(t, "analyzing request", ev.Message)
}

func TestHubIsolatesProjects(t *testing.T) {
	hub := NewHub()
	srv := newTestServer(t, hub)
	conn := dial(t, srv, "proj-a")
	waitForSubscribers(t, hub, "proj-a", 1)

	hub.ProjectSink("proj-b").Publish(orchestrator.Event{Message: "other project"})
	hub.ProjectSink("proj-a").Publish(orchestrator.Event{Message: "mine"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev orchestrator.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "mine", ev.Message)
}

func TestHubRemovesDisconnectedSubscriber(t *testing.T) {
	hub := NewHub()
	srv := newTestServer(t, hub)
	conn := dial(t, srv, "proj-1")
	waitForSubscribers(t, hub, "proj-1", 1)

	conn.Close()
	waitForSubscribers(t, hub, "proj-1", 0)

	// Publishing into an empty room must not panic.
	hub.ProjectSink("proj-1").Publish(orchestrator.Event{Message: "nobody listening"})
}
