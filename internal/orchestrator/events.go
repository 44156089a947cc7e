package orchestrator

import (
	"sync"
	"time"
)

// Stage is one orchestration state.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageOptimizing Stage = "optimizing"
	StageConcept    Stage = "planning_concept"
	StageMarketing  Stage = "planning_marketing"
	StageDesigning  Stage = "designing"
	StageSchema     Stage = "planning_schema"
	StageCoding     Stage = "coding"
	StageReviewing  Stage = "reviewing"
	StageBuilding   Stage = "building"
	StageSuccess    Stage = "success"
	StageFailed     Stage = "failed"
)

// EventLevel grades a pipeline log line.
type EventLevel string

const (
	LevelInfo     EventLevel = "info"
	LevelSuccess  EventLevel = "success"
	LevelWarning  EventLevel = "warning"
	LevelError    EventLevel = "error"
	LevelCritical EventLevel = "critical"
)

// Event is one append-only pipeline log entry, tagged with its source
// agent and stage.
type Event struct {
	Time    time.Time  `json:"time"`
	Stage   Stage      `json:"stage"`
	Source  string     `json:"source"`
	Level   EventLevel `json:"level"`
	Message string     `json:"message"`
}

// EventSink receives events as they happen. Implementations must not
// block; the websocket hub buffers internally.
type EventSink interface {
	Publish(Event)
}

// eventLog is the append-only in-memory log, optionally mirrored to a
// sink for live streaming.
type eventLog struct {
	mu     sync.Mutex
	events []Event
	sink   EventSink
}

func (l *eventLog) append(stage Stage, source string, level EventLevel, message string) {
	ev := Event{Time: time.Now(), Stage: stage, Source: source, Level: level, Message: message}
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
	if l.sink != nil {
		l.sink.Publish(ev)
	}
}

func (l *eventLog) snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}
