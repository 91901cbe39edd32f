package core

import (
	"log"
	"sync"
	"time"
)

// EventType identifies a lifecycle event on the progress channel.
type EventType string

const (
	EventSessionStart    EventType = "session_start"
	EventStageStart      EventType = "stage_start"
	EventToolUse         EventType = "tool_use"
	EventStageComplete   EventType = "stage_complete"
	EventError           EventType = "error"
	EventSessionComplete EventType = "session_complete"
)

// Event is one progress notification. The payload is enough to render a
// human-readable line without touching pipeline internals.
type Event struct {
	SessionID string    `json:"session_id"`
	Type      EventType `json:"type"`
	Stage     string    `json:"stage,omitempty"`
	Message   string    `json:"message"`
	Summary   string    `json:"summary,omitempty"`
	Time      time.Time `json:"time"`
}

// Listener receives pipeline events. OnEvent must not block; slow consumers
// should buffer on their side.
type Listener interface {
	OnEvent(ev Event)
}

// ListenerFunc adapts a plain function to the Listener interface.
type ListenerFunc func(ev Event)

func (f ListenerFunc) OnEvent(ev Event) { f(ev) }

// Emitter fans pipeline events out to at most one registered listener. When
// none is registered, events go to the fallback diagnostic log so a run is
// never silent.
type Emitter struct {
	mu       sync.Mutex
	listener Listener
	logger   *log.Logger
}

func NewEmitter() *Emitter {
	return &Emitter{logger: log.New(log.Writer(), "[EVENTS] ", log.LstdFlags)}
}

// Register installs the active listener, replacing any previous one. Safe to
// call while a run is emitting.
func (e *Emitter) Register(l Listener) {
	e.mu.Lock()
	e.listener = l
	e.mu.Unlock()
}

func (e *Emitter) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	e.mu.Lock()
	listener := e.listener
	e.mu.Unlock()
	if listener != nil {
		listener.OnEvent(ev)
		return
	}
	if ev.Summary != "" {
		e.logger.Printf("[%s] %s: %s (%s)", ev.SessionID, ev.Type, ev.Message, ev.Summary)
	} else {
		e.logger.Printf("[%s] %s: %s", ev.SessionID, ev.Type, ev.Message)
	}
}

// ChannelListener publishes events onto a buffered channel, dropping on
// overflow rather than blocking the pipeline.
type ChannelListener struct {
	C chan Event
}

func NewChannelListener(buffer int) *ChannelListener {
	if buffer <= 0 {
		buffer = 256
	}
	return &ChannelListener{C: make(chan Event, buffer)}
}

func (l *ChannelListener) OnEvent(ev Event) {
	select {
	case l.C <- ev:
	default:
	}
}

// Close closes the channel; call only after the run has finished.
func (l *ChannelListener) Close() { close(l.C) }
