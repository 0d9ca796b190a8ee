package attendance

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"classroll/internal/queue"
)

// Domain event types published on the queue.
const (
	EventSessionStarted     = "session.started"
	EventSessionStopped     = "session.stopped"
	EventSessionExpired     = "session.expired"
	EventAttendanceRecorded = "attendance.recorded"
)

// Event is the payload of every domain event.
type Event struct {
	Type      string    `json:"type"`
	CourseID  string    `json:"course_id"`
	SessionID string    `json:"session_id,omitempty"`
	StudentID string    `json:"student_id,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher is the subset of queue.Queue the core needs.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// DecodeEvent parses a queue message produced by the core.
func DecodeEvent(msg queue.Message) (Event, error) {
	var evt Event
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		return Event{}, err
	}
	if evt.Type == "" {
		evt.Type = msg.Type
	}
	return evt, nil
}

// emit publishes best-effort: a lost event never fails the operation that produced it.
func (s *Service) emit(ctx context.Context, evt Event) {
	if s.events == nil {
		return
	}
	body, err := json.Marshal(evt)
	if err != nil {
		log.Printf("encode event %s failed: %v", evt.Type, err)
		return
	}
	if err := s.events.Publish(ctx, queue.Message{Type: evt.Type, Body: body}); err != nil {
		log.Printf("publish event %s failed: %v", evt.Type, err)
	}
}
