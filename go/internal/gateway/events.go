package gateway

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dhanucoding/retro-app/go/internal/models"
	"github.com/dhanucoding/retro-app/go/internal/timer"
)

// Event is the wire envelope pushed to connected frontends.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventType identifies an outbound event.
type EventType string

const (
	EventTypeBoardChanged    EventType = "BoardChanged"
	EventTypeTimerChanged    EventType = "TimerChanged"
	EventTypeRevealChanged   EventType = "RevealChanged"
	EventTypePresenceChanged EventType = "PresenceChanged"
	EventTypeSessionChanged  EventType = "SessionChanged"
	EventTypeNotice          EventType = "Notice"
	EventTypeExport          EventType = "Export"
	EventTypeError           EventType = "Error"
)

// BoardPayload carries the full board document.
type BoardPayload struct {
	RetroData models.Board `json:"retroData"`
}

// TimerPayload carries the countdown state.
type TimerPayload struct {
	Phase            string `json:"phase"`
	DurationMinutes  int    `json:"durationMinutes"`
	RemainingSeconds int    `json:"remainingSeconds"`
	Urgency          string `json:"urgency"`
}

// NewTimerPayload projects a timer state onto the wire shape.
func NewTimerPayload(s timer.State) TimerPayload {
	return TimerPayload{
		Phase:            s.Phase.String(),
		DurationMinutes:  s.DurationMinutes,
		RemainingSeconds: s.RemainingSeconds,
		Urgency:          s.Urgency(),
	}
}

// RevealPayload carries the text visibility mode.
type RevealPayload struct {
	HideMode models.RevealMode `json:"hideMode"`
}

// PresencePayload carries the participant count.
type PresencePayload struct {
	Count int `json:"count"`
}

// NoticePayload carries a user-facing message.
type NoticePayload struct {
	Message string `json:"message"`
}

// ExportPayload carries a rendered board summary.
type ExportPayload struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// ErrorPayload reports a rejected command.
type ErrorPayload struct {
	Action  string `json:"action"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// NewEvent wraps a payload in the wire envelope.
func NewEvent(t EventType, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now(),
		Data:      data,
	}, nil
}
