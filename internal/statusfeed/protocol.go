package statusfeed

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gamepause/internal/process"
)

// Event types pushed to feed clients.
const (
	EventStatus  = "status"
	EventWarning = "warning"
	EventTrigger = "trigger"
	EventError   = "error"
)

// Client request actions.
const (
	snapshotAction = "snapshot"
)

// newEventID is replaced in tests for deterministic ids.
var newEventID = uuid.NewString

// Event is one JSON text frame on the feed. Exactly one of Status, Message
// or Action is meaningful, selected by Type.
type Event struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	At      time.Time       `json:"at"`
	Status  *process.Status `json:"status,omitempty"`
	Message string          `json:"message,omitempty"`
	Action  string          `json:"action,omitempty"`
	// Correlation carries the id of the trigger or request that caused the
	// event, when there is one.
	Correlation string `json:"correlation,omitempty"`
}

// requestMsg is the JSON payload clients may send.
type requestMsg struct {
	Action string `json:"action"`
}

// StatusEvent wraps a target observation.
func StatusEvent(st process.Status) Event {
	return Event{Type: EventStatus, ID: newEventID(), At: st.CheckedAt, Status: &st}
}

// WarningEvent wraps a user-facing warning line.
func WarningEvent(message string, at time.Time) Event {
	return Event{Type: EventWarning, ID: newEventID(), At: at, Message: message}
}

// TriggerEvent reports that an action was requested, by hotkey or command.
func TriggerEvent(action, correlation string, at time.Time) Event {
	return Event{Type: EventTrigger, ID: newEventID(), At: at, Action: action, Correlation: correlation}
}

func errorEvent(message string) Event {
	return Event{Type: EventError, ID: newEventID(), At: time.Now(), Message: message}
}

// EncodeEvent validates and serializes an event.
func EncodeEvent(evt Event) ([]byte, error) {
	if err := validateEvent(evt); err != nil {
		return nil, err
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("statusfeed: encode %s event: %w", evt.Type, err)
	}
	return data, nil
}

// DecodeEvent parses a frame produced by EncodeEvent.
func DecodeEvent(data []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return Event{}, fmt.Errorf("statusfeed: decode event: %w", err)
	}
	if err := validateEvent(evt); err != nil {
		return Event{}, err
	}
	return evt, nil
}

func validateEvent(evt Event) error {
	if evt.ID == "" {
		return errors.New("statusfeed: event id is empty")
	}
	switch evt.Type {
	case EventStatus:
		if evt.Status == nil || evt.Status.Target == "" {
			return errors.New("statusfeed: status event without target")
		}
	case EventWarning, EventError:
		if evt.Message == "" {
			return fmt.Errorf("statusfeed: %s event without message", evt.Type)
		}
	case EventTrigger:
		if evt.Action == "" {
			return errors.New("statusfeed: trigger event without action")
		}
	default:
		return fmt.Errorf("statusfeed: unknown event type %q", evt.Type)
	}
	return nil
}
