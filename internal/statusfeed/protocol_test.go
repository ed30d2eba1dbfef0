package statusfeed

import (
	"strings"
	"testing"
	"time"

	"gamepause/internal/process"
)

func TestEventIDs(t *testing.T) {
	orig := newEventID
	t.Cleanup(func() { newEventID = orig })
	newEventID = func() string { return "fixed-id" }

	evt := WarningEvent("x", time.Now())
	if evt.ID != "fixed-id" {
		t.Fatalf("ID = %q, want fixed-id", evt.ID)
	}
}

func TestEventIDsAreUnique(t *testing.T) {
	a := TriggerEvent("pause", "", time.Now())
	b := TriggerEvent("pause", "", time.Now())
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("ids %q and %q should be distinct and non-empty", a.ID, b.ID)
	}
}

func TestStatusEventCopiesStatus(t *testing.T) {
	st := process.Status{Target: "game.exe", State: process.StateRunning}
	evt := StatusEvent(st)
	st.State = process.StateSuspended
	if evt.Status.State != process.StateRunning {
		t.Fatal("StatusEvent must not alias the caller's value")
	}
}

func TestEncodeEventValidation(t *testing.T) {
	tests := []struct {
		name    string
		evt     Event
		wantErr string
	}{
		{name: "missing id", evt: Event{Type: EventWarning, Message: "m"}, wantErr: "id is empty"},
		{name: "status without target", evt: Event{Type: EventStatus, ID: "1", Status: &process.Status{}}, wantErr: "without target"},
		{name: "status nil", evt: Event{Type: EventStatus, ID: "1"}, wantErr: "without target"},
		{name: "warning without message", evt: Event{Type: EventWarning, ID: "1"}, wantErr: "without message"},
		{name: "trigger without action", evt: Event{Type: EventTrigger, ID: "1"}, wantErr: "without action"},
		{name: "unknown type", evt: Event{Type: "bogus", ID: "1"}, wantErr: "unknown event type"},
		{name: "valid trigger", evt: Event{Type: EventTrigger, ID: "1", Action: "toggle"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeEvent(tt.evt)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("EncodeEvent() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("EncodeEvent() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestStatusEventWireShape(t *testing.T) {
	st := process.Status{
		Target:    "game.exe",
		State:     process.StateSuspended,
		Path:      `C:\Games\game.exe`,
		CheckedAt: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
	}
	data, err := EncodeEvent(StatusEvent(st))
	if err != nil {
		t.Fatalf("EncodeEvent() error = %v", err)
	}
	for _, want := range []string{`"type":"status"`, `"state":"suspended"`, `"target":"game.exe"`, `"checked_at":"2026-03-04T05:06:07Z"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("frame %s missing %s", data, want)
		}
	}
	if strings.Contains(string(data), `"message"`) {
		t.Errorf("frame %s should omit empty message", data)
	}
}

func TestDecodeEventRejectsGarbage(t *testing.T) {
	if _, err := DecodeEvent([]byte("{")); err == nil {
		t.Fatal("DecodeEvent should fail on truncated JSON")
	}
	if _, err := DecodeEvent([]byte(`{"type":"status","id":"1"}`)); err == nil {
		t.Fatal("DecodeEvent should reject status without payload")
	}
}
