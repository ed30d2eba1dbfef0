// Package sessionlog tees warning-level slog records into a bounded ring of
// user-facing entries, shown by the status command and pushed on the status
// feed.
package sessionlog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"time"
)

// Entry is one captured log record.
type Entry struct {
	Time    time.Time  `json:"time"`
	Level   slog.Level `json:"level"`
	Message string     `json:"message"`
	// Group is the dot-separated slog group the record was logged under.
	Group string `json:"group,omitempty"`
	// Detail renders the record's attributes as space-separated key=value
	// pairs.
	Detail string `json:"detail,omitempty"`
}

// Text renders the entry for display: the message without its bracketed
// component tag, followed by the detail.
func (e Entry) Text() string {
	msg := stripTag(e.Message)
	if e.Detail == "" {
		return msg
	}
	return msg + " (" + e.Detail + ")"
}

// stripTag removes a leading "[component] " tag.
func stripTag(msg string) string {
	if !strings.HasPrefix(msg, "[") {
		return msg
	}
	end := strings.Index(msg, "] ")
	if end < 0 {
		return msg
	}
	return msg[end+2:]
}

// EntryCallback is invoked for each record at or above the capture threshold.
type EntryCallback func(Entry)

// TeeHandler wraps a base [slog.Handler] and tees records at or above minLevel
// to a callback. All records are forwarded to the base handler regardless of
// level; only the callback invocation is gated by minLevel.
type TeeHandler struct {
	base     slog.Handler
	callback EntryCallback
	minLevel slog.Level
	group    string
	attrs    []slog.Attr
}

// NewTeeHandler creates a TeeHandler that delegates to base and invokes callback
// for every record whose level is >= minLevel. A nil callback only delegates.
func NewTeeHandler(base slog.Handler, minLevel slog.Level, callback EntryCallback) *TeeHandler {
	return &TeeHandler{
		base:     base,
		callback: callback,
		minLevel: minLevel,
	}
}

// Enabled reports whether the base handler is enabled for the given level.
func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

// Handle forwards the record to the base handler, then invokes the callback
// if the record's level meets minLevel. The callback runs even when the base
// handler fails; the base error is returned.
func (h *TeeHandler) Handle(ctx context.Context, record slog.Record) error {
	err := h.base.Handle(ctx, record)

	if h.callback != nil && record.Level >= h.minLevel {
		entry := Entry{
			Time:    record.Time,
			Level:   record.Level,
			Message: record.Message,
			Group:   h.group,
			Detail:  h.renderAttrs(record),
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					// Written to stderr, not slog, to avoid re-entering this handler.
					fmt.Fprintf(os.Stderr, "[session-log] callback panicked: %v\n%s\n", r, debug.Stack())
				}
			}()
			h.callback(entry)
		}()
	}

	return err
}

func (h *TeeHandler) renderAttrs(record slog.Record) string {
	var parts []string
	appendAttr := func(a slog.Attr) bool {
		if a.Equal(slog.Attr{}) {
			return true
		}
		parts = append(parts, a.Key+"="+a.Value.Resolve().String())
		return true
	}
	for _, a := range h.attrs {
		appendAttr(a)
	}
	record.Attrs(appendAttr)
	return strings.Join(parts, " ")
}

// WithAttrs returns a new TeeHandler whose base handler has the given
// attributes applied. The attributes also appear in captured entries.
func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return &TeeHandler{
		base:     h.base.WithAttrs(attrs),
		callback: h.callback,
		minLevel: h.minLevel,
		group:    h.group,
		attrs:    append(append([]slog.Attr(nil), h.attrs...), attrs...),
	}
}

// WithGroup returns a new TeeHandler whose base handler is wrapped with the
// given group name, appended to the accumulated group with ".".
func (h *TeeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	newGroup := name
	if h.group != "" {
		newGroup = h.group + "." + name
	}

	return &TeeHandler{
		base:     h.base.WithGroup(name),
		callback: h.callback,
		minLevel: h.minLevel,
		group:    newGroup,
		attrs:    h.attrs,
	}
}
