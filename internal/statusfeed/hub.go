// Package statusfeed pushes inferred target state to UI collaborators over a
// localhost WebSocket. The hub keeps the latest observation per target so a
// client connecting late receives the current picture first.
package statusfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gamepause/internal/process"
)

// writeDeadline bounds a single frame write to the client.
const writeDeadline = 5 * time.Second

// readDeadline allows ~3 missed pings before the client is considered gone.
const readDeadline = 90 * time.Second

const pingInterval = 30 * time.Second

// maxReadMessageSize limits client requests, which are tiny JSON objects.
const maxReadMessageSize = 4 * 1024

var wsUpgrader = websocket.Upgrader{
	// The listener is bound to loopback.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 4 * 1024,
}

// HubOptions configures the feed server.
type HubOptions struct {
	// Addr is the listen address. "127.0.0.1:0" picks a free port.
	Addr string
}

// Hub serves a single feed client. A new connection replaces the previous
// one.
//
// Lock ordering (never acquire in reverse):
//
//	writeMu -> mu
//
// Any write failure disconnects the client; it must reconnect.
type Hub struct {
	opts HubOptions

	// mu protects conn and latest.
	mu     sync.RWMutex
	conn   *websocket.Conn
	latest map[string]process.Status

	// writeMu serializes WriteMessage calls.
	writeMu sync.Mutex

	listener net.Listener
	server   *http.Server
	url      string

	closeOnce sync.Once
}

// NewHub creates a Hub. It does not listen until Start.
func NewHub(opts HubOptions) *Hub {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	return &Hub{
		opts:   opts,
		latest: make(map[string]process.Status),
	}
}

// Start listens on the configured address. ctx becomes the base context of
// request handlers; the server itself stops only through Stop.
func (h *Hub) Start(ctx context.Context) error {
	if h.server != nil {
		return fmt.Errorf("statusfeed: already started")
	}

	ln, err := net.Listen("tcp", h.opts.Addr)
	if err != nil {
		return fmt.Errorf("statusfeed: listen: %w", err)
	}
	h.listener = ln

	port := ln.Addr().(*net.TCPAddr).Port
	h.url = fmt.Sprintf("ws://127.0.0.1:%d/ws", port)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)

	h.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if serveErr := h.server.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("[DEBUG-WS] server error", "error", serveErr)
		}
	}()

	slog.Info("[DEBUG-WS] status feed started", "url", h.url)
	return nil
}

// Stop closes the client and shuts the server down. Idempotent.
func (h *Hub) Stop() error {
	var stopErr error
	h.closeOnce.Do(func() {
		h.mu.Lock()
		conn := h.conn
		h.conn = nil
		h.mu.Unlock()

		if conn != nil {
			if err := conn.Close(); err != nil {
				slog.Debug("[DEBUG-WS] connection close during stop", "error", err)
			}
		}

		if h.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.server.Shutdown(shutdownCtx); err != nil {
				stopErr = fmt.Errorf("statusfeed: shutdown: %w", err)
			}
		}

		slog.Info("[DEBUG-WS] status feed stopped")
	})
	return stopErr
}

// URL returns the feed URL, or "" before Start.
func (h *Hub) URL() string {
	return h.url
}

func (h *Hub) HasActiveConnection() bool {
	h.mu.RLock()
	active := h.conn != nil
	h.mu.RUnlock()
	return active
}

// Latest returns the last published status of every target, ordered by
// target name.
func (h *Hub) Latest() []process.Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sortedLatestLocked()
}

// PublishStatus records st and pushes it when the state or path differs from
// the previous observation of the same target. It reports whether the status
// changed.
func (h *Hub) PublishStatus(st process.Status) bool {
	key := strings.ToLower(st.Target)
	if key == "" {
		return false
	}
	// The cache update and the connection read happen under one lock so a
	// connecting client sees each change exactly once: in its snapshot or
	// as a live event.
	h.mu.Lock()
	prev, seen := h.latest[key]
	h.latest[key] = st
	conn := h.conn
	h.mu.Unlock()

	if seen && prev.State == st.State && prev.Path == st.Path {
		return false
	}
	if conn != nil {
		h.writeEvent(conn, StatusEvent(st))
	}
	return true
}

// Forget drops the cached status of target, e.g. after it leaves the list.
func (h *Hub) Forget(target string) {
	h.mu.Lock()
	delete(h.latest, strings.ToLower(target))
	h.mu.Unlock()
}

// Publish sends evt to the connected client. Without a client the call is a
// no-op.
func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	conn := h.conn
	h.mu.RUnlock()

	if conn == nil {
		slog.Debug("[DEBUG-WS] publish skipped: no connection", "type", evt.Type)
		return
	}
	h.writeEvent(conn, evt)
}

// writeEvent encodes and writes one event. Returns false when the connection
// was dropped.
func (h *Hub) writeEvent(conn *websocket.Conn, evt Event) bool {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	return h.writeEventLocked(conn, evt)
}

// writeEventLocked is writeEvent for callers holding writeMu.
func (h *Hub) writeEventLocked(conn *websocket.Conn, evt Event) bool {
	payload, err := EncodeEvent(evt)
	if err != nil {
		slog.Warn("[DEBUG-WS] failed to encode event", "type", evt.Type, "error", err)
		return true
	}
	if !h.setWriteDeadlineOrClose(conn, writeDeadline) {
		return false
	}
	writeErr := conn.WriteMessage(websocket.TextMessage, payload)
	h.clearWriteDeadline(conn)

	if writeErr != nil {
		slog.Warn("[DEBUG-WS] write failed, closing connection", "type", evt.Type, "error", writeErr)
		h.clearIfCurrent(conn)
		h.closeConn(conn, "write error")
		return false
	}
	return true
}

// sendSnapshotLocked writes statuses to conn. Caller holds writeMu.
func (h *Hub) sendSnapshotLocked(conn *websocket.Conn, statuses []process.Status) {
	for _, st := range statuses {
		if !h.writeEventLocked(conn, StatusEvent(st)) {
			return
		}
	}
}

// sortedLatestLocked returns the cache ordered by target. Caller holds mu.
func (h *Hub) sortedLatestLocked() []process.Status {
	out := make([]process.Status, 0, len(h.latest))
	for _, st := range h.latest {
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b process.Status) int {
		return strings.Compare(a.Target, b.Target)
	})
	return out
}

// clearIfCurrent forgets conn if it is still the active connection.
// Caller must NOT hold h.mu.
func (h *Hub) clearIfCurrent(conn *websocket.Conn) bool {
	h.mu.Lock()
	isCurrent := h.conn == conn
	if isCurrent {
		h.conn = nil
	}
	h.mu.Unlock()
	return isCurrent
}

// closeConn closes conn. Double close only returns an error.
func (h *Hub) closeConn(conn *websocket.Conn, reason string) {
	if closeErr := conn.Close(); closeErr != nil {
		slog.Debug("[DEBUG-WS] connection close", "reason", reason, "error", closeErr)
	}
}

func (h *Hub) setWriteDeadlineOrClose(conn *websocket.Conn, d time.Duration) bool {
	if err := conn.SetWriteDeadline(time.Now().Add(d)); err != nil {
		slog.Warn("[DEBUG-WS] SetWriteDeadline failed, closing connection", "error", err)
		h.clearIfCurrent(conn)
		h.closeConn(conn, "SetWriteDeadline failure")
		return false
	}
	return true
}

func (h *Hub) clearWriteDeadline(conn *websocket.Conn) {
	if err := conn.SetWriteDeadline(time.Time{}); err != nil {
		slog.Debug("[DEBUG-WS] clearWriteDeadline failed (non-fatal)", "error", err)
	}
}

// handleWS upgrades the request, replaces any previous client, sends the
// current snapshot and runs the read pump.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[DEBUG-WS] upgrade failed", "error", err)
		return
	}

	conn.SetReadLimit(maxReadMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		slog.Warn("[DEBUG-WS] SetReadDeadline failed on new connection", "error", err)
		h.closeConn(conn, "initial SetReadDeadline failure")
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	// Registration and the initial snapshot happen under writeMu so no live
	// event reaches the client ahead of its snapshot.
	h.writeMu.Lock()
	h.mu.Lock()
	oldConn := h.conn
	h.conn = conn
	snapshot := h.sortedLatestLocked()
	h.mu.Unlock()
	if oldConn != nil {
		h.closeConn(oldConn, "replaced by new connection")
	}
	h.sendSnapshotLocked(conn, snapshot)
	h.writeMu.Unlock()

	slog.Info("[DEBUG-WS] client connected", "remoteAddr", conn.RemoteAddr())

	pingDone := make(chan struct{})
	go h.pingLoop(conn, pingDone)

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[DEBUG-PANIC] statusfeed handleWS recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
		}
		close(pingDone)
		h.clearIfCurrent(conn)
		h.closeConn(conn, "read pump exit")
		slog.Info("[DEBUG-WS] client disconnected")
	}()

	for {
		msgType, msg, readErr := conn.ReadMessage()
		if readErr != nil {
			if websocket.IsUnexpectedCloseError(readErr, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("[DEBUG-WS] read error", "error", readErr)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var req requestMsg
		if jsonErr := json.Unmarshal(msg, &req); jsonErr != nil {
			slog.Debug("[DEBUG-WS] invalid JSON from client", "error", jsonErr)
			h.writeEvent(conn, errorEvent(fmt.Sprintf("invalid JSON: %s", jsonErr)))
			continue
		}
		h.handleRequest(conn, req)
	}
}

func (h *Hub) handleRequest(conn *websocket.Conn, req requestMsg) {
	h.mu.RLock()
	current := h.conn == conn
	h.mu.RUnlock()
	if !current {
		slog.Debug("[DEBUG-WS] request from stale connection, skipping")
		return
	}

	switch req.Action {
	case snapshotAction:
		h.writeMu.Lock()
		h.sendSnapshotLocked(conn, h.Latest())
		h.writeMu.Unlock()
	default:
		slog.Debug("[DEBUG-WS] unknown action", "action", req.Action)
		h.writeEvent(conn, errorEvent(fmt.Sprintf("unknown action %q", req.Action)))
	}
}

// pingLoop keeps the connection alive and detects dead clients.
func (h *Hub) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[DEBUG-PANIC] statusfeed pingLoop recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			h.clearIfCurrent(conn)
			h.closeConn(conn, "pingLoop panic recovery")
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			h.writeMu.Lock()
			if !h.setWriteDeadlineOrClose(conn, writeDeadline) {
				h.writeMu.Unlock()
				return
			}
			pingErr := conn.WriteMessage(websocket.PingMessage, nil)
			h.clearWriteDeadline(conn)
			h.writeMu.Unlock()

			if pingErr != nil {
				slog.Debug("[DEBUG-WS] ping failed, connection likely dead", "error", pingErr)
				h.clearIfCurrent(conn)
				h.closeConn(conn, "ping failure")
				return
			}
		}
	}
}
