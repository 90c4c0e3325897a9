// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"agora/internal/health"
)

const (
	defaultWaitTimeout = 5 * time.Second
	maxWaitTimeout     = 60 * time.Second

	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Connection exposes the data service reachability monitor.
type Connection struct {
	monitor *health.Monitor
}

// NewConnection creates the connection handler group.
func NewConnection(m *health.Monitor) *Connection {
	return &Connection{monitor: m}
}

// State returns the current snapshot without probing.
func (h *Connection) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.State())
}

// Check probes the data service now.
func (h *Connection) Check(w http.ResponseWriter, r *http.Request) {
	ok := h.monitor.CheckAvailability(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"available":  ok,
		"connection": h.monitor.State(),
	})
}

// Wait blocks until the service is online or ?timeout= (default 5s, at
// most 60s) elapses.
func (h *Connection) Wait(w http.ResponseWriter, r *http.Request) {
	timeout := defaultWaitTimeout
	if v := r.URL.Query().Get("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "timeout must be a positive duration such as 5s."})
			return
		}
		timeout = min(d, maxWaitTimeout)
	}

	online := h.monitor.WaitForConnection(r.Context(), timeout)
	writeJSON(w, http.StatusOK, map[string]any{
		"online":     online,
		"connection": h.monitor.State(),
	})
}

// Stream upgrades to a websocket and pushes every state change, starting
// with the current state.
func (h *Connection) Stream(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	updates, cancel := h.monitor.Subscribe()
	defer cancel()

	// Reader: handles pongs and notices the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		ws.SetReadLimit(512)
		ws.SetReadDeadline(time.Now().Add(wsPongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(v any) bool {
		ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return ws.WriteJSON(v) == nil
	}
	if !send(h.monitor.State()) {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case s, open := <-updates:
			if !open {
				ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(wsWriteWait))
				return
			}
			if !send(s) {
				return
			}
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}
