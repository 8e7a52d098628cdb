// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package display

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relabs-tech/cpr_assist/internal/status"
)

const (
	clientBuffer = 4
	writeTimeout = time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the feed is served on the local network only
	},
}

type feedClient struct {
	conn   *websocket.Conn
	remote string
	send   chan []byte
}

// Feed broadcasts snapshots to websocket clients at /ws/status and serves the
// latest one as JSON at /api/status. A client that falls behind is dropped.
type Feed struct {
	log *zap.Logger

	mu      sync.Mutex
	clients map[*feedClient]struct{}
	latest  []byte
}

func NewFeed(log *zap.Logger) *Feed {
	return &Feed{log: log, clients: make(map[*feedClient]struct{})}
}

// Handler returns the feed's routes.
func (f *Feed) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/status", f.handleWS)
	mux.HandleFunc("/api/status", f.handleStatus)
	return mux
}

// ListenAndServe serves the feed on addr until ctx is done.
func (f *Feed) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: f.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	f.log.Info("status feed listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Report implements Reporter.
func (f *Feed) Report(s status.Snapshot) {
	payload, err := json.Marshal(s)
	if err != nil {
		f.log.Error("status feed: marshal snapshot", zap.Error(err))
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest = payload
	for c := range f.clients {
		select {
		case c.send <- payload:
		default:
			f.log.Warn("status feed: dropping slow client", zap.String("remote", c.remote))
			f.removeLocked(c)
		}
	}
}

// Clients returns the number of connected clients.
func (f *Feed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *Feed) handleStatus(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	latest := f.latest
	f.mu.Unlock()

	if latest == nil {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(latest)
}

func (f *Feed) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Warn("status feed: websocket upgrade error", zap.Error(err))
		return
	}

	c := &feedClient{conn: conn, remote: r.RemoteAddr, send: make(chan []byte, clientBuffer)}
	f.mu.Lock()
	f.clients[c] = struct{}{}
	f.mu.Unlock()

	go f.writeLoop(c)

	// the feed is one-way; reading only detects the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				f.log.Debug("status feed: websocket error", zap.Error(err))
			}
			break
		}
	}

	f.mu.Lock()
	f.removeLocked(c)
	f.mu.Unlock()
}

func (f *Feed) writeLoop(c *feedClient) {
	defer c.conn.Close()
	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

// removeLocked unregisters c and stops its writer. f.mu must be held.
func (f *Feed) removeLocked(c *feedClient) {
	if _, ok := f.clients[c]; !ok {
		return
	}
	delete(f.clients, c)
	close(c.send)
}
