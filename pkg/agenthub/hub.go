// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package agenthub maintains long-lived websocket sessions with remote
// database agents and correlates query submissions with their results.
//
// An agent dials in, registers under its connection reference with a
// schema snapshot, and then answers queries pushed over the same socket.
// The hub is the only component that talks to agents; backends go through
// its Transport-shaped surface.
package agenthub

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/pkg/observability"
	"github.com/teradata-labs/spindle/pkg/types"
)

// Tunables for the websocket sessions.
const (
	// DefaultQueryTimeout bounds one query round-trip to an agent.
	DefaultQueryTimeout = 60 * time.Second

	// pingInterval is how often the hub pings an idle agent.
	pingInterval = 30 * time.Second

	// pongWait is how long after a ping the agent may stay silent before
	// the session is considered dead.
	pongWait = 45 * time.Second

	// writeWait bounds one websocket write.
	writeWait = 10 * time.Second

	// maxMessageSize caps one inbound agent message.
	maxMessageSize = 16 << 20 // 16 MiB
)

// Message types on the agent socket.
const (
	msgRegister = "register"
	msgQuery    = "query"
	msgResult   = "result"
	msgSchema   = "schema"
)

// envelope is the JSON frame exchanged with agents. Fields are a union
// over the message types; ID correlates a query with its result.
type envelope struct {
	Type          string   `json:"type"`
	ID            string   `json:"id,omitempty"`
	ConnectionRef string   `json:"connection_ref,omitempty"`
	Schema        string   `json:"schema,omitempty"`
	SQL           string   `json:"sql,omitempty"`
	Columns       []string `json:"columns,omitempty"`
	Rows          [][]any  `json:"rows,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// Config holds configuration for the hub.
type Config struct {
	// QueryTimeout bounds one query round-trip. Default: 60s.
	QueryTimeout time.Duration

	// Logger for session events.
	Logger *zap.Logger

	// Tracer for spans and metrics.
	Tracer observability.Tracer
}

// Hub tracks connected agents by connection reference.
type Hub struct {
	queryTimeout time.Duration
	logger       *zap.Logger
	tracer       observability.Tracer
	upgrader     websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*session
}

// session is one registered agent socket.
type session struct {
	ref  string
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	schema  string
	pending map[string]chan *envelope
	closed  bool
}

// NewHub creates an empty hub.
func NewHub(cfg Config) *Hub {
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}

	return &Hub{
		queryTimeout: cfg.QueryTimeout,
		logger:       cfg.Logger,
		tracer:       cfg.Tracer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		sessions: make(map[string]*session),
	}
}

// ServeHTTP upgrades an agent connection. The first frame must be a
// register message carrying the connection reference and a schema
// snapshot; everything after that is results and schema refreshes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	var reg envelope
	if err := conn.ReadJSON(&reg); err != nil || reg.Type != msgRegister || reg.ConnectionRef == "" {
		h.logger.Warn("agent failed to register", zap.Error(err))
		_ = conn.Close()
		return
	}

	s := &session{
		ref:     reg.ConnectionRef,
		conn:    conn,
		schema:  reg.Schema,
		pending: make(map[string]chan *envelope),
	}
	h.register(s)
	h.logger.Info("agent registered",
		zap.String("connection", s.ref),
		zap.Bool("schema_snapshot", s.schema != ""))
	h.tracer.RecordMetric("agenthub.registered", 1.0, map[string]string{"connection": s.ref})

	stopPing := make(chan struct{})
	go h.pingLoop(s, stopPing)
	h.readLoop(s)
	close(stopPing)
	h.unregister(s)
}

func (h *Hub) register(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.sessions[s.ref]; ok {
		// A reconnect replaces the stale session.
		_ = old.conn.Close()
	}
	h.sessions[s.ref] = s
}

func (h *Hub) unregister(s *session) {
	h.mu.Lock()
	if h.sessions[s.ref] == s {
		delete(h.sessions, s.ref)
	}
	h.mu.Unlock()

	s.mu.Lock()
	s.closed = true
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
	s.mu.Unlock()
	_ = s.conn.Close()

	h.logger.Info("agent disconnected", zap.String("connection", s.ref))
}

// readLoop dispatches result frames to their waiting submitters and
// absorbs schema refreshes. Returns when the socket dies.
func (h *Hub) readLoop(s *session) {
	for {
		var msg envelope
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("agent read error",
					zap.String("connection", s.ref),
					zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case msgResult:
			s.mu.Lock()
			ch, ok := s.pending[msg.ID]
			if ok {
				delete(s.pending, msg.ID)
			}
			s.mu.Unlock()
			if ok {
				ch <- &msg
				close(ch)
			} else {
				h.logger.Debug("result for unknown query dropped",
					zap.String("connection", s.ref),
					zap.String("id", msg.ID))
			}
		case msgSchema:
			s.mu.Lock()
			s.schema = msg.Schema
			s.mu.Unlock()
			h.logger.Debug("schema snapshot refreshed", zap.String("connection", s.ref))
		default:
			h.logger.Debug("unexpected message type",
				zap.String("connection", s.ref),
				zap.String("type", msg.Type))
		}
	}
}

func (h *Hub) pingLoop(s *session, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

func (s *session) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

func (h *Hub) lookup(ref string) (*session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[ref]
	return s, ok
}

// IsConnected reports whether an agent is registered for the reference.
func (h *Hub) IsConnected(ref string) bool {
	_, ok := h.lookup(ref)
	return ok
}

// Connections returns the references of all registered agents.
func (h *Hub) Connections() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	refs := make([]string, 0, len(h.sessions))
	for ref := range h.sessions {
		refs = append(refs, ref)
	}
	return refs
}

// FetchSchema returns the agent's latest schema snapshot.
func (h *Hub) FetchSchema(_ context.Context, ref string) (string, error) {
	s, ok := h.lookup(ref)
	if !ok {
		return "", &types.AgentUnavailableError{ConnectionRef: ref}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schema == "" {
		return "", fmt.Errorf("agent %s registered without a schema snapshot", ref)
	}
	return s.schema, nil
}

// SubmitQuery pushes one statement to the agent and waits for the
// correlated result. The wait is bounded by the per-query timeout and the
// caller's context; losing the agent mid-flight surfaces as
// AgentUnavailableError.
func (h *Hub) SubmitQuery(ctx context.Context, ref, sql string) ([]string, [][]any, error) {
	ctx, span := h.tracer.StartSpan(ctx, "agenthub.submit",
		observability.WithAttribute("connection", ref))
	defer h.tracer.EndSpan(span)

	s, ok := h.lookup(ref)
	if !ok {
		return nil, nil, &types.AgentUnavailableError{ConnectionRef: ref}
	}

	id := uuid.New().String()
	ch := make(chan *envelope, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil, &types.AgentUnavailableError{ConnectionRef: ref}
	}
	s.pending[id] = ch
	s.mu.Unlock()

	if err := s.writeJSON(envelope{Type: msgQuery, ID: id, SQL: sql}); err != nil {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return nil, nil, &types.AgentUnavailableError{ConnectionRef: ref}
	}

	timer := time.NewTimer(h.queryTimeout)
	defer timer.Stop()

	select {
	case msg, ok := <-ch:
		if !ok || msg == nil {
			// Channel closed by unregister: the agent went away.
			return nil, nil, &types.AgentUnavailableError{ConnectionRef: ref}
		}
		if msg.Error != "" {
			return nil, nil, fmt.Errorf("agent error: %s", msg.Error)
		}
		return msg.Columns, msg.Rows, nil
	case <-timer.C:
		h.abandon(s, id)
		return nil, nil, fmt.Errorf("query timed out after %s", h.queryTimeout)
	case <-ctx.Done():
		h.abandon(s, id)
		return nil, nil, ctx.Err()
	}
}

func (h *Hub) abandon(s *session, id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}
