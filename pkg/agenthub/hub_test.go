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

package agenthub

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/spindle/pkg/types"
)

// fakeAgent is a scripted remote agent on a real websocket.
type fakeAgent struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialAgent(t *testing.T, server *httptest.Server, ref, schema string) *fakeAgent {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, conn.WriteJSON(envelope{
		Type:          msgRegister,
		ConnectionRef: ref,
		Schema:        schema,
	}))
	t.Cleanup(func() { _ = conn.Close() })
	return &fakeAgent{t: t, conn: conn}
}

// answer reads one query frame and replies with the given result.
func (a *fakeAgent) answer(columns []string, rows [][]any, errMsg string) {
	var msg envelope
	require.NoError(a.t, a.conn.ReadJSON(&msg))
	require.Equal(a.t, msgQuery, msg.Type)
	require.NotEmpty(a.t, msg.ID)
	require.NoError(a.t, a.conn.WriteJSON(envelope{
		Type:    msgResult,
		ID:      msg.ID,
		Columns: columns,
		Rows:    rows,
		Error:   errMsg,
	}))
}

func newTestHub(t *testing.T, cfg Config) (*Hub, *httptest.Server) {
	t.Helper()
	cfg.Logger = zaptest.NewLogger(t)
	hub := NewHub(cfg)
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)
	return hub, server
}

func waitConnected(t *testing.T, hub *Hub, ref string) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.IsConnected(ref) },
		2*time.Second, 10*time.Millisecond)
}

func TestHub_RegisterAndQuery(t *testing.T) {
	hub, server := newTestHub(t, Config{})
	agent := dialAgent(t, server, "warehouse", "TABLE orders (id INTEGER)")
	waitConnected(t, hub, "warehouse")

	go agent.answer([]string{"n"}, [][]any{{float64(42)}}, "")

	cols, rows, err := hub.SubmitQuery(context.Background(), "warehouse", "SELECT COUNT(*) FROM orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"n"}, cols)
	require.Len(t, rows, 1)
	assert.Equal(t, float64(42), rows[0][0])
}

func TestHub_SchemaSnapshot(t *testing.T) {
	hub, server := newTestHub(t, Config{})
	dialAgent(t, server, "warehouse", "TABLE orders (id INTEGER)")
	waitConnected(t, hub, "warehouse")

	schema, err := hub.FetchSchema(context.Background(), "warehouse")
	require.NoError(t, err)
	assert.Contains(t, schema, "orders")
}

func TestHub_UnknownConnection(t *testing.T) {
	hub, _ := newTestHub(t, Config{})

	assert.False(t, hub.IsConnected("nope"))

	_, _, err := hub.SubmitQuery(context.Background(), "nope", "SELECT 1")
	var unavailable *types.AgentUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.True(t, types.Retryable(err))

	_, err = hub.FetchSchema(context.Background(), "nope")
	assert.True(t, errors.As(err, &unavailable))
}

func TestHub_AgentError(t *testing.T) {
	hub, server := newTestHub(t, Config{})
	agent := dialAgent(t, server, "warehouse", "s")
	waitConnected(t, hub, "warehouse")

	go agent.answer(nil, nil, "permission denied on table orders")

	_, _, err := hub.SubmitQuery(context.Background(), "warehouse", "SELECT 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.False(t, types.Retryable(err), "agent-reported errors are not retryable")
}

func TestHub_DisconnectMidFlight(t *testing.T) {
	hub, server := newTestHub(t, Config{})
	agent := dialAgent(t, server, "warehouse", "s")
	waitConnected(t, hub, "warehouse")

	go func() {
		var msg envelope
		_ = agent.conn.ReadJSON(&msg)
		_ = agent.conn.Close()
	}()

	_, _, err := hub.SubmitQuery(context.Background(), "warehouse", "SELECT 1")
	var unavailable *types.AgentUnavailableError
	require.True(t, errors.As(err, &unavailable))

	require.Eventually(t, func() bool { return !hub.IsConnected("warehouse") },
		2*time.Second, 10*time.Millisecond)
}

func TestHub_QueryTimeout(t *testing.T) {
	hub, server := newTestHub(t, Config{QueryTimeout: 50 * time.Millisecond})
	dialAgent(t, server, "warehouse", "s")
	waitConnected(t, hub, "warehouse")

	// The agent never answers.
	_, _, err := hub.SubmitQuery(context.Background(), "warehouse", "SELECT 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestHub_ContextCancellation(t *testing.T) {
	hub, server := newTestHub(t, Config{})
	dialAgent(t, server, "warehouse", "s")
	waitConnected(t, hub, "warehouse")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, _, err := hub.SubmitQuery(ctx, "warehouse", "SELECT 1")
	require.ErrorIs(t, err, context.Canceled)
}

func TestHub_ReconnectReplacesSession(t *testing.T) {
	hub, server := newTestHub(t, Config{})
	dialAgent(t, server, "warehouse", "old schema")
	waitConnected(t, hub, "warehouse")

	agent2 := dialAgent(t, server, "warehouse", "new schema")
	waitConnected(t, hub, "warehouse")

	require.Eventually(t, func() bool {
		schema, err := hub.FetchSchema(context.Background(), "warehouse")
		return err == nil && schema == "new schema"
	}, 2*time.Second, 10*time.Millisecond)

	go agent2.answer([]string{"ok"}, nil, "")
	cols, _, err := hub.SubmitQuery(context.Background(), "warehouse", "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, cols)

	assert.Equal(t, []string{"warehouse"}, hub.Connections())
}

func TestHub_SchemaRefresh(t *testing.T) {
	hub, server := newTestHub(t, Config{})
	agent := dialAgent(t, server, "warehouse", "v1")
	waitConnected(t, hub, "warehouse")

	require.NoError(t, agent.conn.WriteJSON(envelope{Type: msgSchema, Schema: "v2"}))

	require.Eventually(t, func() bool {
		schema, err := hub.FetchSchema(context.Background(), "warehouse")
		return err == nil && schema == "v2"
	}, 2*time.Second, 10*time.Millisecond)
}
