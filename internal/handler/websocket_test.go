package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"realtime_chat/internal/domain"
)

type serverFrame struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id"`
	Sequence       int64           `json:"sequence"`
	Payload        json.RawMessage `json:"payload"`
}

func dialWS(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?access_token=" + token(t, userID)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil skips frames until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, frameType string) serverFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var frame serverFrame
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Type == frameType {
			return frame
		}
	}
}

func TestWebSocketSubscribeAndReceive(t *testing.T) {
	api := newTestAPI(t)
	srv := httptest.NewServer(api.engine)
	defer srv.Close()

	conv := api.createGroup("alice", "bob")
	bob := dialWS(t, srv, "bob")
	alice := dialWS(t, srv, "alice")

	require.NoError(t, bob.WriteJSON(map[string]string{"type": "subscribe", "conversation_id": conv.ID.String(), "ref": "s1"}))
	ack := readUntil(t, bob, "ack")
	assert.JSONEq(t, `{"request":"subscribe","ref":"s1"}`, string(ack.Payload))

	require.NoError(t, alice.WriteJSON(map[string]string{"type": "subscribe", "conversation_id": conv.ID.String()}))
	readUntil(t, alice, "ack")

	msg := api.sendMessage(conv, "alice", "hello")
	created := readUntil(t, bob, string(domain.EventMessageCreated))
	assert.Equal(t, msg.Seq, created.Sequence)
	assert.Equal(t, conv.ID.String(), created.ConversationID)

	var delivered domain.Message
	require.NoError(t, json.Unmarshal(created.Payload, &delivered))
	assert.Equal(t, "hello", *delivered.Content)

	require.NoError(t, alice.WriteJSON(map[string]string{"type": "typing", "conversation_id": conv.ID.String()}))
	typing := readUntil(t, bob, string(domain.EventTyping))
	var payload domain.TypingPayload
	require.NoError(t, json.Unmarshal(typing.Payload, &payload))
	assert.Equal(t, "alice", payload.UserID)
}

func TestWebSocketRejectsNonMemberSubscription(t *testing.T) {
	api := newTestAPI(t)
	srv := httptest.NewServer(api.engine)
	defer srv.Close()

	conv := api.createGroup("alice", "bob")
	mallory := dialWS(t, srv, "mallory")

	require.NoError(t, mallory.WriteJSON(map[string]string{"type": "subscribe", "conversation_id": conv.ID.String(), "ref": "x"}))
	failure := readUntil(t, mallory, "error")
	assert.Contains(t, string(failure.Payload), `"ref":"x"`)

	require.NoError(t, mallory.WriteJSON(map[string]string{"type": "bogus"}))
	readUntil(t, mallory, "error")
}

func TestWebSocketPresenceLifecycle(t *testing.T) {
	api := newTestAPI(t)
	srv := httptest.NewServer(api.engine)
	defer srv.Close()

	watcher := dialWS(t, srv, "bob")
	require.NoError(t, watcher.WriteJSON(map[string]any{"type": "watch_presence", "user_ids": []string{"alice"}}))

	initial := readUntil(t, watcher, string(domain.EventPresence))
	var state domain.PresenceState
	require.NoError(t, json.Unmarshal(initial.Payload, &state))
	assert.Equal(t, domain.PresenceOffline, state.Status)

	alice := dialWS(t, srv, "alice")
	online := readUntil(t, watcher, string(domain.EventPresence))
	require.NoError(t, json.Unmarshal(online.Payload, &state))
	assert.Equal(t, domain.PresenceOnline, state.Status)

	require.NoError(t, alice.Close())
	offline := readUntil(t, watcher, string(domain.EventPresence))
	require.NoError(t, json.Unmarshal(offline.Payload, &state))
	assert.Equal(t, domain.PresenceOffline, state.Status)
}

func TestWebSocketRequiresToken(t *testing.T) {
	api := newTestAPI(t)
	srv := httptest.NewServer(api.engine)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
