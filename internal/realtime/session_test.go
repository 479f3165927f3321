package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"realtime_chat/internal/domain"
)

func TestSessionControlFrames(t *testing.T) {
	s := NewSession("alice", DefaultSessionConfig())

	s.Ack("subscribe", "r1")
	s.SendError("not a member", "r2")

	var ack, failure struct {
		Type    string            `json:"type"`
		Payload map[string]string `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(<-s.Outbound(), &ack))
	require.NoError(t, json.Unmarshal(<-s.Outbound(), &failure))

	assert.Equal(t, "ack", ack.Type)
	assert.Equal(t, map[string]string{"request": "subscribe", "ref": "r1"}, ack.Payload)
	assert.Equal(t, "error", failure.Type)
	assert.Equal(t, "not a member", failure.Payload["message"])
}

func TestSessionForgetResetsOrdering(t *testing.T) {
	s := NewSession("alice", DefaultSessionConfig())
	conv := uuid.New()
	evt := domain.NewConversationEvent(domain.EventMessageCreated, conv, 5, nil)

	require.NoError(t, s.Deliver(evt, []byte("5")))
	assert.ErrorIs(t, s.Deliver(evt, []byte("5")), ErrStaleEvent)

	s.Forget(conv)
	assert.NoError(t, s.Deliver(evt, []byte("5")))
}

func TestSessionPumps(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.InboundRate = 1000
	cfg.InboundBurst = 1000

	sessions := make(chan *Session, 1)
	inbound := make(chan string, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s := NewSession("alice", cfg)
		sessions <- s
		go s.WritePump(ws)
		_ = s.ReadPump(ws, func(frame []byte) { inbound <- string(frame) })
		s.Close()
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()
	s := <-sessions

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"heartbeat"}`)))
	select {
	case frame := <-inbound:
		assert.Equal(t, `{"type":"heartbeat"}`, frame)
	case <-time.After(2 * time.Second):
		t.Fatal("inbound frame not handled")
	}

	require.NoError(t, s.Deliver(domain.Event{Type: domain.EventTyping}, []byte(`{"type":"typing"}`)))
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"typing"}`, string(frame))

	s.CloseWith(CloseSendBufferFull, "send buffer full")
	_, _, err = client.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, CloseSendBufferFull, closeErr.Code)
}
