package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
	"realtime_chat/internal/domain"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrSendBuffer    = errors.New("send buffer full")
	ErrStaleEvent    = errors.New("stale event")
)

const (
	CloseSendBufferFull = 4002
	CloseServerShutdown = websocket.CloseGoingAway
)

type SessionConfig struct {
	SendBuffer    int
	InboundRate   rate.Limit
	InboundBurst  int
	WriteWait     time.Duration
	PingPeriod    time.Duration
	PongWait      time.Duration
	MaxFrameBytes int64
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		SendBuffer:    128,
		InboundRate:   10,
		InboundBurst:  20,
		WriteWait:     10 * time.Second,
		PingPeriod:    30 * time.Second,
		PongWait:      60 * time.Second,
		MaxFrameBytes: 16 << 10,
	}
}

// Session is one live client connection. Outbound events are queued on a
// buffered channel drained by WritePump; a session whose buffer fills up
// is closed and must reconnect and catch up from storage.
type Session struct {
	ID     string
	UserID string

	cfg     SessionConfig
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter

	mu          sync.Mutex
	highWater   map[uuid.UUID]int64
	closeCode   int
	closeReason string
}

func NewSession(userID string, cfg SessionConfig) *Session {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 128
	}
	if cfg.InboundRate <= 0 {
		cfg.InboundRate = 10
	}
	if cfg.InboundBurst <= 0 {
		cfg.InboundBurst = 20
	}
	return &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		cfg:       cfg,
		send:      make(chan []byte, cfg.SendBuffer),
		done:      make(chan struct{}),
		limiter:   rate.NewLimiter(cfg.InboundRate, cfg.InboundBurst),
		highWater: make(map[uuid.UUID]int64),
		closeCode: websocket.CloseNormalClosure,
	}
}

// Deliver queues frame, the encoded form of evt. Sequenced events at or
// below the last sequence seen for their conversation are discarded, so a
// subscriber never observes event N after N+1.
func (s *Session) Deliver(evt domain.Event, frame []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	if evt.Sequence > 0 && evt.ConversationID != nil {
		s.mu.Lock()
		if evt.Sequence <= s.highWater[*evt.ConversationID] {
			s.mu.Unlock()
			return ErrStaleEvent
		}
		s.highWater[*evt.ConversationID] = evt.Sequence
		s.mu.Unlock()
	}

	select {
	case s.send <- frame:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		s.CloseWith(CloseSendBufferFull, "send buffer full")
		return ErrSendBuffer
	}
}

// SendError queues an error frame for the client. It never closes the
// session.
func (s *Session) SendError(message string, ref string) {
	s.sendControl("error", map[string]string{"message": message, "ref": ref})
}

// Ack confirms a client request identified by ref.
func (s *Session) Ack(request string, ref string) {
	s.sendControl("ack", map[string]string{"request": request, "ref": ref})
}

// control frames are dropped rather than closing the session when the
// buffer is full
func (s *Session) sendControl(kind string, payload map[string]string) {
	frame, err := json.Marshal(map[string]any{
		"type":    kind,
		"payload": payload,
	})
	if err != nil {
		return
	}
	select {
	case s.send <- frame:
	default:
	}
}

// Allow reports whether another inbound frame fits the session's rate.
func (s *Session) Allow() bool {
	return s.limiter.Allow()
}

// Forget drops the ordering state for a conversation, used when the
// session unsubscribes from it.
func (s *Session) Forget(conversationID uuid.UUID) {
	s.mu.Lock()
	delete(s.highWater, conversationID)
	s.mu.Unlock()
}

func (s *Session) Outbound() <-chan []byte {
	return s.send
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Close() {
	s.CloseWith(websocket.CloseNormalClosure, "")
}

func (s *Session) CloseWith(code int, reason string) {
	s.once.Do(func() {
		s.mu.Lock()
		s.closeCode = code
		s.closeReason = reason
		s.mu.Unlock()
		close(s.done)
	})
}

// WritePump drains the send buffer into ws and pings the peer until the
// session is closed or a write fails. It closes ws on return.
func (s *Session) WritePump(ws *websocket.Conn) {
	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case <-s.done:
			s.mu.Lock()
			code, reason := s.closeCode, s.closeReason
			s.mu.Unlock()
			_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(s.cfg.WriteWait))
			return
		case frame := <-s.send:
			if err := ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait)); err != nil {
				s.Close()
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.Close()
				return
			}
		case <-ticker.C:
			if err := ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait)); err != nil {
				s.Close()
				return
			}
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		}
	}
}

// ReadPump hands every text frame within the inbound rate to handle, and
// silently drops the rest. It returns when the peer goes away or stops
// answering pings.
func (s *Session) ReadPump(ws *websocket.Conn, handle func(frame []byte)) error {
	ws.SetReadLimit(s.cfg.MaxFrameBytes)
	_ = ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		kind, frame, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		_ = ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		if kind != websocket.TextMessage {
			continue
		}
		if !s.Allow() {
			s.SendError("rate limited", "")
			continue
		}
		handle(frame)
	}
}
