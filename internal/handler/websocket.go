package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
	"realtime_chat/internal/config"
	"realtime_chat/internal/domain"
	"realtime_chat/internal/realtime"
	"realtime_chat/internal/service"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

const maxWatchedUsers = 100

// clientFrame is everything a client may send over the socket.
type clientFrame struct {
	Type           string   `json:"type"`
	Ref            string   `json:"ref,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
	UserIDs        []string `json:"user_ids,omitempty"`
}

type WebSocketHandler struct {
	router              *realtime.Router
	conversationService service.ConversationService
	presenceService     service.PresenceService
	sessionConfig       realtime.SessionConfig
	upgrader            websocket.Upgrader
	log                 logger.Logger
}

func NewWebSocketHandler(router *realtime.Router, conversationService service.ConversationService, presenceService service.PresenceService, cfg config.RealtimeConfig, allowedOrigins []string, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		router:              router,
		conversationService: conversationService,
		presenceService:     presenceService,
		sessionConfig:       sessionConfig(cfg),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: log,
	}
}

func sessionConfig(cfg config.RealtimeConfig) realtime.SessionConfig {
	sc := realtime.DefaultSessionConfig()
	if cfg.SendBuffer > 0 {
		sc.SendBuffer = cfg.SendBuffer
	}
	if cfg.InboundRPS > 0 {
		sc.InboundRate = rate.Limit(cfg.InboundRPS)
	}
	if cfg.InboundBurst > 0 {
		sc.InboundBurst = cfg.InboundBurst
	}
	if cfg.WriteWait > 0 {
		sc.WriteWait = cfg.WriteWait
	}
	if cfg.PingPeriod > 0 {
		sc.PingPeriod = cfg.PingPeriod
	}
	if cfg.PongWait > 0 {
		sc.PongWait = cfg.PongWait
	}
	return sc
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || (len(allowed) == 1 && allowed[0] == "*") {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Handle upgrades an authenticated request and serves the session until
// the peer goes away.
func (h *WebSocketHandler) Handle(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Failed to upgrade connection", "error", err, "user_id", userID)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := realtime.NewSession(userID, h.sessionConfig)
	h.router.Connect(session)
	h.presenceService.Connect(ctx, userID)
	h.log.Info("WebSocket connected", "session_id", session.ID, "user_id", userID)

	go session.WritePump(conn)

	err = session.ReadPump(conn, func(frame []byte) {
		h.handleFrame(ctx, session, frame)
	})

	remaining := h.router.Disconnect(session)
	h.presenceService.Disconnect(ctx, userID)

	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		h.log.Warn("WebSocket closed unexpectedly", "error", err, "session_id", session.ID, "user_id", userID)
	}
	h.log.Info("WebSocket disconnected", "session_id", session.ID, "user_id", userID, "user_sessions", remaining)
}

func (h *WebSocketHandler) handleFrame(ctx context.Context, s *realtime.Session, raw []byte) {
	var frame clientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		s.SendError("malformed frame", "")
		return
	}

	var err error
	switch frame.Type {
	case "subscribe":
		err = h.subscribe(ctx, s, frame)
	case "unsubscribe":
		var conversationID uuid.UUID
		if conversationID, err = parseConversationID(frame); err == nil {
			h.router.UnsubscribeConversation(s, conversationID)
			s.Ack(frame.Type, frame.Ref)
		}
	case "typing":
		var conversationID uuid.UUID
		if conversationID, err = parseConversationID(frame); err == nil {
			err = h.router.Typing(ctx, s, conversationID, time.Now())
		}
		h.presenceService.Activity(ctx, s.UserID)
	case "heartbeat":
		h.presenceService.Heartbeat(ctx, s.UserID)
	case "activity":
		h.presenceService.Activity(ctx, s.UserID)
	case "watch_presence":
		err = h.watchPresence(ctx, s, frame)
	default:
		err = apperrors.BadRequest("unknown frame type %q", frame.Type)
	}

	if err != nil {
		s.SendError(err.Error(), frame.Ref)
	}
}

func (h *WebSocketHandler) subscribe(ctx context.Context, s *realtime.Session, frame clientFrame) error {
	conversationID, err := parseConversationID(frame)
	if err != nil {
		return err
	}
	if _, err := h.conversationService.RequireMember(ctx, conversationID, s.UserID); err != nil {
		return err
	}
	if err := h.router.SubscribeConversation(ctx, s, conversationID); err != nil {
		h.log.Error("Failed to subscribe session", "error", err, "session_id", s.ID, "conversation_id", conversationID)
		return err
	}
	s.Ack(frame.Type, frame.Ref)
	return nil
}

// watchPresence subscribes to the users' presence channels and sends
// their current state straight away.
func (h *WebSocketHandler) watchPresence(ctx context.Context, s *realtime.Session, frame clientFrame) error {
	if len(frame.UserIDs) == 0 {
		return apperrors.Validation("user_ids is required")
	}
	if len(frame.UserIDs) > maxWatchedUsers {
		return apperrors.Validation("at most %d user ids", maxWatchedUsers)
	}
	if err := h.router.WatchPresence(ctx, s, frame.UserIDs); err != nil {
		return err
	}

	states, err := h.presenceService.Get(ctx, frame.UserIDs)
	if err != nil {
		return err
	}
	for _, state := range states {
		evt := domain.Event{
			Type:    domain.EventPresence,
			Topic:   domain.PresenceTopic(state.UserID),
			Payload: state,
		}
		encoded, err := json.Marshal(evt)
		if err != nil {
			return err
		}
		if err := s.Deliver(evt, encoded); err != nil {
			// the session is closing
			return nil
		}
	}
	s.Ack(frame.Type, frame.Ref)
	return nil
}

func parseConversationID(frame clientFrame) (uuid.UUID, error) {
	id, err := uuid.Parse(frame.ConversationID)
	if err != nil {
		return uuid.Nil, apperrors.BadRequest("invalid conversation ID")
	}
	return id, nil
}
