package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"realtime_chat/internal/domain"
	"realtime_chat/internal/service"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

type MessageHandler struct {
	messageService service.MessageService
	receiptService service.ReceiptService
	log            logger.Logger
}

func NewMessageHandler(messageService service.MessageService, receiptService service.ReceiptService, log logger.Logger) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
		receiptService: receiptService,
		log:            log,
	}
}

// GetMessages pages backwards through a conversation with ?before=<seq>.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, ok := uuidParam(c, "id", "conversation")
	if !ok {
		return
	}
	before, ok := int64Query(c, "before")
	if !ok {
		return
	}
	limit, ok := int64Query(c, "limit")
	if !ok {
		return
	}

	messages, err := h.messageService.List(c.Request.Context(), userID, conversationID, before, int(limit))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, messages)
}

type SendMessageRequest struct {
	Content *string `json:"content"`
	FileRef *string `json:"file_ref"`
}

func (h *MessageHandler) SendMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, ok := uuidParam(c, "id", "conversation")
	if !ok {
		return
	}

	var req SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	message, err := h.messageService.Send(c.Request.Context(), domain.MessageDraft{
		ConversationID: conversationID,
		SenderID:       userID,
		Content:        req.Content,
		FileRef:        req.FileRef,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, message)
}

func (h *MessageHandler) GetMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, ok := uuidParam(c, "messageId", "message")
	if !ok {
		return
	}

	message, err := h.messageService.Get(c.Request.Context(), userID, messageID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, message)
}

type EditMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

func (h *MessageHandler) EditMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, ok := uuidParam(c, "messageId", "message")
	if !ok {
		return
	}

	var req EditMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	message, err := h.messageService.Edit(c.Request.Context(), userID, messageID, req.Content)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, message)
}

func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, ok := uuidParam(c, "messageId", "message")
	if !ok {
		return
	}

	message, err := h.messageService.Delete(c.Request.Context(), userID, messageID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, message)
}

func (h *MessageHandler) GetThread(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, ok := uuidParam(c, "messageId", "message")
	if !ok {
		return
	}

	replies, err := h.messageService.GetThreadMessages(c.Request.Context(), userID, messageID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, replies)
}

func (h *MessageHandler) ReplyInThread(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, ok := uuidParam(c, "messageId", "message")
	if !ok {
		return
	}

	var req SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	reply, err := h.messageService.SendThreadReply(c.Request.Context(), userID, messageID, req.Content, req.FileRef)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, reply)
}

func (h *MessageHandler) GetThreadCount(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, ok := uuidParam(c, "messageId", "message")
	if !ok {
		return
	}

	count, err := h.messageService.GetThreadCount(c.Request.Context(), userID, messageID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message_id": messageID, "count": count})
}

// SearchMessages matches ?q= across the caller's conversations, narrowed by
// ?conversation_id= when given.
func (h *MessageHandler) SearchMessages(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit, ok := int64Query(c, "limit")
	if !ok {
		return
	}
	var conversationID *uuid.UUID
	if raw := c.Query("conversation_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.Error(apperrors.BadRequest("invalid conversation ID"))
			return
		}
		conversationID = &id
	}

	messages, err := h.messageService.Search(c.Request.Context(), userID, c.Query("q"), conversationID, int(limit))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, messages)
}

type ThreadSubscriptionRequest struct {
	Subscribed *bool `json:"subscribed" binding:"required"`
}

func (h *MessageHandler) GetThreadSubscription(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, ok := uuidParam(c, "messageId", "message")
	if !ok {
		return
	}

	sub, err := h.messageService.GetThreadSubscription(c.Request.Context(), userID, messageID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

func (h *MessageHandler) SetThreadSubscription(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, ok := uuidParam(c, "messageId", "message")
	if !ok {
		return
	}

	var req ThreadSubscriptionRequest
	if !bindJSON(c, &req) {
		return
	}

	sub, err := h.messageService.SetThreadSubscription(c.Request.Context(), userID, messageID, *req.Subscribed)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

// GetReceipts returns read receipts for ?ids=<id>,<id>.
func (h *MessageHandler) GetReceipts(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	raw := listQuery(c, "ids")
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			c.Error(apperrors.BadRequest("invalid message ID %q", s))
			return
		}
		ids = append(ids, id)
	}

	receipts, err := h.receiptService.List(c.Request.Context(), userID, ids)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, receipts)
}
