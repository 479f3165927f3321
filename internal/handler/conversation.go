package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"realtime_chat/internal/service"
	"realtime_chat/pkg/logger"
)

type ConversationHandler struct {
	conversationService service.ConversationService
	receiptService      service.ReceiptService
	log                 logger.Logger
}

func NewConversationHandler(conversationService service.ConversationService, receiptService service.ReceiptService, log logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		conversationService: conversationService,
		receiptService:      receiptService,
		log:                 log,
	}
}

type CreateDMRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *ConversationHandler) CreateDM(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req CreateDMRequest
	if !bindJSON(c, &req) {
		return
	}

	conversation, err := h.conversationService.CreateOrGetDM(c.Request.Context(), userID, req.UserID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, conversation)
}

type CreateGroupRequest struct {
	Title     string   `json:"title" binding:"required"`
	MemberIDs []string `json:"member_ids" binding:"required"`
}

func (h *ConversationHandler) CreateGroup(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req CreateGroupRequest
	if !bindJSON(c, &req) {
		return
	}

	conversation, err := h.conversationService.CreateGroup(c.Request.Context(), userID, req.Title, req.MemberIDs)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, conversation)
}

func (h *ConversationHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	conversations, err := h.conversationService.List(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, conversations)
}

func (h *ConversationHandler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, ok := uuidParam(c, "id", "conversation")
	if !ok {
		return
	}

	conversation, err := h.conversationService.Get(c.Request.Context(), userID, conversationID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, conversation)
}

type AddMemberRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *ConversationHandler) AddMember(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, ok := uuidParam(c, "id", "conversation")
	if !ok {
		return
	}

	var req AddMemberRequest
	if !bindJSON(c, &req) {
		return
	}

	member, err := h.conversationService.AddMember(c.Request.Context(), userID, conversationID, req.UserID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, member)
}

func (h *ConversationHandler) RemoveMember(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, ok := uuidParam(c, "id", "conversation")
	if !ok {
		return
	}

	if err := h.conversationService.RemoveMember(c.Request.Context(), userID, conversationID, c.Param("userId")); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Member removed"})
}

func (h *ConversationHandler) Leave(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, ok := uuidParam(c, "id", "conversation")
	if !ok {
		return
	}

	if err := h.conversationService.LeaveGroup(c.Request.Context(), userID, conversationID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Left conversation"})
}

// MarkRead records read receipts for everything currently in the
// conversation.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, ok := uuidParam(c, "id", "conversation")
	if !ok {
		return
	}

	receipt, err := h.receiptService.MarkRead(c.Request.Context(), userID, conversationID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, receipt)
}
