package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"realtime_chat/internal/service"
	"realtime_chat/pkg/logger"
)

type ReactionHandler struct {
	reactionService service.ReactionService
	log             logger.Logger
}

func NewReactionHandler(reactionService service.ReactionService, log logger.Logger) *ReactionHandler {
	return &ReactionHandler{
		reactionService: reactionService,
		log:             log,
	}
}

func (h *ReactionHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, ok := uuidParam(c, "messageId", "message")
	if !ok {
		return
	}

	reactions, err := h.reactionService.List(c.Request.Context(), userID, messageID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, reactions)
}

type ToggleReactionRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

func (h *ReactionHandler) Toggle(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, ok := uuidParam(c, "messageId", "message")
	if !ok {
		return
	}

	var req ToggleReactionRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.reactionService.Toggle(c.Request.Context(), userID, messageID, req.Emoji)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}
