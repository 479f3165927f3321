package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"realtime_chat/internal/domain"
	"realtime_chat/internal/service"
	"realtime_chat/pkg/logger"
)

type PresenceHandler struct {
	presenceService service.PresenceService
	log             logger.Logger
}

func NewPresenceHandler(presenceService service.PresenceService, log logger.Logger) *PresenceHandler {
	return &PresenceHandler{
		presenceService: presenceService,
		log:             log,
	}
}

type UpdateStatusRequest struct {
	Status domain.PresenceStatus `json:"status" binding:"required"`
}

func (h *PresenceHandler) UpdateStatus(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	state, err := h.presenceService.UpdateStatus(c.Request.Context(), userID, req.Status)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, state)
}

// Get returns presence for ?ids=<user>,<user>. Unknown users are offline.
func (h *PresenceHandler) Get(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}

	states, err := h.presenceService.Get(c.Request.Context(), listQuery(c, "ids"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, states)
}
