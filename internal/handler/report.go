package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"realtime_chat/internal/domain"
	"realtime_chat/internal/service"
	"realtime_chat/pkg/logger"
)

type ReportHandler struct {
	reportService service.ReportService
	log           logger.Logger
}

func NewReportHandler(reportService service.ReportService, log logger.Logger) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
		log:           log,
	}
}

type ReportMessageRequest struct {
	Reason      domain.ReportReason `json:"reason" binding:"required"`
	Description *string             `json:"description"`
}

func (h *ReportHandler) ReportMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, ok := uuidParam(c, "messageId", "message")
	if !ok {
		return
	}

	var req ReportMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	report, err := h.reportService.ReportMessage(c.Request.Context(), userID, messageID, req.Reason, req.Description)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, report)
}

type ReportUserRequest struct {
	Reason      domain.ReportReason `json:"reason" binding:"required"`
	Description *string             `json:"description"`
}

func (h *ReportHandler) ReportUser(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req ReportUserRequest
	if !bindJSON(c, &req) {
		return
	}

	report, err := h.reportService.ReportUser(c.Request.Context(), userID, c.Param("userId"), req.Reason, req.Description)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, report)
}
