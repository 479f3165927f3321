package handler

import (
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"realtime_chat/internal/service"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

// multipart framing on top of the file itself
const multipartOverhead = 1 << 20

type FileHandler struct {
	fileService service.FileService
	maxBytes    int64
	log         logger.Logger
}

func NewFileHandler(fileService service.FileService, maxBytes int64, log logger.Logger) *FileHandler {
	return &FileHandler{
		fileService: fileService,
		maxBytes:    maxBytes,
		log:         log,
	}
}

// Upload takes a multipart "file" field and returns the stored file. Its
// url goes into a message's file_ref.
func (h *FileHandler) Upload(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)
	header, err := c.FormFile("file")
	if err != nil {
		c.Error(apperrors.Validation("file is required and must be at most %s", humanize.Bytes(uint64(h.maxBytes))))
		return
	}

	file, err := header.Open()
	if err != nil {
		h.log.Error("Failed to open upload", "error", err, "user_id", userID)
		c.Error(apperrors.BadRequest("unreadable file"))
		return
	}
	defer file.Close()

	uploaded, err := h.fileService.Upload(c.Request.Context(), userID, header.Filename, file)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, uploaded)
}
