package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apperrors "realtime_chat/pkg/errors"
)

// currentUser returns the caller set by the auth middleware.
func currentUser(c *gin.Context) (string, bool) {
	userID, exists := c.Get("user_id")
	id, _ := userID.(string)
	if !exists || id == "" {
		c.Error(apperrors.Unauthorized("user not authenticated"))
		return "", false
	}
	return id, true
}

func uuidParam(c *gin.Context, name, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.Error(apperrors.BadRequest("invalid %s ID", what))
		return uuid.Nil, false
	}
	return id, true
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.Error(apperrors.BadRequest("invalid request body: %v", err))
		return false
	}
	return true
}

func int64Query(c *gin.Context, key string) (int64, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.Error(apperrors.BadRequest("invalid %s", key))
		return 0, false
	}
	return v, true
}

// listQuery accepts both ?ids=a,b and ?ids=a&ids=b.
func listQuery(c *gin.Context, key string) []string {
	var out []string
	for _, raw := range c.QueryArray(key) {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
