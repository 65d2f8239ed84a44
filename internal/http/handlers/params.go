package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/trackchat-backend/internal/platform/apierr"
)

func uintParam(c *gin.Context, name string) (uint64, error) {
	raw := strings.TrimSpace(c.Param(name))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apierr.Validation("invalid_"+name, "%s must be a positive integer", name)
	}
	return id, nil
}

// uintQuery returns 0 when the parameter is absent.
func uintQuery(c *gin.Context, name string) (uint64, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, apierr.Validation("invalid_"+name, "%s must be a positive integer", name)
	}
	return id, nil
}

func intQuery(c *gin.Context, name string, def int) int {
	if v := strings.TrimSpace(c.Query(name)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
