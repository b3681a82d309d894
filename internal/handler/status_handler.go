package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"autovpn-backend/internal/model"
	"autovpn-backend/internal/service"
)

type StatusHandler struct {
	statusService *service.StatusService
}

func NewStatusHandler(statusService *service.StatusService) *StatusHandler {
	return &StatusHandler{
		statusService: statusService,
	}
}

func (h *StatusHandler) Status(c *gin.Context) {
	resp, err := h.statusService.Status(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Health is registered in both modes.
func Health(mode string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, model.HealthResponse{Status: "ok", Mode: mode})
	}
}
