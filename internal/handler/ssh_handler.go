package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"autovpn-backend/internal/model"
	"autovpn-backend/internal/service"
)

type SSHHandler struct {
	installService *service.InstallService
}

func NewSSHHandler(installService *service.InstallService) *SSHHandler {
	return &SSHHandler{
		installService: installService,
	}
}

// CheckSSH handles POST /install/check-ssh.
func (h *SSHHandler) CheckSSH(c *gin.Context) {
	var req model.SSHConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.installService.CheckSSH(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
