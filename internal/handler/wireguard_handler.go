package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"autovpn-backend/internal/model"
	"autovpn-backend/internal/service"
)

type WireGuardHandler struct {
	wireguardService *service.WireGuardService
	provisionService *service.ProvisionService
}

func NewWireGuardHandler(wireguardService *service.WireGuardService, provisionService *service.ProvisionService) *WireGuardHandler {
	return &WireGuardHandler{
		wireguardService: wireguardService,
		provisionService: provisionService,
	}
}

func (h *WireGuardHandler) control(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := h.wireguardService.Control(c.Request.Context(), action)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

func (h *WireGuardHandler) Start() gin.HandlerFunc   { return h.control("start") }
func (h *WireGuardHandler) Stop() gin.HandlerFunc    { return h.control("stop") }
func (h *WireGuardHandler) Restart() gin.HandlerFunc { return h.control("restart") }

// ServerParams handles POST /api/wg/server_params: the client's public key
// is registered on the server named by server_hint.
func (h *WireGuardHandler) ServerParams(c *gin.Context) {
	var req model.WGParamsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	resp, err := h.provisionService.ServerParams(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
