package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"autovpn-backend/internal/middleware"
	"autovpn-backend/internal/model"
	"autovpn-backend/internal/service"
)

type PeerHandler struct {
	peerService *service.PeerService
}

func NewPeerHandler(peerService *service.PeerService) *PeerHandler {
	return &PeerHandler{
		peerService: peerService,
	}
}

func (h *PeerHandler) Create(c *gin.Context) {
	var req model.PeerCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	peer, err := h.peerService.Create(c.Request.Context(), middleware.CurrentUser(c), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, peer)
}

func (h *PeerHandler) List(c *gin.Context) {
	resp, err := h.peerService.List(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Config serves the client .conf as a download.
func (h *PeerHandler) Config(c *gin.Context) {
	name, conf, err := h.peerService.Config(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="AutoVPN-%s.conf"`, name))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(conf))
}

func (h *PeerHandler) Revoke(c *gin.Context) {
	if err := h.peerService.Revoke(c.Request.Context(), middleware.CurrentUser(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.OKResponse{OK: true})
}
