package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"

	"autovpn-backend/internal/middleware"
	"autovpn-backend/internal/model"
	"autovpn-backend/pkg/utils"
)

const qrSize = 512

func writeQRCode(c *gin.Context, text string) {
	png, err := qrcode.Encode(text, qrcode.Medium, qrSize)
	if err != nil {
		writeError(c, utils.NewSystemError(err))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// QRCode serves the peer's client config as a PNG QR code for mobile apps.
func (h *PeerHandler) QRCode(c *gin.Context) {
	_, conf, err := h.peerService.Config(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeQRCode(c, conf)
}

// TemplateQRCode handles POST /wg/qrcode.
func (h *PeerHandler) TemplateQRCode(c *gin.Context) {
	var req model.WGQRCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	conf, err := h.peerService.TemplateConfig(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	writeQRCode(c, conf)
}
