package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"autovpn-backend/internal/pkg/bootstrap"
	"autovpn-backend/internal/service"
	"autovpn-backend/pkg/utils"
)

type BootstrapHandler struct {
	bootstrapService *service.BootstrapService
}

func NewBootstrapHandler(bootstrapService *service.BootstrapService) *BootstrapHandler {
	return &BootstrapHandler{
		bootstrapService: bootstrapService,
	}
}

// PublicKey handles GET /bootstrap/pubkey.
func (h *BootstrapHandler) PublicKey(c *gin.Context) {
	pub, err := h.bootstrapService.PublicKey()
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(pub))
}

// Script handles GET /bootstrap/script?user=<name>&nopasswd=0|1.
func (h *BootstrapHandler) Script(c *gin.Context) {
	user := c.DefaultQuery("user", bootstrap.DefaultUser)
	var nopasswd bool
	switch c.DefaultQuery("nopasswd", "1") {
	case "1":
		nopasswd = true
	case "0":
	default:
		writeError(c, utils.NewBadRequestError("nopasswd must be 0 or 1"))
		return
	}

	script, err := h.bootstrapService.Script(baseURL(c.Request), user, nopasswd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="bootstrap.sh"`)
	c.Data(http.StatusOK, "text/x-shellscript; charset=utf-8", []byte(script))
}

// baseURL rebuilds the public URL of this server, trusting the
// X-Forwarded-* headers set by the reverse proxy.
func baseURL(r *http.Request) string {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}
	scheme = strings.TrimSpace(strings.Split(scheme, ",")[0])

	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	host = strings.TrimSpace(strings.Split(host, ",")[0])

	if port := strings.TrimSpace(r.Header.Get("X-Forwarded-Port")); port != "" && !strings.Contains(host, ":") {
		if !(scheme == "http" && port == "80") && !(scheme == "https" && port == "443") {
			host += ":" + port
		}
	}
	return scheme + "://" + host
}
