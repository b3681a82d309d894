package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"autovpn-backend/internal/config"
	"autovpn-backend/internal/handler"
	"autovpn-backend/internal/middleware"
	"autovpn-backend/internal/pkg/logger"
)

// InstallerHandlers are mounted when APP_MODE=installer.
type InstallerHandlers struct {
	SSH     *handler.SSHHandler
	Install *handler.InstallHandler
}

// ServerHandlers are mounted when APP_MODE=server.
type ServerHandlers struct {
	Auth      *handler.AuthHandler
	WireGuard *handler.WireGuardHandler
	Peer      *handler.PeerHandler
	Bootstrap *handler.BootstrapHandler
	Status    *handler.StatusHandler
	Verifier  middleware.TokenVerifier
}

// AllowedOrigins is the CORS allow list for the SPAs.
func AllowedOrigins(cfg *config.Config) []string {
	origins := []string{cfg.Server.FrontendOrigin}
	if cfg.Server.FrontendOrigin != "http://127.0.0.1:3000" {
		origins = append(origins, "http://127.0.0.1:3000")
	}
	return origins
}

func newEngine(cfg *config.Config, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(log))
	r.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = AllowedOrigins(cfg)
	corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	corsCfg.ExposeHeaders = []string{"Content-Disposition"}
	corsCfg.AllowCredentials = true
	corsCfg.MaxAge = 12 * time.Hour
	r.Use(cors.New(corsCfg))

	r.GET("/health", handler.Health(cfg.Mode))
	return r
}

func NewInstaller(cfg *config.Config, log *logger.Logger, h InstallerHandlers) *gin.Engine {
	r := newEngine(cfg, log)
	install := r.Group("/install")
	{
		install.POST("/check-ssh", h.SSH.CheckSSH)
		install.POST("/config", h.Install.WriteConfig)
		install.POST("/run", h.Install.CreateRun)
		install.GET("/runs", h.Install.ListRuns)

		logs := install.Group("/logs/:run_id")
		logs.GET("", h.Install.StreamLogs)
		logs.GET("/ws", h.Install.StreamLogsWS)
		logs.GET("/raw", h.Install.RawLog)
		logs.GET("/download", h.Install.DownloadLog)
	}
	return r
}

func NewServer(cfg *config.Config, log *logger.Logger, h ServerHandlers) *gin.Engine {
	r := newEngine(cfg, log)
	requireAuth := middleware.RequireAuth(h.Verifier)

	auth := r.Group("/auth")
	{
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
		auth.POST("/logout", h.Auth.Logout)
	}

	api := r.Group("/api", requireAuth)
	{
		api.GET("/status", h.Status.Status)
		api.POST("/wireguard/start", h.WireGuard.Start())
		api.POST("/wireguard/stop", h.WireGuard.Stop())
		api.POST("/wireguard/restart", h.WireGuard.Restart())
		api.POST("/wg/server_params", h.WireGuard.ServerParams)
		api.POST("/wg/qrcode", h.Peer.TemplateQRCode)
	}
	r.POST("/wg/server_params", requireAuth, h.WireGuard.ServerParams)
	r.POST("/wg/qrcode", requireAuth, h.Peer.TemplateQRCode)

	peers := r.Group("/peers", requireAuth)
	{
		peers.POST("", h.Peer.Create)
		peers.GET("", h.Peer.List)
		peers.GET("/:id/config", h.Peer.Config)
		peers.GET("/:id/qrcode", h.Peer.QRCode)
		peers.DELETE("/:id", h.Peer.Revoke)
	}

	bootstrap := r.Group("/bootstrap")
	{
		bootstrap.GET("/pubkey", h.Bootstrap.PublicKey)
		bootstrap.GET("/script", h.Bootstrap.Script)
	}
	return r
}
