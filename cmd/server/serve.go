package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"autovpn-backend/internal/config"
	"autovpn-backend/internal/handler"
	"autovpn-backend/internal/pkg/ansible"
	"autovpn-backend/internal/pkg/logger"
	"autovpn-backend/internal/pkg/secretbox"
	"autovpn-backend/internal/pkg/sshkeys"
	"autovpn-backend/internal/pkg/wgctl"
	"autovpn-backend/internal/router"
	"autovpn-backend/internal/service"
	"autovpn-backend/internal/store"
)

func serveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "mode",
			Aliases: []string{"m"},
			Usage:   "installer or server, overrides APP_MODE",
		},
		&cli.StringFlag{
			Name:    "addr",
			Aliases: []string{"a"},
			Usage:   "listen address, overrides SERVER_ADDR",
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "gin debug mode",
		},
	}
}

func serve(ctx *cli.Context, envErr error) error {
	cfg := config.LoadConfig()
	if m := ctx.String("mode"); m != "" {
		cfg.Mode = m
	}
	if a := ctx.String("addr"); a != "" {
		cfg.Server.Addr = a
	}
	if cfg.Mode != config.ModeInstaller && cfg.Mode != config.ModeServer {
		return fmt.Errorf("unknown mode %q", cfg.Mode)
	}

	appLogger := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	defer appLogger.Sync()
	zap.ReplaceGlobals(appLogger.Zap())
	if envErr != nil {
		appLogger.Debug("no .env file loaded, using environment only")
	}

	if ctx.Bool("debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := store.Open(cfg.State.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	key, err := sshkeys.EnsureKeyPair(cfg.State.Dir, cfg.State.KeyName)
	if err != nil {
		return fmt.Errorf("installer key: %w", err)
	}
	sshService := service.NewSSHService(cfg.SSH, appLogger, nil)

	var (
		engine  *gin.Engine
		install *service.InstallService
	)
	if cfg.IsInstaller() {
		box, err := secretbox.Open(cfg.State.Dir, "age.key")
		if err != nil {
			return err
		}
		install = service.NewInstallService(cfg, db, box, ansible.ExecRunner{}, sshService, appLogger)
		engine = router.NewInstaller(cfg, appLogger, router.InstallerHandlers{
			SSH:     handler.NewSSHHandler(install),
			Install: handler.NewInstallHandler(install, router.AllowedOrigins(cfg), appLogger),
		})
	} else {
		h, err := serverHandlers(ctx.Context, cfg, db, key, sshService, appLogger)
		if err != nil {
			return err
		}
		engine = router.NewServer(cfg, appLogger, h)
	}

	sigCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	srv := newHTTPServer(sigCtx, cfg.Server.Addr, engine, cfg.Server.ReadTimeout)

	errCh := make(chan error, 1)
	go func() {
		appLogger.Infof("Server starting on %s (%s mode)", cfg.Server.Addr, cfg.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-sigCtx.Done():
	}

	appLogger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// request contexts derive from sigCtx, so log followers have already
	// been told to stop
	err = srv.Shutdown(shutdownCtx)
	if install != nil {
		install.Close()
	}
	return err
}

// newHTTPServer ties every request context to ctx. Long-lived log streams
// end as soon as ctx is cancelled instead of holding Shutdown open.
func newHTTPServer(ctx context.Context, addr string, h http.Handler, readHeaderTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serverHandlers(ctx context.Context, cfg *config.Config, db *store.Store, key *sshkeys.KeyPair, sshService *service.SSHService, log *logger.Logger) (router.ServerHandlers, error) {
	box, err := secretbox.Open(cfg.State.Dir, "age.key")
	if err != nil {
		return router.ServerHandlers{}, err
	}

	var ctl wgctl.Controller
	switch cfg.WireGuard.Mode {
	case wgctl.ModeHost:
		ctl = wgctl.NewHostController(cfg.WireGuard.Interface)
	default:
		dc, err := wgctl.NewDockerController(cfg.WireGuard.Container)
		if err != nil {
			return router.ServerHandlers{}, err
		}
		ctl = dc
	}

	auth := service.NewAuthService(cfg.Auth, db, log)
	if err := auth.SeedAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		return router.ServerHandlers{}, fmt.Errorf("seed admin: %w", err)
	}

	wg := service.NewWireGuardService(ctl, cfg.WireGuard.Interface, db, log)
	peers := service.NewPeerService(cfg.WireGuard, db, wg, box, log)
	provision := service.NewProvisionService(cfg, sshService, key, db, log)

	return router.ServerHandlers{
		Auth:      handler.NewAuthHandler(auth, cfg.Auth.CookieSecure),
		WireGuard: handler.NewWireGuardHandler(wg, provision),
		Peer:      handler.NewPeerHandler(peers),
		Bootstrap: handler.NewBootstrapHandler(service.NewBootstrapService(key)),
		Status:    handler.NewStatusHandler(service.NewStatusService(db, wg, nil, log)),
		Verifier:  auth,
	}, nil
}
