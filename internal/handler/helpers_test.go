package handler_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"autovpn-backend/internal/config"
	"autovpn-backend/internal/handler"
	"autovpn-backend/internal/pkg/logger"
	"autovpn-backend/internal/pkg/secretbox"
	"autovpn-backend/internal/pkg/ssh"
	"autovpn-backend/internal/pkg/sshkeys"
	"autovpn-backend/internal/pkg/wgctl"
	"autovpn-backend/internal/router"
	"autovpn-backend/internal/service"
	"autovpn-backend/internal/store"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "Sup3rSecret!"
	serverPubKey  = "c2VydmVyLXB1YmxpYy1rZXktYmFzZTY0LWVuY29kZWQ="
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(t *testing.T, mode string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Mode: mode,
		Server: config.ServerConfig{
			Addr:           "127.0.0.1:0",
			FrontendOrigin: "http://localhost:3000",
		},
		State: config.StateConfig{
			Dir:     dir,
			DBPath:  filepath.Join(dir, "autovpn.db"),
			RunsDir: filepath.Join(dir, "runs"),
			TempDir: dir,
			KeyName: "autovpn_id",
		},
		Ansible: config.AnsibleConfig{
			Dir:           filepath.Join(dir, "ansible"),
			PlaybookBin:   "ansible-playbook",
			DeployPlay:    "site-deploy.yml",
			StackPlay:     "site-stack.yml",
			InventoryName: "cloud",
		},
		Auth: config.AuthConfig{
			JWTSecret:  "test-secret",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 24 * time.Hour,
		},
		WireGuard: config.WireGuardConfig{
			Mode:       wgctl.ModeContainer,
			Container:  "wireguard",
			Interface:  "wg0",
			Host:       "vpn.example.com",
			Port:       51820,
			Subnet:     "10.13.13.0/24",
			DNS:        "10.13.13.1",
			AllowedIPs: "0.0.0.0/0, ::/0",
		},
		SSH: config.SSHConfig{
			ConnectTimeout: time.Second,
			DefaultUser:    "ubuntu",
		},
	}
}

func openStore(t *testing.T, cfg *config.Config) *store.Store {
	t.Helper()
	db, err := store.Open(cfg.State.DBPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newBox(t *testing.T) *secretbox.Box {
	t.Helper()
	box, err := secretbox.New()
	if err != nil {
		t.Fatalf("secretbox: %v", err)
	}
	return box
}

// fakeController stands in for the wireguard container.
type fakeController struct {
	mu     sync.Mutex
	status string
	peers  map[string]string
}

func newFakeController() *fakeController {
	return &fakeController{status: "exited", peers: make(map[string]string)}
}

func (f *fakeController) state() *wgctl.State {
	return &wgctl.State{Name: "wireguard", Status: f.status}
}

func (f *fakeController) Start(context.Context) (*wgctl.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = "running"
	return f.state(), nil
}

func (f *fakeController) Stop(context.Context) (*wgctl.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = "exited"
	return f.state(), nil
}

func (f *fakeController) Restart(ctx context.Context) (*wgctl.State, error) {
	return f.Start(ctx)
}

func (f *fakeController) Status(context.Context) (*wgctl.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state(), nil
}

func (f *fakeController) Exec(_ context.Context, args ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := strings.Join(args, " ")
	switch {
	case cmd == "wg show wg0 public-key":
		return serverPubKey, nil
	case len(args) == 7 && args[1] == "set" && args[5] == "allowed-ips":
		f.peers[args[4]] = args[6]
		return "", nil
	case len(args) == 6 && args[1] == "set" && args[5] == "remove":
		delete(f.peers, args[4])
		return "", nil
	}
	return "", fmt.Errorf("unexpected command %q", cmd)
}

// fakeSession answers every command with ok.
type fakeSession struct{}

func (fakeSession) ExecuteCommand(_ context.Context, cmd string) (*ssh.CommandResult, error) {
	return &ssh.CommandResult{Stdout: "ok\n"}, nil
}
func (fakeSession) UploadFile(string, string) error { return nil }
func (fakeSession) Close() error                    { return nil }

func fakeDial(_ context.Context, cfg ssh.SSHConfig) (service.Session, error) {
	if cfg.Host == "203.0.113.99" {
		return nil, fmt.Errorf("dial tcp %s:22: connect: connection refused", cfg.Host)
	}
	return fakeSession{}, nil
}

// fakeRunner prints a couple of lines per playbook. deploys, when set,
// counts deploy playbook invocations.
type fakeRunner struct {
	fail    string
	deploys *atomic.Int32
}

func (r fakeRunner) Stream(_ context.Context, _, _ string, args []string, onLine func(string)) error {
	playbook := filepath.Base(args[len(args)-1])
	if playbook == "site-deploy.yml" && r.deploys != nil {
		r.deploys.Add(1)
		// give concurrent subscribers time to pile up
		time.Sleep(20 * time.Millisecond)
	}
	onLine("PLAY [" + playbook + "]")
	if playbook == r.fail {
		onLine("fatal: [cloud]: FAILED!")
		return fmt.Errorf("exit status 2")
	}
	onLine("ok: [cloud]")
	return nil
}

type serverEnv struct {
	cfg    *config.Config
	db     *store.Store
	wg     *fakeController
	engine *gin.Engine
}

func newServerEnv(t *testing.T) *serverEnv {
	t.Helper()
	cfg := testConfig(t, config.ModeServer)
	db := openStore(t, cfg)
	box := newBox(t)
	log := logger.Nop()

	key, err := sshkeys.EnsureKeyPair(cfg.State.Dir, cfg.State.KeyName)
	if err != nil {
		t.Fatalf("key pair: %v", err)
	}

	auth := service.NewAuthService(cfg.Auth, db, log)
	if err := auth.SeedAdmin(context.Background(), adminEmail, adminPassword); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	ctl := newFakeController()
	wg := service.NewWireGuardService(ctl, cfg.WireGuard.Interface, db, log)
	sshService := service.NewSSHService(cfg.SSH, log, fakeDial)

	engine := router.NewServer(cfg, log, router.ServerHandlers{
		Auth:      handler.NewAuthHandler(auth, false),
		WireGuard: handler.NewWireGuardHandler(wg, service.NewProvisionService(cfg, sshService, key, db, log)),
		Peer:      handler.NewPeerHandler(service.NewPeerService(cfg.WireGuard, db, wg, box, log)),
		Bootstrap: handler.NewBootstrapHandler(service.NewBootstrapService(key)),
		Status:    handler.NewStatusHandler(service.NewStatusService(db, wg, nil, log)),
		Verifier:  auth,
	})
	return &serverEnv{cfg: cfg, db: db, wg: ctl, engine: engine}
}

type installerEnv struct {
	cfg     *config.Config
	engine  *gin.Engine
	install *service.InstallService
}

func newInstallerEnv(t *testing.T, runner fakeRunner) *installerEnv {
	t.Helper()
	cfg := testConfig(t, config.ModeInstaller)
	db := openStore(t, cfg)
	log := logger.Nop()

	sshService := service.NewSSHService(cfg.SSH, log, fakeDial)
	install := service.NewInstallService(cfg, db, newBox(t), runner, sshService, log)
	t.Cleanup(install.Close)

	engine := router.NewInstaller(cfg, log, router.InstallerHandlers{
		SSH:     handler.NewSSHHandler(install),
		Install: handler.NewInstallHandler(install, router.AllowedOrigins(cfg), log),
	})
	return &installerEnv{cfg: cfg, engine: engine, install: install}
}

func do(engine http.Handler, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}
