package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"autovpn-backend/internal/config"
	"autovpn-backend/internal/model"
	"autovpn-backend/internal/pkg/logger"
	"autovpn-backend/internal/pkg/ssh"
	"autovpn-backend/internal/pkg/sshkeys"
	"autovpn-backend/internal/pkg/wgkeys"
	"autovpn-backend/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAuthService(t *testing.T) {
	ctx := context.Background()
	db := openTestStore(t)
	auth := NewAuthService(config.AuthConfig{
		JWTSecret:  "secret",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	}, db, logger.Nop())

	if err := auth.SeedAdmin(ctx, "admin@example.com", "short"); err == nil {
		t.Fatal("short password accepted for seed")
	}
	if err := auth.SeedAdmin(ctx, "admin@example.com", "Sup3rSecret!"); err != nil {
		t.Fatal(err)
	}
	// a second seed with other credentials is ignored
	if err := auth.SeedAdmin(ctx, "other@example.com", "Another1!pw"); err != nil {
		t.Fatal(err)
	}
	if n, _ := db.CountUsers(ctx); n != 1 {
		t.Fatalf("users = %d, want 1", n)
	}

	if _, err := auth.Login(ctx, "admin@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, err := auth.Login(ctx, "nobody@example.com", "Sup3rSecret!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: %v", err)
	}

	tokens, err := auth.Login(ctx, "admin@example.com", "Sup3rSecret!")
	if err != nil {
		t.Fatal(err)
	}
	email, err := auth.Verify(tokens.Access, TokenAccess)
	if err != nil || email != "admin@example.com" {
		t.Fatalf("verify access: %q %v", email, err)
	}
	if _, err := auth.Verify(tokens.Refresh, TokenAccess); err == nil {
		t.Error("refresh token accepted as access token")
	}

	access, err := auth.Refresh(tokens.Refresh)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := auth.Verify(access, TokenAccess); err != nil {
		t.Errorf("refreshed token invalid: %v", err)
	}

	auth.now = func() time.Time { return time.Now().Add(time.Hour) }
	if _, err := auth.Verify(tokens.Access, TokenAccess); err == nil {
		t.Error("expired access token accepted")
	}
}

// fakeServer is a WireGuard host that only trusts the installer key after
// a password bootstrap.
type fakeServer struct {
	mu         sync.Mutex
	authorized bool
	password   string
	commands   []string
}

type fakeServerSession struct {
	srv      *fakeServer
	password bool
}

func (f *fakeServer) dial(_ context.Context, cfg ssh.SSHConfig) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch cfg.AuthType {
	case ssh.AuthKey:
		if !f.authorized {
			return nil, errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none publickey]")
		}
		return &fakeServerSession{srv: f}, nil
	case ssh.AuthPassword:
		if cfg.Password != f.password {
			return nil, errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password]")
		}
		return &fakeServerSession{srv: f, password: true}, nil
	}
	return nil, errors.New("unknown auth type")
}

func (s *fakeServerSession) ExecuteCommand(_ context.Context, cmd string) (*ssh.CommandResult, error) {
	s.srv.mu.Lock()
	defer s.srv.mu.Unlock()
	s.srv.commands = append(s.srv.commands, cmd)
	switch {
	case s.password && strings.Contains(cmd, "authorized_keys"):
		s.srv.authorized = true
		return &ssh.CommandResult{Stdout: bootstrapOK + "\n"}, nil
	case strings.Contains(cmd, "public-key"):
		return &ssh.CommandResult{Stdout: "c2VydmVyLXB1YmxpYy1rZXk=\n"}, nil
	}
	return &ssh.CommandResult{}, nil
}

func (s *fakeServerSession) UploadFile(string, string) error { return nil }
func (s *fakeServerSession) Close() error                    { return nil }

func newProvisionService(t *testing.T, srv *fakeServer) *ProvisionService {
	t.Helper()
	cfg := &config.Config{
		SSH: config.SSHConfig{ConnectTimeout: time.Second, DefaultUser: "ubuntu"},
		WireGuard: config.WireGuardConfig{
			Mode:       "container",
			Container:  "wireguard",
			Interface:  "wg0",
			Port:       51820,
			Subnet:     "10.13.13.0/24",
			DNS:        "10.13.13.1",
			AllowedIPs: "0.0.0.0/0, ::/0",
		},
	}
	key, err := sshkeys.EnsureKeyPair(t.TempDir(), "autovpn_id")
	if err != nil {
		t.Fatal(err)
	}
	log := logger.Nop()
	return NewProvisionService(cfg, NewSSHService(cfg.SSH, log, srv.dial), key, openTestStore(t), log)
}

func TestServerParamsBootstrapsWithPassword(t *testing.T) {
	srv := &fakeServer{password: "hunter22"}
	p := newProvisionService(t, srv)
	kp, err := wgkeys.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	req := &model.WGParamsRequest{
		PeerName:      "desk",
		PeerPublicKey: kp.PublicKey,
		ServerHint:    "203.0.113.10",
	}

	if _, err := p.ServerParams(context.Background(), req); err == nil {
		t.Fatal("provisioning succeeded without key or password")
	}

	req.SSHPassword = "hunter22"
	resp, err := p.ServerParams(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !srv.authorized {
		t.Error("installer key was not bootstrapped")
	}
	if resp.Endpoint != "203.0.113.10:51820" || resp.ClientAddress != "10.13.13.2/32" {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.ServerPublicKey != "c2VydmVyLXB1YmxpYy1rZXk=" {
		t.Errorf("server key = %q", resp.ServerPublicKey)
	}

	var added bool
	for _, cmd := range srv.commands {
		if strings.HasPrefix(cmd, "sudo -n sh -c ") && strings.Contains(cmd, "docker exec wireguard wg set wg0 peer") {
			added = true
		}
	}
	if !added {
		t.Errorf("add-peer command not run: %q", srv.commands)
	}
}

func TestServerParamsValidates(t *testing.T) {
	p := newProvisionService(t, &fakeServer{})
	cases := []model.WGParamsRequest{
		{PeerName: "desk", PeerPublicKey: "not-a-key", ServerHint: "203.0.113.10"},
		{PeerName: "desk", PeerPublicKey: strings.Repeat("A", 43) + "=", ServerHint: "bad host!"},
		{PeerName: " ", PeerPublicKey: strings.Repeat("A", 43) + "=", ServerHint: "203.0.113.10"},
	}
	for i := range cases {
		if _, err := p.ServerParams(context.Background(), &cases[i]); err == nil {
			t.Errorf("case %d accepted", i)
		}
	}
}

func TestBootstrapService(t *testing.T) {
	key, err := sshkeys.EnsureKeyPair(t.TempDir(), "autovpn_id")
	if err != nil {
		t.Fatal(err)
	}
	b := NewBootstrapService(key)
	pub, err := b.PublicKey()
	if err != nil || !strings.HasPrefix(pub, "ssh-ed25519 ") {
		t.Fatalf("public key %q: %v", pub, err)
	}
	script, err := b.Script("http://10.0.0.5:8080", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(script, "http://10.0.0.5:8080/bootstrap/pubkey") {
		t.Errorf("pubkey URL missing:\n%s", script)
	}
	if _, err := b.Script("http://x", "Bad User", true); err == nil {
		t.Error("invalid user accepted")
	}
}
