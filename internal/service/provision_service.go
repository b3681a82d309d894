package service

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"autovpn-backend/internal/config"
	"autovpn-backend/internal/model"
	"autovpn-backend/internal/pkg/logger"
	"autovpn-backend/internal/pkg/ssh"
	"autovpn-backend/internal/pkg/wgctl"
	"autovpn-backend/pkg/utils"
)

const (
	bootstrapOK          = "BOOTSTRAP_OK"
	uploadedInstallerPub = ".autovpn_installer.pub"
)

// ProvisionService registers a client's public key on a remote WireGuard
// server over SSH and returns what the client needs to build its config.
type ProvisionService struct {
	ssh     *SSHService
	key     InstallerKey
	pool    AddressPool
	wg      config.WireGuardConfig
	timeout time.Duration
	user    string
	logger  *logger.Logger
}

func NewProvisionService(cfg *config.Config, sshService *SSHService, key InstallerKey, pool AddressPool, logger *logger.Logger) *ProvisionService {
	user := cfg.SSH.DefaultUser
	if user == "" {
		user = "ubuntu"
	}
	return &ProvisionService{
		ssh:     sshService,
		key:     key,
		pool:    pool,
		wg:      cfg.WireGuard,
		timeout: cfg.SSH.ConnectTimeout,
		user:    user,
		logger:  logger,
	}
}

func (p *ProvisionService) remote() wgctl.Remote {
	return wgctl.Remote{Mode: p.wg.Mode, Container: p.wg.Container, Interface: p.wg.Interface}
}

func (p *ProvisionService) ServerParams(ctx context.Context, req *model.WGParamsRequest) (*model.WGParamsResponse, error) {
	if err := utils.ValidateWireGuardKey(req.PeerPublicKey); err != nil {
		return nil, utils.NewValidationError("peer_public_key", req.PeerPublicKey)
	}
	if err := utils.ValidateHost(req.ServerHint); err != nil {
		return nil, utils.NewValidationError("server_hint", req.ServerHint)
	}
	if strings.TrimSpace(req.PeerName) == "" {
		return nil, utils.NewValidationError("peer_name", req.PeerName)
	}

	resp, err := p.provision(ctx, req)
	if err != nil {
		p.logger.Errorf("provisioning %s on %s failed: %v", req.PeerName, req.ServerHint, err)
		return nil, utils.NewProvisionError(err)
	}
	p.logger.PeerEvent("provisioned", resp.ClientAddress, req.PeerName)
	return resp, nil
}

func (p *ProvisionService) provision(ctx context.Context, req *model.WGParamsRequest) (*model.WGParamsResponse, error) {
	server, err := serverAddress(p.wg.Subnet)
	if err != nil {
		return nil, err
	}
	clientAddress, err := p.pool.AllocateAddress(ctx, req.PeerName, p.wg.Subnet, server)
	if err != nil {
		return nil, err
	}

	signer, err := p.key.Signer()
	if err != nil {
		return nil, fmt.Errorf("load installer key: %w", err)
	}
	user := req.SSHUser
	if user == "" {
		user = p.user
	}
	keyCfg := ssh.SSHConfig{
		Host:     req.ServerHint,
		Username: user,
		AuthType: ssh.AuthKey,
		Signer:   signer,
		Timeout:  p.timeout,
	}

	remote := p.remote()
	addCmd := sudo(remote.AddPeerCmd(req.PeerPublicKey, clientAddress))
	p.logger.SSHConnectionAttempt("key", req.ServerHint)
	if _, err := p.ssh.Run(ctx, keyCfg, addCmd); err != nil {
		if req.SSHPassword == "" || !needsBootstrap(err) {
			return nil, err
		}
		p.logger.Infof("key login to %s refused, bootstrapping with password", req.ServerHint)
		if err := p.bootstrapKey(ctx, req.ServerHint, user, req.SSHPassword); err != nil {
			return nil, err
		}
		if _, err := p.ssh.Run(ctx, keyCfg, addCmd); err != nil {
			return nil, err
		}
	}

	serverKey, err := p.serverPublicKey(ctx, keyCfg, remote)
	if err != nil {
		return nil, err
	}

	return &model.WGParamsResponse{
		Endpoint:        net.JoinHostPort(req.ServerHint, strconv.Itoa(p.wg.Port)),
		ServerPublicKey: serverKey,
		DNS:             p.wg.DNS,
		AllowedIPs:      p.wg.AllowedIPs,
		ClientAddress:   clientAddress,
	}, nil
}

func needsBootstrap(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"permission denied", "unable to authenticate", "unreachable"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// bootstrapKey logs in with the password and appends the installer key to
// the user's authorized_keys unless it is already there.
func (p *ProvisionService) bootstrapKey(ctx context.Context, host, user, password string) error {
	pub, err := p.key.PublicKey()
	if err != nil {
		return fmt.Errorf("installer public key not found for bootstrap: %w", err)
	}

	p.logger.SSHConnectionAttempt("password", host)
	sess, err := p.ssh.dial(ctx, ssh.SSHConfig{
		Host:     host,
		Username: user,
		AuthType: ssh.AuthPassword,
		Password: password,
		Timeout:  p.timeout,
	})
	if err != nil {
		return fmt.Errorf("password login: %w", err)
	}
	defer sess.Close()

	if err := sess.UploadFile(pub, uploadedInstallerPub); err != nil {
		return fmt.Errorf("upload installer key: %w", err)
	}
	script := strings.Join([]string{
		"set -e",
		"mkdir -p ~/.ssh",
		"chmod 700 ~/.ssh",
		"touch ~/.ssh/authorized_keys",
		fmt.Sprintf(`grep -q -F "$(cat ~/%[1]s)" ~/.ssh/authorized_keys || cat ~/%[1]s >> ~/.ssh/authorized_keys`, uploadedInstallerPub),
		"chmod 600 ~/.ssh/authorized_keys",
		"rm -f ~/" + uploadedInstallerPub,
		"echo " + bootstrapOK,
	}, "\n")
	res, err := execute(ctx, sess, script)
	if err != nil {
		return fmt.Errorf("install key in authorized_keys: %w", err)
	}
	if !strings.Contains(res.Stdout, bootstrapOK) {
		return fmt.Errorf("could not install the public key in authorized_keys")
	}
	return nil
}

func (p *ProvisionService) serverPublicKey(ctx context.Context, cfg ssh.SSHConfig, remote wgctl.Remote) (string, error) {
	res, err := p.ssh.Run(ctx, cfg, sudo(remote.PublicKeyCmd()))
	if err == nil {
		if key := lastLine(res.Stdout); key != "" && !strings.HasPrefix(strings.ToLower(key), "wg:") {
			return key, nil
		}
	}
	res, err = p.ssh.Run(ctx, cfg, sudo(remote.PublicKeyFallbackCmd()))
	if err != nil {
		return "", fmt.Errorf("read server public key: %w", err)
	}
	key := lastLine(res.Stdout)
	if key == "" {
		return "", fmt.Errorf("could not read the %s public key", p.wg.Interface)
	}
	return key, nil
}
