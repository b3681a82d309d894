package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"autovpn-backend/internal/config"
	"autovpn-backend/internal/model"
	"autovpn-backend/internal/pkg/logger"
	"autovpn-backend/internal/pkg/ssh"
	"autovpn-backend/pkg/utils"
)

// Session is an established SSH connection.
type Session interface {
	ExecuteCommand(ctx context.Context, cmd string) (*ssh.CommandResult, error)
	UploadFile(content, remotePath string) error
	Close() error
}

type Dialer func(ctx context.Context, cfg ssh.SSHConfig) (Session, error)

func DialSSH(ctx context.Context, cfg ssh.SSHConfig) (Session, error) {
	client := ssh.NewClient(cfg)
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

type SSHService struct {
	logger         *logger.Logger
	dial           Dialer
	connectTimeout time.Duration
	defaultUser    string
}

func NewSSHService(cfg config.SSHConfig, logger *logger.Logger, dial Dialer) *SSHService {
	if dial == nil {
		dial = DialSSH
	}
	user := cfg.DefaultUser
	if user == "" {
		user = "ubuntu"
	}
	return &SSHService{
		logger:         logger,
		dial:           dial,
		connectTimeout: cfg.ConnectTimeout,
		defaultUser:    user,
	}
}

// TargetConfig converts the wizard's SSH section into client settings.
func (s *SSHService) TargetConfig(req *model.SSHConfig) ssh.SSHConfig {
	cfg := ssh.SSHConfig{
		Host:     req.ElasticIP,
		Port:     req.PortOrDefault(),
		Username: req.User,
		Timeout:  s.connectTimeout,
	}
	if cfg.Username == "" {
		cfg.Username = s.defaultUser
	}
	if req.UsesPEM() {
		cfg.AuthType = ssh.AuthKey
		cfg.PrivateKey = req.PEM
	} else {
		cfg.AuthType = ssh.AuthPassword
		cfg.Password = req.SSHPassword
	}
	return cfg
}

func validateTarget(req *model.SSHConfig) error {
	if req.PEM == "" && req.SSHPassword == "" {
		return utils.NewBadRequestError("pem or ssh_password is required")
	}
	if err := utils.ValidateHost(req.ElasticIP); err != nil {
		return utils.NewValidationError("elastic_ip", req.ElasticIP)
	}
	if req.SSHPort != 0 {
		if err := utils.ValidatePort(req.SSHPort); err != nil {
			return utils.NewValidationError("ssh_port", req.SSHPort)
		}
	}
	if req.UsesPEM() {
		if err := utils.ValidatePrivateKey(req.PEM); err != nil {
			return utils.NewBadRequestError(err.Error())
		}
	}
	return nil
}

// TestConnection logs in to the target and runs "echo ok".
func (s *SSHService) TestConnection(ctx context.Context, req *model.SSHConfig) (*model.CheckSSHResponse, error) {
	if err := validateTarget(req); err != nil {
		return nil, err
	}

	cfg := s.TargetConfig(req)
	s.logger.SSHConnectionAttempt(cfg.AuthType, req.ElasticIP)

	res, err := s.Run(ctx, cfg, "echo ok")
	if err != nil {
		s.logger.Warnf("SSH check failed for %s: %v", req.ElasticIP, err)
		return nil, utils.NewSSHError(err)
	}
	return &model.CheckSSHResponse{OK: true, Stdout: res.Stdout}, nil
}

// Run opens a connection, executes cmd and closes it again. A non-zero exit
// status is reported with the remote stderr.
func (s *SSHService) Run(ctx context.Context, cfg ssh.SSHConfig, cmd string) (*ssh.CommandResult, error) {
	sess, err := s.dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	return execute(ctx, sess, cmd)
}

func execute(ctx context.Context, sess Session, cmd string) (*ssh.CommandResult, error) {
	res, err := sess.ExecuteCommand(ctx, cmd)
	if err != nil {
		if res != nil {
			if msg := firstNonEmpty(res.Stderr, res.Stdout); msg != "" {
				return res, errors.New(msg)
			}
		}
		return res, err
	}
	return res, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

func sudo(cmd string) string {
	return fmt.Sprintf("sudo -n sh -c %s", utils.ShellQuote(cmd))
}
