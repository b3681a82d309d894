package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

const (
	AuthPassword = "password"
	AuthKey      = "key"
)

type SSHConfig struct {
	Host       string
	Port       int
	Username   string
	AuthType   string
	Password   string
	PrivateKey string
	Passphrase string
	// Signer takes precedence over PrivateKey when set.
	Signer  ssh.Signer
	Timeout time.Duration
}

type Client struct {
	config SSHConfig
	conn   *ssh.Client
}

type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

func NewClient(config SSHConfig) *Client {
	if config.Port == 0 {
		config.Port = 22
	}
	if config.Timeout == 0 {
		config.Timeout = 8 * time.Second
	}
	return &Client{
		config: config,
	}
}

func (c *Client) Addr() string {
	return net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))
}

func (c *Client) Connect(ctx context.Context) error {
	auth, err := c.authMethods()
	if err != nil {
		return err
	}

	config := &ssh.ClientConfig{
		User:            c.config.Username,
		Auth:            auth,
		Timeout:         c.config.Timeout,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // targets are freshly provisioned hosts
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var d net.Dialer
	netConn, err := d.DialContext(dialCtx, "tcp", c.Addr())
	if err != nil {
		return fmt.Errorf("ssh dial %s: %w", c.Addr(), err)
	}

	if deadline, ok := dialCtx.Deadline(); ok {
		_ = netConn.SetDeadline(deadline)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, c.Addr(), config)
	if err != nil {
		netConn.Close()
		return fmt.Errorf("ssh handshake %s: %w", c.Addr(), err)
	}
	_ = netConn.SetDeadline(time.Time{})

	c.conn = ssh.NewClient(sshConn, chans, reqs)
	return nil
}

func (c *Client) authMethods() ([]ssh.AuthMethod, error) {
	if c.config.Signer != nil {
		return []ssh.AuthMethod{ssh.PublicKeys(c.config.Signer)}, nil
	}

	switch c.config.AuthType {
	case AuthPassword:
		return []ssh.AuthMethod{
			ssh.Password(c.config.Password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = c.config.Password
				}
				return answers, nil
			}),
		}, nil
	case AuthKey:
		signer, err := ParsePrivateKey(c.config.PrivateKey, c.config.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	default:
		return nil, fmt.Errorf("unsupported auth type %q", c.config.AuthType)
	}
}

func ParsePrivateKey(privateKey, passphrase string) (ssh.Signer, error) {
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase([]byte(privateKey), []byte(passphrase))
	}
	return ssh.ParsePrivateKey([]byte(privateKey))
}

// ExecuteCommand runs cmd in a fresh session. A non-zero exit status is
// returned both in the result and as an error.
func (c *Client) ExecuteCommand(ctx context.Context, cmd string) (*CommandResult, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("ssh connection not established")
	}

	session, err := c.conn.NewSession()
	if err != nil {
		return nil, fmt.Errorf("create ssh session: %w", err)
	}
	defer session.Close()

	var stdoutBuf, stderrBuf strings.Builder
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case err = <-done:
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return nil, ctx.Err()
	}

	result := &CommandResult{
		Stdout: strings.TrimSpace(stdoutBuf.String()),
		Stderr: strings.TrimSpace(stderrBuf.String()),
	}

	if err != nil {
		var exitError *ssh.ExitError
		if errors.As(err, &exitError) {
			result.ExitCode = exitError.ExitStatus()
		} else {
			result.ExitCode = 1
		}
		return result, fmt.Errorf("command failed: %w", err)
	}

	return result, nil
}

func (c *Client) UploadFile(content, remotePath string) error {
	if c.conn == nil {
		return fmt.Errorf("ssh connection not established")
	}

	session, err := c.conn.NewSession()
	if err != nil {
		return fmt.Errorf("create ssh session: %w", err)
	}
	defer session.Close()

	w, err := session.StdinPipe()
	if err != nil {
		return err
	}

	cmd := fmt.Sprintf("cat > %s", remotePath)
	if err := session.Start(cmd); err != nil {
		return err
	}

	if _, err = io.WriteString(w, content); err != nil {
		return err
	}
	w.Close()

	return session.Wait()
}

func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
