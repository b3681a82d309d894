// Package wgctl drives the local WireGuard server, either inside a docker
// container or directly on the host.
package wgctl

import (
	"context"
	"fmt"
	"strings"

	"autovpn-backend/pkg/utils"
)

const (
	ModeContainer = "container"
	ModeHost      = "host"
)

type State struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

type Controller interface {
	Start(ctx context.Context) (*State, error)
	Stop(ctx context.Context) (*State, error)
	Restart(ctx context.Context) (*State, error)
	Status(ctx context.Context) (*State, error)
	// Exec runs a command where wg lives and returns trimmed stdout.
	Exec(ctx context.Context, args ...string) (string, error)
}

func ServerPublicKey(ctx context.Context, c Controller, iface string) (string, error) {
	out, err := c.Exec(ctx, "wg", "show", iface, "public-key")
	if err != nil {
		return "", fmt.Errorf("wg show public-key: %w", err)
	}
	if out == "" || strings.HasPrefix(strings.ToLower(out), "wg:") {
		return "", fmt.Errorf("wg show public-key returned %q", out)
	}
	return out, nil
}

func AddPeer(ctx context.Context, c Controller, iface, publicKey, allowedIPs string) error {
	if _, err := c.Exec(ctx, "wg", "set", iface, "peer", publicKey, "allowed-ips", allowedIPs); err != nil {
		return fmt.Errorf("wg set peer: %w", err)
	}
	return nil
}

func RemovePeer(ctx context.Context, c Controller, iface, publicKey string) error {
	if _, err := c.Exec(ctx, "wg", "set", iface, "peer", publicKey, "remove"); err != nil {
		return fmt.Errorf("wg remove peer: %w", err)
	}
	return nil
}

// Remote builds shell command lines for a WireGuard server reached over SSH.
type Remote struct {
	Mode      string
	Container string
	Interface string
}

func (r Remote) wrap(cmd string) string {
	if r.Mode == ModeHost {
		return cmd
	}
	return fmt.Sprintf("docker exec %s %s", r.Container, cmd)
}

func (r Remote) AddPeerCmd(publicKey, allowedIPs string) string {
	return r.wrap(fmt.Sprintf("wg set %s peer %s allowed-ips %s",
		r.Interface, utils.ShellQuote(publicKey), allowedIPs))
}

func (r Remote) PublicKeyCmd() string {
	return r.wrap(fmt.Sprintf("wg show %s public-key", r.Interface))
}

// PublicKeyFallbackCmd reads the key from where the role stores it.
func (r Remote) PublicKeyFallbackCmd() string {
	if r.Mode == ModeHost {
		return "cat /etc/wireguard/server.pub || (wg pubkey < /etc/wireguard/server.key)"
	}
	return fmt.Sprintf(`docker exec %s sh -lc "cat /config/server.pub || (wg show %s public-key)"`, r.Container, r.Interface)
}
