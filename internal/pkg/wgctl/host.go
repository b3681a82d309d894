package wgctl

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// HostController manages wg-quick@<iface> through systemd.
type HostController struct {
	iface string
	run   func(ctx context.Context, name string, args ...string) (string, error)
}

func NewHostController(iface string) *HostController {
	return &HostController{iface: iface, run: runLocal}
}

func (h *HostController) unit() string {
	return "wg-quick@" + h.iface
}

func (h *HostController) Start(ctx context.Context) (*State, error) {
	if _, err := h.run(ctx, "systemctl", "start", h.unit()); err != nil {
		return nil, err
	}
	return h.Status(ctx)
}

func (h *HostController) Stop(ctx context.Context) (*State, error) {
	if _, err := h.run(ctx, "systemctl", "stop", h.unit()); err != nil {
		return nil, err
	}
	return h.Status(ctx)
}

func (h *HostController) Restart(ctx context.Context) (*State, error) {
	if _, err := h.run(ctx, "systemctl", "restart", h.unit()); err != nil {
		return nil, err
	}
	return h.Status(ctx)
}

// Status reports systemd's ActiveState; is-active exits non-zero for
// inactive units so its output is used regardless of the error.
func (h *HostController) Status(ctx context.Context) (*State, error) {
	out, err := h.run(ctx, "systemctl", "is-active", h.unit())
	if out == "" && err != nil {
		return nil, err
	}
	return &State{Name: h.unit(), Status: out}, nil
}

func (h *HostController) Exec(ctx context.Context, args ...string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("empty command")
	}
	return h.run(ctx, args[0], args[1:]...)
}

func runLocal(ctx context.Context, name string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	out := strings.TrimSpace(stdout.String())
	if err != nil {
		return out, fmt.Errorf("%s %s: %v: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}
