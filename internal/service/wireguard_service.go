package service

import (
	"context"
	"errors"

	"autovpn-backend/internal/model"
	"autovpn-backend/internal/pkg/logger"
	"autovpn-backend/internal/pkg/wgctl"
	"autovpn-backend/internal/store"
	"autovpn-backend/pkg/utils"
)

const serverKeySetting = "wg_server_public_key"

type SettingStore interface {
	Setting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

type WireGuardService struct {
	ctl      wgctl.Controller
	iface    string
	settings SettingStore
	logger   *logger.Logger
}

func NewWireGuardService(ctl wgctl.Controller, iface string, settings SettingStore, logger *logger.Logger) *WireGuardService {
	return &WireGuardService{ctl: ctl, iface: iface, settings: settings, logger: logger}
}

func toState(st *wgctl.State) *model.ContainerState {
	if st == nil {
		return nil
	}
	return &model.ContainerState{Name: st.Name, Status: st.Status}
}

func (w *WireGuardService) Control(ctx context.Context, action string) (*model.ContainerState, error) {
	var (
		st  *wgctl.State
		err error
	)
	switch action {
	case "start":
		st, err = w.ctl.Start(ctx)
	case "stop":
		st, err = w.ctl.Stop(ctx)
	case "restart":
		st, err = w.ctl.Restart(ctx)
	default:
		return nil, utils.NewValidationError("action", action)
	}
	if err != nil {
		w.logger.Errorf("wireguard %s failed: %v", action, err)
		return nil, utils.NewWireGuardError(action, err)
	}
	w.logger.Infof("wireguard %s done", action)
	return toState(st), nil
}

func (w *WireGuardService) Status(ctx context.Context) (*model.ContainerState, error) {
	st, err := w.ctl.Status(ctx)
	if err != nil {
		return nil, utils.NewWireGuardError("status", err)
	}
	return toState(st), nil
}

// ServerPublicKey asks the running interface first and falls back to the
// last key seen when the interface is down.
func (w *WireGuardService) ServerPublicKey(ctx context.Context) (string, error) {
	key, err := wgctl.ServerPublicKey(ctx, w.ctl, w.iface)
	if err == nil {
		if serr := w.settings.SetSetting(ctx, serverKeySetting, key); serr != nil {
			w.logger.Warnf("cache server public key: %v", serr)
		}
		return key, nil
	}
	cached, cerr := w.settings.Setting(ctx, serverKeySetting)
	if cerr == nil && cached != "" {
		w.logger.Warnf("using cached server public key: %v", err)
		return cached, nil
	}
	if cerr != nil && !errors.Is(cerr, store.ErrNotFound) {
		w.logger.Warnf("read cached server public key: %v", cerr)
	}
	return "", utils.NewWireGuardError("public-key", err)
}

func (w *WireGuardService) AddPeer(ctx context.Context, publicKey, allowedIPs string) error {
	if err := wgctl.AddPeer(ctx, w.ctl, w.iface, publicKey, allowedIPs); err != nil {
		return utils.NewWireGuardError("add-peer", err)
	}
	return nil
}

func (w *WireGuardService) RemovePeer(ctx context.Context, publicKey string) error {
	if err := wgctl.RemovePeer(ctx, w.ctl, w.iface, publicKey); err != nil {
		return utils.NewWireGuardError("remove-peer", err)
	}
	return nil
}
