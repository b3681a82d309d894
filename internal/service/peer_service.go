package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"github.com/rs/xid"

	"autovpn-backend/internal/config"
	"autovpn-backend/internal/model"
	"autovpn-backend/internal/pkg/logger"
	"autovpn-backend/internal/pkg/secretbox"
	"autovpn-backend/internal/pkg/wgkeys"
	"autovpn-backend/internal/store"
	"autovpn-backend/pkg/utils"
)

type AddressPool interface {
	AllocateAddress(ctx context.Context, name, cidr string, reserved ...netip.Addr) (string, error)
	ReleaseAddress(ctx context.Context, name string) error
}

type PeerStore interface {
	AddressPool
	CreatePeer(ctx context.Context, p *store.Peer) error
	Peer(ctx context.Context, id string) (*store.Peer, error)
	ListPeers(ctx context.Context, owner string) ([]*store.Peer, error)
	RevokePeer(ctx context.Context, id string) error
}

type PeerService struct {
	peers  PeerStore
	wg     *WireGuardService
	box    *secretbox.Box
	cfg    config.WireGuardConfig
	logger *logger.Logger
}

func NewPeerService(cfg config.WireGuardConfig, peers PeerStore, wg *WireGuardService, box *secretbox.Box, logger *logger.Logger) *PeerService {
	return &PeerService{peers: peers, wg: wg, box: box, cfg: cfg, logger: logger}
}

// serverAddress is the first host of the subnet, held by wg0 itself.
func serverAddress(subnet string) (netip.Addr, error) {
	prefix, err := netip.ParsePrefix(subnet)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("parse subnet %q: %w", subnet, err)
	}
	return prefix.Masked().Addr().Next(), nil
}

func allocationName(peerID string) string {
	return "peer/" + peerID
}

func toPeerResponse(p *store.Peer) model.PeerResponse {
	return model.PeerResponse{
		ID:        p.ID,
		Name:      p.Name,
		Address:   p.Address,
		PublicKey: p.PublicKey,
		CreatedAt: p.CreatedAt,
	}
}

func (s *PeerService) Create(ctx context.Context, owner, name string) (*model.PeerResponse, error) {
	if err := utils.ValidatePeerName(name); err != nil {
		return nil, utils.NewValidationError("name", name)
	}
	server, err := serverAddress(s.cfg.Subnet)
	if err != nil {
		return nil, utils.NewSystemError(err)
	}

	kp, err := wgkeys.GenerateKeyPair()
	if err != nil {
		return nil, utils.NewSystemError(err)
	}
	id := xid.New().String()

	address, err := s.peers.AllocateAddress(ctx, allocationName(id), s.cfg.Subnet, server)
	if err != nil {
		if errors.Is(err, store.ErrPoolExhausted) {
			return nil, err
		}
		return nil, utils.NewSystemError(err)
	}
	release := func() {
		if rerr := s.peers.ReleaseAddress(ctx, allocationName(id)); rerr != nil {
			s.logger.Warnf("release address for %s: %v", id, rerr)
		}
	}

	sealed, err := s.box.Seal(kp.PrivateKey)
	if err != nil {
		release()
		return nil, utils.NewSystemError(err)
	}
	if err := s.wg.AddPeer(ctx, kp.PublicKey, address); err != nil {
		release()
		return nil, err
	}

	peer := &store.Peer{
		ID:         id,
		Owner:      owner,
		Name:       name,
		PrivateKey: sealed,
		PublicKey:  kp.PublicKey,
		Address:    address,
	}
	if err := s.peers.CreatePeer(ctx, peer); err != nil {
		if rerr := s.wg.RemovePeer(ctx, kp.PublicKey); rerr != nil {
			s.logger.Warnf("roll back peer %s: %v", id, rerr)
		}
		release()
		return nil, utils.NewSystemError(err)
	}

	s.logger.PeerEvent("created", id, name)
	resp := toPeerResponse(peer)
	return &resp, nil
}

func (s *PeerService) List(ctx context.Context, owner string) (*model.PeerListResponse, error) {
	peers, err := s.peers.ListPeers(ctx, owner)
	if err != nil {
		return nil, utils.NewSystemError(err)
	}
	resp := &model.PeerListResponse{Peers: make([]model.PeerResponse, 0, len(peers))}
	for _, p := range peers {
		resp.Peers = append(resp.Peers, toPeerResponse(p))
	}
	return resp, nil
}

func (s *PeerService) owned(ctx context.Context, owner, id string) (*store.Peer, error) {
	p, err := s.peers.Peer(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrPeerNotFound
		}
		return nil, utils.NewSystemError(err)
	}
	if p.Revoked() || (owner != "" && p.Owner != owner) {
		return nil, ErrPeerNotFound
	}
	return p, nil
}

// Config renders the client .conf for a peer and returns it with the peer name.
func (s *PeerService) Config(ctx context.Context, owner, id string) (string, string, error) {
	p, err := s.owned(ctx, owner, id)
	if err != nil {
		return "", "", err
	}
	priv, err := s.box.Unseal(p.PrivateKey)
	if err != nil {
		return "", "", utils.NewSystemError(err)
	}
	serverKey, err := s.wg.ServerPublicKey(ctx)
	if err != nil {
		return "", "", err
	}

	conf := wgkeys.RenderClientConfig(wgkeys.ClientConfig{
		PrivateKey:      priv,
		Address:         p.Address,
		DNS:             s.cfg.DNS,
		ServerPublicKey: serverKey,
		AllowedIPs:      s.cfg.AllowedIPs,
		Endpoint:        net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)),
	})
	return p.Name, conf, nil
}

const privateKeyPlaceholder = "REPLACE_ON_CLIENT"

// TemplateConfig renders a client config against this server for an
// arbitrary endpoint, used for QR codes of configs that are not stored peers.
func (s *PeerService) TemplateConfig(ctx context.Context, req *model.WGQRCodeRequest) (string, error) {
	if err := utils.ValidateHost(req.ServerIP); err != nil {
		return "", utils.NewValidationError("server_ip", req.ServerIP)
	}
	priv := req.PrivateKey
	if priv == "" {
		priv = privateKeyPlaceholder
	} else if err := utils.ValidateWireGuardKey(priv); err != nil {
		return "", utils.NewValidationError("private_key", "<redacted>")
	}
	address := req.ClientAddress
	if address == "" {
		server, err := serverAddress(s.cfg.Subnet)
		if err != nil {
			return "", utils.NewSystemError(err)
		}
		address = netip.PrefixFrom(server.Next(), 32).String()
	} else if _, err := netip.ParsePrefix(address); err != nil {
		return "", utils.NewValidationError("client_address", address)
	}

	serverKey, err := s.wg.ServerPublicKey(ctx)
	if err != nil {
		return "", err
	}
	return wgkeys.RenderClientConfig(wgkeys.ClientConfig{
		PrivateKey:      priv,
		Address:         address,
		DNS:             s.cfg.DNS,
		ServerPublicKey: serverKey,
		AllowedIPs:      s.cfg.AllowedIPs,
		Endpoint:        net.JoinHostPort(req.ServerIP, strconv.Itoa(s.cfg.Port)),
	}), nil
}

func (s *PeerService) Revoke(ctx context.Context, owner, id string) error {
	p, err := s.owned(ctx, owner, id)
	if err != nil {
		return err
	}
	if err := s.wg.RemovePeer(ctx, p.PublicKey); err != nil {
		// the interface may be down; the peer is gone once it restarts
		s.logger.Warnf("remove peer %s from wireguard: %v", id, err)
	}
	if err := s.peers.RevokePeer(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrPeerNotFound
		}
		return utils.NewSystemError(err)
	}
	if err := s.peers.ReleaseAddress(ctx, allocationName(id)); err != nil {
		s.logger.Warnf("release address for %s: %v", id, err)
	}
	s.logger.PeerEvent("revoked", id, p.Name)
	return nil
}
