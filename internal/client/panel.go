package client

import (
	"context"
	"net/http"
	"net/url"

	"autovpn-backend/internal/model"
	"autovpn-backend/internal/pkg/wgkeys"
)

// Login stores the auth cookies in the client's jar.
func (c *Client) Login(ctx context.Context, email, password string) error {
	return c.doJSON(ctx, http.MethodPost, "/auth/login", model.LoginRequest{Email: email, Password: password}, nil)
}

func (c *Client) StartWireGuard(ctx context.Context) (*model.ContainerState, error) {
	var st model.ContainerState
	if err := c.doJSON(ctx, http.MethodPost, "/api/wireguard/start", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) Status(ctx context.Context) (*model.StatusResponse, error) {
	var st model.StatusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// DownloadPeerConfig creates a peer called name and returns its .conf text.
func (c *Client) DownloadPeerConfig(ctx context.Context, name string) (string, error) {
	var peer model.PeerResponse
	if err := c.doJSON(ctx, http.MethodPost, "/peers", model.PeerCreateRequest{Name: name}, &peer); err != nil {
		return "", err
	}
	data, err := c.do(ctx, http.MethodGet, "/peers/"+url.PathEscape(peer.ID)+"/config", nil)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *Client) ServerParams(ctx context.Context, req *model.WGParamsRequest) (*model.WGParamsResponse, error) {
	var resp model.WGParamsResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/wg/server_params", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GeneratePeerConfig keeps the private key local: only the public half is
// sent to the server.
func (c *Client) GeneratePeerConfig(ctx context.Context, peerName, serverHint, sshUser, sshPassword string) (string, error) {
	kp, err := wgkeys.GenerateKeyPair()
	if err != nil {
		return "", err
	}
	params, err := c.ServerParams(ctx, &model.WGParamsRequest{
		PeerName:      peerName,
		PeerPublicKey: kp.PublicKey,
		ServerHint:    serverHint,
		SSHUser:       sshUser,
		SSHPassword:   sshPassword,
	})
	if err != nil {
		return "", err
	}
	return BuildClientConfig(kp.PrivateKey, params), nil
}

func BuildClientConfig(privateKey string, params *model.WGParamsResponse) string {
	return wgkeys.RenderClientConfig(wgkeys.ClientConfig{
		PrivateKey:      privateKey,
		Address:         params.ClientAddress,
		DNS:             params.DNS,
		ServerPublicKey: params.ServerPublicKey,
		AllowedIPs:      params.AllowedIPs,
		Endpoint:        params.Endpoint,
	})
}
