package service

import (
	"errors"

	cryptossh "golang.org/x/crypto/ssh"

	"autovpn-backend/internal/pkg/bootstrap"
	"autovpn-backend/pkg/utils"
)

// InstallerKey is the key pair the backend authorizes on target hosts.
type InstallerKey interface {
	Signer() (cryptossh.Signer, error)
	PublicKey() (string, error)
}

type BootstrapService struct {
	key InstallerKey
}

func NewBootstrapService(key InstallerKey) *BootstrapService {
	return &BootstrapService{key: key}
}

func (b *BootstrapService) PublicKey() (string, error) {
	pub, err := b.key.PublicKey()
	if err != nil || pub == "" {
		return "", ErrPublicKeyMissing
	}
	return pub, nil
}

func (b *BootstrapService) Script(baseURL, user string, nopasswd bool) (string, error) {
	script, err := bootstrap.Render(bootstrap.Options{
		BaseURL:  baseURL,
		User:     user,
		NoPasswd: nopasswd,
	})
	switch {
	case errors.Is(err, bootstrap.ErrInvalidBaseURL):
		return "", utils.NewValidationError("host", baseURL)
	case err != nil:
		return "", utils.NewValidationError("user", user)
	}
	return script, nil
}
