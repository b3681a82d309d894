// Package secretbox seals run credentials (PEM keys, SSH passwords, rendered
// inventories) with an age X25519 identity kept in the state directory.
package secretbox

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"
)

type Box struct {
	identity *age.X25519Identity
}

// Open loads dir/name or creates it with a fresh identity.
func Open(dir, name string) (*Box, error) {
	path := filepath.Join(dir, name)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		id, err := age.ParseX25519Identity(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("parse age identity %s: %w", path, err)
		}
		return &Box{identity: id}, nil
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read age identity: %w", err)
	}

	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generate age identity: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(id.String()+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("write age identity: %w", err)
	}
	return &Box{identity: id}, nil
}

// New wraps an in-memory identity.
func New() (*Box, error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, err
	}
	return &Box{identity: id}, nil
}

// Seal returns ASCII-armored ciphertext. Empty input seals to "".
func (b *Box) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	var buf bytes.Buffer
	aw := armor.NewWriter(&buf)
	w, err := age.Encrypt(aw, b.identity.Recipient())
	if err != nil {
		return "", fmt.Errorf("age encrypt: %w", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	if err := aw.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (b *Box) Unseal(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	r, err := age.Decrypt(armor.NewReader(strings.NewReader(ciphertext)), b.identity)
	if err != nil {
		return "", fmt.Errorf("age decrypt: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
