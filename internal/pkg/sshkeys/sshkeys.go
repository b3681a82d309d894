// Package sshkeys manages the installer's own SSH key pair, which is
// authorized on target hosts and used for every key-based connection.
package sshkeys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

const keyComment = "autovpn-installer"

type KeyPair struct {
	PrivatePath string
	PublicPath  string
}

var (
	lockRetries = 50
	lockDelay   = 100 * time.Millisecond
)

// EnsureKeyPair creates dir/name and dir/name.pub when missing. If only the
// private key exists, the public half is derived from it.
func EnsureKeyPair(dir, name string) (*KeyPair, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	kp := &KeyPair{
		PrivatePath: filepath.Join(dir, name),
		PublicPath:  filepath.Join(dir, name+".pub"),
	}

	unlock := acquireLock(filepath.Join(dir, "."+name+".lock"))
	defer unlock()

	privExists := fileExists(kp.PrivatePath)
	pubExists := fileExists(kp.PublicPath)

	switch {
	case !privExists:
		if err := kp.generate(); err != nil {
			return nil, err
		}
	case !pubExists:
		if err := kp.derivePublic(); err != nil {
			return nil, err
		}
	}

	_ = os.Chmod(dir, 0o700)
	_ = os.Chmod(kp.PrivatePath, 0o600)
	_ = os.Chmod(kp.PublicPath, 0o644)
	return kp, nil
}

func (kp *KeyPair) generate() error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate ed25519 key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, keyComment)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}
	if err := os.WriteFile(kp.PrivatePath, pem.EncodeToMemory(block), 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return fmt.Errorf("encode public key: %w", err)
	}
	return os.WriteFile(kp.PublicPath, authorizedLine(sshPub), 0o644)
}

func (kp *KeyPair) derivePublic() error {
	signer, err := kp.Signer()
	if err != nil {
		return err
	}
	return os.WriteFile(kp.PublicPath, authorizedLine(signer.PublicKey()), 0o644)
}

func (kp *KeyPair) Signer() (ssh.Signer, error) {
	data, err := os.ReadFile(kp.PrivatePath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return signer, nil
}

// PublicKey returns the authorized_keys line, newline terminated.
func (kp *KeyPair) PublicKey() (string, error) {
	data, err := os.ReadFile(kp.PublicPath)
	if err != nil {
		return "", err
	}
	s := string(data)
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s, nil
}

func authorizedLine(pub ssh.PublicKey) []byte {
	line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(pub)))
	return []byte(line + " " + keyComment + "\n")
}

// acquireLock is best effort: after the retries run out the caller proceeds
// without the lock rather than blocking forever.
func acquireLock(path string) func() {
	for i := 0; i < lockRetries; i++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			f.Close()
			return func() { _ = os.Remove(path) }
		}
		if !errors.Is(err, os.ErrExist) {
			break
		}
		time.Sleep(lockDelay)
	}
	return func() {}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
