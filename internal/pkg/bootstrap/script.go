// Package bootstrap renders the shell script that prepares a target host for
// key-based installs.
package bootstrap

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const DefaultUser = "autovpn"

var userPattern = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`)

var (
	ErrInvalidUser    = errors.New("invalid user name")
	ErrInvalidBaseURL = errors.New("invalid base URL")
)

type Options struct {
	BaseURL  string
	User     string
	NoPasswd bool
}

const baseScript = `#!/usr/bin/env bash
set -euo pipefail

USER="{{USER}}"
PUBKEY_URL="{{PUBKEY_URL}}"

# 0) prerequisites
if ! command -v curl >/dev/null 2>&1; then
  echo "Install 'curl' and run again." >&2
  exit 1
fi

# 1) service user
if ! id "$USER" >/dev/null 2>&1; then
  sudo useradd -m -s /bin/bash "$USER"
fi

home="$(getent passwd "$USER" | cut -d: -f6)"
sudo mkdir -p "$home/.ssh"
sudo chmod 700 "$home/.ssh"
sudo chown -R "$USER:$USER" "$home/.ssh"

# 2) authorize the installer key once
tmp_pub="$(mktemp)"
curl -fsSL "$PUBKEY_URL" -o "$tmp_pub"
if [ ! -s "$tmp_pub" ]; then
  echo "Could not download public key from $PUBKEY_URL" >&2
  exit 1
fi
sudo touch "$home/.ssh/authorized_keys"
sudo chmod 600 "$home/.ssh/authorized_keys"
if ! sudo grep -F -q "$(cat "$tmp_pub")" "$home/.ssh/authorized_keys"; then
  sudo bash -c "cat '$tmp_pub' >> '$home/.ssh/authorized_keys'"
fi
sudo chown "$USER:$USER" "$home/.ssh/authorized_keys"
rm -f "$tmp_pub"

# 3) sudoers
{{SUDOERS}}

# 4) python3 for ansible
if ! command -v python3 >/dev/null 2>&1; then
  if command -v apt-get >/dev/null 2>&1; then
    sudo apt-get update -y && sudo apt-get install -y python3
  elif command -v dnf >/dev/null 2>&1; then
    sudo dnf install -y python3
  elif command -v yum >/dev/null 2>&1; then
    sudo yum install -y python3
  else
    echo "Unknown package manager. Install python3 manually." >&2
    exit 1
  fi
fi

# 5) state marker
sudo mkdir -p /var/lib/autovpn
echo '{"done":true,"user":"'"$USER"'","ts":"'"$(date -u +"%Y-%m-%dT%H:%M:%SZ")"'"}' | sudo tee /var/lib/autovpn/bootstrap.json >/dev/null
sudo chmod 644 /var/lib/autovpn/bootstrap.json

echo "Bootstrap finished for user '$USER'."
`

const sudoersBlock = `echo "$USER ALL=(ALL) NOPASSWD:ALL" | sudo tee /etc/sudoers.d/90-autovpn >/dev/null
sudo chmod 440 /etc/sudoers.d/90-autovpn
if ! sudo visudo -cf /etc/sudoers.d/90-autovpn >/dev/null; then
  echo "ERROR: invalid sudoers entry" >&2
  sudo rm -f /etc/sudoers.d/90-autovpn
  exit 1
fi`

const noSudoers = "# NOPASSWD not requested, sudoers untouched"

func ValidUser(user string) bool {
	return userPattern.MatchString(user)
}

// ValidateBaseURL accepts an absolute http(s) URL whose text survives a
// parse round trip and holds nothing a double-quoted shell string expands.
func ValidateBaseURL(raw string) error {
	if raw == "" || strings.ContainsAny(raw, "\"'`$\\!") || strings.IndexFunc(raw, isSpaceOrControl) >= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, raw)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || u.User != nil {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, raw)
	}
	if u.String() != raw {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, raw)
	}
	return nil
}

func isSpaceOrControl(r rune) bool {
	return r <= ' ' || r == 0x7f
}

// PubKeyURL is where the script downloads the installer key from.
func PubKeyURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/bootstrap/pubkey"
}

func Render(opts Options) (string, error) {
	if opts.User == "" {
		opts.User = DefaultUser
	}
	if !ValidUser(opts.User) {
		return "", fmt.Errorf("%w: %q", ErrInvalidUser, opts.User)
	}
	if err := ValidateBaseURL(opts.BaseURL); err != nil {
		return "", err
	}

	sudoers := noSudoers
	if opts.NoPasswd {
		sudoers = sudoersBlock
	}
	return strings.NewReplacer(
		"{{USER}}", opts.User,
		"{{PUBKEY_URL}}", PubKeyURL(opts.BaseURL),
		"{{SUDOERS}}", sudoers,
	).Replace(baseScript), nil
}
