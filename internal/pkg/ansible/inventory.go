package ansible

import (
	"errors"
	"fmt"
	"strings"
)

const (
	PEMPathPlaceholder     = "{PEM_PATH}"
	PasswordPlaceholder    = "{SSH_PASSWORD_PLACEHOLDER}"
	defaultUser            = "ubuntu"
	defaultPort            = 22
	commonSSHArgs          = `ansible_ssh_common_args="-o StrictHostKeyChecking=no -o UserKnownHostsFile=/dev/null"`
	pythonInterpreterSetup = "ansible_python_interpreter=/usr/bin/python3"
)

var (
	ErrPasswordInventory = errors.New("inventory not prepared for password auth, repeat /install/config in password mode")
	ErrPEMInventory      = errors.New("inventory not prepared for PEM auth, repeat /install/config in PEM mode")
)

type Target struct {
	Host    string
	User    string
	Port    int
	UsesPEM bool
	Group   string
}

// RenderInventory builds the single-host INI inventory. Credentials are left
// as placeholders so the file written at config time never holds secrets.
func RenderInventory(t Target) string {
	group := t.Group
	if group == "" {
		group = "cloud"
	}
	user := t.User
	if user == "" {
		user = defaultUser
	}
	port := t.Port
	if port <= 0 {
		port = defaultPort
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n", group)
	fmt.Fprintf(&b, "srv ansible_host=%s ansible_user=%s %s\n\n", t.Host, user, commonSSHArgs)
	fmt.Fprintf(&b, "[%s:vars]\n", group)
	b.WriteString("ansible_become=true\n")
	if !t.UsesPEM {
		b.WriteString("ansible_connection=paramiko\n")
	}
	b.WriteString(pythonInterpreterSetup + "\n")
	fmt.Fprintf(&b, "ansible_port=%d\n", port)
	if t.UsesPEM {
		fmt.Fprintf(&b, "ansible_ssh_private_key_file=%s\n", PEMPathPlaceholder)
	} else {
		fmt.Fprintf(&b, "ansible_password=%s\n", PasswordPlaceholder)
	}
	return b.String()
}

// FillInventory substitutes the credential placeholders for one run.
func FillInventory(text, pemPath, password string, usesPEM bool) (string, error) {
	if usesPEM {
		if !strings.Contains(text, PEMPathPlaceholder) {
			return "", ErrPEMInventory
		}
		return strings.ReplaceAll(text, PEMPathPlaceholder, pemPath), nil
	}
	if !strings.Contains(text, PasswordPlaceholder) {
		return "", ErrPasswordInventory
	}
	return strings.ReplaceAll(text, PasswordPlaceholder, password), nil
}
