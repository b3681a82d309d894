package utils

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"unicode"
)

var (
	emailPattern    = regexp.MustCompile(`^[^@]+@[^@]+\.[^@]+$`)
	peerNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]{0,31}$`)
	hostnamePattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?(\.[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?)*$`)
)

const MinAdminPasswordLength = 8

func IsEmail(v string) bool {
	return emailPattern.MatchString(v)
}

// PasswordStrength scores a password from 0 to 5.
func PasswordStrength(pw string) int {
	score := 0
	if len(pw) >= MinAdminPasswordLength {
		score++
	}
	var upper, lower, digit, other bool
	for _, r := range pw {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			other = true
		}
	}
	for _, ok := range []bool{upper, lower, digit, other} {
		if ok {
			score++
		}
	}
	return score
}

// ValidateAdminPassword skips the match check when confirm is empty.
func ValidateAdminPassword(pw, confirm string) error {
	if len(pw) < MinAdminPasswordLength {
		return fmt.Errorf("admin password must be at least %d characters", MinAdminPasswordLength)
	}
	if confirm != "" && pw != confirm {
		return fmt.Errorf("admin passwords do not match")
	}
	return nil
}

// ValidateHost accepts either an IP address or a DNS hostname.
func ValidateHost(host string) error {
	host = strings.TrimSpace(host)
	if host == "" {
		return fmt.Errorf("host must not be empty")
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	if len(host) > 253 || !hostnamePattern.MatchString(host) {
		return fmt.Errorf("invalid host: %s", host)
	}
	return nil
}

func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be within 1-65535: %d", port)
	}
	return nil
}

func PortOrDefault(port, def int) int {
	if port <= 0 {
		return def
	}
	return port
}

func ValidateCIDR(cidr string) error {
	if _, _, err := net.ParseCIDR(cidr); err != nil {
		return fmt.Errorf("invalid CIDR %q: %v", cidr, err)
	}
	return nil
}

func ValidatePeerName(name string) error {
	if !peerNamePattern.MatchString(name) {
		return fmt.Errorf("invalid peer name: %q", name)
	}
	return nil
}

func ValidatePrivateKey(privateKey string) error {
	if strings.TrimSpace(privateKey) == "" {
		return fmt.Errorf("private key must not be empty")
	}

	if !strings.Contains(privateKey, "BEGIN") || !strings.Contains(privateKey, "END") {
		return fmt.Errorf("private key must be PEM encoded")
	}

	return nil
}

// ValidateWireGuardKey checks for a 44 char base64 string.
func ValidateWireGuardKey(key string) error {
	if len(key) != 44 || !strings.HasSuffix(key, "=") {
		return fmt.Errorf("invalid wireguard key")
	}
	for _, r := range key[:43] {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '/') || r > unicode.MaxASCII {
			return fmt.Errorf("invalid wireguard key")
		}
	}
	return nil
}

// ShellQuote wraps s in single quotes for POSIX shells.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
