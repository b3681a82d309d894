package utils

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestPasswordStrength(t *testing.T) {
	cases := map[string]int{
		"":             0,
		"abc":          1,
		"abcdefgh":     2,
		"Abcdefgh":     3,
		"Abcdefg1":     4,
		"Abcdefg1!":    5,
		"12345678":     2,
		"ÄÖÜ-ßßßß":     2,
		"Sup3rSecret!": 5,
	}
	for pw, want := range cases {
		if got := PasswordStrength(pw); got != want {
			t.Errorf("PasswordStrength(%q) = %d, want %d", pw, got, want)
		}
	}
}

func TestValidateAdminPassword(t *testing.T) {
	if err := ValidateAdminPassword("short", ""); err == nil {
		t.Error("short password accepted")
	}
	if err := ValidateAdminPassword("longenough", "different"); err == nil {
		t.Error("mismatch accepted")
	}
	if err := ValidateAdminPassword("longenough", "longenough"); err != nil {
		t.Error(err)
	}
	if err := ValidateAdminPassword("longenough", ""); err != nil {
		t.Error(err)
	}
}

func TestIsEmail(t *testing.T) {
	for _, ok := range []string{"a@b.co", "admin@example.com"} {
		if !IsEmail(ok) {
			t.Errorf("%q rejected", ok)
		}
	}
	for _, bad := range []string{"", "admin", "admin@example", "a@@b.com", "@b.com"} {
		if IsEmail(bad) {
			t.Errorf("%q accepted", bad)
		}
	}
}

func TestValidateHostAndPort(t *testing.T) {
	for _, ok := range []string{"203.0.113.7", "::1", "vpn.example.com", "localhost"} {
		if err := ValidateHost(ok); err != nil {
			t.Errorf("%q: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "bad host", "-x.com", "a_b.com"} {
		if ValidateHost(bad) == nil {
			t.Errorf("%q accepted", bad)
		}
	}
	for _, p := range []int{0, -1, 65536} {
		if ValidatePort(p) == nil {
			t.Errorf("port %d accepted", p)
		}
	}
	if ValidatePort(22) != nil || ValidatePort(65535) != nil {
		t.Error("valid port rejected")
	}
	if PortOrDefault(0, 22) != 22 || PortOrDefault(2222, 22) != 2222 {
		t.Error("PortOrDefault")
	}
}

func TestValidatePeerName(t *testing.T) {
	for _, ok := range []string{"laptop", "_x", "My-Phone_2"} {
		if ValidatePeerName(ok) != nil {
			t.Errorf("%q rejected", ok)
		}
	}
	for _, bad := range []string{"", "1phone", "a b", strings.Repeat("a", 33)} {
		if ValidatePeerName(bad) == nil {
			t.Errorf("%q accepted", bad)
		}
	}
}

func TestValidateWireGuardKey(t *testing.T) {
	if err := ValidateWireGuardKey(strings.Repeat("A", 43) + "="); err != nil {
		t.Error(err)
	}
	for _, bad := range []string{"", "short=", strings.Repeat("A", 44), strings.Repeat("-", 43) + "="} {
		if ValidateWireGuardKey(bad) == nil {
			t.Errorf("%q accepted", bad)
		}
	}
}

func TestShellQuote(t *testing.T) {
	if got := ShellQuote("it's"); got != `'it'"'"'s'` {
		t.Errorf("ShellQuote = %s", got)
	}
}

func TestAPIErrorStatus(t *testing.T) {
	var err error = NewValidationError("ssh_port", 0)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.HTTPStatus() != http.StatusBadRequest {
		t.Fatalf("validation error status: %v", err)
	}
	if (&APIError{Message: "x"}).HTTPStatus() != http.StatusInternalServerError {
		t.Error("default status should be 500")
	}
	if !strings.Contains(NewSSHError(errors.New("refused")).Error(), "refused") {
		t.Error("details missing from message")
	}
}
