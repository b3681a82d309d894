package wgkeys

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestGenerateKeyPair(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	raw, err := base64.StdEncoding.DecodeString(kp.PrivateKey)
	if err != nil || len(raw) != KeyLen {
		t.Fatalf("private key decode: %v len=%d", err, len(raw))
	}
	if raw[0]&7 != 0 || raw[31]&128 != 0 || raw[31]&64 == 0 {
		t.Error("private key is not clamped")
	}

	pub, err := PublicKey(kp.PrivateKey)
	if err != nil {
		t.Fatal(err)
	}
	if pub != kp.PublicKey {
		t.Errorf("derived %s, generated %s", pub, kp.PublicKey)
	}
	if len(kp.PublicKey) != 44 {
		t.Errorf("public key length = %d", len(kp.PublicKey))
	}
}

// Vector from RFC 7748 section 6.1 (Alice).
func TestPublicKeyKnownVector(t *testing.T) {
	priv := "dwdtCnMYpX08FsFyUbJmRd9ML4frwJkqsXf7pR25LCo="
	want := "hSDwCYkwp1R0i33ctD73Wg2/Og0mOBr066SpjqqbTmo="
	got, err := PublicKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("PublicKey = %s, want %s", got, want)
	}
}

func TestPublicKeyRejectsShortKey(t *testing.T) {
	if _, err := PublicKey(base64.StdEncoding.EncodeToString([]byte("short"))); err == nil {
		t.Fatal("expected length error")
	}
}

func TestRenderClientConfig(t *testing.T) {
	conf := RenderClientConfig(ClientConfig{
		PrivateKey:      "PRIV",
		Address:         "10.13.13.2/32",
		DNS:             "10.13.13.1",
		ServerPublicKey: "SERVERPUB",
		Endpoint:        "vpn.example.com:51820",
	})
	want := "[Interface]\nPrivateKey = PRIV\nAddress = 10.13.13.2/32\nDNS = 10.13.13.1\n\n" +
		"[Peer]\nPublicKey = SERVERPUB\nAllowedIPs = 0.0.0.0/0, ::/0\nEndpoint = vpn.example.com:51820\nPersistentKeepalive = 25\n"
	if conf != want {
		t.Errorf("config mismatch:\n%s\nwant:\n%s", conf, want)
	}
	if strings.Contains(conf, "MTU") {
		t.Error("MTU should be omitted when unset")
	}
}
