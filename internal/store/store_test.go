package store

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state", "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUsers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, "admin@example.com", "hash"); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if _, err := s.CreateUser(ctx, "admin@example.com", "other"); !errors.Is(err, ErrExists) {
		t.Fatalf("duplicate CreateUser() error = %v, want ErrExists", err)
	}

	u, err := s.UserByEmail(ctx, "admin@example.com")
	if err != nil {
		t.Fatalf("UserByEmail() error = %v", err)
	}
	if u.PasswordHash != "hash" || u.CreatedAt.IsZero() {
		t.Errorf("unexpected user %+v", u)
	}
	if _, err := s.UserByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing user error = %v, want ErrNotFound", err)
	}
	if n, _ := s.CountUsers(ctx); n != 1 {
		t.Errorf("CountUsers() = %d, want 1", n)
	}
}

func TestPeers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, name := range []string{"laptop", "phone"} {
		p := &Peer{
			ID:         fmt.Sprintf("p%d", i),
			Owner:      "admin@example.com",
			Name:       name,
			PrivateKey: "sealed",
			PublicKey:  "pub",
			Address:    fmt.Sprintf("10.13.13.%d/32", i+2),
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.CreatePeer(ctx, p); err != nil {
			t.Fatalf("CreatePeer(%s) error = %v", name, err)
		}
	}
	if err := s.CreatePeer(ctx, &Peer{ID: "p0", Owner: "x", Name: "dup"}); !errors.Is(err, ErrExists) {
		t.Errorf("duplicate CreatePeer() error = %v, want ErrExists", err)
	}

	peers, err := s.ListPeers(ctx, "admin@example.com")
	if err != nil {
		t.Fatalf("ListPeers() error = %v", err)
	}
	if len(peers) != 2 || peers[0].Name != "phone" {
		t.Fatalf("ListPeers() = %+v, want phone first", peers)
	}
	if others, _ := s.ListPeers(ctx, "someone@else.com"); len(others) != 0 {
		t.Errorf("ListPeers(other) returned %d peers", len(others))
	}

	if err := s.RevokePeer(ctx, "p0"); err != nil {
		t.Fatalf("RevokePeer() error = %v", err)
	}
	if err := s.RevokePeer(ctx, "p0"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second RevokePeer() error = %v, want ErrNotFound", err)
	}
	p, err := s.Peer(ctx, "p0")
	if err != nil {
		t.Fatalf("Peer() error = %v", err)
	}
	if !p.Revoked() {
		t.Error("revoked peer reports active")
	}
	if n, _ := s.CountActivePeers(ctx); n != 1 {
		t.Errorf("CountActivePeers() = %d, want 1", n)
	}
	if _, err := s.Peer(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Peer(missing) error = %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := &Run{ID: "run-1", Target: "203.0.113.10", UsesPEM: true, SealedInventory: "inv", SealedSecret: "pem", LogPath: "/tmp/run-1.log"}
	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	if r.Status != RunPending {
		t.Errorf("new run status = %q", r.Status)
	}

	claimed, err := s.MarkRunning(ctx, "run-1")
	if err != nil || !claimed {
		t.Fatalf("MarkRunning() = %v, %v", claimed, err)
	}
	if again, _ := s.MarkRunning(ctx, "run-1"); again {
		t.Error("run claimed twice")
	}

	if err := s.FinishRun(ctx, "run-1", RunSucceeded, "https://203.0.113.10/", ""); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}
	got, err := s.Run(ctx, "run-1")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !got.Finished() || got.URL != "https://203.0.113.10/" || !got.UsesPEM {
		t.Errorf("unexpected run %+v", got)
	}
	if got.SealedInventory != "" || got.SealedSecret != "" {
		t.Error("credentials kept after finish")
	}
	if got.FinishedAt.IsZero() {
		t.Error("finished_at not recorded")
	}

	runs, err := s.ListRuns(ctx)
	if err != nil || len(runs) != 1 {
		t.Fatalf("ListRuns() = %d runs, %v", len(runs), err)
	}
	if _, err := s.Run(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Run(nope) error = %v", err)
	}
}

func TestAllocateAddress(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	server := netip.MustParseAddr("10.13.13.1")

	first, err := s.AllocateAddress(ctx, "alice", "10.13.13.0/24", server)
	if err != nil {
		t.Fatalf("AllocateAddress() error = %v", err)
	}
	if first != "10.13.13.2/32" {
		t.Errorf("first address = %s, want 10.13.13.2/32", first)
	}
	again, _ := s.AllocateAddress(ctx, "alice", "10.13.13.0/24", server)
	if again != first {
		t.Errorf("repeat allocation = %s, want %s", again, first)
	}
	second, _ := s.AllocateAddress(ctx, "bob", "10.13.13.0/24", server)
	if second != "10.13.13.3/32" {
		t.Errorf("second address = %s", second)
	}

	if err := s.ReleaseAddress(ctx, "alice"); err != nil {
		t.Fatalf("ReleaseAddress() error = %v", err)
	}
	reused, _ := s.AllocateAddress(ctx, "carol", "10.13.13.0/24", server)
	if reused != "10.13.13.2/32" {
		t.Errorf("released address not reused, got %s", reused)
	}
}

func TestAllocateAddressExhausted(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// /30 has two hosts, .1 is reserved for the server
	if _, err := s.AllocateAddress(ctx, "a", "10.0.0.0/30", netip.MustParseAddr("10.0.0.1")); err != nil {
		t.Fatalf("AllocateAddress() error = %v", err)
	}
	if _, err := s.AllocateAddress(ctx, "b", "10.0.0.0/30", netip.MustParseAddr("10.0.0.1")); !errors.Is(err, ErrPoolExhausted) {
		t.Errorf("error = %v, want ErrPoolExhausted", err)
	}
	if _, err := s.AllocateAddress(ctx, "c", "not-a-cidr"); err == nil {
		t.Error("expected error for invalid pool")
	}
}

func TestSettings(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Setting(ctx, "wg_server_public_key"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing setting error = %v", err)
	}
	s.SetSetting(ctx, "wg_server_public_key", "one")
	s.SetSetting(ctx, "wg_server_public_key", "two")
	if v, _ := s.Setting(ctx, "wg_server_public_key"); v != "two" {
		t.Errorf("Setting() = %q, want two", v)
	}
}
