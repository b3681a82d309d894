package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/netip"
)

// AllocateAddress returns the /32 already held by name, or claims the lowest
// free host address in cidr. Network, broadcast and reserved addresses are
// never handed out.
func (s *Store) AllocateAddress(ctx context.Context, name, cidr string, reserved ...netip.Addr) (string, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return "", fmt.Errorf("parse pool %q: %w", cidr, err)
	}
	prefix = prefix.Masked()
	if !prefix.Addr().Is4() {
		return "", fmt.Errorf("pool %q must be IPv4", cidr)
	}

	s.allocMu.Lock()
	defer s.allocMu.Unlock()

	if addr, err := s.allocation(ctx, name); err == nil {
		return addr, nil
	} else if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	used := make(map[netip.Addr]bool)
	for _, r := range reserved {
		used[r] = true
	}
	rows, err := s.db.QueryContext(ctx, "SELECT address FROM allocations")
	if err != nil {
		return "", err
	}
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			rows.Close()
			return "", err
		}
		if p, err := netip.ParsePrefix(a); err == nil {
			used[p.Addr()] = true
		}
	}
	rows.Close()

	broadcast := lastAddr(prefix)
	for host := prefix.Addr().Next(); prefix.Contains(host) && host != broadcast; host = host.Next() {
		if used[host] {
			continue
		}
		cidr := netip.PrefixFrom(host, 32).String()
		if _, err := s.db.ExecContext(ctx, "INSERT INTO allocations (name, address) VALUES (?, ?)", name, cidr); err != nil {
			return "", err
		}
		return cidr, nil
	}
	return "", ErrPoolExhausted
}

func (s *Store) ReleaseAddress(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM allocations WHERE name = ?", name)
	return err
}

func (s *Store) allocation(ctx context.Context, name string) (string, error) {
	var addr string
	err := s.db.QueryRowContext(ctx, "SELECT address FROM allocations WHERE name = ?", name).Scan(&addr)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return addr, err
}

func lastAddr(p netip.Prefix) netip.Addr {
	a := p.Addr().As4()
	bits := p.Bits()
	for i := 0; i < 4; i++ {
		hostBits := 32 - bits - (3-i)*8
		switch {
		case hostBits >= 8:
			a[i] = 0xff
		case hostBits > 0:
			a[i] |= byte(1<<hostBits) - 1
		}
	}
	return netip.AddrFrom4(a)
}
