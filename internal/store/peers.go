package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Peer struct {
	ID         string
	Owner      string
	Name       string
	PrivateKey string
	PublicKey  string
	Address    string
	CreatedAt  time.Time
	RevokedAt  time.Time
}

func (p *Peer) Revoked() bool {
	return !p.RevokedAt.IsZero()
}

const peerColumns = "id, owner, name, private_key, public_key, address, created_at, revoked_at"

func (s *Store) CreatePeer(ctx context.Context, p *Peer) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO peers ("+peerColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, NULL)",
		p.ID, p.Owner, p.Name, p.PrivateKey, p.PublicKey, p.Address, formatTime(p.CreatedAt))
	if err != nil && isConstraint(err) {
		return ErrExists
	}
	return err
}

func (s *Store) Peer(ctx context.Context, id string) (*Peer, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+peerColumns+" FROM peers WHERE id = ?", id)
	p, err := scanPeer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// ListPeers returns active peers, newest first. Empty owner lists all owners.
func (s *Store) ListPeers(ctx context.Context, owner string) ([]*Peer, error) {
	query := "SELECT " + peerColumns + " FROM peers WHERE revoked_at IS NULL"
	var args []interface{}
	if owner != "" {
		query += " AND owner = ?"
		args = append(args, owner)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var peers []*Peer
	for rows.Next() {
		p, err := scanPeer(rows)
		if err != nil {
			return nil, err
		}
		peers = append(peers, p)
	}
	return peers, rows.Err()
}

func (s *Store) RevokePeer(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE peers SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL", formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) CountActivePeers(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM peers WHERE revoked_at IS NULL").Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPeer(row rowScanner) (*Peer, error) {
	var p Peer
	var created, revoked sql.NullString
	if err := row.Scan(&p.ID, &p.Owner, &p.Name, &p.PrivateKey, &p.PublicKey, &p.Address, &created, &revoked); err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(created)
	p.RevokedAt = parseTime(revoked)
	return &p, nil
}
