package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const (
	RunPending   = "pending"
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

type Run struct {
	ID              string
	Target          string
	Status          string
	URL             string
	Error           string
	UsesPEM         bool
	SealedInventory string
	SealedSecret    string
	LogPath         string
	CreatedAt       time.Time
	FinishedAt      time.Time
}

func (r *Run) Finished() bool {
	return r.Status == RunSucceeded || r.Status == RunFailed
}

const runColumns = "id, target, status, url, error, uses_pem, sealed_inventory, sealed_secret, log_path, created_at, finished_at"

func (s *Store) CreateRun(ctx context.Context, r *Run) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.Status == "" {
		r.Status = RunPending
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs ("+runColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)",
		r.ID, r.Target, r.Status, r.URL, r.Error, r.UsesPEM, r.SealedInventory, r.SealedSecret, r.LogPath, formatTime(r.CreatedAt))
	if err != nil && isConstraint(err) {
		return ErrExists
	}
	return err
}

func (s *Store) Run(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *Store) ListRuns(ctx context.Context) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+runColumns+" FROM runs ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// MarkRunning moves a pending run to running. It reports false when the run
// was already claimed.
func (s *Store) MarkRunning(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE runs SET status = ? WHERE id = ? AND status = ?", RunRunning, id, RunPending)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// FinishRun records the outcome and drops the sealed credentials.
func (s *Store) FinishRun(ctx context.Context, id, status, url, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE runs SET status = ?, url = ?, error = ?, sealed_inventory = '', sealed_secret = '', finished_at = ? WHERE id = ?",
		status, url, errMsg, formatTime(time.Now()), id)
	return err
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var created, finished sql.NullString
	if err := row.Scan(&r.ID, &r.Target, &r.Status, &r.URL, &r.Error, &r.UsesPEM,
		&r.SealedInventory, &r.SealedSecret, &r.LogPath, &created, &finished); err != nil {
		return nil, err
	}
	r.CreatedAt = parseTime(created)
	r.FinishedAt = parseTime(finished)
	return &r, nil
}
