package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// StateRecord is a serialized state or plan document.
// Digest is the content address of Wire (see ir.StateDigest).
type StateRecord struct {
	Digest   string
	WorkerID string
	Label    string
	Kind     string
	Wire     []byte
	Seq      int64
}

// WriteState inserts a snapshot. Uses ON CONFLICT(digest) DO NOTHING:
// identical documents are stored once and keep their first label and seq.
// Reports whether a new row was written.
func (s *Store) WriteState(ctx context.Context, rec StateRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO states (digest, worker_id, label, kind, wire, seq)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(digest) DO NOTHING
	`,
		rec.Digest,
		rec.WorkerID,
		rec.Label,
		rec.Kind,
		string(rec.Wire),
		rec.Seq,
	)
	if err != nil {
		return false, fmt.Errorf("write state %s: %w", rec.Digest, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write state %s: %w", rec.Digest, err)
	}
	return n == 1, nil
}

// ReadState returns the snapshot with the given digest.
// Returns ErrNotFound if there is none.
func (s *Store) ReadState(ctx context.Context, digest string) (StateRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT digest, worker_id, label, kind, wire, seq
		FROM states
		WHERE digest = ?
	`, digest)

	rec, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return StateRecord{}, fmt.Errorf("state %s: %w", digest, ErrNotFound)
	}
	if err != nil {
		return StateRecord{}, fmt.Errorf("read state %s: %w", digest, err)
	}
	return rec, nil
}

// ListStates returns every snapshot ordered by seq.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ListStates(ctx context.Context) ([]StateRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT digest, worker_id, label, kind, wire, seq
		FROM states
		ORDER BY seq ASC, digest COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query states: %w", err)
	}
	defer rows.Close()

	records := []StateRecord{}
	for rows.Next() {
		rec, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate states: %w", err)
	}
	return records, nil
}

func scanState(row rowScanner) (StateRecord, error) {
	var (
		rec  StateRecord
		wire string
	)
	if err := row.Scan(&rec.Digest, &rec.WorkerID, &rec.Label, &rec.Kind, &wire, &rec.Seq); err != nil {
		return StateRecord{}, err
	}
	rec.Wire = []byte(wire)
	return rec, nil
}
