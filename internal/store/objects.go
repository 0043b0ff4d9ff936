package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/planstate/internal/ir"
)

// Object is a value registered with a worker, in simplified form.
type Object struct {
	WorkerID string
	ID       ir.ID
	Kind     string
	Payload  []byte
	Seq      int64
}

// WriteObject inserts or replaces the object registered under
// (WorkerID, ID). Re-registration replaces kind, payload and seq.
func (s *Store) WriteObject(ctx context.Context, obj Object) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO objects (worker_id, id, kind, payload, seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(worker_id, id) DO UPDATE SET
			kind = excluded.kind,
			payload = excluded.payload,
			seq = excluded.seq
	`,
		obj.WorkerID,
		string(obj.ID),
		obj.Kind,
		string(obj.Payload),
		obj.Seq,
	)
	if err != nil {
		return fmt.Errorf("write object %s: %w", obj.ID, err)
	}
	return nil
}

// ReadObject returns the object registered under id on worker.
// Returns ErrNotFound if there is none.
func (s *Store) ReadObject(ctx context.Context, workerID string, id ir.ID) (Object, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT worker_id, id, kind, payload, seq
		FROM objects
		WHERE worker_id = ? AND id = ?
	`, workerID, string(id))

	obj, err := scanObject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Object{}, fmt.Errorf("object %s on %s: %w", id, workerID, ErrNotFound)
	}
	if err != nil {
		return Object{}, fmt.Errorf("read object %s: %w", id, err)
	}
	return obj, nil
}

// ListObjects returns every object registered on worker, ordered by seq.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ListObjects(ctx context.Context, workerID string) ([]Object, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT worker_id, id, kind, payload, seq
		FROM objects
		WHERE worker_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, workerID)
	if err != nil {
		return nil, fmt.Errorf("query objects: %w", err)
	}
	defer rows.Close()

	objects := []Object{}
	for rows.Next() {
		obj, err := scanObject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan object: %w", err)
		}
		objects = append(objects, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate objects: %w", err)
	}
	return objects, nil
}

// DeleteObject removes the object registered under id on worker.
// Deleting a missing object is not an error.
func (s *Store) DeleteObject(ctx context.Context, workerID string, id ir.ID) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM objects WHERE worker_id = ? AND id = ?
	`, workerID, string(id))
	if err != nil {
		return fmt.Errorf("delete object %s: %w", id, err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanObject(row rowScanner) (Object, error) {
	var (
		obj     Object
		id      string
		payload string
	)
	if err := row.Scan(&obj.WorkerID, &id, &obj.Kind, &payload, &obj.Seq); err != nil {
		return Object{}, err
	}
	obj.ID = ir.ID(id)
	obj.Payload = []byte(payload)
	return obj, nil
}
