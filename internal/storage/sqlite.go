package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLiteKV stores documents as JSONB rows in the documents table created
// by the migrations package.
type SQLiteKV struct {
	db *sql.DB
}

func NewSQLiteKV(db *sql.DB) *SQLiteKV {
	return &SQLiteKV{db: db}
}

func (s *SQLiteKV) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT json(data) FROM documents WHERE bucket = ? AND id = ?`, bucket, key,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s/%s: %w", bucket, key, err)
	}
	return []byte(data), nil
}

func (s *SQLiteKV) Put(ctx context.Context, bucket, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (bucket, id, data, updated_at)
		 VALUES (?, ?, jsonb(?), strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		 ON CONFLICT(bucket, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		bucket, key, string(value),
	)
	if err != nil {
		return fmt.Errorf("writing %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *SQLiteKV) List(ctx context.Context, bucket string) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT json(data) FROM documents WHERE bucket = ? ORDER BY id`, bucket,
	)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", bucket, err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		out = append(out, []byte(data))
	}
	return out, rows.Err()
}
