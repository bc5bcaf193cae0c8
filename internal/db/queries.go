package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/hpungsan/glean/internal/errors"
)

// Record is one stored key with its raw JSON value.
type Record struct {
	Key       string
	Value     json.RawMessage
	UpdatedAt int64 // unix milliseconds
}

// Querier is the statement surface shared by *sql.DB and *sql.Tx, so the
// key-value helpers run either standalone or inside WithTx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn in one immediate transaction and commits if fn returns nil.
// Errors from fn are returned as-is after rollback.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// Get loads the value stored at key into dst.
// Returns false (and leaves dst untouched) when the key does not exist.
func Get(ctx context.Context, q Querier, key string, dst any) (bool, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.NewInternal(err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, errors.NewInternal(err)
	}
	return true, nil
}

// Set stores value (JSON-encoded) at key, replacing any previous value.
func Set(ctx context.Context, q Querier, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.NewInternal(err)
	}
	if _, err := q.ExecContext(ctx, upsertQuery, key, string(data), time.Now().UnixMilli()); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// SetIfAbsent stores value at key only if the key is free.
// Returns false if the key already existed.
func SetIfAbsent(ctx context.Context, q Querier, key string, value any) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	result, err := q.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO NOTHING
	`, key, string(data), time.Now().UnixMilli())
	if err != nil {
		return false, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return n == 1, nil
}

// Remove deletes key. Returns false if the key did not exist.
func Remove(ctx context.Context, q Querier, key string) (bool, error) {
	result, err := q.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return n > 0, nil
}

// ScanPrefix returns every record whose key starts with prefix, ordered by key.
// An empty prefix returns the whole store.
func ScanPrefix(ctx context.Context, q Querier, prefix string) ([]Record, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT key, value, updated_at FROM kv
		WHERE substr(key, 1, length(?)) = ?
		ORDER BY key
	`, prefix, prefix)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r   Record
			raw string
		)
		if err := rows.Scan(&r.Key, &raw, &r.UpdatedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		r.Value = json.RawMessage(raw)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return records, nil
}

// Keys returns the keys starting with prefix, ordered.
func Keys(ctx context.Context, q Querier, prefix string) ([]string, error) {
	records, err := ScanPrefix(ctx, q, prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(records))
	for i, r := range records {
		keys[i] = r.Key
	}
	return keys, nil
}

// Update performs an atomic read-modify-write of key.
// fn receives the current raw value (nil if absent) and returns the new value.
// If fn returns an error nothing is written and the error is returned as-is.
func Update(ctx context.Context, db *sql.DB, key string, fn func(current json.RawMessage) (any, error)) error {
	return WithTx(ctx, db, func(tx *sql.Tx) error {
		return UpdateTx(ctx, tx, key, fn)
	})
}

// UpdateTx is Update within a transaction the caller owns.
func UpdateTx(ctx context.Context, tx *sql.Tx, key string, fn func(current json.RawMessage) (any, error)) error {
	var current json.RawMessage
	var raw string
	err := tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return errors.NewInternal(err)
	default:
		current = json.RawMessage(raw)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	return Set(ctx, tx, key, next)
}

// UpdateJSON is the typed form of Update: fn mutates the decoded value in place.
// A missing key decodes as the zero value of T.
func UpdateJSON[T any](ctx context.Context, db *sql.DB, key string, fn func(v *T) error) error {
	return Update(ctx, db, key, typed(fn))
}

// UpdateJSONTx is UpdateJSON within a transaction the caller owns.
func UpdateJSONTx[T any](ctx context.Context, tx *sql.Tx, key string, fn func(v *T) error) error {
	return UpdateTx(ctx, tx, key, typed(fn))
}

func typed[T any](fn func(v *T) error) func(json.RawMessage) (any, error) {
	return func(current json.RawMessage) (any, error) {
		var v T
		if len(current) > 0 {
			if err := json.Unmarshal(current, &v); err != nil {
				return nil, errors.NewInternal(err)
			}
		}
		if err := fn(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

const upsertQuery = `
	INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`
