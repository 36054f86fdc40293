package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// sealedKeys are the config keys whose values are encrypted at rest.
var sealedKeys = map[string]bool{
	"mail_pw":                true,
	"send_pw":                true,
	"configured_mail_pw":     true,
	"configured_send_pw":     true,
	"configured_raw_mail_pw": true,
	"configured_raw_send_pw": true,
}

// GetRawConfig returns the value stored under key, or "", false if absent.
func (db *DB) GetRawConfig(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := db.QueryRowContext(ctx, "SELECT value FROM config WHERE keyname = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if sealedKeys[key] && value != "" {
		plain, err := db.sealer.Unseal(value)
		if err != nil {
			return "", false, fmt.Errorf("store: unseal %s: %w", key, err)
		}
		return plain, true, nil
	}
	return value, true, nil
}

// SetRawConfig writes value under key, or deletes the row if value is nil.
func (db *DB) SetRawConfig(ctx context.Context, key string, value *string) error {
	if value == nil {
		_, err := db.ExecContext(ctx, "DELETE FROM config WHERE keyname = ?", key)
		return err
	}

	stored := *value
	if sealedKeys[key] && stored != "" {
		sealed, err := db.sealer.Seal(stored)
		if err != nil {
			return fmt.Errorf("store: seal %s: %w", key, err)
		}
		stored = sealed
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO config (keyname, value) VALUES (?, ?)
		 ON CONFLICT(keyname) DO UPDATE SET value = excluded.value`,
		key, stored)
	return err
}

func strPtr(s string) *string { return &s }

// GetConfigInt returns the integer stored under key, or def if absent/invalid.
func (db *DB) GetConfigInt(ctx context.Context, key string, def int) (int, error) {
	v, ok, err := db.GetRawConfig(ctx, key)
	if err != nil || !ok || v == "" {
		return def, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, nil
	}
	return n, nil
}

// GetConfigInt64 returns the int64 stored under key, or def if absent/invalid.
func (db *DB) GetConfigInt64(ctx context.Context, key string, def int64) (int64, error) {
	v, ok, err := db.GetRawConfig(ctx, key)
	if err != nil || !ok || v == "" {
		return def, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def, nil
	}
	return n, nil
}

// GetConfigBool returns true iff the value stored under key is "1".
func (db *DB) GetConfigBool(ctx context.Context, key string) (bool, error) {
	v, ok, err := db.GetRawConfig(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	return v == "1", nil
}

// GetConfigBoolOr returns the boolean stored under key, or def if the key
// is absent. Used for settings whose unset state means "on".
func (db *DB) GetConfigBoolOr(ctx context.Context, key string, def bool) (bool, error) {
	v, ok, err := db.GetRawConfig(ctx, key)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	return v == "1", nil
}

// SetConfigInt stores an integer under key.
func (db *DB) SetConfigInt(ctx context.Context, key string, v int) error {
	return db.SetRawConfig(ctx, key, strPtr(strconv.Itoa(v)))
}

// SetConfigInt64 stores an int64 under key.
func (db *DB) SetConfigInt64(ctx context.Context, key string, v int64) error {
	return db.SetRawConfig(ctx, key, strPtr(strconv.FormatInt(v, 10)))
}

// SetConfigBool stores a boolean under key, writing "1" for true and
// deleting the key for false (bool encoded as "1" or missing).
func (db *DB) SetConfigBool(ctx context.Context, key string, v bool) error {
	if !v {
		return db.SetRawConfig(ctx, key, nil)
	}
	return db.SetRawConfig(ctx, key, strPtr("1"))
}

// Exists reports whether sqlQuery returns at least one row for args.
func (db *DB) Exists(ctx context.Context, sqlQuery string, args ...any) (bool, error) {
	rows, err := db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	return rows.Next(), rows.Err()
}

// Execute runs a non-query statement.
func (db *DB) Execute(ctx context.Context, sqlQuery string, args ...any) (sql.Result, error) {
	return db.ExecContext(ctx, sqlQuery, args...)
}

// QueryRowCtx runs a single-row query.
func (db *DB) QueryRowCtx(ctx context.Context, sqlQuery string, args ...any) *sql.Row {
	return db.QueryRowContext(ctx, sqlQuery, args...)
}

// QueryMap runs sqlQuery and calls fn for every returned row.
func (db *DB) QueryMap(ctx context.Context, sqlQuery string, fn func(*sql.Rows) error, args ...any) error {
	rows, err := db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// TableExists reports whether a table by that name exists in the database.
func (db *DB) TableExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	return count > 0, err
}

// GetRowID returns the numerically largest id among rows of table where
// field=value. Auto-increment primary keys are not safely readable via
// last-insert-id across concurrent operations, so every caller that needs
// "the row I just wrote" goes through this instead.
func (db *DB) GetRowID(ctx context.Context, table, field string, value any) (int64, error) {
	var id int64
	query := fmt.Sprintf("SELECT COALESCE(MAX(id), 0) FROM %s WHERE %s = ?", table, field)
	err := db.QueryRowContext(ctx, query, value).Scan(&id)
	return id, err
}
