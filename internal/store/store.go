// Package store implements the account configuration key-value store: an
// embedded SQLite database with schema migration, typed accessors, and the
// transparent secret-sealing of stored account passwords.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fenilsonani/mailclient/internal/secret"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// CurrentSchemaVersion is the dbversion this binary migrates up to.
const CurrentSchemaVersion = 63

// DB wraps the SQLite connection pool plus the sealing key used to encrypt
// mail_pw/send_pw at rest. Single-statement operations rely on the pool
// for safe concurrent use; multi-statement maintenance work (Migrate)
// additionally holds the in-use marker, and reentering it is a programmer
// error reported as ErrAlreadyOpen rather than a panic.
type DB struct {
	*sql.DB

	mu     sync.Mutex
	inUse  bool
	sealer *secret.Sealer
}

// ErrAlreadyOpen is returned when a multi-statement maintenance operation
// starts while another one already holds this DB's in-use marker, whichever
// goroutine holds it.
var ErrAlreadyOpen = fmt.Errorf("store: reentrant use of database handle")

// Open opens or creates a SQLite database at path, applies any pending
// schema migrations, and loads (or creates) the local secret-sealing key.
func Open(ctx context.Context, path string) (*DB, error) {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=10000", path)

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	if _, err := sqlDB.ExecContext(ctx, "PRAGMA secure_delete=ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("store: enable secure_delete: %w", err)
	}

	sealer, err := secret.Open(path + ".key")
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("store: open sealing key: %w", err)
	}

	db := &DB{DB: sqlDB, sealer: sealer}

	if err := db.Migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return db, nil
}

// IsOpen reports whether the underlying *sql.DB still accepts connections.
func (db *DB) IsOpen() bool {
	return db.DB.PingContext(context.Background()) == nil
}

// begin marks this DB as checked out for a multi-statement maintenance
// operation, returning ErrAlreadyOpen on reentrant use, and a release func
// to call when done. Plain config reads/writes do not take the marker;
// they are single statements serialized by the pool and the database's
// busy-timeout.
func (db *DB) begin() (func(), error) {
	db.mu.Lock()
	if db.inUse {
		db.mu.Unlock()
		return nil, ErrAlreadyOpen
	}
	db.inUse = true
	db.mu.Unlock()

	return func() {
		db.mu.Lock()
		db.inUse = false
		db.mu.Unlock()
	}, nil
}

// Migrate runs every pending migration in version order, each inside its
// own transaction, and is idempotent: calling it again once dbversion
// already equals CurrentSchemaVersion does nothing.
func (db *DB) Migrate(ctx context.Context) error {
	release, err := db.begin()
	if err != nil {
		return err
	}
	defer release()

	if _, err := db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name    TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("store: create schema_migrations: %w", err)
	}

	applied, upgradingFrom, err := db.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("store: read schema version: %w", err)
	}

	migrations, err := db.loadMigrations()
	if err != nil {
		return fmt.Errorf("store: load migrations: %w", err)
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].version < migrations[j].version })

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		if err := db.applyMigration(ctx, m, upgradingFrom); err != nil {
			return fmt.Errorf("store: apply migration %d (%s): %w", m.version, m.name, err)
		}
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO config (keyname, value) VALUES ('dbversion', ?)
		 ON CONFLICT(keyname) DO UPDATE SET value = excluded.value`,
		strconv.Itoa(CurrentSchemaVersion),
	); err != nil {
		return fmt.Errorf("store: sync dbversion: %w", err)
	}

	return nil
}

type migration struct {
	version int
	name    string
	sql     string
	// post, when set, runs inside the same transaction as the migration's
	// SQL and only when upgrading from a pre-existing database.
	post func(ctx context.Context, tx *sql.Tx) error
}

// appliedVersions returns the set of migration versions already recorded in
// schema_migrations, plus the highest of them ("upgradingFrom"), which is 0
// both for a brand new database and for one that has only the version-0
// bootstrap applied.
func (db *DB) appliedVersions(ctx context.Context) (map[int]bool, int, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	highest := 0
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, 0, err
		}
		applied[v] = true
		if v > highest {
			highest = v
		}
	}
	return applied, highest, rows.Err()
}

// SchemaVersion returns the current dbversion (the highest applied
// migration), matching the external "dbversion" store key contract.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	_, highest, err := db.appliedVersions(ctx)
	return highest, err
}

func (db *DB) loadMigrations() ([]migration, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}

	var migrations []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		// Parse version from filename (e.g., "000_initial.sql")
		parts := strings.SplitN(entry.Name(), "_", 2)
		if len(parts) < 2 {
			continue
		}

		version, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}

		content, err := fs.ReadFile(migrationsFS, "migrations/"+entry.Name())
		if err != nil {
			return nil, err
		}

		migrations = append(migrations, migration{
			version: version,
			name:    entry.Name(),
			sql:     string(content),
			post:    postMigrationHooks[version],
		})
	}

	return migrations, nil
}

func (db *DB) applyMigration(ctx context.Context, m migration, upgradingFrom int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if strings.TrimSpace(m.sql) != "" {
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("migration SQL error: %w", err)
		}
	}

	if m.post != nil {
		existsBeforeUpdate := upgradingFrom > 0 && upgradingFrom < m.version
		if existsBeforeUpdate {
			if err := m.post(ctx, tx); err != nil {
				return fmt.Errorf("post-migration hook error: %w", err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.version, m.name,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}

// postMigrationHooks carries Go-side defaulting that only applies when the
// migration crosses a pre-existing database forward, never on a brand new
// install (which already gets the new default from the base schema).
var postMigrationHooks = map[int]func(ctx context.Context, tx *sql.Tx) error{
	// An upgrading database keeps the old behavior (show all emails, copy
	// to self) that fresh installs no longer default to.
	50: func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE config SET value = 'ALL' WHERE keyname = 'show_emails'`)
		return err
	},
	59: func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE config SET value = '1' WHERE keyname = 'bcc_self'`)
		return err
	},
}
