package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/fenilsonani/mailclient/internal/secret"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "account.db")
	db, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenMigratesToCurrentVersion(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	version, err := db.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion() error: %v", err)
	}
	if version != CurrentSchemaVersion {
		t.Errorf("SchemaVersion() = %d, want %d", version, CurrentSchemaVersion)
	}

	v, ok, err := db.GetRawConfig(ctx, "dbversion")
	if err != nil || !ok {
		t.Fatalf("GetRawConfig(dbversion) = %q, %v, %v", v, ok, err)
	}
	if v != fmt.Sprint(CurrentSchemaVersion) {
		t.Errorf("dbversion = %q, want %q", v, fmt.Sprint(CurrentSchemaVersion))
	}

	for _, table := range []string{"config", "contacts", "chats", "msgs", "jobs", "keypairs", "acpeerstates", "tokens", "locations", "devmsglabels"} {
		exists, err := db.TableExists(ctx, table)
		if err != nil {
			t.Fatalf("TableExists(%s) error: %v", table, err)
		}
		if !exists {
			t.Errorf("table %s missing after migration", table)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "account.db")
	ctx := context.Background()

	db, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("first Open() error: %v", err)
	}
	if err := db.SetRawConfig(ctx, "addr", strPtr("a@example.com")); err != nil {
		t.Fatalf("SetRawConfig() error: %v", err)
	}
	db.Close()

	db, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("second Open() error: %v", err)
	}
	defer db.Close()

	version, err := db.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion() error: %v", err)
	}
	if version != CurrentSchemaVersion {
		t.Errorf("SchemaVersion() after re-open = %d, want %d", version, CurrentSchemaVersion)
	}

	v, ok, err := db.GetRawConfig(ctx, "addr")
	if err != nil || !ok || v != "a@example.com" {
		t.Errorf("addr after re-open = %q, %v, %v; want a@example.com", v, ok, err)
	}
}

// openAtVersion builds a database migrated only up to maxVersion, so tests
// can exercise the upgrade path from a historical schema.
func openAtVersion(t *testing.T, maxVersion int) (*DB, string) {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "account.db")

	sqlDB, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=10000")
	if err != nil {
		t.Fatalf("sql.Open() error: %v", err)
	}

	sealer, err := secret.Open(path + ".key")
	if err != nil {
		t.Fatalf("secret.Open() error: %v", err)
	}

	db := &DB{DB: sqlDB, sealer: sealer}
	if _, err := db.ExecContext(ctx,
		`CREATE TABLE schema_migrations (
			version INTEGER PRIMARY KEY,
			name    TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		t.Fatalf("create schema_migrations: %v", err)
	}

	migrations, err := db.loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations() error: %v", err)
	}
	for _, m := range migrations {
		if m.version > maxVersion {
			continue
		}
		if err := db.applyMigration(ctx, m, 0); err != nil {
			t.Fatalf("apply migration %d: %v", m.version, err)
		}
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO config (keyname, value) VALUES ('dbversion', ?)
		 ON CONFLICT(keyname) DO UPDATE SET value = excluded.value`,
		fmt.Sprint(maxVersion)); err != nil {
		t.Fatalf("write dbversion: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, path
}

func TestMigrateFromVersion49(t *testing.T) {
	ctx := context.Background()
	db, _ := openAtVersion(t, 49)

	// Existing user data that must survive the upgrade.
	if _, err := db.ExecContext(ctx,
		`INSERT INTO msgs (rfc724_mid, chat_id, txt) VALUES ('mid-1', 10, 'hello')`); err != nil {
		t.Fatalf("insert msg: %v", err)
	}

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}

	version, err := db.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion() error: %v", err)
	}
	if version != CurrentSchemaVersion {
		t.Errorf("SchemaVersion() = %d, want %d", version, CurrentSchemaVersion)
	}

	// Upgrade-gated defaults.
	v, ok, err := db.GetRawConfig(ctx, "show_emails")
	if err != nil || !ok || v != "ALL" {
		t.Errorf("show_emails = %q, %v, %v; want ALL", v, ok, err)
	}
	bccSelf, err := db.GetConfigBool(ctx, "bcc_self")
	if err != nil || !bccSelf {
		t.Errorf("bcc_self = %v, %v; want true", bccSelf, err)
	}

	// Columns added after 49 exist.
	if _, err := db.ExecContext(ctx,
		`UPDATE chats SET created_timestamp = 1, muted_until = 0 WHERE id = 1`); err != nil {
		t.Errorf("post-49 chats columns missing: %v", err)
	}
	if _, err := db.ExecContext(ctx,
		`UPDATE msgs SET location_id = 0 WHERE rfc724_mid = 'mid-1'`); err != nil {
		t.Errorf("post-49 msgs columns missing: %v", err)
	}

	// Existing rows intact.
	var txt string
	if err := db.QueryRowContext(ctx,
		`SELECT txt FROM msgs WHERE rfc724_mid = 'mid-1'`).Scan(&txt); err != nil || txt != "hello" {
		t.Errorf("pre-existing msg = %q, %v; want hello", txt, err)
	}
}

func TestUpgradeHooksSkippedOnFreshInstall(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// A brand new database keeps the fresh-install defaults; the legacy
	// overrides only apply when upgrading an existing database.
	v, ok, err := db.GetRawConfig(ctx, "show_emails")
	if err != nil || !ok {
		t.Fatalf("GetRawConfig(show_emails) = %q, %v, %v", v, ok, err)
	}
	if v != "0" {
		t.Errorf("show_emails = %q on fresh install, want 0", v)
	}
	bccSelf, err := db.GetConfigBool(ctx, "bcc_self")
	if err != nil {
		t.Fatalf("GetConfigBool(bcc_self) error: %v", err)
	}
	if bccSelf {
		t.Error("bcc_self = true on fresh install, want false")
	}
}

func TestGetRowID(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := db.Execute(ctx,
			`INSERT INTO msgs (rfc724_mid, txt) VALUES ('dup-mid', ?)`, fmt.Sprint(i)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	id, err := db.GetRowID(ctx, "msgs", "rfc724_mid", "dup-mid")
	if err != nil {
		t.Fatalf("GetRowID() error: %v", err)
	}

	var maxID int64
	if err := db.QueryRowContext(ctx,
		`SELECT MAX(id) FROM msgs WHERE rfc724_mid = 'dup-mid'`).Scan(&maxID); err != nil {
		t.Fatalf("max id query: %v", err)
	}
	if id != maxID {
		t.Errorf("GetRowID() = %d, want %d", id, maxID)
	}
}

func TestReentrantUseReturnsError(t *testing.T) {
	db := openTestDB(t)

	release, err := db.begin()
	if err != nil {
		t.Fatalf("begin() error: %v", err)
	}
	defer release()

	if _, err := db.begin(); err != ErrAlreadyOpen {
		t.Errorf("reentrant begin() error = %v, want ErrAlreadyOpen", err)
	}
}
