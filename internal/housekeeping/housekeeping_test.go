package housekeeping

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fenilsonani/mailclient/internal/logging"
	"github.com/fenilsonani/mailclient/internal/store"
)

func testEnv(t *testing.T) (*store.DB, string, *logging.Logger) {
	t.Helper()
	dir := t.TempDir()

	db, err := store.Open(context.Background(), filepath.Join(dir, "account.db"))
	if err != nil {
		t.Fatalf("store.Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	blobDir := filepath.Join(dir, "blobs")
	if err := os.MkdirAll(blobDir, 0o750); err != nil {
		t.Fatalf("mkdir blobs: %v", err)
	}

	log, err := logging.New(logging.Config{Level: "error", Format: "text", Output: "stderr"})
	if err != nil {
		t.Fatalf("logging.New() error: %v", err)
	}
	return db, blobDir, log
}

// writeBlob creates a file and, when old is true, backdates its timestamps
// past the one-hour grace period.
func writeBlob(t *testing.T, blobDir, name string, old bool) string {
	t.Helper()
	path := filepath.Join(blobDir, name)
	if err := os.WriteFile(path, []byte("blob"), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	if old {
		past := time.Now().Add(-2 * time.Hour)
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes %s: %v", name, err)
		}
	}
	return path
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestRunDeletesOnlyOldOrphans(t *testing.T) {
	db, blobDir, log := testEnv(t)
	ctx := context.Background()

	if _, err := db.Execute(ctx,
		`INSERT INTO msgs (rfc724_mid, param) VALUES ('m1', 'f=$BLOBDIR/photo.jpg')`); err != nil {
		t.Fatalf("insert msg: %v", err)
	}
	if _, err := db.Execute(ctx,
		`INSERT INTO jobs (added_timestamp, action, foreign_id, param) VALUES (0, 1, 0, 'f=$BLOBDIR/queued.bin')`); err != nil {
		t.Fatalf("insert job: %v", err)
	}
	if err := db.SetRawConfig(ctx, "selfavatar", strPtrT("$BLOBDIR/avatar.png")); err != nil {
		t.Fatalf("set config: %v", err)
	}

	referencedMsg := writeBlob(t, blobDir, "photo.jpg", true)
	referencedJob := writeBlob(t, blobDir, "queued.bin", true)
	referencedCfg := writeBlob(t, blobDir, "avatar.png", true)
	orphanOld := writeBlob(t, blobDir, "orphan.dat", true)
	orphanYoung := writeBlob(t, blobDir, "fresh.dat", false)

	deleted, err := Run(ctx, db, blobDir, log)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	for _, path := range []string{referencedMsg, referencedJob, referencedCfg} {
		if !exists(path) {
			t.Errorf("referenced file %s deleted", filepath.Base(path))
		}
	}
	if !exists(orphanYoung) {
		t.Error("file under an hour old deleted")
	}
	if exists(orphanOld) {
		t.Error("old orphan survived")
	}
}

func TestRunKeepsVariantSuffixedFiles(t *testing.T) {
	db, blobDir, log := testEnv(t)
	ctx := context.Background()

	if _, err := db.Execute(ctx,
		`INSERT INTO msgs (rfc724_mid, param) VALUES ('m1', 'f=$BLOBDIR/clip.ogg')`); err != nil {
		t.Fatalf("insert msg: %v", err)
	}

	original := writeBlob(t, blobDir, "clip.ogg", true)
	waveform := writeBlob(t, blobDir, "clip.ogg.waveform", true)
	increation := writeBlob(t, blobDir, "clip.ogg.increation", true)
	preview := writeBlob(t, blobDir, "clip.ogg-preview.jpg", true)
	unrelated := writeBlob(t, blobDir, "other.ogg.waveform", true)

	if _, err := Run(ctx, db, blobDir, log); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	for _, path := range []string{original, waveform, increation, preview} {
		if !exists(path) {
			t.Errorf("variant of a referenced file deleted: %s", filepath.Base(path))
		}
	}
	if exists(unrelated) {
		t.Error("variant of an unreferenced file survived")
	}
}

func TestRunHandlesMultiLineParams(t *testing.T) {
	db, blobDir, log := testEnv(t)
	ctx := context.Background()

	if _, err := db.Execute(ctx,
		"INSERT INTO chats (type, name, param) VALUES (100, 'c', 'i=$BLOBDIR/group.png\nx=1')"); err != nil {
		t.Fatalf("insert chat: %v", err)
	}

	kept := writeBlob(t, blobDir, "group.png", true)
	if _, err := Run(ctx, db, blobDir, log); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !exists(kept) {
		t.Error("file referenced mid-param deleted")
	}
}

func TestRunMissingBlobDir(t *testing.T) {
	db, blobDir, log := testEnv(t)
	os.RemoveAll(blobDir)

	deleted, err := Run(context.Background(), db, blobDir, log)
	if err != nil {
		t.Fatalf("Run() on missing blob dir error: %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0", deleted)
	}
}

func strPtrT(s string) *string { return &s }
