// Package housekeeping removes orphaned files from the blob directory:
// files no database row references anymore, typically left behind by
// interrupted downloads or deleted messages.
package housekeeping

import (
	"context"
	"database/sql"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fenilsonani/mailclient/internal/logging"
	"github.com/fenilsonani/mailclient/internal/metrics"
	"github.com/fenilsonani/mailclient/internal/store"
)

// blobPrefix marks a file reference inside a stored parameter value or
// config value as living in the blob directory.
const blobPrefix = "$BLOBDIR/"

// keepAge is the grace period: files younger than this are never deleted,
// whatever their reference status, so an in-flight write is safe.
const keepAge = time.Hour

// variantSuffixes are stripped from an on-disk filename before looking it
// up in the referenced set, so derived artifacts survive alongside their
// originals.
var variantSuffixes = []string{".increation", ".waveform", "-preview.jpg"}

// referenceQueries lists every table column that may carry $BLOBDIR file
// references.
var referenceQueries = []string{
	"SELECT param FROM msgs",
	"SELECT param FROM jobs",
	"SELECT param FROM chats",
	"SELECT param FROM contacts",
	"SELECT COALESCE(value, '') FROM config",
}

// Run scans the database for blob references and deletes every file under
// blobDir that is neither referenced nor younger than an hour. It returns
// the number of files deleted.
func Run(ctx context.Context, db *store.DB, blobDir string, log *logging.Logger) (int, error) {
	hlog := log.Housekeeping()
	metrics.HousekeepingRuns.Inc()

	referenced, err := collectReferences(ctx, db)
	if err != nil {
		return 0, err
	}
	hlog.DebugContext(ctx, "collected blob references", "count", len(referenced))

	entries, err := os.ReadDir(blobDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	now := time.Now()
	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if referenced[stripVariantSuffix(entry.Name())] {
			continue
		}
		if youngestTimestamp(info, now).Add(keepAge).After(now) {
			continue
		}

		path := filepath.Join(blobDir, entry.Name())
		if err := os.Remove(path); err != nil {
			hlog.WarnContext(ctx, "delete orphaned blob failed", "path", path, "error", err)
			continue
		}
		hlog.InfoContext(ctx, "deleted orphaned blob", "name", entry.Name())
		metrics.HousekeepingFilesDeleted.Inc()
		deleted++
	}

	return deleted, nil
}

// collectReferences scans every row that may carry file references and
// returns the set of referenced blob filenames.
func collectReferences(ctx context.Context, db *store.DB) (map[string]bool, error) {
	referenced := make(map[string]bool)
	for _, query := range referenceQueries {
		err := db.QueryMap(ctx, query, func(rows *sql.Rows) error {
			var value string
			if err := rows.Scan(&value); err != nil {
				return err
			}
			addReferences(referenced, value)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return referenced, nil
}

// addReferences extracts every "$BLOBDIR/<name>" occurrence in value and
// records the bare filename. Parameter values are key=value lines, so a
// reference runs to the end of its line.
func addReferences(set map[string]bool, value string) {
	rest := value
	for {
		i := strings.Index(rest, blobPrefix)
		if i < 0 {
			return
		}
		rest = rest[i+len(blobPrefix):]
		end := strings.IndexAny(rest, "\r\n")
		name := rest
		if end >= 0 {
			name = rest[:end]
			rest = rest[end:]
		} else {
			rest = ""
		}
		name = strings.TrimSpace(name)
		if name != "" {
			set[name] = true
		}
	}
}

// stripVariantSuffix removes a derived-artifact suffix from name, if
// present, so the lookup hits the original file's reference.
func stripVariantSuffix(name string) string {
	for _, suffix := range variantSuffixes {
		if strings.HasSuffix(name, suffix) {
			return strings.TrimSuffix(name, suffix)
		}
	}
	return name
}

// youngestTimestamp returns the more recent of the file's modification and
// access times, falling back to the modification time alone where the
// platform stat does not expose access time.
func youngestTimestamp(info fs.FileInfo, now time.Time) time.Time {
	youngest := info.ModTime()
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		atime := time.Unix(stat.Atim.Sec, stat.Atim.Nsec)
		if atime.After(youngest) {
			youngest = atime
		}
	}
	if youngest.After(now) {
		return now
	}
	return youngest
}
