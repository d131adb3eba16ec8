package recording

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/recintake/recintake/internal/database"
)

// recordOrphans queues storage keys left behind by a pipeline that failed
// after its blob writes. Best-effort: a failed insert only means the sweeper
// never learns about the blob, which is the pre-queue status quo.
func (h *Handler) recordOrphans(r *http.Request, keys ...string) {
	ctx := context.WithoutCancel(r.Context())
	for _, key := range keys {
		if _, err := h.db.Exec(ctx,
			`INSERT INTO orphan_blobs (key) VALUES ($1) ON CONFLICT (key) DO NOTHING`,
			key,
		); err != nil {
			slog.Warn("orphan queue insert failed", "key", key, "error", err)
		}
	}
}

// SweepOrphans drains a batch of the orphan queue, deleting each blob with a
// few retries before giving up until the next tick.
func SweepOrphans(ctx context.Context, db database.DBTX, store ObjectStorage) {
	rows, err := db.Query(ctx, `SELECT key FROM orphan_blobs ORDER BY created_at LIMIT 50`)
	if err != nil {
		slog.Error("orphan sweep: query failed", "error", err)
		return
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			slog.Error("orphan sweep: scan failed", "error", err)
			continue
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		slog.Error("orphan sweep: row iteration failed", "error", err)
		return
	}

	for _, key := range keys {
		if err := deleteWithRetry(ctx, store, key, 3); err != nil {
			slog.Error("orphan sweep: delete failed", "key", key, "error", err)
			continue
		}
		if _, err := db.Exec(ctx, `DELETE FROM orphan_blobs WHERE key = $1`, key); err != nil {
			slog.Error("orphan sweep: dequeue failed", "key", key, "error", err)
		}
	}
}

func deleteWithRetry(ctx context.Context, store ObjectStorage, key string, attempts int) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = store.DeleteObject(ctx, key); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * time.Second):
		}
	}
	return err
}

// StartOrphanSweeper runs SweepOrphans on a ticker until ctx is cancelled.
func StartOrphanSweeper(ctx context.Context, db database.DBTX, store ObjectStorage, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Info("orphan sweeper: shutting down")
				return
			case <-ticker.C:
				SweepOrphans(ctx, db, store)
			}
		}
	}()
}

// SweepTempDir removes stale recintake temp files left by a crashed process.
// Called once at startup.
func SweepTempDir(dir string, maxAge time.Duration) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Warn("temp sweep: read dir failed", "dir", dir, "error", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "recintake-") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) < maxAge {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			slog.Warn("temp sweep: remove failed", "path", path, "error", err)
		} else {
			slog.Info("temp sweep: removed stale temp file", "path", path)
		}
	}
}
