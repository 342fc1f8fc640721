package history

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/KasumiKitsune/odyssey-sync/internal/db"
	"github.com/KasumiKitsune/odyssey-sync/internal/sync"
)

const defaultRecentLimit = 20

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    item TEXT NOT NULL,
    started_at TEXT NOT NULL, -- RFC3339, UTC
    finished_at TEXT NOT NULL,
    status TEXT NOT NULL,
    to_target INTEGER NOT NULL,
    to_source INTEGER NOT NULL,
    deleted INTEGER NOT NULL,
    skipped INTEGER NOT NULL,
    failed INTEGER NOT NULL,
    bytes INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_item_started ON runs(item, started_at);
`

// dbRun is the row shape; timestamps are stored as TEXT.
type dbRun struct {
	ID         string `db:"id"`
	Item       string `db:"item"`
	StartedAt  string `db:"started_at"`
	FinishedAt string `db:"finished_at"`
	Status     string `db:"status"`
	ToTarget   int    `db:"to_target"`
	ToSource   int    `db:"to_source"`
	Deleted    int    `db:"deleted"`
	Skipped    int    `db:"skipped"`
	Failed     int    `db:"failed"`
	Bytes      int64  `db:"bytes"`
}

// Run is one recorded sync run.
type Run struct {
	ID         string
	Item       string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     sync.RunStatus
	ToTarget   int
	ToSource   int
	Deleted    int
	Skipped    int
	Failed     int
	Bytes      int64
}

// Store keeps finished runs in a local SQLite database. Sync itself is
// stateless; the store only exists so the CLI and item listing can show
// what happened last.
type Store struct {
	db *sqlx.DB
}

// Open creates or opens the run history database at dbPath.
func Open(dbPath string) (*Store, error) {
	conn, err := db.NewSqliteDB(db.WithPath(dbPath), db.WithMaxOpenConns(1))
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &Store{db: conn}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts or updates the row for a finished run.
func (s *Store) Record(res *sync.RunResult) error {
	if res == nil {
		return fmt.Errorf("cannot record nil result")
	}

	row := dbRun{
		ID:         res.RunID,
		Item:       res.Item,
		StartedAt:  res.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt: res.FinishedAt.UTC().Format(time.RFC3339),
		Status:     string(res.Status),
		ToTarget:   res.ToTarget,
		ToSource:   res.ToSource,
		Deleted:    res.Deleted,
		Skipped:    res.Skipped,
		Failed:     res.Failed,
		Bytes:      res.Bytes,
	}

	query := `INSERT OR REPLACE INTO runs
	          (id, item, started_at, finished_at, status, to_target, to_source, deleted, skipped, failed, bytes)
	          VALUES (:id, :item, :started_at, :finished_at, :status, :to_target, :to_source, :deleted, :skipped, :failed, :bytes)`
	if _, err := s.db.NamedExec(query, row); err != nil {
		return fmt.Errorf("record run %s: %w", row.ID, err)
	}
	slog.Debug("history record", "run", row.ID, "item", row.Item, "status", row.Status)
	return nil
}

// LastRun returns the most recent run for an item, or nil when the item
// has never been synced.
func (s *Store) LastRun(item string) (*Run, error) {
	var row dbRun
	err := s.db.Get(&row,
		"SELECT * FROM runs WHERE item = ? ORDER BY started_at DESC LIMIT 1", item)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query last run for %s: %w", item, err)
	}
	return rowToRun(&row)
}

// Recent returns up to n runs, newest first. An empty item selects runs
// across all items.
func (s *Store) Recent(item string, n int) ([]*Run, error) {
	if n <= 0 {
		n = defaultRecentLimit
	}

	var rows []dbRun
	var err error
	if item == "" {
		err = s.db.Select(&rows, "SELECT * FROM runs ORDER BY started_at DESC LIMIT ?", n)
	} else {
		err = s.db.Select(&rows, "SELECT * FROM runs WHERE item = ? ORDER BY started_at DESC LIMIT ?", item, n)
	}
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}

	runs := make([]*Run, 0, len(rows))
	for i := range rows {
		run, err := rowToRun(&rows[i])
		if err != nil {
			slog.Error("skip corrupt history row", "run", rows[i].ID, "error", err)
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// Count returns the number of recorded runs.
func (s *Store) Count() (int, error) {
	var count int
	if err := s.db.Get(&count, "SELECT COUNT(*) FROM runs"); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return count, nil
}

// Prune deletes runs older than keepDays and reports how many rows were
// removed.
func (s *Store) Prune(keepDays int) (int64, error) {
	if keepDays <= 0 {
		return 0, fmt.Errorf("keep days must be positive, got %d", keepDays)
	}

	// Stored timestamps are RFC3339 in UTC, so string comparison agrees
	// with time order.
	cutoff := time.Now().AddDate(0, 0, -keepDays).UTC().Format(time.RFC3339)
	res, err := s.db.Exec("DELETE FROM runs WHERE started_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	if removed > 0 {
		slog.Info("history pruned", "removed", removed, "keepDays", keepDays)
	}
	return removed, nil
}

func rowToRun(row *dbRun) (*Run, error) {
	startedAt, err := time.Parse(time.RFC3339, row.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at %q: %w", row.StartedAt, err)
	}
	finishedAt, err := time.Parse(time.RFC3339, row.FinishedAt)
	if err != nil {
		return nil, fmt.Errorf("parse finished_at %q: %w", row.FinishedAt, err)
	}
	return &Run{
		ID:         row.ID,
		Item:       row.Item,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Status:     sync.RunStatus(row.Status),
		ToTarget:   row.ToTarget,
		ToSource:   row.ToSource,
		Deleted:    row.Deleted,
		Skipped:    row.Skipped,
		Failed:     row.Failed,
		Bytes:      row.Bytes,
	}, nil
}
