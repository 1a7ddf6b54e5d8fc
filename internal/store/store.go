// Package store provides the durable local task store backed by embedded
// SQLite.
//
// The store holds the full offline state: live tasks, dirty edits not yet
// pushed, and tombstones awaiting remote deletion. Records are keyed by
// the task identifier's stable string form, so a local task and the
// remote-identified task it becomes after sync occupy distinct rows and
// the remap is a transactional Rekey.
//
// The database runs in embedded mode with WAL so a CLI invocation can
// read while the daemon writes.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmallory/synclist/internal/task"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the SQLite connection.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates a connection at the given path, creating the parent
// directory and the schema if needed. The caller MUST call Close.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	s := &Store{conn: conn, path: path}

	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}

	s.conn = nil
	return nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		key TEXT PRIMARY KEY,        -- "local:<token>" or "remote:<id>"
		remote_id INTEGER,           -- NULL until the server assigns one
		local_token TEXT,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		completed INTEGER NOT NULL DEFAULT 0,
		location TEXT,               -- opaque JSON payload
		photo TEXT,                  -- opaque JSON payload
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		dirty INTEGER NOT NULL DEFAULT 0,
		deleted INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_dirty ON tasks(dirty);
	CREATE INDEX IF NOT EXISTS idx_tasks_deleted ON tasks(deleted);
	CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks(created_at);
	`

	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Save inserts or replaces a task keyed by its identifier.
func (s *Store) Save(t *task.Task) error {
	return s.SaveContext(context.Background(), t)
}

// SaveContext inserts or replaces a task with context support.
func (s *Store) SaveContext(ctx context.Context, t *task.Task) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}
	return upsertTask(ctx, s.conn, t)
}

// Rekey atomically replaces the record stored under old with t, keyed
// by t's identifier. Used when the server assigns an id to a pushed
// task; delete and insert happen in one transaction so a failure can
// never drop the record.
func (s *Store) Rekey(old task.ID, t *task.Task) error {
	return s.RekeyContext(context.Background(), old, t)
}

// RekeyContext rekeys a record with context support.
func (s *Store) RekeyContext(ctx context.Context, old task.ID, t *task.Task) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin rekey of task %s: %w", old, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE key = ?`, old.Key()); err != nil {
		return fmt.Errorf("failed to rekey task %s: %w", old, err)
	}
	if err := upsertTask(ctx, tx, t); err != nil {
		return fmt.Errorf("failed to rekey task %s: %w", old, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rekey of task %s: %w", old, err)
	}
	return nil
}

// execer covers *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertTask(ctx context.Context, db execer, t *task.Task) error {
	var remoteID sql.NullInt64
	var localToken sql.NullString
	if t.ID.IsRemote() {
		remoteID = sql.NullInt64{Int64: t.ID.Remote(), Valid: true}
	} else {
		localToken = sql.NullString{String: t.ID.Token(), Valid: true}
	}

	query := `
	INSERT INTO tasks (
		key, remote_id, local_token, title, description, completed,
		location, photo, created_at, updated_at, dirty, deleted
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		title = excluded.title,
		description = excluded.description,
		completed = excluded.completed,
		location = excluded.location,
		photo = excluded.photo,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at,
		dirty = excluded.dirty,
		deleted = excluded.deleted
	`

	_, err := db.ExecContext(ctx, query,
		t.ID.Key(),
		remoteID,
		localToken,
		t.Title,
		t.Description,
		boolToInt(t.Completed),
		rawToNullString(t.Location),
		rawToNullString(t.Photo),
		t.CreatedAt.Format(time.RFC3339Nano),
		t.UpdatedAt.Format(time.RFC3339Nano),
		boolToInt(t.Dirty),
		boolToInt(t.Deleted),
	)
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", t.ID, err)
	}

	return nil
}

// Purge removes a task entirely. Purging a missing task is not an error.
func (s *Store) Purge(id task.ID) error {
	return s.PurgeContext(context.Background(), id)
}

// PurgeContext removes a task with context support.
func (s *Store) PurgeContext(ctx context.Context, id task.ID) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM tasks WHERE key = ?`, id.Key()); err != nil {
		return fmt.Errorf("failed to purge task %s: %w", id, err)
	}
	return nil
}

// Get retrieves a single task. Returns sql.ErrNoRows if absent.
func (s *Store) Get(id task.ID) (*task.Task, error) {
	return s.GetContext(context.Background(), id)
}

// GetContext retrieves a single task with context support.
func (s *Store) GetContext(ctx context.Context, id task.ID) (*task.Task, error) {
	row := s.conn.QueryRowContext(ctx, selectColumns+` FROM tasks WHERE key = ?`, id.Key())
	return scanTask(row)
}

// LoadAll returns every record, tombstones and dirty entries included,
// ordered by creation time.
func (s *Store) LoadAll() ([]*task.Task, error) {
	return s.LoadAllContext(context.Background())
}

// LoadAllContext returns every record with context support.
func (s *Store) LoadAllContext(ctx context.Context) ([]*task.Task, error) {
	rows, err := s.conn.QueryContext(ctx, selectColumns+` FROM tasks ORDER BY created_at ASC, key ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ListVisible returns the tasks a listing shows: everything except
// tombstones, ordered by creation time.
func (s *Store) ListVisible(ctx context.Context) ([]*task.Task, error) {
	rows, err := s.conn.QueryContext(ctx,
		selectColumns+` FROM tasks WHERE deleted = 0 ORDER BY created_at ASC, key ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// Counts summarizes the local state for status reporting.
type Counts struct {
	Total      int
	Dirty      int
	Tombstones int
	Local      int
}

// GetCounts returns record counts by sync state.
func (s *Store) GetCounts(ctx context.Context) (Counts, error) {
	var c Counts
	query := `
	SELECT COUNT(*),
	       COALESCE(SUM(dirty), 0),
	       COALESCE(SUM(deleted), 0),
	       COALESCE(SUM(CASE WHEN remote_id IS NULL THEN 1 ELSE 0 END), 0)
	FROM tasks
	`
	if err := s.conn.QueryRowContext(ctx, query).Scan(&c.Total, &c.Dirty, &c.Tombstones, &c.Local); err != nil {
		return Counts{}, fmt.Errorf("failed to count tasks: %w", err)
	}
	return c, nil
}

const selectColumns = `
	SELECT key, remote_id, local_token, title, description, completed,
	       location, photo, created_at, updated_at, dirty, deleted`

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var (
		key        string
		remoteID   sql.NullInt64
		localToken sql.NullString
		t          task.Task
		completed  int
		location   sql.NullString
		photo      sql.NullString
		createdAt  string
		updatedAt  string
		dirty      int
		deleted    int
	)

	err := row.Scan(
		&key,
		&remoteID,
		&localToken,
		&t.Title,
		&t.Description,
		&completed,
		&location,
		&photo,
		&createdAt,
		&updatedAt,
		&dirty,
		&deleted,
	)
	if err != nil {
		return nil, err
	}

	switch {
	case remoteID.Valid:
		t.ID = task.RemoteID(remoteID.Int64)
	case localToken.Valid:
		t.ID = task.LocalID(localToken.String)
	default:
		return nil, fmt.Errorf("task row %q has no identifier", key)
	}

	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		t.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		t.UpdatedAt = ts
	}

	if location.Valid {
		t.Location = []byte(location.String)
	}
	if photo.Valid {
		t.Photo = []byte(photo.String)
	}

	t.Completed = completed != 0
	t.Dirty = dirty != 0
	t.Deleted = deleted != 0

	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]*task.Task, error) {
	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func rawToNullString(raw []byte) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}
