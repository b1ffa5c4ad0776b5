package downloads

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists tasks in a SQLite file so status survives restarts.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and initializes) the task database at path. Tasks left
// in progress by a previous process are marked failed.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if dir := filepath.Dir(filepath.Clean(path)); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure task db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path))
	if err != nil {
		return nil, fmt.Errorf("open task db: %w", err)
	}
	if err := bootstrap(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func bootstrap(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS download_tasks (
			id TEXT PRIMARY KEY,
			model TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			files TEXT NOT NULL DEFAULT '[]',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create download_tasks table: %w", err)
	}
	if _, err := db.Exec(
		`UPDATE download_tasks SET status = ?, error = ?, updated_at = ? WHERE status = ?`,
		StatusFailed, "interrupted by restart", time.Now().UnixMilli(), StatusInProgress,
	); err != nil {
		return fmt.Errorf("mark interrupted tasks: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Put(ctx context.Context, t Task) error {
	files, err := json.Marshal(append([]string{}, t.Files...))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO download_tasks (id, model, status, error, files, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			files = excluded.files,
			updated_at = excluded.updated_at`,
		t.ID, t.Model, t.Status, t.Error, string(files), t.Created.UnixMilli(), t.Updated.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Task, error) {
	var (
		t                Task
		files            string
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, model, status, error, files, created_at, updated_at FROM download_tasks WHERE id = ?`, id,
	).Scan(&t.ID, &t.Model, &t.Status, &t.Error, &files, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrTaskNotFound
	}
	if err != nil {
		return Task{}, fmt.Errorf("load task %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(files), &t.Files); err != nil {
		return Task{}, fmt.Errorf("decode files of task %s: %w", id, err)
	}
	t.Created = time.UnixMilli(created)
	t.Updated = time.UnixMilli(updated)
	return t, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
