package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists the task board in a single SQLite database shared by
// workers and the watchdog. WAL mode plus a busy timeout makes the
// read-then-write sequences in Update safe across processes.
type SQLiteStore struct {
	db *sql.DB

	// clock is swappable for tests.
	clock func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	lane TEXT NOT NULL,
	priority TEXT NOT NULL,
	owner TEXT NOT NULL DEFAULT '',
	problem TEXT NOT NULL DEFAULT '',
	scope TEXT NOT NULL DEFAULT '',
	acceptance TEXT NOT NULL DEFAULT '[]',
	timeout_minutes INTEGER NOT NULL DEFAULT 0,
	crash_recovery INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS task_history (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT NOT NULL,
	at INTEGER NOT NULL,
	from_lane TEXT NOT NULL DEFAULT '',
	to_lane TEXT NOT NULL,
	note TEXT NOT NULL DEFAULT '',
	FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_tasks_owner_lane ON tasks(owner, lane);
CREATE INDEX IF NOT EXISTS idx_task_history_task ON task_history(task_id);
`

// OpenSQLite creates or opens the task database at the given path and
// initializes the schema.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && !strings.HasPrefix(dbPath, ":memory:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("task: create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("task: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite allows one writer at a time

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("task: init schema: %w", err)
	}
	return &SQLiteStore{db: db, clock: time.Now}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WithClock injects a deterministic clock (primarily for tests).
func (s *SQLiteStore) WithClock(clock func() time.Time) *SQLiteStore {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// Create inserts a new task. A missing ID is generated, a missing lane
// defaults to queued, and the creation history entry is written in the same
// transaction.
func (s *SQLiteStore) Create(ctx context.Context, t Task) (Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Lane == "" {
		t.Lane = LaneQueued
	}
	if !ValidLane(t.Lane) {
		return Task{}, fmt.Errorf("task: invalid lane %q", t.Lane)
	}
	if t.Priority == "" {
		t.Priority = PriorityP2
	}
	now := s.clock().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	acceptance, err := json.Marshal(t.AcceptanceCriteria)
	if err != nil {
		return Task{}, fmt.Errorf("task: encode acceptance criteria: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Task{}, fmt.Errorf("task: begin create: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tasks (id, title, lane, priority, owner, problem, scope, acceptance, timeout_minutes, crash_recovery, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, string(t.Lane), string(t.Priority), t.Owner, t.Problem, t.Scope,
		string(acceptance), t.TimeoutMinutes, boolToInt(t.CrashRecovery), t.CreatedAt.UnixNano(), t.UpdatedAt.UnixNano())
	if err != nil {
		return Task{}, fmt.Errorf("task: insert %s: %w", t.ID, err)
	}

	entry := HistoryEntry{At: now, To: t.Lane}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO task_history (task_id, at, from_lane, to_lane, note) VALUES (?, ?, '', ?, '')`,
		t.ID, now.UnixNano(), string(t.Lane)); err != nil {
		return Task{}, fmt.Errorf("task: insert history for %s: %w", t.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return Task{}, fmt.Errorf("task: commit create: %w", err)
	}

	t.StatusHistory = []HistoryEntry{entry}
	return t, nil
}

// Get returns a single task with its full history.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, lane, priority, owner, problem, scope, acceptance, timeout_minutes, crash_recovery, created_at, updated_at
		 FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return Task{}, ErrNotFound
		}
		return Task{}, fmt.Errorf("task: get %s: %w", id, err)
	}
	history, err := s.loadHistory(ctx, id)
	if err != nil {
		return Task{}, err
	}
	t.StatusHistory = history
	return t, nil
}

// List returns every task on the board, history included, ordered by
// creation time.
func (s *SQLiteStore) List(ctx context.Context) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, lane, priority, owner, problem, scope, acceptance, timeout_minutes, crash_recovery, created_at, updated_at
		 FROM tasks ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("task: list: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	index := make(map[string]int)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("task: scan row: %w", err)
		}
		index[t.ID] = len(tasks)
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("task: list rows: %w", err)
	}

	hrows, err := s.db.QueryContext(ctx,
		`SELECT task_id, at, from_lane, to_lane, note FROM task_history ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("task: list history: %w", err)
	}
	defer hrows.Close()
	for hrows.Next() {
		var taskID, fromLane, toLane, note string
		var at int64
		if err := hrows.Scan(&taskID, &at, &fromLane, &toLane, &note); err != nil {
			return nil, fmt.Errorf("task: scan history row: %w", err)
		}
		if i, ok := index[taskID]; ok {
			tasks[i].StatusHistory = append(tasks[i].StatusHistory, HistoryEntry{
				At:   time.Unix(0, at).UTC(),
				From: Lane(fromLane),
				To:   Lane(toLane),
				Note: note,
			})
		}
	}
	if err := hrows.Err(); err != nil {
		return nil, fmt.Errorf("task: history rows: %w", err)
	}
	return tasks, nil
}

// Update applies a partial update in one transaction. A lane change appends
// exactly one history entry; setting the same lane again appends nothing.
func (s *SQLiteStore) Update(ctx context.Context, id string, p Patch) (Task, error) {
	if p.Lane != nil && !ValidLane(*p.Lane) {
		return Task{}, fmt.Errorf("task: invalid lane %q", *p.Lane)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Task{}, fmt.Errorf("task: begin update: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT lane, owner, crash_recovery FROM tasks WHERE id = ?`, id)
	var currentLane, owner string
	var crashRecovery int
	if err := row.Scan(&currentLane, &owner, &crashRecovery); err != nil {
		if err == sql.ErrNoRows {
			return Task{}, ErrNotFound
		}
		return Task{}, fmt.Errorf("task: read %s: %w", id, err)
	}

	newLane := currentLane
	if p.Lane != nil {
		newLane = string(*p.Lane)
	}
	if p.Owner != nil {
		owner = *p.Owner
	}
	if p.CrashRecovery != nil {
		crashRecovery = boolToInt(*p.CrashRecovery)
	}
	now := s.clock().UTC()

	_, err = tx.ExecContext(ctx,
		`UPDATE tasks SET lane = ?, owner = ?, crash_recovery = ?, updated_at = ? WHERE id = ?`,
		newLane, owner, crashRecovery, now.UnixNano(), id)
	if err != nil {
		return Task{}, fmt.Errorf("task: update %s: %w", id, err)
	}

	if newLane != currentLane {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO task_history (task_id, at, from_lane, to_lane, note) VALUES (?, ?, ?, ?, ?)`,
			id, now.UnixNano(), currentLane, newLane, p.Note); err != nil {
			return Task{}, fmt.Errorf("task: append history for %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Task{}, fmt.Errorf("task: commit update: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *SQLiteStore) loadHistory(ctx context.Context, id string) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, from_lane, to_lane, note FROM task_history WHERE task_id = ? ORDER BY seq ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("task: history for %s: %w", id, err)
	}
	defer rows.Close()

	var history []HistoryEntry
	for rows.Next() {
		var at int64
		var fromLane, toLane, note string
		if err := rows.Scan(&at, &fromLane, &toLane, &note); err != nil {
			return nil, fmt.Errorf("task: scan history for %s: %w", id, err)
		}
		history = append(history, HistoryEntry{
			At:   time.Unix(0, at).UTC(),
			From: Lane(fromLane),
			To:   Lane(toLane),
			Note: note,
		})
	}
	return history, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (Task, error) {
	var t Task
	var lane, priority, acceptance string
	var crashRecovery int
	var createdAt, updatedAt int64
	err := row.Scan(&t.ID, &t.Title, &lane, &priority, &t.Owner, &t.Problem, &t.Scope,
		&acceptance, &t.TimeoutMinutes, &crashRecovery, &createdAt, &updatedAt)
	if err != nil {
		return Task{}, err
	}
	t.Lane = Lane(lane)
	t.Priority = Priority(priority)
	t.CrashRecovery = crashRecovery != 0
	t.CreatedAt = time.Unix(0, createdAt).UTC()
	t.UpdatedAt = time.Unix(0, updatedAt).UTC()
	if acceptance != "" && acceptance != "null" {
		if err := json.Unmarshal([]byte(acceptance), &t.AcceptanceCriteria); err != nil {
			return Task{}, fmt.Errorf("decode acceptance criteria: %w", err)
		}
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
