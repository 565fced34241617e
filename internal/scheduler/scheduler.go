// Package scheduler persists delayed tasks in SQLite and feeds them back
// to a handler when they come due. Tasks survive restarts; claiming is a
// single UPDATE so concurrent pollers never double-run a task.
package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Task statuses.
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Task is one scheduled item of work.
type Task struct {
	ID          string
	Description string
	RunAt       time.Time
	Status      string
	Error       string
	CreatedAt   time.Time
}

// Store persists tasks in a SQLite database.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	description TEXT NOT NULL,
	run_at      INTEGER NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	error       TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(status, run_at);
`

// NewStore opens (creating if needed) the task database at path.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open task db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate task db: %w", err)
	}
	log.Info().Str("path", path).Msg("scheduler store opened")
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Schedule queues a task to run at runAt.
func (s *Store) Schedule(description string, runAt time.Time) (*Task, error) {
	task := &Task{
		ID:          uuid.NewString(),
		Description: description,
		RunAt:       runAt,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}

	_, err := s.db.Exec(
		`INSERT INTO tasks (id, description, run_at, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		task.ID, task.Description, task.RunAt.Unix(), task.Status, task.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	log.Info().Str("id", task.ID).Time("run_at", runAt).Msg("task scheduled")
	return task, nil
}

// Claim marks due pending tasks as running and returns them.
func (s *Store) Claim(now time.Time) ([]*Task, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(
		`SELECT id, description, run_at, created_at FROM tasks WHERE status = ? AND run_at <= ?`,
		StatusPending, now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("query due tasks: %w", err)
	}

	var due []*Task
	for rows.Next() {
		var t Task
		var runAt, createdAt int64
		if err := rows.Scan(&t.ID, &t.Description, &runAt, &createdAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.RunAt = time.Unix(runAt, 0)
		t.CreatedAt = time.Unix(createdAt, 0)
		t.Status = StatusRunning
		due = append(due, &t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due tasks: %w", err)
	}

	for _, t := range due {
		if _, err := tx.Exec(`UPDATE tasks SET status = ? WHERE id = ?`, StatusRunning, t.ID); err != nil {
			return nil, fmt.Errorf("claim task %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return due, nil
}

// Complete marks a task done.
func (s *Store) Complete(id string) error {
	_, err := s.db.Exec(`UPDATE tasks SET status = ? WHERE id = ?`, StatusDone, id)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

// Fail marks a task failed with a reason.
func (s *Store) Fail(id, reason string) error {
	_, err := s.db.Exec(`UPDATE tasks SET status = ?, error = ? WHERE id = ?`, StatusFailed, reason, id)
	if err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	return nil
}

// Pending lists queued tasks, soonest first.
func (s *Store) Pending() ([]*Task, error) {
	rows, err := s.db.Query(
		`SELECT id, description, run_at, status, error, created_at FROM tasks WHERE status = ? ORDER BY run_at`,
		StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		var t Task
		var runAt, createdAt int64
		if err := rows.Scan(&t.ID, &t.Description, &runAt, &t.Status, &t.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.RunAt = time.Unix(runAt, 0)
		t.CreatedAt = time.Unix(createdAt, 0)
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

// Handler processes one due task.
type Handler func(ctx context.Context, task *Task) error

// Runner polls the store and dispatches due tasks.
type Runner struct {
	store    *Store
	interval time.Duration
	handler  Handler
}

// NewRunner creates a Runner polling at interval.
func NewRunner(store *Store, interval time.Duration, handler Handler) *Runner {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Runner{store: store, interval: interval, handler: handler}
}

// Run polls until ctx is cancelled. Handler errors mark the task failed;
// the loop keeps going.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	due, err := r.store.Claim(time.Now())
	if err != nil {
		log.Warn().Err(err).Msg("claim failed")
		return
	}

	for _, task := range due {
		log.Info().Str("id", task.ID).Str("task", task.Description).Msg("running due task")
		if err := r.handler(ctx, task); err != nil {
			log.Warn().Err(err).Str("id", task.ID).Msg("task failed")
			if ferr := r.store.Fail(task.ID, err.Error()); ferr != nil {
				log.Warn().Err(ferr).Str("id", task.ID).Msg("could not record failure")
			}
			continue
		}
		if err := r.store.Complete(task.ID); err != nil {
			log.Warn().Err(err).Str("id", task.ID).Msg("could not record completion")
		}
	}
}
