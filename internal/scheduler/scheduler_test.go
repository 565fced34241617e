package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("Unexpected error opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestScheduleAndClaim(t *testing.T) {
	s := newTestStore(t)

	past, err := s.Schedule("water the plants", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := s.Schedule("future task", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	due, err := s.Claim(time.Now())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("Expected 1 due task, got %d", len(due))
	}
	if due[0].ID != past.ID {
		t.Errorf("Expected task %s, got %s", past.ID, due[0].ID)
	}

	// A second claim must not hand the same task out again.
	again, err := s.Claim(time.Now())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("Expected no tasks on second claim, got %d", len(again))
	}
}

func TestCompleteAndFail(t *testing.T) {
	s := newTestStore(t)

	a, _ := s.Schedule("task a", time.Now().Add(-time.Minute))
	b, _ := s.Schedule("task b", time.Now().Add(-time.Minute))
	if _, err := s.Claim(time.Now()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if err := s.Complete(a.ID); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := s.Fail(b.ID, "boom"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	pending, err := s.Pending()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Expected no pending tasks, got %d", len(pending))
	}
}

func TestRunnerDispatchesDueTasks(t *testing.T) {
	s := newTestStore(t)
	s.Schedule("send reminder", time.Now().Add(-time.Second))

	handled := make(chan string, 1)
	r := NewRunner(s, 10*time.Millisecond, func(ctx context.Context, task *Task) error {
		handled <- task.Description
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	select {
	case desc := <-handled:
		if desc != "send reminder" {
			t.Errorf("Unexpected task: %q", desc)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for task dispatch")
	}
}

func TestRunnerRecordsHandlerFailure(t *testing.T) {
	s := newTestStore(t)
	task, _ := s.Schedule("doomed task", time.Now().Add(-time.Second))

	r := NewRunner(s, 10*time.Millisecond, func(ctx context.Context, task *Task) error {
		return errors.New("handler exploded")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	r.Run(ctx)

	var status, reason string
	row := s.db.QueryRow(`SELECT status, error FROM tasks WHERE id = ?`, task.ID)
	if err := row.Scan(&status, &reason); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if status != StatusFailed {
		t.Errorf("Expected status %q, got %q", StatusFailed, status)
	}
	if reason != "handler exploded" {
		t.Errorf("Expected failure reason recorded, got %q", reason)
	}
}
