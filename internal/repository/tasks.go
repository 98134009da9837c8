package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type TaskStatus string

const (
	TaskStatusCreated        TaskStatus = "CREATED"
	TaskStatusProcessing     TaskStatus = "PROCESSING"
	TaskStatusFailed         TaskStatus = "FAILED"
	TaskStatusNoAttemptsLeft TaskStatus = "NO_ATTEMPTS_LEFT"
)

// Task is one outbox entry: an event waiting to be published to the broker.
type Task struct {
	ID            string       `db:"id"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
	FinishedAt    sql.NullTime `db:"finished_at"`
	EventKey      string       `db:"event_key"`
	Payload       string       `db:"payload"`
	Status        TaskStatus   `db:"status"`
	AttemptCount  int          `db:"attempt_count"`
	NextAttemptAt sql.NullTime `db:"next_attempt_at"`
}

type TaskRepository interface {
	CreateTask(ctx context.Context, key string, payload []byte) error
	GetPendingTasks(ctx context.Context, limit, maxAttempts int, now time.Time) ([]*Task, error)
	MarkTaskProcessing(ctx context.Context, taskID string) error
	DeleteTask(ctx context.Context, taskID string) error
	UpdateTaskFailure(ctx context.Context, taskID string, attemptCount int, newStatus TaskStatus, nextAttemptAt time.Time) error
}

type SQLTaskRepository struct {
	db *sqlx.DB
}

func NewSQLTaskRepository(db *sqlx.DB) *SQLTaskRepository {
	return &SQLTaskRepository{db: db}
}

func (r *SQLTaskRepository) CreateTask(ctx context.Context, key string, payload []byte) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO tasks (id, created_at, updated_at, event_key, payload, status, attempt_count)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query), uuid.NewString(), now, now, key, string(payload), TaskStatusCreated)
	return err
}

func (r *SQLTaskRepository) GetPendingTasks(ctx context.Context, limit, maxAttempts int, now time.Time) ([]*Task, error) {
	query := `
		SELECT id, created_at, updated_at, finished_at, event_key, payload, status, attempt_count, next_attempt_at
		FROM tasks
		WHERE status IN (?, ?)
		  AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		  AND attempt_count < ?
		ORDER BY created_at
		LIMIT ?
	`
	var tasks []*Task
	err := r.db.SelectContext(ctx, &tasks, r.db.Rebind(query),
		TaskStatusCreated, TaskStatusFailed, now.UTC(), maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *SQLTaskRepository) MarkTaskProcessing(ctx context.Context, taskID string) error {
	query := `
		UPDATE tasks SET status = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query), TaskStatusProcessing, time.Now().UTC(), taskID)
	return err
}

func (r *SQLTaskRepository) DeleteTask(ctx context.Context, taskID string) error {
	query := `DELETE FROM tasks WHERE id = ?`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query), taskID)
	return err
}

func (r *SQLTaskRepository) UpdateTaskFailure(ctx context.Context, taskID string, attemptCount int, newStatus TaskStatus, nextAttemptAt time.Time) error {
	query := `
		UPDATE tasks
		SET status = ?, attempt_count = ?, updated_at = ?, next_attempt_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query), newStatus, attemptCount, time.Now().UTC(), nextAttemptAt.UTC(), taskID)
	return err
}
