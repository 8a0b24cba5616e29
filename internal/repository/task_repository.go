package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"unitrack/api/internal/models"
)

var (
	ErrTaskNotFound       = errors.New("task not found")
	ErrAttachmentNotFound = errors.New("attachment not found")
)

const taskColumns = `id, user_id, title, course, content, priority, due_date, completed, created_at, updated_at`

type TaskRepository struct {
	pool *pgxpool.Pool
}

func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

func (r *TaskRepository) Create(ctx context.Context, task models.Task) error {
	const query = `
		INSERT INTO tasks (
			id, user_id, title, course, content, priority, due_date, completed, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()
		)
	`
	_, err := r.pool.Exec(ctx, query,
		task.ID,
		task.UserID,
		task.Title,
		task.Course,
		task.Content,
		task.Priority,
		task.DueDate,
		task.Completed,
	)
	return err
}

// ListByUser returns the user's tasks ordered by due date ascending.
func (r *TaskRepository) ListByUser(ctx context.Context, userID string) ([]models.Task, error) {
	const query = `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1 ORDER BY due_date ASC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTasks(rows)
}

// GetByOwner fetches a task only when it belongs to the given user, so a
// missing row and someone else's row are indistinguishable to the caller.
func (r *TaskRepository) GetByOwner(ctx context.Context, userID, taskID string) (models.Task, error) {
	const query = `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND user_id = $2`

	row := r.pool.QueryRow(ctx, query, taskID, userID)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Task{}, ErrTaskNotFound
		}
		return models.Task{}, err
	}
	return task, nil
}

func (r *TaskRepository) Update(ctx context.Context, task models.Task) error {
	const query = `
		UPDATE tasks
		SET title = $3, course = $4, content = $5, priority = $6, due_date = $7, completed = $8, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
	`
	cmd, err := r.pool.Exec(ctx, query,
		task.ID,
		task.UserID,
		task.Title,
		task.Course,
		task.Content,
		task.Priority,
		task.DueDate,
		task.Completed,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, userID, taskID string) error {
	const query = `DELETE FROM tasks WHERE id = $1 AND user_id = $2`
	cmd, err := r.pool.Exec(ctx, query, taskID, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// DueBetween feeds the reminder scan: incomplete tasks in the window whose
// owners opted into notifications.
func (r *TaskRepository) DueBetween(ctx context.Context, from, to time.Time) ([]models.DueTask, error) {
	const query = `
		SELECT t.id, t.user_id, t.title, t.course, t.content, t.priority, t.due_date, t.completed,
		       t.created_at, t.updated_at, u.email, u.first_name
		FROM tasks t
		JOIN users u ON u.id = t.user_id
		WHERE t.completed = FALSE
		  AND t.due_date >= $1 AND t.due_date <= $2
		  AND u.notification = TRUE
		ORDER BY t.due_date ASC
	`

	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []models.DueTask
	for rows.Next() {
		var d models.DueTask
		if err := rows.Scan(
			&d.Task.ID,
			&d.Task.UserID,
			&d.Task.Title,
			&d.Task.Course,
			&d.Task.Content,
			&d.Task.Priority,
			&d.Task.DueDate,
			&d.Task.Completed,
			&d.Task.CreatedAt,
			&d.Task.UpdatedAt,
			&d.Email,
			&d.FirstName,
		); err != nil {
			return nil, err
		}
		due = append(due, d)
	}
	return due, rows.Err()
}

func (r *TaskRepository) AddAttachment(ctx context.Context, att models.Attachment) error {
	const query = `
		INSERT INTO task_attachments (
			id, task_id, object_key, file_name, content_type, size_bytes, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, NOW()
		)
	`
	_, err := r.pool.Exec(ctx, query,
		att.ID,
		att.TaskID,
		att.ObjectKey,
		att.FileName,
		att.ContentType,
		att.SizeBytes,
	)
	return err
}

func (r *TaskRepository) ListAttachments(ctx context.Context, taskID string) ([]models.Attachment, error) {
	const query = `
		SELECT id, task_id, object_key, file_name, content_type, size_bytes, created_at
		FROM task_attachments
		WHERE task_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var atts []models.Attachment
	for rows.Next() {
		var att models.Attachment
		if err := rows.Scan(
			&att.ID,
			&att.TaskID,
			&att.ObjectKey,
			&att.FileName,
			&att.ContentType,
			&att.SizeBytes,
			&att.CreatedAt,
		); err != nil {
			return nil, err
		}
		atts = append(atts, att)
	}
	return atts, rows.Err()
}

func (r *TaskRepository) GetAttachment(ctx context.Context, taskID, attachmentID string) (models.Attachment, error) {
	const query = `
		SELECT id, task_id, object_key, file_name, content_type, size_bytes, created_at
		FROM task_attachments
		WHERE id = $1 AND task_id = $2
	`

	row := r.pool.QueryRow(ctx, query, attachmentID, taskID)
	var att models.Attachment
	if err := row.Scan(
		&att.ID,
		&att.TaskID,
		&att.ObjectKey,
		&att.FileName,
		&att.ContentType,
		&att.SizeBytes,
		&att.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Attachment{}, ErrAttachmentNotFound
		}
		return models.Attachment{}, err
	}
	return att, nil
}

func (r *TaskRepository) DeleteAttachment(ctx context.Context, taskID, attachmentID string) error {
	const query = `DELETE FROM task_attachments WHERE id = $1 AND task_id = $2`
	cmd, err := r.pool.Exec(ctx, query, attachmentID, taskID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAttachmentNotFound
	}
	return nil
}

func scanTask(row pgx.Row) (models.Task, error) {
	var task models.Task
	err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.Title,
		&task.Course,
		&task.Content,
		&task.Priority,
		&task.DueDate,
		&task.Completed,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	return task, err
}

func scanTasks(rows pgx.Rows) ([]models.Task, error) {
	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}
