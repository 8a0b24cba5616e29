package service

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"unitrack/api/internal/ids"
	"unitrack/api/internal/models"
)

// TaskStore is the task and attachment metadata store.
type TaskStore interface {
	Create(ctx context.Context, task models.Task) error
	ListByUser(ctx context.Context, userID string) ([]models.Task, error)
	GetByOwner(ctx context.Context, userID, taskID string) (models.Task, error)
	Update(ctx context.Context, task models.Task) error
	Delete(ctx context.Context, userID, taskID string) error
	AddAttachment(ctx context.Context, att models.Attachment) error
	ListAttachments(ctx context.Context, taskID string) ([]models.Attachment, error)
	GetAttachment(ctx context.Context, taskID, attachmentID string) (models.Attachment, error)
	DeleteAttachment(ctx context.Context, taskID, attachmentID string) error
}

// BlobStore holds attachment bytes keyed by object key.
type BlobStore interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

type TaskService struct {
	tasks TaskStore
	blobs BlobStore
	log   zerolog.Logger
}

func NewTaskService(tasks TaskStore, blobs BlobStore, log zerolog.Logger) *TaskService {
	return &TaskService{tasks: tasks, blobs: blobs, log: log}
}

type TaskInput struct {
	Title     string
	Course    string
	Content   string
	Priority  string
	DueDate   string
	Completed bool
}

func (s *TaskService) List(ctx context.Context, userID string) ([]models.Task, error) {
	return s.tasks.ListByUser(ctx, userID)
}

func (s *TaskService) Get(ctx context.Context, userID, taskID string) (models.Task, error) {
	return s.tasks.GetByOwner(ctx, userID, taskID)
}

func (s *TaskService) Create(ctx context.Context, userID string, input TaskInput) (models.Task, error) {
	task, err := buildTask(userID, input)
	if err != nil {
		return models.Task{}, err
	}
	task.ID = ids.New()

	if err := s.tasks.Create(ctx, task); err != nil {
		return models.Task{}, err
	}
	return task, nil
}

func (s *TaskService) Update(ctx context.Context, userID, taskID string, input TaskInput) (models.Task, error) {
	if _, err := s.tasks.GetByOwner(ctx, userID, taskID); err != nil {
		return models.Task{}, err
	}

	task, err := buildTask(userID, input)
	if err != nil {
		return models.Task{}, err
	}
	task.ID = taskID

	if err := s.tasks.Update(ctx, task); err != nil {
		return models.Task{}, err
	}
	return task, nil
}

// Delete removes the task row and best-effort cleans its attachment objects;
// an orphaned blob is preferable to a task that refuses to die.
func (s *TaskService) Delete(ctx context.Context, userID, taskID string) error {
	if _, err := s.tasks.GetByOwner(ctx, userID, taskID); err != nil {
		return err
	}

	atts, err := s.tasks.ListAttachments(ctx, taskID)
	if err != nil {
		return err
	}
	for _, att := range atts {
		if err := s.blobs.Remove(ctx, att.ObjectKey); err != nil {
			s.log.Warn().Err(err).Str("object_key", att.ObjectKey).Msg("attachment cleanup failed")
		}
	}

	return s.tasks.Delete(ctx, userID, taskID)
}

func (s *TaskService) Attachments(ctx context.Context, userID, taskID string) ([]models.Attachment, error) {
	if _, err := s.tasks.GetByOwner(ctx, userID, taskID); err != nil {
		return nil, err
	}
	return s.tasks.ListAttachments(ctx, taskID)
}

func (s *TaskService) UploadFiles(ctx context.Context, userID, taskID string, files []*multipart.FileHeader) ([]models.Attachment, error) {
	if _, err := s.tasks.GetByOwner(ctx, userID, taskID); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files uploaded", ErrValidation)
	}

	uploaded := make([]models.Attachment, 0, len(files))
	for _, header := range files {
		att, err := s.uploadOne(ctx, taskID, header)
		if err != nil {
			return nil, err
		}
		uploaded = append(uploaded, att)
	}
	return uploaded, nil
}

func (s *TaskService) uploadOne(ctx context.Context, taskID string, header *multipart.FileHeader) (models.Attachment, error) {
	file, err := header.Open()
	if err != nil {
		return models.Attachment{}, fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	att := models.Attachment{
		ID:          ids.New(),
		TaskID:      taskID,
		FileName:    header.Filename,
		ContentType: contentType,
		SizeBytes:   header.Size,
	}
	att.ObjectKey = fmt.Sprintf("%s/%s", taskID, att.ID)

	if err := s.blobs.Put(ctx, att.ObjectKey, file, header.Size, contentType); err != nil {
		return models.Attachment{}, err
	}

	if err := s.tasks.AddAttachment(ctx, att); err != nil {
		// metadata write failed: drop the orphaned object
		if rerr := s.blobs.Remove(ctx, att.ObjectKey); rerr != nil {
			s.log.Warn().Err(rerr).Str("object_key", att.ObjectKey).Msg("orphan cleanup failed")
		}
		return models.Attachment{}, err
	}
	return att, nil
}

func (s *TaskService) DownloadFile(ctx context.Context, userID, taskID, attachmentID string) (models.Attachment, io.ReadCloser, error) {
	if _, err := s.tasks.GetByOwner(ctx, userID, taskID); err != nil {
		return models.Attachment{}, nil, err
	}

	att, err := s.tasks.GetAttachment(ctx, taskID, attachmentID)
	if err != nil {
		return models.Attachment{}, nil, err
	}

	reader, err := s.blobs.Get(ctx, att.ObjectKey)
	if err != nil {
		return models.Attachment{}, nil, err
	}
	return att, reader, nil
}

func (s *TaskService) DeleteFile(ctx context.Context, userID, taskID, attachmentID string) error {
	if _, err := s.tasks.GetByOwner(ctx, userID, taskID); err != nil {
		return err
	}

	att, err := s.tasks.GetAttachment(ctx, taskID, attachmentID)
	if err != nil {
		return err
	}

	if err := s.blobs.Remove(ctx, att.ObjectKey); err != nil {
		return err
	}
	return s.tasks.DeleteAttachment(ctx, taskID, attachmentID)
}

func buildTask(userID string, input TaskInput) (models.Task, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Course = strings.TrimSpace(input.Course)

	if input.Title == "" || input.Course == "" || input.DueDate == "" {
		return models.Task{}, fmt.Errorf("%w: title, course and dueDate are required", ErrValidation)
	}

	dueDate, err := ParseDueDate(input.DueDate)
	if err != nil {
		return models.Task{}, err
	}

	priority, err := parsePriority(input.Priority)
	if err != nil {
		return models.Task{}, err
	}

	return models.Task{
		UserID:    userID,
		Title:     input.Title,
		Course:    input.Course,
		Content:   input.Content,
		Priority:  priority,
		DueDate:   dueDate,
		Completed: input.Completed,
	}, nil
}

// ParseDueDate accepts the frontend's DD.MM.YYYY form as well as
// YYYY-MM-DD and RFC 3339. Anything else is a validation error rather than
// a silently misparsed date.
func ParseDueDate(value string) (time.Time, error) {
	for _, layout := range []string{"02.01.2006", "2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized due date %q", ErrValidation, value)
}

func parsePriority(value string) (models.TaskPriority, error) {
	switch models.TaskPriority(strings.ToLower(strings.TrimSpace(value))) {
	case "":
		return models.TaskPriorityMedium, nil
	case models.TaskPriorityLow:
		return models.TaskPriorityLow, nil
	case models.TaskPriorityMedium:
		return models.TaskPriorityMedium, nil
	case models.TaskPriorityHigh:
		return models.TaskPriorityHigh, nil
	default:
		return "", fmt.Errorf("%w: priority must be low, medium or high", ErrValidation)
	}
}
