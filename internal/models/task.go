package models

import "time"

type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

type Task struct {
	ID        string
	UserID    string
	Title     string
	Course    string
	Content   string
	Priority  TaskPriority
	DueDate   time.Time
	Completed bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Attachment is the metadata row for a file stored in the object store.
type Attachment struct {
	ID          string
	TaskID      string
	ObjectKey   string
	FileName    string
	ContentType string
	SizeBytes   int64
	CreatedAt   time.Time
}

// DueTask pairs a task with the owner fields the reminder pipeline needs.
type DueTask struct {
	Task      Task
	Email     string
	FirstName string
}
