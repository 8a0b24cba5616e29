package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"unitrack/api/internal/models"
)

// ReminderStream is the redis stream carrying per-user due-task digests.
const ReminderStream = "reminders:due"

// DueTaskSource is the slice of the task store the scan needs.
type DueTaskSource interface {
	DueBetween(ctx context.Context, from, to time.Time) ([]models.DueTask, error)
}

// reminderPayload is one stream message: everything the dispatcher needs to
// notify one user, so delivery does not re-query the store.
type reminderPayload struct {
	UserID    string        `json:"userId"`
	Email     string        `json:"email"`
	FirstName string        `json:"firstName"`
	Tasks     []models.Task `json:"tasks"`
}

// Scheduler runs the daily 09:00 due-task scan and enqueues reminder
// digests. Delivery happens in the Dispatcher; the scan never blocks on it.
type Scheduler struct {
	cron  *cron.Cron
	queue *redis.Client
	tasks DueTaskSource
	log   zerolog.Logger
}

func NewScheduler(queue *redis.Client, tasks DueTaskSource, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:  cron.New(cron.WithSeconds()),
		queue: queue,
		tasks: tasks,
		log:   log,
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil {
		return nil
	}

	if _, err := s.cron.AddFunc("0 0 9 * * *", s.scanDueTasks); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop halts scheduling and waits briefly for a running scan to finish.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-time.After(5 * time.Second):
	}
}

func (s *Scheduler) scanDueTasks() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	from, to := ReminderWindow(time.Now())
	due, err := s.tasks.DueBetween(ctx, from, to)
	if err != nil {
		s.log.Error().Err(err).Msg("due task scan failed")
		return
	}
	if len(due) == 0 {
		s.log.Debug().Msg("no tasks due in the reminder window")
		return
	}

	for _, digest := range groupByUser(due) {
		if err := s.enqueue(ctx, digest); err != nil {
			s.log.Error().Err(err).Str("user_id", digest.UserID).Msg("enqueue reminder failed")
		}
	}
}

func (s *Scheduler) enqueue(ctx context.Context, payload reminderPayload) error {
	tasksJSON, err := json.Marshal(payload.Tasks)
	if err != nil {
		return err
	}

	_, err = s.queue.XAdd(ctx, &redis.XAddArgs{
		Stream: ReminderStream,
		Values: map[string]any{
			"user_id":    payload.UserID,
			"email":      payload.Email,
			"first_name": payload.FirstName,
			"tasks":      string(tasksJSON),
		},
	}).Result()
	return err
}

// ReminderWindow spans from now to the end of the day two days out,
// matching the "due in 2 days" digest cadence.
func ReminderWindow(now time.Time) (time.Time, time.Time) {
	end := now.AddDate(0, 0, 2)
	end = time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, end.Location())
	return now, end
}

func groupByUser(due []models.DueTask) []reminderPayload {
	index := make(map[string]int)
	var digests []reminderPayload
	for _, d := range due {
		i, ok := index[d.Task.UserID]
		if !ok {
			i = len(digests)
			index[d.Task.UserID] = i
			digests = append(digests, reminderPayload{
				UserID:    d.Task.UserID,
				Email:     d.Email,
				FirstName: d.FirstName,
			})
		}
		digests[i].Tasks = append(digests[i].Tasks, d.Task)
	}
	return digests
}
