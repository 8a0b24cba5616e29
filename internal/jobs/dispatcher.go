package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"unitrack/api/internal/models"
)

const (
	reminderGroup    = "reminder-dispatch"
	reminderConsumer = "api"
)

// ReminderMailer sends the email half of a reminder digest.
type ReminderMailer interface {
	SendTaskReminder(ctx context.Context, to, firstName string, tasks []models.Task) error
}

// ReminderTexter sends the optional SMS half.
type ReminderTexter interface {
	Enabled() bool
	SendDueTasks(ctx context.Context, tasks []models.Task) error
}

// Dispatcher consumes the reminder stream and delivers notifications.
// Delivery failures are logged and the message stays pending for a later
// claim; they never take the process down.
type Dispatcher struct {
	queue  *redis.Client
	mailer ReminderMailer
	texter ReminderTexter
	log    zerolog.Logger
}

func NewDispatcher(queue *redis.Client, mailer ReminderMailer, texter ReminderTexter, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:  queue,
		mailer: mailer,
		texter: texter,
		log:    log,
	}
}

// Start blocks reading the stream until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) error {
	err := d.queue.XGroupCreateMkStream(ctx, ReminderStream, reminderGroup, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := d.queue.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    reminderGroup,
			Consumer: reminderConsumer,
			Streams:  []string{ReminderStream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()
		if err != nil && err != redis.Nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.log.Error().Err(err).Msg("reminder stream read failed")
			time.Sleep(2 * time.Second)
			continue
		}

		for _, stream := range result {
			for _, msg := range stream.Messages {
				if err := d.handle(ctx, msg); err != nil {
					d.log.Error().Err(err).Str("message_id", msg.ID).Msg("reminder delivery failed")
					continue
				}
				if err := d.queue.XAck(ctx, ReminderStream, reminderGroup, msg.ID).Err(); err != nil {
					d.log.Error().Err(err).Str("message_id", msg.ID).Msg("reminder ack failed")
				}
			}
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, msg redis.XMessage) error {
	payload, err := decodeReminder(msg)
	if err != nil {
		return err
	}

	if err := d.mailer.SendTaskReminder(ctx, payload.Email, payload.FirstName, payload.Tasks); err != nil {
		return fmt.Errorf("reminder email: %w", err)
	}

	if d.texter != nil && d.texter.Enabled() {
		if err := d.texter.SendDueTasks(ctx, payload.Tasks); err != nil {
			// email already went out; the text is best-effort
			d.log.Warn().Err(err).Str("user_id", payload.UserID).Msg("reminder sms failed")
		}
	}

	d.log.Info().
		Str("user_id", payload.UserID).
		Int("tasks", len(payload.Tasks)).
		Msg("reminder delivered")
	return nil
}

func decodeReminder(msg redis.XMessage) (reminderPayload, error) {
	var payload reminderPayload

	get := func(key string) (string, error) {
		v, ok := msg.Values[key].(string)
		if !ok {
			return "", fmt.Errorf("reminder message %s: missing %s", msg.ID, key)
		}
		return v, nil
	}

	var err error
	if payload.UserID, err = get("user_id"); err != nil {
		return reminderPayload{}, err
	}
	if payload.Email, err = get("email"); err != nil {
		return reminderPayload{}, err
	}
	if payload.FirstName, err = get("first_name"); err != nil {
		return reminderPayload{}, err
	}

	tasksJSON, err := get("tasks")
	if err != nil {
		return reminderPayload{}, err
	}
	if err := json.Unmarshal([]byte(tasksJSON), &payload.Tasks); err != nil {
		return reminderPayload{}, fmt.Errorf("decode reminder tasks: %w", err)
	}
	return payload, nil
}
