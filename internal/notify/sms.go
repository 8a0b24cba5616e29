package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"unitrack/api/internal/config"
	"unitrack/api/internal/models"
)

// SMSSender texts a due-task digest through the Twilio REST API. SMS is
// optional; an unconfigured sender reports itself disabled and is skipped.
type SMSSender struct {
	cfg    config.SMSConfig
	client *http.Client
	log    zerolog.Logger
}

func NewSMSSender(cfg config.SMSConfig, log zerolog.Logger) *SMSSender {
	return &SMSSender{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

func (s *SMSSender) Enabled() bool {
	return s.cfg.Enabled && s.cfg.AccountSID != "" && s.cfg.AuthToken != "" && s.cfg.From != "" && s.cfg.To != ""
}

// SendDueTasks sends one text covering all tasks in the digest.
func (s *SMSSender) SendDueTasks(ctx context.Context, tasks []models.Task) error {
	if !s.Enabled() {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You have %d task(s) due in 2 days:\n\n", len(tasks))
	for i, task := range tasks {
		fmt.Fprintf(&b, "%d. %s\nCourse: %s\nPriority: %s\nDue: %s\n\n",
			i+1, task.Title, task.Course, task.Priority, task.DueDate.Format("02.01.2006"))
	}

	endpoint := fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json", s.cfg.AccountSID)

	form := url.Values{}
	form.Set("From", s.cfg.From)
	form.Set("To", s.cfg.To)
	form.Set("Body", b.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("send sms: unexpected status %d", resp.StatusCode)
	}

	s.log.Debug().Int("tasks", len(tasks)).Msg("sms reminder sent")
	return nil
}
