package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/rs/zerolog"

	"unitrack/api/internal/config"
	"unitrack/api/internal/models"
)

var resetTemplate = template.Must(template.New("reset").Parse(`
<h2>Password Reset Request</h2>
<p>Hi {{.FirstName}},</p>
<p>We received a request to reset your password. Click the link below to choose a new one:</p>
<p><a href="{{.ResetURL}}">{{.ResetURL}}</a></p>
<p>The link is valid for 24 hours. If you did not request this reset, you can ignore this email.</p>
`))

var reminderTemplate = template.Must(template.New("reminder").Parse(`
<h2>Task Reminder</h2>
<p>Hi {{.FirstName}}, you have {{len .Tasks}} task(s) due in the next two days:</p>
{{range .Tasks}}
<p><strong>{{.Title}}</strong><br>
Course: {{.Course}}<br>
Priority: {{.Priority}}<br>
Due: {{.DueDate.Format "02.01.2006"}}</p>
{{end}}
`))

// Mailer sends transactional mail over SMTP.
type Mailer struct {
	cfg config.MailConfig
	log zerolog.Logger
}

func NewMailer(cfg config.MailConfig, log zerolog.Logger) *Mailer {
	return &Mailer{cfg: cfg, log: log}
}

// SendPasswordReset mails the raw reset secret as a frontend link. The raw
// value exists only in this message; the server keeps just its hash.
func (m *Mailer) SendPasswordReset(ctx context.Context, to, firstName, rawToken string) error {
	resetURL := fmt.Sprintf("%s/reset-password/%s", m.cfg.FrontendURL, rawToken)

	var body bytes.Buffer
	if err := resetTemplate.Execute(&body, struct {
		FirstName string
		ResetURL  string
	}{firstName, resetURL}); err != nil {
		return fmt.Errorf("render reset template: %w", err)
	}

	return m.send(to, "Password Reset Request", body.String())
}

func (m *Mailer) SendTaskReminder(ctx context.Context, to, firstName string, tasks []models.Task) error {
	var body bytes.Buffer
	if err := reminderTemplate.Execute(&body, struct {
		FirstName string
		Tasks     []models.Task
	}{firstName, tasks}); err != nil {
		return fmt.Errorf("render reminder template: %w", err)
	}

	return m.send(to, "Reminder: tasks due soon", body.String())
}

func (m *Mailer) send(to, subject, htmlBody string) error {
	if m.cfg.Host == "" {
		return fmt.Errorf("smtp host not configured")
	}

	from := m.cfg.From
	if from == "" {
		from = m.cfg.Username
	}

	msg := []byte(fmt.Sprintf(
		"From: University Task Tracker <%s>\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s\r\n",
		from, to, subject, htmlBody,
	))

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, from, []string{to}, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}

	m.log.Debug().Str("to", to).Str("subject", subject).Msg("email sent")
	return nil
}
