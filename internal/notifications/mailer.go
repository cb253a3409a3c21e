package notifications

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"

	"github.com/homies-app/backend/internal/models"
)

// ErrMailerDisabled is returned by Send when no API key is configured.
var ErrMailerDisabled = errors.New("mailer disabled")

// Mailer sends e-mail through the Resend API.
type Mailer struct {
	client *resend.Client
	from   string
	logger *zap.Logger
}

// NewMailer creates a mailer. An empty apiKey yields a disabled mailer whose
// Send returns ErrMailerDisabled.
func NewMailer(apiKey, from string, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Mailer{from: from, logger: logger}
	if apiKey != "" {
		m.client = resend.NewClient(apiKey)
	}
	return m
}

// Enabled reports whether Send can deliver.
func (m *Mailer) Enabled() bool {
	return m.client != nil
}

// Send delivers one HTML message and returns the provider message id.
func (m *Mailer) Send(ctx context.Context, to, subject, html string) (string, error) {
	if m.client == nil {
		return "", ErrMailerDisabled
	}
	sent, err := m.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	})
	if err != nil {
		var rl *resend.RateLimitError
		if errors.As(err, &rl) {
			m.logger.Warn("resend rate limit exceeded",
				zap.String("limit", rl.Limit),
				zap.String("remaining", rl.Remaining),
				zap.String("reset", rl.Reset))
			return "", fmt.Errorf("email rate limit exceeded (resets in %ss): %w", rl.Reset, err)
		}
		return "", fmt.Errorf("resend: %w", err)
	}
	m.logger.Info("email sent", zap.String("email_id", sent.Id), zap.String("to", to))
	return sent.Id, nil
}

var participationTmpl = template.Must(template.New("participation").Parse(
	`<p>Hi {{.Organiser}},</p>
<p>{{.Helper}} {{if .Joined}}joined{{else}}left{{end}} your event <strong>{{.Event}}</strong>
starting {{.Start}}.</p>
<p>The Homies team</p>`))

// ParticipationMessage is the organiser notice for one join or leave.
type ParticipationMessage struct {
	Organiser string
	Helper    string
	Event     *models.EventDetails
	Action    string
}

// Render returns the subject and HTML body.
func (p ParticipationMessage) Render() (string, string, error) {
	joined := p.Action == models.ActionJoined
	verb := "left"
	if joined {
		verb = "joined"
	}
	subject := fmt.Sprintf("Someone %s %s", verb, p.Event.Name)

	var buf bytes.Buffer
	err := participationTmpl.Execute(&buf, map[string]any{
		"Organiser": p.Organiser,
		"Helper":    p.Helper,
		"Event":     p.Event.Name,
		"Start":     p.Event.Start.UTC().Format(time.RFC1123),
		"Joined":    joined,
	})
	if err != nil {
		return "", "", fmt.Errorf("render participation email: %w", err)
	}
	return subject, buf.String(), nil
}
