package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"

	"github.com/oarkflow/processguard/internal/model"
)

// SMTPConfig configures the email notification sink. There is no SMTP
// client library anywhere in the retrieved corpus, so this sink is built
// on stdlib net/smtp — the one ambient concern in this module with
// nothing in the example pack to import instead (see DESIGN.md).
type SMTPConfig struct {
	Server string
	Port int
	Username string
	Password string
	UseTLS bool
	Recipients []string
}

// SMTPSink emails alerts via the configured SMTP server, grounded on
// core/alerting.py's _send_email_notification.
type SMTPSink struct {
	cfg SMTPConfig
}

func NewSMTPSink(cfg SMTPConfig) *SMTPSink { return &SMTPSink{cfg: cfg} }

func (s *SMTPSink) Name() string { return "email" }

func (s *SMTPSink) Deliver(ctx context.Context, a model.AlertRecord) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Server)
	}

	subject := fmt.Sprintf("[ProcessGuard] %s: %s", strings.ToUpper(string(a.Severity)), a.Message)
	body := fmt.Sprintf("Type: %s\r\nSeverity: %s\r\nProcess: %s\r\nTime: %s\r\n\r\n%s\r\n",
		a.Kind, a.Severity, a.Process, a.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), a.Message)

	msg := fmt.Sprintf("To: %s\r\nSubject: %s\r\n\r\n%s", strings.Join(s.cfg.Recipients, ", "), subject, body)

	return smtp.SendMail(addr, auth, s.cfg.Username, s.cfg.Recipients, []byte(msg))
}

// WebhookConfig configures a generic HTTP webhook sink.
type WebhookConfig struct {
	URL string
	Headers map[string]string
}

// WebhookSink POSTs a JSON payload to an arbitrary URL, grounded on
// core/alerting.py's _send_webhook_notification.
type WebhookSink struct {
	cfg WebhookConfig
	client *http.Client
}

func NewWebhookSink(cfg WebhookConfig) *WebhookSink {
	return &WebhookSink{cfg: cfg, client: &http.Client{}}
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Deliver(ctx context.Context, a model.AlertRecord) error {
	payload, err := json.Marshal(map[string]any{
		"alert_id": a.ID,
		"kind": a.Kind,
		"severity": a.Severity,
		"message": a.Message,
		"process": a.Process,
		"timestamp": a.CreatedAt,
		"metadata": a.Metadata,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// SlackSink is a specialization of the webhook sink posting a Slack
// attachment payload, grounded on core/alerting.py's
// _send_slack_notification.
type SlackSink struct {
	webhookURL string
	client *http.Client
}

func NewSlackSink(webhookURL string) *SlackSink {
	return &SlackSink{webhookURL: webhookURL, client: &http.Client{}}
}

func (s *SlackSink) Name() string { return "slack" }

var slackColors = map[model.AlertSeverity]string{
	model.SeverityInfo: "#36a64f",
	model.SeverityWarning: "#ff9500",
	model.SeverityCritical: "#ff0000",
}

func (s *SlackSink) Deliver(ctx context.Context, a model.AlertRecord) error {
	payload := map[string]any{
		"attachments": []map[string]any{
			{
				"color": slackColors[a.Severity],
				"title": a.Message,
				"fields": []map[string]any{
					{"title": "Kind", "value": string(a.Kind), "short": true},
					{"title": "Severity", "value": string(a.Severity), "short": true},
					{"title": "Process", "value": displayProcess(a.Process), "short": true},
					{"title": "Time", "value": a.CreatedAt.Format("2006-01-02 15:04:05"), "short": true},
				},
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func displayProcess(p string) string {
	if p == "" {
		return "System"
	}
	return p
}
