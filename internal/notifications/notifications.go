// Package notifications delivers security alerts over Slack and email.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/memshield/memshield/internal/audit"
	"github.com/memshield/memshield/internal/models"
)

type NotificationType string

const (
	NotifyBlockedContent NotificationType = "blocked_content"
	NotifyCriticalEvent  NotificationType = "critical_event"
	NotifyRescanComplete NotificationType = "rescan_complete"
	NotifyDailyDigest    NotificationType = "daily_digest"
)

type Channel string

const (
	ChannelSlack Channel = "slack"
	ChannelEmail Channel = "email"
)

// Notification is one alert to be fanned out to the enabled channels.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Severity  models.Severity
	Data      map[string]interface{}
	Timestamp time.Time
}

type Config struct {
	Slack SlackConfig
	Email EmailConfig
}

type SlackConfig struct {
	WebhookURL  string
	Channel     string
	Username    string
	IconEmoji   string
	Enabled     bool
	MinSeverity models.Severity
}

type EmailConfig struct {
	SMTPHost    string
	SMTPPort    int
	Username    string
	Password    string
	From        string
	To          []string
	Enabled     bool
	MinSeverity models.Severity
}

type Service struct {
	config Config
	logger *slog.Logger
	client *http.Client
}

func NewService(config Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		config: config,
		logger: logger,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send fans a notification out to every enabled channel whose severity
// floor it clears.
func (s *Service) Send(ctx context.Context, notif *Notification) error {
	var errs []error

	if s.config.Slack.Enabled && s.shouldNotify(notif.Severity, s.config.Slack.MinSeverity) {
		if err := s.sendSlack(ctx, notif); err != nil {
			errs = append(errs, fmt.Errorf("slack: %w", err))
		}
	}

	if s.config.Email.Enabled && s.shouldNotify(notif.Severity, s.config.Email.MinSeverity) {
		if err := s.sendEmail(notif); err != nil {
			errs = append(errs, fmt.Errorf("email: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %v", errs)
	}

	return nil
}

func (s *Service) shouldNotify(actual, minimum models.Severity) bool {
	severityOrder := map[models.Severity]int{
		models.SeverityLow:      1,
		models.SeverityMedium:   2,
		models.SeverityHigh:     3,
		models.SeverityCritical: 4,
	}

	return severityOrder[actual] >= severityOrder[minimum]
}

type SlackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

type SlackAttachment struct {
	Color     string       `json:"color,omitempty"`
	Title     string       `json:"title,omitempty"`
	Text      string       `json:"text,omitempty"`
	Fallback  string       `json:"fallback,omitempty"`
	Fields    []SlackField `json:"fields,omitempty"`
	Footer    string       `json:"footer,omitempty"`
	Timestamp int64        `json:"ts,omitempty"`
}

type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func (s *Service) sendSlack(ctx context.Context, notif *Notification) error {
	color := s.severityToColor(notif.Severity)

	var fields []SlackField
	if notif.Data != nil {
		for _, key := range []string{"actor", "classification", "patterns", "result"} {
			if v, ok := notif.Data[key]; ok {
				fields = append(fields, SlackField{
					Title: key,
					Value: fmt.Sprintf("%v", v),
					Short: true,
				})
			}
		}
	}

	msg := SlackMessage{
		Channel:   s.config.Slack.Channel,
		Username:  s.config.Slack.Username,
		IconEmoji: s.config.Slack.IconEmoji,
		Attachments: []SlackAttachment{
			{
				Color:     color,
				Title:     notif.Title,
				Text:      notif.Message,
				Fallback:  fmt.Sprintf("%s: %s", notif.Title, notif.Message),
				Fields:    fields,
				Footer:    "memshield",
				Timestamp: notif.Timestamp.Unix(),
			},
		},
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.config.Slack.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}

	s.logger.Info("slack notification sent",
		"type", notif.Type,
		"title", notif.Title)

	return nil
}

func (s *Service) severityToColor(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "#FF0000"
	case models.SeverityHigh:
		return "#FFA500"
	case models.SeverityMedium:
		return "#FFFF00"
	default:
		return "#36A64F"
	}
}

func (s *Service) sendEmail(notif *Notification) error {
	subject := fmt.Sprintf("[memshield] %s", notif.Title)
	body, err := s.formatEmailBody(notif)
	if err != nil {
		return err
	}

	msg := s.buildEmailMessage(subject, body)

	auth := smtp.PlainAuth("", s.config.Email.Username, s.config.Email.Password, s.config.Email.SMTPHost)
	addr := fmt.Sprintf("%s:%d", s.config.Email.SMTPHost, s.config.Email.SMTPPort)

	if err := smtp.SendMail(addr, auth, s.config.Email.From, s.config.Email.To, []byte(msg)); err != nil {
		return err
	}

	s.logger.Info("email notification sent",
		"type", notif.Type,
		"title", notif.Title,
		"recipients", len(s.config.Email.To))

	return nil
}

func (s *Service) buildEmailMessage(subject, body string) string {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", s.config.Email.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(s.config.Email.To, ",")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return msg.String()
}

func (s *Service) formatEmailBody(notif *Notification) (string, error) {
	tmpl := `
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; margin: 0; padding: 20px; background-color: #f5f5f5; }
        .container { max-width: 600px; margin: 0 auto; background: white; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .header { padding: 20px; background: {{.HeaderColor}}; color: white; border-radius: 8px 8px 0 0; }
        .content { padding: 20px; }
        .severity { display: inline-block; padding: 4px 8px; border-radius: 4px; font-weight: bold; background: {{.SeverityColor}}; color: white; }
        .data-table { width: 100%; border-collapse: collapse; margin-top: 15px; }
        .data-table td { padding: 8px; border-bottom: 1px solid #eee; }
        .data-table td:first-child { font-weight: bold; width: 30%; }
        .footer { padding: 15px 20px; background: #f9f9f9; border-radius: 0 0 8px 8px; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h2 style="margin:0;">{{.Title}}</h2>
        </div>
        <div class="content">
            <p>{{.Message}}</p>
            <p>Severity: <span class="severity">{{.Severity}}</span></p>
            {{if .HasData}}
            <table class="data-table">
                {{range $key, $value := .Data}}
                <tr>
                    <td>{{$key}}</td>
                    <td>{{$value}}</td>
                </tr>
                {{end}}
            </table>
            {{end}}
        </div>
        <div class="footer">
            <p>This is an automated alert from memshield.</p>
            <p>Generated at: {{.Timestamp}}</p>
        </div>
    </div>
</body>
</html>
`
	t, err := template.New("email").Parse(tmpl)
	if err != nil {
		return "", err
	}

	headerColor := "#2196F3"
	severityColor := s.severityToColor(notif.Severity)

	switch notif.Severity {
	case models.SeverityCritical:
		headerColor = "#F44336"
	case models.SeverityHigh:
		headerColor = "#FF9800"
	case models.SeverityMedium:
		headerColor = "#FFC107"
	}

	data := map[string]interface{}{
		"Title":         notif.Title,
		"Message":       notif.Message,
		"Severity":      string(notif.Severity),
		"HeaderColor":   headerColor,
		"SeverityColor": severityColor,
		"Data":          notif.Data,
		"HasData":       len(notif.Data) > 0,
		"Timestamp":     notif.Timestamp.Format(time.RFC1123),
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// NotifyBlockedContent alerts on a write rejected by the secret gate. The
// alert carries rule names only, never the matched content.
func (s *Service) NotifyBlockedContent(ctx context.Context, actor string, patterns []string) error {
	notif := &Notification{
		Type:     NotifyBlockedContent,
		Title:    "Content Blocked by Security Scan",
		Message:  fmt.Sprintf("A write by %s was blocked: secret material detected", actor),
		Severity: models.SeverityCritical,
		Data: map[string]interface{}{
			"actor":    actor,
			"patterns": strings.Join(patterns, ", "),
		},
		Timestamp: time.Now(),
	}

	return s.Send(ctx, notif)
}

// NotifyCriticalEvent alerts on any critical-severity audit event.
func (s *Service) NotifyCriticalEvent(ctx context.Context, event *models.SecurityEvent) error {
	notif := &Notification{
		Type:     NotifyCriticalEvent,
		Title:    fmt.Sprintf("Critical Security Event: %s", event.Type),
		Message:  event.Details,
		Severity: models.SeverityCritical,
		Data: map[string]interface{}{
			"actor":          event.Actor,
			"classification": string(event.Classification),
			"result":         string(event.Result),
		},
		Timestamp: time.Now(),
	}

	return s.Send(ctx, notif)
}

// NotifyRescanComplete reports the outcome of a bulk rescan.
func (s *Service) NotifyRescanComplete(ctx context.Context, scanned, blocked, redacted int) error {
	severity := models.SeverityLow
	if blocked > 0 {
		severity = models.SeverityHigh
	}

	notif := &Notification{
		Type:     NotifyRescanComplete,
		Title:    "Bulk Rescan Completed",
		Message:  fmt.Sprintf("Rescanned %d entries: %d blocked, %d redacted", scanned, blocked, redacted),
		Severity: severity,
		Data: map[string]interface{}{
			"scanned":  scanned,
			"blocked":  blocked,
			"redacted": redacted,
		},
		Timestamp: time.Now(),
	}

	return s.Send(ctx, notif)
}

// NotifyDailyDigest summarizes the audit window once a day.
func (s *Service) NotifyDailyDigest(ctx context.Context, report *audit.Report) error {
	severity := models.SeverityLow
	if report.CriticalEvents > 0 {
		severity = models.SeverityCritical
	} else if report.BlockedEvents > 0 {
		severity = models.SeverityHigh
	}

	notif := &Notification{
		Type:     NotifyDailyDigest,
		Title:    "Daily Security Digest",
		Message:  fmt.Sprintf("Security score %d/100: %d events, %d blocked, %d critical", report.SecurityScore, report.TotalEvents, report.BlockedEvents, report.CriticalEvents),
		Severity: severity,
		Data: map[string]interface{}{
			"security_score":  report.SecurityScore,
			"total_events":    report.TotalEvents,
			"blocked_events":  report.BlockedEvents,
			"critical_events": report.CriticalEvents,
		},
		Timestamp: time.Now(),
	}

	return s.Send(ctx, notif)
}
