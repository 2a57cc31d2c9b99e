package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"
	"time"

	"github.com/cmlabs-hris/payroll-engine/internal/config"
	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
)

//go:embed templates/*.html
var templateFS embed.FS

const maxRetries = 3

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// PayrollNotifier mails pay slips to employees when their record is paid.
type PayrollNotifier struct {
	cfg       config.SMTPConfig
	templates *template.Template
	send      sendFunc
	backoff   func(attempt int) time.Duration
}

// NewPayrollNotifier creates a notifier sending through cfg. An empty Host
// disables delivery.
func NewPayrollNotifier(cfg config.SMTPConfig) (*PayrollNotifier, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}

	return &PayrollNotifier{
		cfg:       cfg,
		templates: tmpl,
		send:      smtp.SendMail,
		backoff: func(attempt int) time.Duration {
			// 1s, 2s, 4s
			return time.Duration(1<<(attempt-1)) * time.Second
		},
	}, nil
}

type payrollPaidEmailData struct {
	Slip payroll.PaySlip
}

// PayrollPaid sends the pay slip of a settled record to the employee.
func (n *PayrollNotifier) PayrollPaid(ctx context.Context, to string, slip payroll.PaySlip) error {
	body, err := n.render("payroll_paid.html", payrollPaidEmailData{Slip: slip})
	if err != nil {
		return err
	}

	return n.sendHTML(ctx, to, fmt.Sprintf("Pay Slip %s", slip.Period), body)
}

func (n *PayrollNotifier) render(name string, data any) (string, error) {
	var body bytes.Buffer
	if err := n.templates.ExecuteTemplate(&body, name, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return body.String(), nil
}

func (n *PayrollNotifier) sendHTML(ctx context.Context, to, subject, htmlBody string) error {
	// Skip sending if SMTP is not configured
	if n.cfg.Host == "" {
		slog.Warn("SMTP not configured, skipping email send", "to", to, "subject", subject)
		return nil
	}

	from := n.cfg.From

	headers := fmt.Sprintf("From: %s <%s>\r\n", n.cfg.FromName, from)
	headers += fmt.Sprintf("To: %s\r\n", to)
	headers += fmt.Sprintf("Subject: %s\r\n", subject)
	headers += "MIME-Version: 1.0\r\n"
	headers += "Content-Type: text/html; charset=\"UTF-8\"\r\n"
	headers += "\r\n"

	message := []byte(headers + htmlBody)

	auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := n.send(addr, auth, from, []string{to}, message)
		if err == nil {
			slog.Info("Email sent successfully", "to", to, "subject", subject, "attempt", attempt)
			return nil
		}

		lastErr = err
		slog.Error("Failed to send email",
			"to", to,
			"subject", subject,
			"attempt", attempt,
			"max_retries", maxRetries,
			"error", err,
		)

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return fmt.Errorf("email send aborted after %d attempts: %w", attempt, ctx.Err())
			case <-time.After(n.backoff(attempt)):
			}
		}
	}

	return fmt.Errorf("failed to send email after %d attempts: %w", maxRetries, lastErr)
}
