// Package mailer sends the overdue reminder e-mails.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"gamelend/apperr"
	"gamelend/config"
	"gamelend/logger"
)

// ErrDeliveryUnknown means the relay did not answer in time. The message may
// still go out.
var ErrDeliveryUnknown = errors.New("mail delivery outcome unknown")

type Message struct {
	To      string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SendFunc matches smtp.SendMail so tests can capture outgoing mail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTP delivers through a relay. Without a configured host it only logs the
// message, which keeps reminders usable in development.
type SMTP struct {
	cfg  config.SMTPConfig
	log  *logger.Logger
	send SendFunc
}

func NewSMTP(cfg config.SMTPConfig, log *logger.Logger) *SMTP {
	return &SMTP{cfg: cfg, log: log, send: smtp.SendMail}
}

// WithSendFunc replaces the transport.
func (m *SMTP) WithSendFunc(fn SendFunc) *SMTP {
	m.send = fn
	return m
}

func (m *SMTP) Configured() bool { return m.cfg.Host != "" && m.cfg.From != "" }

func (m *SMTP) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return apperr.Validation("recipient has no e-mail address")
	}
	if !m.Configured() {
		ctx = m.log.WithFields(ctx, map[string]any{"to": msg.To, "subject": msg.Subject})
		m.log.Info(ctx, "mail.logged")
		return nil
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	raw := m.compose(msg)

	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}

	// smtp.SendMail has no context; run it aside so a cancelled request
	// stops waiting. A late result is still logged.
	logCtx := m.log.WithField(context.WithoutCancel(ctx), "to", msg.To)
	done := make(chan error, 1)
	abandoned := make(chan struct{})
	go func() {
		err := m.send(m.cfg.Host+":"+m.cfg.Port, auth, m.cfg.From, []string{msg.To}, raw)
		done <- err
		select {
		case <-abandoned:
			if err != nil {
				m.log.Error(logCtx, "mail.late_failure", err)
			} else {
				m.log.Warn(logCtx, "mail.late_delivery")
			}
		default:
		}
	}()
	select {
	case err := <-done:
		if err != nil {
			return apperr.Wrap(apperr.CodeDependency, err, "mail delivery failed")
		}
		return nil
	case <-ctx.Done():
		close(abandoned)
		return apperr.Wrap(apperr.CodeDependency, fmt.Errorf("%w: %w", ErrDeliveryUnknown, ctx.Err()),
			"mail relay did not answer in time; the reminder may still be delivered")
	}
}

func (m *SMTP) compose(msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\r\n", m.cfg.AppName, m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}

// OverdueReminder builds the reminder text for one open loan.
func OverdueReminder(appName, name, title, platform string, borrowed time.Time, daysOverdue int, fee string) Message {
	subject := fmt.Sprintf("%s: %q is overdue", appName, title)
	body := fmt.Sprintf(
		"Hi %s,\n\nYou borrowed %s (%s) on %s. It is now %d day(s) overdue and the late fee stands at %s.\n\nPlease return it as soon as you can.\n\n%s",
		name, title, platform, borrowed.Format("2006-01-02"), daysOverdue, fee, appName,
	)
	return Message{Subject: subject, Body: body}
}
