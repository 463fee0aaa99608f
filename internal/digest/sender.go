package digest

//go:generate mockgen -source=sender.go -destination=mocks/mocks.go -package=mocks Sender

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
)

// Sender delivers one composed MIME message.
type Sender interface {
	Send(ctx context.Context, to string, raw []byte) error
}

// SMTPSender delivers through a plain SMTP relay.
type SMTPSender struct {
	addr string
	from string
	auth smtp.Auth
}

func NewSMTPSender(addr, from, username, password string) *SMTPSender {
	s := &SMTPSender{addr: addr, from: from}
	if username != "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		s.auth = smtp.PlainAuth("", username, password, host)
	}
	return s
}

func (s *SMTPSender) Send(_ context.Context, to string, raw []byte) error {
	if err := smtp.SendMail(s.addr, s.auth, s.from, []string{to}, raw); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

// LogSender stands in when no SMTP relay is configured. Digests are
// composed and logged, never delivered.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, to string, raw []byte) error {
	s.logger.InfoContext(ctx, "digest composed without smtp relay",
		slog.String("to", to),
		slog.Int("bytes", len(raw)))
	return nil
}
