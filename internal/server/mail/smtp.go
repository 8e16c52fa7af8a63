package mail

import (
	"bytes"
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"
)

// SMTPConfig holds the transport settings. An empty Host means no transport
// is configured.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// SMTPSender delivers messages through an SMTP server via go-mail.
type SMTPSender struct {
	client *gomail.Client
	from   string
}

// NewSMTPSender builds the SMTP client. Callers must not construct a sender
// when cfg.Host is empty; absence of a transport is modeled by a nil Sender
// at the orchestrator, not by a sender that errors.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
	}
	if cfg.User != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.User),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client error: %w", err)
	}
	return &SMTPSender{client: client, from: cfg.From}, nil
}

// Send builds and sends the email with the artifact attached.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := gomail.NewMsg()
	if err := m.From(s.from); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextHTML, msg.HTMLBody)
	if len(msg.Attachment) > 0 {
		if err := m.AttachReader(msg.Filename, bytes.NewReader(msg.Attachment)); err != nil {
			return fmt.Errorf("attach error: %w", err)
		}
	}

	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send error: %w", err)
	}
	return nil
}
