package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/prperemyshlev/estate-auth/internal/config"
	"go.uber.org/zap"
)

// Message is a single outbound HTML email
type Message struct {
	To       []string
	Subject  string
	HTMLBody string
}

// Mailer delivers messages. Implementations must be safe for concurrent use.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

var errNoRecipients = errors.New("message has no recipients")

func (m Message) validate() error {
	if len(m.To) == 0 {
		return errNoRecipients
	}
	for _, to := range m.To {
		if strings.TrimSpace(to) == "" {
			return errors.New("recipient address is empty")
		}
	}
	return nil
}

// logMailer writes messages to the log instead of sending them.
// Used when no SMTP relay is configured.
type logMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) Mailer {
	return &logMailer{logger: logger}
}

func (m *logMailer) Send(_ context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	m.logger.Info("Email delivery disabled, message logged",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	m.logger.Debug("Email body", zap.String("html", msg.HTMLBody))
	return nil
}

// NewMailer returns an SMTP mailer when a relay is configured and a log mailer otherwise
func NewMailer(cfg config.SMTPConfig, logger *zap.Logger) (Mailer, error) {
	if !cfg.Enabled() {
		return NewLogMailer(logger), nil
	}
	return NewSMTPMailer(cfg)
}
