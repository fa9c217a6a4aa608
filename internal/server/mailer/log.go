package mailer

import (
	"context"

	"github.com/dmitrijs2005/pxauth/internal/logging"
)

// LogSender writes mail to the log instead of sending it. It is used when no
// SMTP host is configured.
type LogSender struct {
	logger logging.Logger
}

func NewLogSender(logger logging.Logger) *LogSender {
	return &LogSender{logger: logger.With("module", "mailer")}
}

func (s *LogSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	s.logger.Info(ctx, "mail not sent, no SMTP host configured", "to", to, "subject", subject, "body", htmlBody)
	return nil
}
