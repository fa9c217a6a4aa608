// Package mailer renders confirmation emails and delivers them off the
// request path.
package mailer

import "context"

// Message is one confirmation email before rendering.
type Message struct {
	RecipientName  string
	RecipientEmail string
	Subject        string
	Template       string
	Context        map[string]any
}

// Mailer accepts messages for delivery. It never blocks on the network and
// never fails the caller.
type Mailer interface {
	SendConfirmation(ctx context.Context, msg Message)
}

// Sender delivers a rendered HTML message.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}
