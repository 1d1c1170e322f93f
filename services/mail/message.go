package mail

import (
	"context"
	"errors"
)

var ErrNoRecipients = errors.New("message has no recipients")

// Mailer sends one message. Implementations must be safe for concurrent use.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Message struct {
	To          []string
	Subject     string
	HTML        string
	Text        string
	Headers     map[string]string
	Attachments []Attachment
}
