package mail

import (
	"bytes"
	"fmt"

	gomail "github.com/wneessen/go-mail"
)

// composer turns a Message into a MIME message from the configured sender.
type composer struct {
	fromAddress string
	fromName    string
}

func (c composer) compose(msg *Message) (*gomail.Msg, error) {
	if len(msg.To) == 0 {
		return nil, ErrNoRecipients
	}

	m := gomail.NewMsg()

	var err error
	if c.fromName != "" {
		err = m.FromFormat(c.fromName, c.fromAddress)
	} else {
		err = m.From(c.fromAddress)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set FROM address: %w", err)
	}

	if err := m.To(msg.To...); err != nil {
		return nil, fmt.Errorf("failed to set TO addresses: %w", err)
	}

	m.Subject(msg.Subject)

	switch {
	case msg.HTML != "" && msg.Text != "":
		m.SetBodyString(gomail.TypeTextPlain, msg.Text)
		m.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)
	case msg.HTML != "":
		m.SetBodyString(gomail.TypeTextHTML, msg.HTML)
	default:
		m.SetBodyString(gomail.TypeTextPlain, msg.Text)
	}

	for name, value := range msg.Headers {
		m.SetGenHeader(gomail.Header(name), value)
	}

	for _, a := range msg.Attachments {
		var opts []gomail.FileOption
		if a.ContentType != "" {
			opts = append(opts, gomail.WithFileContentType(gomail.ContentType(a.ContentType)))
		}
		if err := m.AttachReader(a.Filename, bytes.NewReader(a.Data), opts...); err != nil {
			return nil, fmt.Errorf("failed to attach %s: %w", a.Filename, err)
		}
	}

	return m, nil
}

// raw renders the full MIME message.
func (c composer) raw(msg *Message) ([]byte, error) {
	m, err := c.compose(msg)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}
	return buf.Bytes(), nil
}
