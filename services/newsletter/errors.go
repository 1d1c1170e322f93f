package newsletter

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation           Kind = "validation"
	KindInvalidToken         Kind = "invalid_token"
	KindExpired              Kind = "expired"
	KindForbidden            Kind = "forbidden"
	KindRecipientNotEligible Kind = "recipient_not_eligible"
	KindStore                Kind = "store"
	KindMail                 Kind = "mail"
	KindConfig               Kind = "config"
)

var (
	ErrValidation           = &Error{Kind: KindValidation}
	ErrInvalidToken         = &Error{Kind: KindInvalidToken}
	ErrExpired              = &Error{Kind: KindExpired}
	ErrForbidden            = &Error{Kind: KindForbidden}
	ErrRecipientNotEligible = &Error{Kind: KindRecipientNotEligible}
	ErrStore                = &Error{Kind: KindStore}
	ErrMail                 = &Error{Kind: KindMail}
	ErrConfig               = &Error{Kind: KindConfig}

	// ErrNotFound is returned by stores when no row matches.
	ErrNotFound = errors.New("record not found")
)

// Error carries a kind from the newsletter error taxonomy, a message safe to
// show to the caller, and the underlying cause if there is one.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func storeError(op string, err error) *Error {
	return newError(KindStore, fmt.Sprintf("failed to %s: %v", op, err), err)
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrExpired) works
// regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
