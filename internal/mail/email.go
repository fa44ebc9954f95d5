// Package mail sends email through a pluggable transport and wraps every
// send in a traced action.
package mail

import (
	"context"
	"errors"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
)

// Sentinel errors returned by transports.
var (
	ErrNoRecipient     = errors.New("mail: no recipient")
	ErrNoSender        = errors.New("mail: no sender")
	ErrHeaderInjection = errors.New("mail: header value contains a line break")
)

// Email is one outgoing message. The zero value of any field is allowed;
// transports decide what they accept.
type Email struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Attribute keys recorded on the sendEmail span.
const (
	AttrTo         = attribute.Key("email.to")
	AttrFrom       = attribute.Key("email.from")
	AttrSubject    = attribute.Key("email.subject")
	AttrBodyLength = attribute.Key("email.body.length")
)

// Attributes describes e for a trace span. The body is recorded only as its
// length in characters.
func (e Email) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrTo.String(e.To),
		AttrFrom.String(e.From),
		AttrSubject.String(e.Subject),
		AttrBodyLength.Int(utf8.RuneCountInString(e.Body)),
	}
}

// Sender delivers an Email. Implementations enforce their own timeouts and
// address rules and must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, e Email) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, e Email) error

// Send calls f(ctx, e).
func (f SenderFunc) Send(ctx context.Context, e Email) error { return f(ctx, e) }
