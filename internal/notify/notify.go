// Package notify delivers account and result emails.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Attachment is a file sent along with a message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is a single plain text email, optionally with attachments.
type Message struct {
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Sender delivers messages. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, msg Message) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Wrap surrounds body with the greeting and signature every SampleFlow email
// carries.
func Wrap(recipient, body, siteURL string) string {
	return fmt.Sprintf("Dear %s,\n\n%s\n\nBest wishes,\n\nSampleFlow Team.\n%s", recipient, body, siteURL)
}

// LogSender writes messages to a logger instead of delivering them. It is
// meant for development setups without a mail relay.
type LogSender struct {
	Logger *slog.Logger
}

// Send logs the message envelope and body.
func (s LogSender) Send(ctx context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	names := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		names = append(names, a.Filename)
	}
	logger.InfoContext(ctx, "email", "to", msg.To, "subject", msg.Subject, "attachments", names, "body", msg.Body)
	return nil
}

// Recorder keeps every message it is asked to send. Err, when set, is
// returned from Send after the message has been recorded.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	Err      error
}

// Send records msg.
func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return r.Err
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Last returns the most recent message.
func (r *Recorder) Last() (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return Message{}, false
	}
	return r.messages[len(r.messages)-1], true
}

// SetErr changes the error returned by subsequent sends.
func (r *Recorder) SetErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Err = err
}

// Discard drops every message.
var Discard Sender = SenderFunc(func(context.Context, Message) error { return nil })
