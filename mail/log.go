package mail

import (
	"context"
	"io"
	"log"
)

// Logger writes notifications to a log instead of delivering them. It is
// meant for local development and tests where no SMTP relay exists.
type Logger struct {
	logger *log.Logger
}

// NewLogger describes the newlogger operation and its observable behavior.
//
// NewLogger does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewLogger(w io.Writer) *Logger {
	return &Logger{logger: log.New(w, "mail: ", log.LstdFlags)}
}

// Send describes the send operation and its observable behavior.
//
// Send may return an error when input validation, dependency calls, or security checks fail.
func (l *Logger) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.logger.Printf("to=%q subject=%q body=%q", to, subject, body)
	return nil
}
