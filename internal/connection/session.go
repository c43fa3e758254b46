package connection

import (
	"log"

	"github.com/google/uuid"
)

// Session is the connection-scoped logger: a thin wrapper around the
// standard library's log.Logger that prefixes every line with a short
// trace ID, mirroring how model.NewID() stamps sync records so log lines
// from concurrent connections can be told apart without a structured
// logging dependency the rest of the stack doesn't use.
type Session struct {
	TraceID string
	Debug   bool
}

// NewSession allocates a trace ID via uuid.NewV7 (time-ordered, so log
// lines sort naturally) and returns a Session with debug logging off.
func NewSession() *Session {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &Session{TraceID: id.String()[:8]}
}

func (s *Session) Printf(format string, args ...any) {
	log.Printf("imap[%s] "+format, append([]any{s.TraceID}, args...)...)
}

func (s *Session) Debugf(format string, args ...any) {
	if !s.Debug {
		return
	}
	s.Printf(format, args...)
}
