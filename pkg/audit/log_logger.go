package audit

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
)

// LogrusLogger writes audit events to a structured application log. It is
// useful on its own for small deployments and alongside DBLogger (via
// MultiLogger) so operators can tail decisions in real time.
type LogrusLogger struct {
	log *logrus.Logger
}

// NewLogrusLogger creates an audit sink writing JSON lines to output.
func NewLogrusLogger(output io.Writer) *LogrusLogger {
	log := logrus.New()
	log.SetOutput(output)
	log.SetFormatter(&logrus.JSONFormatter{})
	return &LogrusLogger{log: log}
}

// Log writes the event as one structured log line.
func (l *LogrusLogger) Log(ctx context.Context, event *Event) error {
	entry := l.log.WithFields(logrus.Fields{
		"event_type":      event.EventType,
		"status":          event.Status,
		"subject_id":      event.SubjectID,
		"anonymous":       event.Anonymous,
		"organization_id": event.OrganizationID,
		"operation":       event.Operation,
		"minimum_role":    event.MinimumRole,
		"matched_role":    event.MatchedRole,
		"reason":          event.Reason,
		"source":          event.Source,
		"request_id":      event.RequestID,
		"timestamp":       event.Timestamp,
	})

	message := event.Message
	if message == "" {
		message = "access decision"
	}

	switch event.Status {
	case EventStatusDenied:
		entry.Warn(message)
	default:
		entry.Info(message)
	}
	return nil
}

// Close is a no-op for the log sink.
func (l *LogrusLogger) Close() error {
	return nil
}
