package monitoring

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryOptions configures the Sentry reporter.
type SentryOptions struct {
	DSN         string
	Environment string
	Release     string

	// BeforeSend may inspect or drop events
	BeforeSend func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event
}

// Sentry sends incidents as Sentry events.
type Sentry struct {
	hub *sentry.Hub
}

// NewSentry creates a reporter with its own client and hub. An empty DSN
// yields a reporter that builds events but does not send them.
func NewSentry(opts SentryOptions) (*Sentry, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         opts.DSN,
		Environment: opts.Environment,
		Release:     opts.Release,
		SampleRate:  1.0,
		BeforeSend:  opts.BeforeSend,
	})
	if err != nil {
		return nil, fmt.Errorf("create sentry client: %w", err)
	}
	return &Sentry{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

func (s *Sentry) Report(_ context.Context, inc Incident) error {
	event := sentry.NewEvent()
	event.Level = sentry.LevelError
	if inc.Status < 500 {
		event.Level = sentry.LevelWarning
	}
	event.Message = inc.Message
	event.Timestamp = inc.Time
	event.Transaction = inc.URL
	event.User = sentry.User{IPAddress: inc.IP}
	event.Tags = map[string]string{
		"err_type":   inc.Type,
		"status":     strconv.Itoa(inc.Status),
		"request_id": inc.RequestID,
	}
	event.Extra = map[string]any{
		"incident_id":       inc.ID,
		"developer_message": inc.DeveloperMessage,
		"debug_message":     inc.DebugMessage,
		"source":            inc.Source,
		"method":            inc.Method,
	}
	event.Fingerprint = []string{inc.Type, inc.Source}

	s.hub.CaptureEvent(event)
	return nil
}

// Flush waits for buffered events to be sent.
func (s *Sentry) Flush(timeout time.Duration) bool {
	return s.hub.Flush(timeout)
}
