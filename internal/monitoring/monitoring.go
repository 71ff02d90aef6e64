// Package monitoring forwards escalated errors to external sinks.
package monitoring

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Incident is one escalated error as seen by monitoring.
type Incident struct {
	ID               string    `json:"id"`
	Time             time.Time `json:"time"`
	Type             string    `json:"type"`
	Message          string    `json:"message"`
	DeveloperMessage string    `json:"developer_message,omitempty"`
	DebugMessage     string    `json:"debug_message,omitempty"`
	Status           int       `json:"status"`
	URL              string    `json:"url"`
	Method           string    `json:"method,omitempty"`
	IP               string    `json:"ip,omitempty"`
	SessionID        string    `json:"sid,omitempty"`
	RequestID        string    `json:"request_id,omitempty"`
	Source           string    `json:"source,omitempty"`
}

// NewIncident fills in ID and Time.
func NewIncident() Incident {
	return Incident{ID: uuid.NewString(), Time: time.Now().UTC()}
}

// Reporter receives incidents.
type Reporter interface {
	Report(ctx context.Context, inc Incident) error
}

// Nop discards incidents.
type Nop struct{}

func (Nop) Report(context.Context, Incident) error { return nil }

// Multi reports to every reporter and joins their errors.
type Multi []Reporter

func (m Multi) Report(ctx context.Context, inc Incident) error {
	var errs []error
	for _, r := range m {
		if err := r.Report(ctx, inc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
