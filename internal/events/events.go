// Package events announces stored results to other services.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/loglens/internal/core"
)

// TypeResultStored is the event emitted after a result is appended.
const TypeResultStored = "result.stored"

// Event is the JSON envelope published for each stored result.
type Event struct {
	Type        string           `json:"type"`
	ID          uuid.UUID        `json:"id"`
	SourceName  string           `json:"source_name"`
	Label       core.SchemaLabel `json:"schema_label"`
	Status      core.Status      `json:"status"`
	Probability float64          `json:"probability"`
	Origin      core.Origin      `json:"origin"`
	ObservedAt  time.Time        `json:"observed_at"`
}

// ResultStored builds the event for r.
func ResultStored(r core.NormalizedResult) Event {
	return Event{
		Type:        TypeResultStored,
		ID:          r.ID,
		SourceName:  r.SourceName,
		Label:       r.Label,
		Status:      r.Status,
		Probability: r.Probability,
		Origin:      r.Origin,
		ObservedAt:  r.ObservedAt,
	}
}

// Encode returns the wire form of e.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers events. Delivery is best effort: a failed publish
// never undoes the store append that triggered it.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

func (Nop) Close() error { return nil }
