// Package msg defines the interface for different message brokers.
//
// The gateway publishes operational events (mirror readiness transitions, consensus divergence) so operators and
// sibling services can react without polling the gateway.
package msg

import (
	"time"

	"github.com/google/uuid"
)

// Types of gateway events.
const (
	MirrorReady     = "mirror.ready"
	MirrorLost      = "mirror.lost"
	MirrorDivergent = "mirror.divergent"
)

// Event is one gateway occurrence published to the broker.
type Event struct {
	ID     string    `json:"id"`
	Type   string    `json:"type"`
	Source string    `json:"source"` // component or node the event refers to
	Detail string    `json:"detail,omitempty"`
	TS     time.Time `json:"ts"`
}

// NewEvent returns a timestamped event with a fresh id.
func NewEvent(eventType, source, detail string) Event {
	return Event{
		ID:     uuid.NewString(),
		Type:   eventType,
		Source: source,
		Detail: detail,
		TS:     time.Now().UTC(),
	}
}

// Broker is the product-agnostic interface the gateway publishes through.
type Broker interface {
	Setup(interface{}) error
	Close() error

	SendEvent(e Event) error
}
