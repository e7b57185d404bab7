package pubsub

import "context"

// Fire-and-forget fan-out of batch events to downstream consumers
type Broadcaster interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Health(ctx context.Context) error
}

// Subjects under the configured prefix
const (
	SubjectBatch      = "batch"
	SubjectSettlement = "settlement"
)

// Noop is used when no broker is configured
type Noop struct{}

var _ Broadcaster = Noop{}

func (Noop) Publish(context.Context, string, interface{}) error { return nil }

func (Noop) Health(context.Context) error { return nil }
