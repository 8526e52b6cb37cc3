package domain

import (
	"context"
)

// EventBus defines the interface for the wake-notification channel.
// Supports Go channels (Community) or NATS (Pro). Delivery is best-effort:
// it is a latency optimization, never the sole wake mechanism — workers
// poll the queue on a bounded interval as the correctness fallback.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// In-process channel bus settings
	ChannelBufferSize int

	// NATS settings, used when running more than one node
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Standard topic names for the control plane.
const (
	TopicJobEnqueued       = "harrier.job.enqueued"
	TopicJobCompleted      = "harrier.job.completed"
	TopicJobCancelled      = "harrier.job.cancelled"
	TopicAmendmentDetected = "harrier.opportunity.amended"
)

// JobEvent is the payload published on job topics.
type JobEvent struct {
	JobID    string `json:"jobId"`
	Source   string `json:"source"`
	RunType  string `json:"runType"`
	Priority int    `json:"priority"`
}
