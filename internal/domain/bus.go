package domain

import "context"

// EventBus carries banking events between the API, the async worker and any
// downstream consumers. Every publish and subscription is tenant scoped.
type EventBus interface {
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe delivers each message on topic for tenantID to handler until
	// the subscription is cancelled. tenantID may be AllTenants.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	Ping(ctx context.Context) error
	Close() error
}

// MessageHandler processes one delivered message. A returned error is logged;
// the message is not redelivered.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is the envelope every bus implementation carries.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"` // unix nanos
}

// Subscription is an active handler registration.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig selects and configures the bus.
type EventBusConfig struct {
	// Type is "channel" (in-process) or "nats".
	Type string

	ChannelBufferSize int

	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds

	// NATSQueueGroup, when set, load-balances each subject across every
	// subscriber in the group instead of fanning out.
	NATSQueueGroup string
}

// MetaTraceID is the Message.Metadata key carrying the publisher's trace id.
const MetaTraceID = "trace_id"

// AllTenants subscribes to a topic for every tenant. It is not a valid
// publishing tenant.
const AllTenants = "*"

// Banking topics.
const (
	TopicTransactionSubmitted = "kestrel.transaction.submitted"
	TopicTransactionCompleted = "kestrel.transaction.completed"
	TopicTransactionFlagged   = "kestrel.transaction.flagged"
	TopicLoanSubmitted        = "kestrel.loan.submitted"
	TopicLoanDecided          = "kestrel.loan.decided"
)
