// Package mq is the queue transport of the judge engine: judge tasks arrive
// on per-language topics consumed with manual acknowledgement, and judge
// reports leave on one shared report topic.
package mq

import (
	"context"
	"time"
)

// MessageQueue is the full queue capability: publish reports, consume tasks.
type MessageQueue interface {
	Producer
	Consumer

	// Ping verifies the broker connection is alive.
	Ping(ctx context.Context) error

	// Close closes the broker connection.
	Close() error
}

// Producer publishes messages.
type Producer interface {
	// Publish publishes one message to the given topic.
	Publish(ctx context.Context, topic string, message *Message) error

	// PublishBatch publishes several messages in one write.
	PublishBatch(ctx context.Context, topic string, messages []*Message) error
}

// Consumer consumes messages with manual acknowledgement: a nil handler
// return acknowledges the message, an error drops it (dead-lettering it
// first when configured) so a poison task is never reprocessed forever.
type Consumer interface {
	// Subscribe consumes one topic with default options.
	Subscribe(ctx context.Context, topic string, handler HandlerFunc) error

	// SubscribeWithOptions consumes one topic with explicit options.
	SubscribeWithOptions(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error

	// Start begins consumption for every registered subscription.
	Start() error

	// Stop drains in-flight handlers and stops consumption.
	Stop() error

	// Pause temporarily stops fetching new messages.
	Pause() error

	// Resume restarts fetching after Pause.
	Resume() error
}

// Message is one queue message.
type Message struct {
	// ID identifies the message across redeliveries; the worker echoes it
	// into the report as the task id.
	ID string `json:"id"`

	// Body is the serialized payload.
	Body []byte `json:"body"`

	// Headers carries transport metadata.
	Headers map[string]string `json:"headers"`

	// Timestamp is when the message was produced.
	Timestamp time.Time `json:"timestamp"`

	// Priority orders interactive traffic ahead of bulk rejudges (0-255,
	// higher first). Carried for observability; topic weights do the
	// actual scheduling.
	Priority uint8 `json:"priority"`

	// RetryCount and MaxRetries track in-process redelivery. Judge tasks
	// run with MaxRetries 0: one attempt, then drop.
	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	// Expiration drops messages older than this once fetched.
	Expiration time.Duration `json:"expiration"`
}

// HandlerFunc processes one message. nil acknowledges; an error rejects.
type HandlerFunc func(ctx context.Context, message *Message) error

// SubscribeOptions tunes one subscription.
type SubscribeOptions struct {
	// ConsumerGroup names the broker-side consumer group.
	ConsumerGroup string

	// PrefetchCount bounds messages fetched ahead of processing.
	// Default 1: fair dispatch, one task fully judged before the next.
	PrefetchCount int

	// Concurrency is the number of handler workers. Default 1.
	Concurrency int

	// MaxRetries is how many times a failing handler is re-run before the
	// message is dropped. Zero means drop on the first failure, which is
	// what judge tasks want: a poison task must not loop.
	MaxRetries int

	// RetryDelay spaces handler re-runs when MaxRetries > 0.
	RetryDelay time.Duration

	// DeadLetterTopic receives dropped messages for manual triage when set.
	DeadLetterTopic string

	// MessageTTL drops messages older than this at fetch time.
	MessageTTL time.Duration
}

// SetDefaults fills unset options. MaxRetries is deliberately left alone:
// its zero value is a meaningful "drop immediately".
func (o *SubscribeOptions) SetDefaults() {
	if o.PrefetchCount == 0 {
		o.PrefetchCount = 1
	}
	if o.Concurrency == 0 {
		o.Concurrency = 1
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = time.Second
	}
}

// NewMessage creates a message with the given body and no retry budget.
func NewMessage(body []byte) *Message {
	return &Message{
		Body:      body,
		Headers:   make(map[string]string),
		Timestamp: time.Now(),
	}
}

// SetHeader sets a header value.
func (m *Message) SetHeader(key, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	m.Headers[key] = value
}

// GetHeader retrieves a header value.
func (m *Message) GetHeader(key string) (string, bool) {
	if m.Headers == nil {
		return "", false
	}
	val, ok := m.Headers[key]
	return val, ok
}
