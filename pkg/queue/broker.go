// Package queue provides the queue substrate behind the asynchronous task
// path: a transport-agnostic broker interface, a SQLite-backed broker, the
// background processor that turns queued tasks into agent calls, and the
// response reader.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable indicates the queue substrate is not configured or reachable.
var ErrUnavailable = errors.New("queue substrate unavailable")

// Message is one queued payload under at-least-once delivery. Receivers must
// resolve every received message through exactly one of Complete, DeadLetter,
// or Abandon.
type Message struct {
	ID            string
	Queue         string
	Body          []byte
	EnqueuedAt    time.Time
	DeliveryCount int
}

// DeadMessage is a message moved to the inspection channel.
type DeadMessage struct {
	Message
	Reason       string
	Description  string
	DeadLettered time.Time
}

// Broker is the transport-agnostic queue substrate. Implementations provide
// at-least-once delivery; stronger guarantees are out of scope.
type Broker interface {
	// Send enqueues body on the named queue and returns the message ID.
	Send(ctx context.Context, queue string, body []byte) (string, error)
	// ReceiveBatch returns up to max pending messages, waiting up to wait
	// for the first one. Received messages are invisible to other receivers
	// until resolved or their lock expires.
	ReceiveBatch(ctx context.Context, queue string, max int, wait time.Duration) ([]*Message, error)
	// Complete permanently removes a message after successful processing.
	Complete(ctx context.Context, msg *Message) error
	// DeadLetter moves a message to the inspection channel.
	DeadLetter(ctx context.Context, msg *Message, reason, description string) error
	// Abandon returns a message to its queue for redelivery.
	Abandon(ctx context.Context, msg *Message) error
	// Depth returns the number of pending messages on the named queue.
	Depth(ctx context.Context, queue string) (int, error)
	// Close releases broker resources.
	Close() error
}
