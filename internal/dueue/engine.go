package dueue

import "context"

// Engine is the persistence port the delivery service reads and writes
// through. Implementations live under internal/engine; any durable backend
// satisfying these operations is interchangeable.
//
// AddMessage and UpdateMessage failures are fatal to the triggering call:
// the service propagates them and leaves the in-memory index untouched.
// DeleteMessage must be idempotent; deleting an unknown id is not an error.
type Engine interface {
	// LoadQueues returns every stored message grouped by queue, in
	// insertion order, reconstructing all fields including
	// absent-vs-present distinctions. Called once at startup.
	LoadQueues(ctx context.Context) (map[string][]Message, error)

	// AddMessage durably stores a new message under its id and queue.
	AddMessage(ctx context.Context, queue string, message Message) error

	// UpdateMessage durably overwrites the mutable fields of an existing
	// message.
	UpdateMessage(ctx context.Context, queue, id string, message Message) error

	// DeleteMessage durably removes a message. Safe on an absent id.
	DeleteMessage(ctx context.Context, queue, id string) error

	// Close releases backend resources.
	Close() error
}
