// Package dueue implements the delivery engine: the in-memory queue index,
// the message visibility state machine, and the multi-subscriber
// acknowledgement tracking behind Dueue's publish/receive/acknowledge
// operations.
//
// # Delivery model
//
// Consumers are identified by a caller-supplied subscriber id. Receiving a
// message marks it in flight for that subscriber until an acknowledgement
// deadline; until the deadline lapses the message is hidden from that
// subscriber, while other subscribers see it independently. A subscriber
// acknowledges with the message id, which permanently excludes the message
// for that subscriber but keeps it queued for everyone else. Delivery is
// therefore at-least-once per subscriber, with redelivery after a missed
// deadline.
//
// Messages may carry an absolute expiry. Expired messages are never
// delivered; receive scans evict them opportunistically from both durable
// storage and the index.
//
// # Concurrency
//
// Every operation on a queue runs inside that queue's named critical
// section (internal/keymutex), held across the durable I/O it performs.
// Operations on different queues proceed fully in parallel; the index map
// they share is guarded by its own short-lived mutex. Durable writes
// complete before the index is mutated, so the index never runs ahead of
// storage; the one exception is eviction, where a failed durable delete is
// logged and the in-memory eviction proceeds anyway.
//
// # Known limitation
//
// Messages acknowledged by every subscriber are retained, and the
// acknowledgement set is unbounded: a long-lived queue consumed by many
// one-shot subscribers accumulates acknowledgement state per message. There
// is no garbage collection for fully-acknowledged messages.
package dueue
