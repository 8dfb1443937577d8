package dueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/tombailey/dueue/internal/keymutex"
	"github.com/tombailey/dueue/internal/metrics"
	logpkg "github.com/tombailey/dueue/pkg/log"
)

// DefaultAcknowledgementDeadline is how long a delivered message stays
// hidden from its subscriber when the request does not name a deadline.
const DefaultAcknowledgementDeadline = 5 * time.Minute

// timeNow is swapped in tests.
var timeNow = time.Now

// newID is swapped in tests.
var newID = func() string { return xid.New().String() }

// Options configures a Service.
type Options struct {
	Engine  Engine
	Logger  logpkg.Logger
	Metrics *metrics.Metrics
	// DefaultDeadline overrides DefaultAcknowledgementDeadline when > 0.
	DefaultDeadline time.Duration
}

// Service is the delivery engine. It owns the in-memory queue index, seeded
// from the Engine at startup, and serializes every state transition for a
// queue through the per-queue mutex registry. The index is only ever
// mutated inside a queue's critical section, and only after (or, for
// eviction deletes, regardless of) the corresponding durable write.
type Service struct {
	engine  Engine
	locks   *keymutex.KeyMutex
	logger  logpkg.Logger
	metrics *metrics.Metrics

	defaultDeadline time.Duration

	// queues maps queue name to messages in insertion order. The map
	// header is guarded by mu, because operations on different queues run
	// concurrently; each slice and the messages it points to only change
	// inside that queue's critical section. Messages never leave this map
	// uncloned.
	mu     sync.Mutex
	queues map[string][]*Message
}

// loadQueue reads a queue's slice. Callers must hold the queue's lock for
// the slice contents to be stable.
func (s *Service) loadQueue(queue string) []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queues[queue]
}

func (s *Service) storeQueue(queue string, messages []*Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[queue] = messages
}

// New seeds the queue index from opts.Engine and returns a ready Service.
func New(ctx context.Context, opts Options) (*Service, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("dueue: Options.Engine is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.New(logpkg.WithLevel(logpkg.InfoLevel))
	}
	logger = logger.With(logpkg.Str("component", "dueue"))

	deadline := opts.DefaultDeadline
	if deadline <= 0 {
		deadline = DefaultAcknowledgementDeadline
	}

	loaded, err := opts.Engine.LoadQueues(ctx)
	if err != nil {
		return nil, fmt.Errorf("load queues: %w", err)
	}
	queues := make(map[string][]*Message, len(loaded))
	total := 0
	for name, messages := range loaded {
		list := make([]*Message, 0, len(messages))
		for i := range messages {
			m := messages[i].Clone()
			list = append(list, &m)
		}
		queues[name] = list
		total += len(list)
	}

	logger.Info("queue index seeded",
		logpkg.Int("queues", len(queues)),
		logpkg.Int("messages", total),
	)

	return &Service{
		engine:          opts.Engine,
		locks:           keymutex.New(),
		logger:          logger,
		metrics:         opts.Metrics,
		defaultDeadline: deadline,
		queues:          queues,
	}, nil
}

// Publish stores a new message durably, then appends it to the queue's
// in-memory list, creating the queue on first use. The returned Message is
// a copy carrying the assigned id.
func (s *Service) Publish(ctx context.Context, queue, body string, expiry *time.Time) (Message, error) {
	start := timeNow()
	message := Message{ID: newID(), Body: body}
	if expiry != nil {
		e := *expiry
		message.Expiry = &e
	}

	err := s.locks.WithLock(queue, func() error {
		if err := s.engine.AddMessage(ctx, queue, message); err != nil {
			return fmt.Errorf("add message: %w", err)
		}
		m := message.Clone()
		s.storeQueue(queue, append(s.loadQueue(queue), &m))
		return nil
	})
	if err != nil {
		return Message{}, err
	}

	s.logger.Debug("published message",
		logpkg.Str("queue", queue),
		logpkg.Str("id", message.ID),
	)
	if s.metrics != nil {
		s.metrics.IncPublished(queue)
		s.metrics.ObserveOp("publish", timeNow().Sub(start))
	}
	return message, nil
}

// Receive scans the queue in stored order and returns the first message
// eligible for subscriber, after marking it in flight until deadline and
// persisting that transition. Expired messages encountered before the first
// eligible one are evicted along the way: the durable delete is attempted
// first and its failure logged but not propagated, then the message is
// dropped from the index regardless. A nil result with a nil error means no
// message is available right now.
//
// The scan stops at the first eligible match; expired messages later in the
// list stay put until a future scan reaches them.
func (s *Service) Receive(ctx context.Context, queue, subscriber string, deadline time.Time) (*Message, error) {
	start := timeNow()
	if deadline.IsZero() {
		deadline = start.Add(s.defaultDeadline)
	}

	var delivered *Message
	err := s.locks.WithLock(queue, func() error {
		messages := s.loadQueue(queue)
		i := 0
		for i < len(messages) {
			m := messages[i]
			now := timeNow()
			if m.Expired(now) {
				if err := s.engine.DeleteMessage(ctx, queue, m.ID); err != nil {
					s.logger.Warn("failed to delete expired message",
						logpkg.Str("queue", queue),
						logpkg.Str("id", m.ID),
						logpkg.Err(err),
					)
					if s.metrics != nil {
						s.metrics.IncEvictionDeleteFailure(queue)
					}
				} else {
					s.logger.Debug("message expired",
						logpkg.Str("queue", queue),
						logpkg.Str("id", m.ID),
					)
				}
				messages = append(messages[:i], messages[i+1:]...)
				s.storeQueue(queue, messages)
				if s.metrics != nil {
					s.metrics.IncEvicted(queue)
				}
				continue
			}
			if m.EligibleFor(subscriber, now) {
				updated := m.Clone()
				updated.setDeadline(subscriber, deadline)
				if err := s.engine.UpdateMessage(ctx, queue, m.ID, updated); err != nil {
					return fmt.Errorf("update message: %w", err)
				}
				m.setDeadline(subscriber, deadline)
				out := m.Clone()
				delivered = &out
				return nil
			}
			i++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ObserveOp("receive", timeNow().Sub(start))
	}
	if delivered == nil {
		if s.metrics != nil {
			s.metrics.IncEmptyReceive(queue)
		}
		return nil, nil
	}

	s.logger.Debug("delivered message",
		logpkg.Str("queue", queue),
		logpkg.Str("id", delivered.ID),
		logpkg.Str("subscriber", subscriber),
		logpkg.Time("deadline", deadline),
	)
	if s.metrics != nil {
		s.metrics.IncDelivered(queue)
	}
	return delivered, nil
}

// Acknowledge records subscriber's acknowledgement of the message with the
// given id. Unknown ids are a no-op: acknowledging an already-removed
// message is not an error. The message stays in the queue afterwards; it is
// simply no longer eligible for this subscriber.
func (s *Service) Acknowledge(ctx context.Context, queue, subscriber, id string) error {
	start := timeNow()
	acked := false
	err := s.locks.WithLock(queue, func() error {
		for _, m := range s.loadQueue(queue) {
			if m.ID != id {
				continue
			}
			updated := m.Clone()
			updated.acknowledge(subscriber)
			if err := s.engine.UpdateMessage(ctx, queue, id, updated); err != nil {
				return fmt.Errorf("update message: %w", err)
			}
			m.acknowledge(subscriber)
			acked = true
			return nil
		}
		return nil
	})
	if err != nil {
		return err
	}

	if acked {
		s.logger.Debug("acknowledged message",
			logpkg.Str("queue", queue),
			logpkg.Str("id", id),
			logpkg.Str("subscriber", subscriber),
		)
		if s.metrics != nil {
			s.metrics.IncAcknowledged(queue)
		}
	}
	if s.metrics != nil {
		s.metrics.ObserveOp("acknowledge", timeNow().Sub(start))
	}
	return nil
}
