// Package memory provides a volatile durability engine. Messages live only
// for the lifetime of the process; it exists for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/tombailey/dueue/internal/dueue"
)

// Engine stores messages in process memory.
type Engine struct {
	mu     sync.Mutex
	queues map[string][]dueue.Message
}

// New returns an empty in-memory engine.
func New() *Engine {
	return &Engine{queues: make(map[string][]dueue.Message)}
}

func (e *Engine) LoadQueues(context.Context) (map[string][]dueue.Message, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string][]dueue.Message, len(e.queues))
	for queue, messages := range e.queues {
		list := make([]dueue.Message, 0, len(messages))
		for i := range messages {
			list = append(list, messages[i].Clone())
		}
		out[queue] = list
	}
	return out, nil
}

func (e *Engine) AddMessage(_ context.Context, queue string, message dueue.Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queues[queue] = append(e.queues[queue], message.Clone())
	return nil
}

func (e *Engine) UpdateMessage(_ context.Context, queue, id string, message dueue.Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.queues[queue] {
		if e.queues[queue][i].ID == id {
			m := message.Clone()
			m.ID = id
			e.queues[queue][i] = m
			return nil
		}
	}
	return nil
}

func (e *Engine) DeleteMessage(_ context.Context, queue, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	messages := e.queues[queue]
	for i := range messages {
		if messages[i].ID == id {
			e.queues[queue] = append(messages[:i], messages[i+1:]...)
			return nil
		}
	}
	return nil
}

func (e *Engine) Close() error { return nil }
