// Package pebble implements the durability engine on an embedded Pebble
// database. It is the default engine: single-node durable storage with no
// external service to run.
package pebble

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	pebbledb "github.com/cockroachdb/pebble"

	"github.com/tombailey/dueue/internal/dueue"
	pebblestore "github.com/tombailey/dueue/internal/storage/pebble"
)

// keyPrefix namespaces message records so the keyspace can grow other record
// kinds later.
const keyPrefix = "q/"

// record is the stored form of a message. Position orders messages within a
// queue when the index is rebuilt at startup.
type record struct {
	ID        string               `json:"id"`
	Queue     string               `json:"queue"`
	Body      string               `json:"body"`
	Expiry    *time.Time           `json:"expiry,omitempty"`
	Deadlines map[string]time.Time `json:"acknowledgementDeadlines,omitempty"`
	Acks      []string             `json:"acknowledgements,omitempty"`
	Position  int64                `json:"position"`
}

// Engine stores one record per message under q/<queue>/m/<id>.
type Engine struct {
	db  *pebblestore.DB
	seq atomic.Int64
}

// Options configures the Pebble engine.
type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Metrics       pebblestore.MetricsHook
}

// Open creates or opens the database under opts.DataDir.
func Open(opts Options) (*Engine, error) {
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       opts.DataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Metrics:       opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	e := &Engine{db: db}
	// Positions resume above wall-clock time so restarts keep ordering.
	e.seq.Store(time.Now().UnixNano())
	return e, nil
}

func messageKey(queue, id string) []byte {
	return []byte(keyPrefix + queue + "/m/" + id)
}

func toRecord(queue string, m dueue.Message, position int64) record {
	r := record{
		ID:       m.ID,
		Queue:    queue,
		Body:     m.Body,
		Position: position,
	}
	if m.Expiry != nil {
		e := *m.Expiry
		r.Expiry = &e
	}
	if len(m.AcknowledgementDeadlines) > 0 {
		r.Deadlines = make(map[string]time.Time, len(m.AcknowledgementDeadlines))
		for k, v := range m.AcknowledgementDeadlines {
			r.Deadlines[k] = v
		}
	}
	for sub := range m.Acknowledgements {
		r.Acks = append(r.Acks, sub)
	}
	sort.Strings(r.Acks)
	return r
}

func (r record) toMessage() dueue.Message {
	m := dueue.Message{ID: r.ID, Body: r.Body}
	if r.Expiry != nil {
		e := *r.Expiry
		m.Expiry = &e
	}
	if len(r.Deadlines) > 0 {
		m.AcknowledgementDeadlines = make(map[string]time.Time, len(r.Deadlines))
		for k, v := range r.Deadlines {
			m.AcknowledgementDeadlines[k] = v
		}
	}
	if len(r.Acks) > 0 {
		m.Acknowledgements = make(map[string]struct{}, len(r.Acks))
		for _, sub := range r.Acks {
			m.Acknowledgements[sub] = struct{}{}
		}
	}
	return m
}

func (e *Engine) LoadQueues(ctx context.Context) (map[string][]dueue.Message, error) {
	it, err := e.db.NewIter(&pebbledb.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "\xff"),
	})
	if err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	defer it.Close()

	type positioned struct {
		message  dueue.Message
		position int64
	}
	byQueue := make(map[string][]positioned)
	for it.First(); it.Valid(); it.Next() {
		var r record
		if err := json.Unmarshal(it.Value(), &r); err != nil {
			return nil, fmt.Errorf("decode record %q: %w", it.Key(), err)
		}
		byQueue[r.Queue] = append(byQueue[r.Queue], positioned{r.toMessage(), r.Position})
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	out := make(map[string][]dueue.Message, len(byQueue))
	for queue, list := range byQueue {
		sort.SliceStable(list, func(i, j int) bool { return list[i].position < list[j].position })
		messages := make([]dueue.Message, 0, len(list))
		for _, p := range list {
			messages = append(messages, p.message)
		}
		out[queue] = messages
	}
	return out, nil
}

func (e *Engine) AddMessage(_ context.Context, queue string, message dueue.Message) error {
	r := toRecord(queue, message, e.seq.Add(1))
	buf, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return e.db.Set(messageKey(queue, message.ID), buf)
}

func (e *Engine) UpdateMessage(_ context.Context, queue, id string, message dueue.Message) error {
	key := messageKey(queue, id)
	existing, err := e.db.Get(key)
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return fmt.Errorf("update %s/%s: message not stored", queue, id)
		}
		return fmt.Errorf("read record: %w", err)
	}
	var prev record
	if err := json.Unmarshal(existing, &prev); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}

	r := toRecord(queue, message, prev.Position)
	r.ID = id
	buf, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return e.db.Set(key, buf)
}

func (e *Engine) DeleteMessage(_ context.Context, queue, id string) error {
	return e.db.Delete(messageKey(queue, id))
}

// CheckHealth reports whether the underlying database can serve reads.
func (e *Engine) CheckHealth(ctx context.Context) error {
	return e.db.CheckHealth(ctx)
}

func (e *Engine) Close() error {
	return e.db.Close()
}
