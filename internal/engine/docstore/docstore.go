// Package docstore implements the durability engine on a gocloud.dev
// document store. The collection URL selects the provider, so the same
// engine serves Firestore, DynamoDB, MongoDB, or the in-memory driver used
// in tests.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync/atomic"
	"time"

	"gocloud.dev/docstore"
	_ "gocloud.dev/docstore/gcpfirestore"
	_ "gocloud.dev/docstore/memdocstore"
	"gocloud.dev/gcerrors"

	"github.com/tombailey/dueue/internal/dueue"
)

// document is the stored form of a message. Position orders messages within
// a queue when the index is rebuilt at startup.
type document struct {
	ID        string               `docstore:"id"`
	Queue     string               `docstore:"queue"`
	Body      string               `docstore:"body"`
	Expiry    *time.Time           `docstore:"expiry,omitempty"`
	Deadlines map[string]time.Time `docstore:"acknowledgementDeadlines"`
	Acks      []string             `docstore:"acknowledgements"`
	Position  int64                `docstore:"position"`
}

// Engine stores one document per message, keyed by message id.
type Engine struct {
	coll *docstore.Collection
	seq  atomic.Int64
}

// Open opens the collection named by url, e.g.
// "firestore://projects/p/databases/(default)/documents/dueue?name_field=id"
// or "mem://dueue/id".
func Open(ctx context.Context, url string) (*Engine, error) {
	coll, err := docstore.OpenCollection(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open collection: %w", err)
	}
	e := &Engine{coll: coll}
	e.seq.Store(time.Now().UnixNano())
	return e, nil
}

func toDocument(queue string, m dueue.Message, position int64) *document {
	doc := &document{
		ID:       m.ID,
		Queue:    queue,
		Body:     m.Body,
		Position: position,
	}
	if m.Expiry != nil {
		e := *m.Expiry
		doc.Expiry = &e
	}
	if len(m.AcknowledgementDeadlines) > 0 {
		doc.Deadlines = make(map[string]time.Time, len(m.AcknowledgementDeadlines))
		for k, v := range m.AcknowledgementDeadlines {
			doc.Deadlines[k] = v
		}
	}
	for sub := range m.Acknowledgements {
		doc.Acks = append(doc.Acks, sub)
	}
	sort.Strings(doc.Acks)
	return doc
}

func (doc *document) toMessage() dueue.Message {
	m := dueue.Message{ID: doc.ID, Body: doc.Body}
	if doc.Expiry != nil {
		e := *doc.Expiry
		m.Expiry = &e
	}
	if len(doc.Deadlines) > 0 {
		m.AcknowledgementDeadlines = make(map[string]time.Time, len(doc.Deadlines))
		for k, v := range doc.Deadlines {
			m.AcknowledgementDeadlines[k] = v
		}
	}
	if len(doc.Acks) > 0 {
		m.Acknowledgements = make(map[string]struct{}, len(doc.Acks))
		for _, sub := range doc.Acks {
			m.Acknowledgements[sub] = struct{}{}
		}
	}
	return m
}

func (e *Engine) LoadQueues(ctx context.Context) (map[string][]dueue.Message, error) {
	iter := e.coll.Query().Get(ctx)
	defer iter.Stop()

	type positioned struct {
		message  dueue.Message
		position int64
	}
	byQueue := make(map[string][]positioned)
	for {
		var doc document
		err := iter.Next(ctx, &doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate documents: %w", err)
		}
		byQueue[doc.Queue] = append(byQueue[doc.Queue], positioned{doc.toMessage(), doc.Position})
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

func (e *Engine) AddMessage(ctx context.Context, queue string, message dueue.Message) error {
	doc := toDocument(queue, message, e.seq.Add(1))
	if err := e.coll.Create(ctx, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (e *Engine) UpdateMessage(ctx context.Context, queue, id string, message dueue.Message) error {
	existing := document{ID: id}
	if err := e.coll.Get(ctx, &existing); err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	doc := toDocument(queue, message, existing.Position)
	doc.ID = id
	if err := e.coll.Put(ctx, doc); err != nil {
		return fmt.Errorf("put document: %w", err)
	}
	return nil
}

func (e *Engine) DeleteMessage(ctx context.Context, queue, id string) error {
	err := e.coll.Delete(ctx, &document{ID: id})
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (e *Engine) Close() error {
	return e.coll.Close()
}
