// Package supabase implements the durability engine on a Supabase table via
// the PostgREST API. It suits deployments already running on Supabase where
// a direct PostgreSQL connection is not available.
//
// The table needs columns id (text, primary key), queue (text), body
// (text), expiry (timestamptz, nullable), acknowledgementDeadlines (text)
// and acknowledgements (text); the two state columns hold JSON strings.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	supa "github.com/supabase-community/supabase-go"

	"github.com/tombailey/dueue/internal/dueue"
)

// DefaultTable is used when no table name is configured.
const DefaultTable = "dueue"

// row is the PostgREST representation of a message.
type row struct {
	ID        string     `json:"id"`
	Queue     string     `json:"queue"`
	Body      string     `json:"body"`
	Expiry    *time.Time `json:"expiry"`
	Deadlines string     `json:"acknowledgementDeadlines"`
	Acks      string     `json:"acknowledgements"`
}

// Engine stores one row per message.
type Engine struct {
	client *supa.Client
	table  string
}

// Open creates a client for the project at url authenticated with key.
func Open(url, key, table string) (*Engine, error) {
	if table == "" {
		table = DefaultTable
	}
	client, err := supa.NewClient(url, key, &supa.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &Engine{client: client, table: table}, nil
}

func toRow(queue string, m dueue.Message) (row, error) {
	deadlines := m.AcknowledgementDeadlines
	if deadlines == nil {
		deadlines = map[string]time.Time{}
	}
	deadlinesJSON, err := json.Marshal(deadlines)
	if err != nil {
		return row{}, fmt.Errorf("encode deadlines: %w", err)
	}

	subs := make([]string, 0, len(m.Acknowledgements))
	for sub := range m.Acknowledgements {
		subs = append(subs, sub)
	}
	sort.Strings(subs)
	acksJSON, err := json.Marshal(subs)
	if err != nil {
		return row{}, fmt.Errorf("encode acknowledgements: %w", err)
	}

	r := row{
		ID:        m.ID,
		Queue:     queue,
		Body:      m.Body,
		Deadlines: string(deadlinesJSON),
		Acks:      string(acksJSON),
	}
	if m.Expiry != nil {
		e := *m.Expiry
		r.Expiry = &e
	}
	return r, nil
}

func (r row) toMessage() (dueue.Message, error) {
	m := dueue.Message{ID: r.ID, Body: r.Body}
	if r.Expiry != nil {
		e := *r.Expiry
		m.Expiry = &e
	}
	if r.Deadlines != "" {
		if err := json.Unmarshal([]byte(r.Deadlines), &m.AcknowledgementDeadlines); err != nil {
			return dueue.Message{}, fmt.Errorf("decode deadlines for %s: %w", r.ID, err)
		}
		if len(m.AcknowledgementDeadlines) == 0 {
			m.AcknowledgementDeadlines = nil
		}
	}
	if r.Acks != "" {
		var subs []string
		if err := json.Unmarshal([]byte(r.Acks), &subs); err != nil {
			return dueue.Message{}, fmt.Errorf("decode acknowledgements for %s: %w", r.ID, err)
		}
		if len(subs) > 0 {
			m.Acknowledgements = make(map[string]struct{}, len(subs))
			for _, sub := range subs {
				m.Acknowledgements[sub] = struct{}{}
			}
		}
	}
	return m, nil
}

func (e *Engine) LoadQueues(ctx context.Context) (map[string][]dueue.Message, error) {
	data, _, err := e.client.From(e.table).Select("*", "exact", false).Execute()
	if err != nil {
		return nil, fmt.Errorf("select rows: %w", err)
	}
	var rows []row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}

	// Message ids are time-ordered, so a lexical sort restores insertion
	// order per queue.
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })

	out := make(map[string][]dueue.Message)
	for _, r := range rows {
		m, err := r.toMessage()
		if err != nil {
			return nil, err
		}
		out[r.Queue] = append(out[r.Queue], m)
	}
	return out, nil
}

func (e *Engine) AddMessage(ctx context.Context, queue string, message dueue.Message) error {
	r, err := toRow(queue, message)
	if err != nil {
		return err
	}
	if _, _, err := e.client.From(e.table).Insert(r, false, "", "", "").Execute(); err != nil {
		return fmt.Errorf("insert row: %w", err)
	}
	return nil
}

func (e *Engine) UpdateMessage(ctx context.Context, queue, id string, message dueue.Message) error {
	r, err := toRow(queue, message)
	if err != nil {
		return err
	}
	r.ID = id
	if _, _, err := e.client.From(e.table).Update(r, "", "").Eq("id", id).Execute(); err != nil {
		return fmt.Errorf("update row: %w", err)
	}
	return nil
}

func (e *Engine) DeleteMessage(ctx context.Context, queue, id string) error {
	if _, _, err := e.client.From(e.table).Delete("", "").Eq("id", id).Execute(); err != nil {
		return fmt.Errorf("delete row: %w", err)
	}
	return nil
}

func (e *Engine) Close() error { return nil }
