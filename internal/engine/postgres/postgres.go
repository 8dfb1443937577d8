// Package postgres implements the durability engine on PostgreSQL. All
// message state lives in a single table, created on open, so multiple Dueue
// restarts share one durable store.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tombailey/dueue/internal/dueue"
)

const schema = `
CREATE TABLE IF NOT EXISTS dueue (
	position BIGSERIAL,
	id TEXT PRIMARY KEY,
	queue TEXT NOT NULL,
	body TEXT NOT NULL,
	expiry TIMESTAMPTZ,
	acknowledgement_deadlines JSONB NOT NULL DEFAULT '{}',
	acknowledgements JSONB NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS dueue_queue_position_idx ON dueue (queue, position);
`

// Engine stores messages in the dueue table.
type Engine struct {
	pool *pgxpool.Pool
}

// Open connects to url and ensures the schema exists.
func Open(ctx context.Context, url string) (*Engine, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Engine{pool: pool}, nil
}

func encodeState(m dueue.Message) (deadlines, acks []byte, err error) {
	d := m.AcknowledgementDeadlines
	if d == nil {
		d = map[string]time.Time{}
	}
	deadlines, err = json.Marshal(d)
	if err != nil {
		return nil, nil, fmt.Errorf("encode deadlines: %w", err)
	}

	subs := make([]string, 0, len(m.Acknowledgements))
	for sub := range m.Acknowledgements {
		subs = append(subs, sub)
	}
	sort.Strings(subs)
	acks, err = json.Marshal(subs)
	if err != nil {
		return nil, nil, fmt.Errorf("encode acknowledgements: %w", err)
	}
	return deadlines, acks, nil
}

func (e *Engine) LoadQueues(ctx context.Context) (map[string][]dueue.Message, error) {
	rows, err := e.pool.Query(ctx, `
		SELECT id, queue, body, expiry, acknowledgement_deadlines, acknowledgements
		FROM dueue ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]dueue.Message)
	for rows.Next() {
		var (
			m         dueue.Message
			queue     string
			expiry    *time.Time
			deadlines []byte
			acks      []byte
		)
		if err := rows.Scan(&m.ID, &queue, &m.Body, &expiry, &deadlines, &acks); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if expiry != nil {
			e := *expiry
			m.Expiry = &e
		}
		if err := json.Unmarshal(deadlines, &m.AcknowledgementDeadlines); err != nil {
			return nil, fmt.Errorf("decode deadlines for %s: %w", m.ID, err)
		}
		var subs []string
		if err := json.Unmarshal(acks, &subs); err != nil {
			return nil, fmt.Errorf("decode acknowledgements for %s: %w", m.ID, err)
		}
		if len(subs) > 0 {
			m.Acknowledgements = make(map[string]struct{}, len(subs))
			for _, sub := range subs {
				m.Acknowledgements[sub] = struct{}{}
			}
		}
		if len(m.AcknowledgementDeadlines) == 0 {
			m.AcknowledgementDeadlines = nil
		}
		out[queue] = append(out[queue], m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	return out, nil
}

func (e *Engine) AddMessage(ctx context.Context, queue string, message dueue.Message) error {
	deadlines, acks, err := encodeState(message)
	if err != nil {
		return err
	}
	_, err = e.pool.Exec(ctx, `
		INSERT INTO dueue (id, queue, body, expiry, acknowledgement_deadlines, acknowledgements)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		message.ID, queue, message.Body, message.Expiry, deadlines, acks)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (e *Engine) UpdateMessage(ctx context.Context, queue, id string, message dueue.Message) error {
	deadlines, acks, err := encodeState(message)
	if err != nil {
		return err
	}
	_, err = e.pool.Exec(ctx, `
		UPDATE dueue
		SET body = $3, expiry = $4, acknowledgement_deadlines = $5, acknowledgements = $6
		WHERE id = $1 AND queue = $2`,
		id, queue, message.Body, message.Expiry, deadlines, acks)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}

func (e *Engine) DeleteMessage(ctx context.Context, queue, id string) error {
	if _, err := e.pool.Exec(ctx, `DELETE FROM dueue WHERE id = $1 AND queue = $2`, id, queue); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// CheckHealth pings the database.
func (e *Engine) CheckHealth(ctx context.Context) error {
	return e.pool.Ping(ctx)
}

func (e *Engine) Close() error {
	e.pool.Close()
	return nil
}
