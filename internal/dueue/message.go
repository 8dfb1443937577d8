package dueue

import "time"

// Message is a queued message together with its per-subscriber delivery
// state. The body is opaque to the engine.
type Message struct {
	// ID is the message's sole external handle, assigned at publish time.
	ID string
	// Body is the producer-supplied payload.
	Body string
	// Expiry, when set, is the absolute time after which the message is
	// permanently removed regardless of acknowledgement state.
	Expiry *time.Time
	// AcknowledgementDeadlines maps a subscriber id to the absolute time
	// until which that subscriber's copy is in flight.
	AcknowledgementDeadlines map[string]time.Time
	// Acknowledgements is the set of subscribers that confirmed processing.
	Acknowledgements map[string]struct{}
}

// Expired reports whether the message's expiry has passed at now.
func (m *Message) Expired(now time.Time) bool {
	return m.Expiry != nil && !m.Expiry.After(now)
}

// EligibleFor reports whether the message may be delivered to subscriber at
// now: the subscriber has not acknowledged it and has no deadline entry
// still in the future.
func (m *Message) EligibleFor(subscriber string, now time.Time) bool {
	if _, acked := m.Acknowledgements[subscriber]; acked {
		return false
	}
	deadline, inFlight := m.AcknowledgementDeadlines[subscriber]
	return !inFlight || !deadline.After(now)
}

// Clone returns a deep copy. The index never hands out its own maps.
func (m *Message) Clone() Message {
	out := Message{ID: m.ID, Body: m.Body}
	if m.Expiry != nil {
		e := *m.Expiry
		out.Expiry = &e
	}
	if m.AcknowledgementDeadlines != nil {
		out.AcknowledgementDeadlines = make(map[string]time.Time, len(m.AcknowledgementDeadlines))
		for k, v := range m.AcknowledgementDeadlines {
			out.AcknowledgementDeadlines[k] = v
		}
	}
	if m.Acknowledgements != nil {
		out.Acknowledgements = make(map[string]struct{}, len(m.Acknowledgements))
		for k := range m.Acknowledgements {
			out.Acknowledgements[k] = struct{}{}
		}
	}
	return out
}

func (m *Message) setDeadline(subscriber string, deadline time.Time) {
	if m.AcknowledgementDeadlines == nil {
		m.AcknowledgementDeadlines = make(map[string]time.Time, 1)
	}
	m.AcknowledgementDeadlines[subscriber] = deadline
}

func (m *Message) acknowledge(subscriber string) {
	if m.Acknowledgements == nil {
		m.Acknowledgements = make(map[string]struct{}, 1)
	}
	m.Acknowledgements[subscriber] = struct{}{}
}
