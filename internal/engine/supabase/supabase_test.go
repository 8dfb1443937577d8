package supabase

import (
	"testing"
	"time"

	"github.com/tombailey/dueue/internal/dueue"
)

func TestRowConversion(t *testing.T) {
	expiry := time.Now().Add(time.Hour).UTC()
	m := dueue.Message{
		ID:     "m1",
		Body:   "payload",
		Expiry: &expiry,
		AcknowledgementDeadlines: map[string]time.Time{
			"s1": time.Now().Add(time.Minute).UTC().Truncate(time.Second),
		},
		Acknowledgements: map[string]struct{}{"s2": {}},
	}

	r, err := toRow("Q", m)
	if err != nil {
		t.Fatalf("toRow: %v", err)
	}
	if r.Queue != "Q" || r.ID != "m1" {
		t.Fatalf("row identity: %+v", r)
	}

	back, err := r.toMessage()
	if err != nil {
		t.Fatalf("toMessage: %v", err)
	}
	if back.Body != m.Body || back.Expiry == nil || !back.Expiry.Equal(expiry) {
		t.Fatalf("round trip lost fields: %+v", back)
	}
	if _, ok := back.Acknowledgements["s2"]; !ok {
		t.Fatalf("acknowledgements lost: %+v", back)
	}
	if !back.AcknowledgementDeadlines["s1"].Equal(m.AcknowledgementDeadlines["s1"]) {
		t.Fatalf("deadlines lost: %+v", back)
	}
}

func TestRowConversionEmptyState(t *testing.T) {
	r, err := toRow("Q", dueue.Message{ID: "m1", Body: "x"})
	if err != nil {
		t.Fatalf("toRow: %v", err)
	}
	if r.Deadlines != "{}" || r.Acks != "[]" {
		t.Fatalf("empty state columns: %+v", r)
	}

	back, err := r.toMessage()
	if err != nil {
		t.Fatalf("toMessage: %v", err)
	}
	if back.Expiry != nil || back.AcknowledgementDeadlines != nil || back.Acknowledgements != nil {
		t.Fatalf("empty state grew: %+v", back)
	}
}
