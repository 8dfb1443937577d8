package docstore

import (
	"context"
	"testing"
	"time"

	_ "gocloud.dev/docstore/memdocstore"

	"github.com/tombailey/dueue/internal/dueue"
)

func openForTest(t *testing.T) *Engine {
	t.Helper()
	eng, err := Open(context.Background(), "mem://dueue/id")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func TestRoundTrip(t *testing.T) {
	eng := openForTest(t)
	ctx := context.Background()

	expiry := time.Now().Add(time.Hour).UTC()
	if err := eng.AddMessage(ctx, "Q", dueue.Message{ID: "m1", Body: "first", Expiry: &expiry}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := eng.AddMessage(ctx, "Q", dueue.Message{ID: "m2", Body: "second"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	updated := dueue.Message{ID: "m1", Body: "first", Expiry: &expiry}
	updated.AcknowledgementDeadlines = map[string]time.Time{"s1": time.Now().Add(time.Minute).UTC()}
	updated.Acknowledgements = map[string]struct{}{"s2": {}}
	if err := eng.UpdateMessage(ctx, "Q", "m1", updated); err != nil {
		t.Fatalf("update: %v", err)
	}

	loaded, err := eng.LoadQueues(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	q := loaded["Q"]
	if len(q) != 2 || q[0].ID != "m1" || q[1].ID != "m2" {
		t.Fatalf("queue order: %+v", q)
	}
	if q[0].Expiry == nil || !q[0].Expiry.Equal(expiry) {
		t.Fatalf("expiry lost: %+v", q[0])
	}
	if _, ok := q[0].Acknowledgements["s2"]; !ok {
		t.Fatalf("acknowledgement lost: %+v", q[0])
	}

	if err := eng.DeleteMessage(ctx, "Q", "m1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := eng.DeleteMessage(ctx, "Q", "m1"); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
	loaded, err = eng.LoadQueues(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded["Q"]) != 1 || loaded["Q"][0].ID != "m2" {
		t.Fatalf("delete left %+v", loaded["Q"])
	}
}

func TestAddDuplicateIDFails(t *testing.T) {
	eng := openForTest(t)
	ctx := context.Background()

	if err := eng.AddMessage(ctx, "Q", dueue.Message{ID: "m1", Body: "x"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := eng.AddMessage(ctx, "Q", dueue.Message{ID: "m1", Body: "y"}); err == nil {
		t.Fatal("expected duplicate id to fail")
	}
}
