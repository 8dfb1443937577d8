package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   DebugLevel,
		"info":    InfoLevel,
		"":        InfoLevel,
		"warn":    WarnLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"fatal":   FatalLevel,
		" Info ":  InfoLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestJSONOutputIncludesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(WithFormat("json"), WithWriter(&buf), WithLevel(DebugLevel))

	logger.With(Str("component", "test")).Info("hello", Int("n", 3))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "hello" || entry["component"] != "test" {
		t.Fatalf("entry: %+v", entry)
	}
	if entry["n"] != float64(3) {
		t.Fatalf("field n: %v", entry["n"])
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New(WithFormat("json"), WithWriter(&buf), WithLevel(WarnLevel))

	logger.Debug("quiet")
	logger.Info("quiet")
	logger.Warn("loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Fatalf("below-level entries written: %q", out)
	}
	if !strings.Contains(out, "loud") {
		t.Fatalf("warn entry missing: %q", out)
	}
}

func TestFatalUsesExitHook(t *testing.T) {
	var buf bytes.Buffer
	logger := New(WithFormat("json"), WithWriter(&buf)).(*slogger)

	code := -1
	logger.exit = func(c int) { code = c }
	logger.Fatal("boom")

	if code != 1 {
		t.Fatalf("exit code: %d", code)
	}
	if !strings.Contains(buf.String(), "boom") {
		t.Fatalf("fatal entry missing: %q", buf.String())
	}
}

func TestErrFieldKey(t *testing.T) {
	f := Err(errTest{})
	if f.Key != "error" {
		t.Fatalf("Err key: %q", f.Key)
	}
}

type errTest struct{}

func (errTest) Error() string { return "test error" }
