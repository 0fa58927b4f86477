package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogLogger(slog.New(h)), &buf
}

func TestSlogLoggerLevels(t *testing.T) {
	log, buf := newTestLogger(t)
	ctx := context.Background()

	log.Debug(ctx, "dbg", "a", 1)
	log.Info(ctx, "inf", "b", 2)
	log.Warn(ctx, "wrn", "c", 3)
	log.Error(ctx, "err", "d", 4)

	out := buf.String()
	for _, want := range []string{
		"level=DEBUG", "msg=dbg", "a=1",
		"level=INFO", "msg=inf", "b=2",
		"level=WARN", "msg=wrn", "c=3",
		"level=ERROR", "msg=err", "d=4",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestSlogLoggerWithAddsAttributes(t *testing.T) {
	log, buf := newTestLogger(t)
	child := log.With("component", "session")
	child.Info(context.Background(), "issued", "user", "42")

	out := buf.String()
	if !strings.Contains(out, "component=session") || !strings.Contains(out, "user=42") {
		t.Fatalf("missing attributes in output:\n%s", out)
	}
}

func TestDiscardWritesNothing(t *testing.T) {
	log := Discard()
	log.Error(context.Background(), "boom")
	if log.With("k", "v") == nil {
		t.Fatal("With must return a logger")
	}
}
