package sessionlog

import (
	"strings"
	"sync"
	"testing"
)

func TestSeverityString(t *testing.T) {
	tests := []struct {
		sev  Severity
		want string
	}{
		{Plain, "plain"},
		{Error, "error"},
		{Success, "success"},
		{Warning, "warning"},
		{Highlight, "highlight"},
	}
	for _, tt := range tests {
		if got := tt.sev.String(); got != tt.want {
			t.Errorf("Severity(%d).String() = %q, want %q", tt.sev, got, tt.want)
		}
	}
}

func TestAppendAndSnapshot(t *testing.T) {
	l := New()
	l.Plainf("loading %s", "firmware.hex")
	l.Errorf("attach failed")
	l.Successf("verify passed")

	lines := l.Snapshot()
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0].Text != "loading firmware.hex" || lines[0].Severity != Plain {
		t.Errorf("unexpected first line: %+v", lines[0])
	}
	if lines[1].Severity != Error {
		t.Errorf("expected Error severity, got %v", lines[1].Severity)
	}

	// Snapshot must be a copy, not a view
	lines[2].Text = "mutated"
	if l.Snapshot()[2].Text != "verify passed" {
		t.Error("Snapshot returned a mutable view of the log")
	}
}

func TestSink(t *testing.T) {
	l := New()
	var got []Line
	l.SetSink(func(line Line) { got = append(got, line) })

	l.Warnf("pattern matched %d times", 2)
	if len(got) != 1 {
		t.Fatalf("expected sink to see 1 line, got %d", len(got))
	}
	if got[0].Text != "pattern matched 2 times" {
		t.Errorf("sink saw %q", got[0].Text)
	}
}

func TestText(t *testing.T) {
	l := New()
	l.Plainf("one")
	l.Plainf("two")
	if got := l.Text(); got != "one\ntwo\n" {
		t.Errorf("Text() = %q", got)
	}
}

func TestConcurrentAppend(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.Plainf("line")
			}
		}()
	}
	wg.Wait()
	if l.Len() != 800 {
		t.Errorf("expected 800 lines, got %d", l.Len())
	}
	if strings.Count(l.Text(), "\n") != 800 {
		t.Error("Text() line count mismatch")
	}
}
