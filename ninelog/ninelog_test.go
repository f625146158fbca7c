package ninelog

import (
	"bytes"
	"strings"
	"testing"
)

func TestAddLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	AddLogger("test", &buf, WARN)
	defer DelLogger("test")

	Debugf("should not appear")
	Warnf("should appear: %d", 42)

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Fatalf("debug message leaked through WARN filter: %q", out)
	}
	if !strings.Contains(out, "should appear: 42") {
		t.Fatalf("warn message missing: %q", out)
	}
}

func TestParseLevelRoundTrip(t *testing.T) {
	for _, s := range []string{"debug", "info", "warn", "error", "fatal"} {
		l, err := ParseLevel(s)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", s, err)
		}
		if l.String() != s {
			t.Fatalf("ParseLevel(%q).String() = %q", s, l.String())
		}
	}
}

func TestParseLevelInvalid(t *testing.T) {
	if _, err := ParseLevel("bogus"); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestDiscardLoggerIsSafe(t *testing.T) {
	Discard.Debugf("x")
	Discard.Infof("x")
	Discard.Warnf("x")
	Discard.Errorf("x")
}
