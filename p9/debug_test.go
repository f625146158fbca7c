package p9

import "testing"

// Dump must never panic on any structurally valid Fcall, across every
// known message type (spec.md §4.1: "this formatter... MUST be total").
func TestDumpIsTotal(t *testing.T) {
	for t2 := range msgNames {
		fc := &Fcall{Type: t2, Tag: 1}
		s := Dump(fc)
		if s == "" {
			t.Fatalf("Dump(%v) returned empty string", MsgName(t2))
		}
	}
}

func TestDumpUnknownType(t *testing.T) {
	if got := Dump(&Fcall{Type: 200, Tag: 1}); got == "" {
		t.Fatalf("Dump of unknown type returned empty string")
	}
}

func TestQidString(t *testing.T) {
	q := Qid{Type: QTDIR, Version: 1, Path: 42}
	if got := q.String(); got != "(000000000000002a 1 d)" {
		t.Fatalf("got %q", got)
	}
}
