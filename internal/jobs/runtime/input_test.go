package runtime

import (
	"encoding/json"
	"testing"
)

func TestEventDataAccessors(t *testing.T) {
	ed, err := NewEventData("document/uploaded", []byte(`{"documentId":"d1","count":5,"blank":"  "}`))
	if err != nil {
		t.Fatalf("NewEventData: %v", err)
	}
	if got := ed.String("documentId"); got != "d1" {
		t.Fatalf("String: want=d1 got=%s", got)
	}
	if got := ed.Int("count", 0); got != 5 {
		t.Fatalf("Int: want=5 got=%d", got)
	}
	if got := ed.Int("missing", 7); got != 7 {
		t.Fatalf("Int default: want=7 got=%d", got)
	}
	if _, err := ed.Require("blank"); Classify(err) != KindPermanent {
		t.Fatalf("Require blank: want permanent error got=%v", err)
	}
	empty, err := NewEventData("x", nil)
	if err != nil || empty.Has("anything") {
		t.Fatalf("empty payload: err=%v", err)
	}
}

func TestOutputsWithIsCopyOnWrite(t *testing.T) {
	base := NewOutputs().With("a", json.RawMessage(`1`))
	next := base.With("b", json.RawMessage(`{"x":"y"}`))
	if base.Has("b") {
		t.Fatalf("With must not mutate the receiver")
	}
	if got := next.Names(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("names order: got=%v", got)
	}
	var v struct{ X string }
	if err := next.Decode("b", &v); err != nil || v.X != "y" {
		t.Fatalf("Decode: v=%+v err=%v", v, err)
	}
	if err := next.Decode("c", &v); Classify(err) != KindPermanent {
		t.Fatalf("missing output must be permanent, got %v", err)
	}
}
