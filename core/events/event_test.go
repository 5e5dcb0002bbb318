package events

import "testing"

type namedEvent string

func (n namedEvent) EventType() string { return string(n) }

func TestBufferDrain(t *testing.T) {
	var buf Buffer
	buf.Emit(namedEvent("a"))
	buf.Emit(nil)
	buf.Emit(namedEvent("b"))
	if buf.Len() != 2 {
		t.Fatalf("expected 2 buffered events, got %d", buf.Len())
	}
	drained := buf.Drain()
	if len(drained) != 2 || drained[0].EventType() != "a" || drained[1].EventType() != "b" {
		t.Fatalf("unexpected drained events: %+v", drained)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected empty buffer after drain")
	}
}

func TestMultiFansOut(t *testing.T) {
	var first, second Buffer
	m := Multi{&first, nil, &second}
	m.Emit(namedEvent("x"))
	if first.Len() != 1 || second.Len() != 1 {
		t.Fatalf("expected event delivered to both buffers")
	}
}
