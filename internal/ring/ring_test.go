package ring

import "testing"

type fakeFrame struct {
	ts  int64
	idx int64
}

func (f fakeFrame) PresentationTS() int64 { return f.ts }

func TestPeekPopAdvances(t *testing.T) {
	t.Parallel()
	b := New[fakeFrame]()
	b.AppendPong(fakeFrame{ts: 0, idx: 0})
	b.AppendPong(fakeFrame{ts: 100, idx: 1})
	b.Swap()

	f, ok := b.Peek()
	if !ok || f.idx != 0 {
		t.Fatalf("Peek() = %+v, %v", f, ok)
	}
	// Peek must not advance.
	f2, ok := b.Peek()
	if !ok || f2.idx != 0 {
		t.Fatalf("second Peek() = %+v, %v, want same frame", f2, ok)
	}

	popped, ok := b.Pop()
	if !ok || popped.idx != 0 {
		t.Fatalf("Pop() = %+v, %v", popped, ok)
	}
	next, ok := b.Peek()
	if !ok || next.idx != 1 {
		t.Fatalf("Peek() after pop = %+v, %v, want idx 1", next, ok)
	}
}

func TestPopAtEndFails(t *testing.T) {
	t.Parallel()
	b := New[fakeFrame]()
	b.AppendPong(fakeFrame{ts: 0, idx: 0})
	b.Swap()

	if _, ok := b.Pop(); !ok {
		t.Fatal("expected first pop to succeed")
	}
	if _, ok := b.Pop(); ok {
		t.Fatal("expected pop past the end to fail")
	}
	if b.HeadValid() {
		t.Fatal("HeadValid() should be false once head==len(ping)")
	}
}

func TestSwapClearsPong(t *testing.T) {
	t.Parallel()
	b := New[fakeFrame]()
	b.AppendPong(fakeFrame{ts: 0, idx: 0})
	b.Swap()
	if b.PongLen() != 0 {
		t.Fatalf("PongLen() after swap = %d, want 0", b.PongLen())
	}
	if b.Len() != 1 {
		t.Fatalf("Len() after swap = %d, want 1", b.Len())
	}
}
