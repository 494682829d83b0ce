package queue

import "testing"

type testEntry struct {
	node Node
	id   int
}

func TestIntrusiveListPushPopFIFO(t *testing.T) {
	var l IntrusiveList
	entries := []*testEntry{{id: 1}, {id: 2}, {id: 3}}
	for _, e := range entries {
		l.PushBack(&e.node, e)
	}
	if l.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", l.Len())
	}
	for _, want := range entries {
		n := l.PopFront()
		if n == nil {
			t.Fatalf("PopFront returned nil before list drained")
		}
		got := n.Value().(*testEntry)
		if got != want {
			t.Fatalf("PopFront order: got id %d, want id %d", got.id, want.id)
		}
	}
	if l.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after draining", l.Len())
	}
	if l.PopFront() != nil {
		t.Fatalf("PopFront on empty list should return nil")
	}
}

func TestIntrusiveListRemove(t *testing.T) {
	var l IntrusiveList
	a := &testEntry{id: 1}
	b := &testEntry{id: 2}
	c := &testEntry{id: 3}
	l.PushBack(&a.node, a)
	l.PushBack(&b.node, b)
	l.PushBack(&c.node, c)

	if !l.Remove(&b.node) {
		t.Fatalf("Remove(b) should succeed the first time")
	}
	if l.Remove(&b.node) {
		t.Fatalf("Remove(b) should fail the second time: already unlinked")
	}
	if l.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", l.Len())
	}
	if got := l.PopFront().Value().(*testEntry); got != a {
		t.Fatalf("PopFront: got id %d, want id %d", got.id, a.id)
	}
	if got := l.PopFront().Value().(*testEntry); got != c {
		t.Fatalf("PopFront: got id %d, want id %d", got.id, c.id)
	}
}

func TestIntrusiveListFind(t *testing.T) {
	var l IntrusiveList
	a := &testEntry{id: 1}
	b := &testEntry{id: 2}
	c := &testEntry{id: 3}
	l.PushBack(&a.node, a)
	l.PushBack(&b.node, b)
	l.PushBack(&c.node, c)

	n := l.Find(func(v any) bool { return v.(*testEntry).id == 2 })
	if n == nil {
		t.Fatalf("Find should locate id 2")
	}
	if n.Value().(*testEntry) != b {
		t.Fatalf("Find returned wrong node")
	}
	if n.Queued() {
		t.Fatalf("node returned by Find should be unlinked")
	}
	if l.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 after Find removed one entry", l.Len())
	}

	if l.Find(func(v any) bool { return v.(*testEntry).id == 99 }) != nil {
		t.Fatalf("Find should return nil when nothing matches")
	}
}

func TestIntrusiveListEach(t *testing.T) {
	var l IntrusiveList
	a := &testEntry{id: 1}
	b := &testEntry{id: 2}
	c := &testEntry{id: 3}
	l.PushBack(&a.node, a)
	l.PushBack(&b.node, b)
	l.PushBack(&c.node, c)

	var seen []int
	l.Each(func(v any) { seen = append(seen, v.(*testEntry).id) })

	if len(seen) != 3 || seen[0] != 1 || seen[1] != 2 || seen[2] != 3 {
		t.Fatalf("Each visited %v, want [1 2 3] in order", seen)
	}
	if l.Len() != 3 {
		t.Fatalf("Each must not mutate the list, Len() = %d, want 3", l.Len())
	}
}
