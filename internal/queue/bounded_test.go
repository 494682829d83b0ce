package queue

import (
	"sync"
	"testing"
)

func TestBoundedPushPopOrder(t *testing.T) {
	q := New(4)
	for i := 0; i < 4; i++ {
		if !q.Push(i) {
			t.Fatalf("push %d: expected success", i)
		}
	}
	if q.Push(99) {
		t.Fatalf("push into full queue should fail")
	}
	for i := 0; i < 4; i++ {
		v, ok := q.Pop()
		if !ok {
			t.Fatalf("pop %d: expected a value", i)
		}
		if v.(int) != i {
			t.Fatalf("pop %d: got %v, want %d", i, v, i)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatalf("pop from empty queue should fail")
	}
}

func TestBoundedCapRoundsUpToPowerOfTwo(t *testing.T) {
	q := New(10)
	if q.Cap() != 16 {
		t.Fatalf("Cap() = %d, want 16", q.Cap())
	}
}

func TestBoundedConcurrentProducersConsumers(t *testing.T) {
	q := New(64)
	const n = 2000

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			for !q.Push(i) {
			}
		}
	}()

	seen := make(map[int]bool)
	var mu sync.Mutex
	go func() {
		defer wg.Done()
		for count := 0; count < n; {
			v, ok := q.Pop()
			if !ok {
				continue
			}
			mu.Lock()
			seen[v.(int)] = true
			mu.Unlock()
			count++
		}
	}()

	wg.Wait()
	if len(seen) != n {
		t.Fatalf("saw %d distinct values, want %d", len(seen), n)
	}
}
