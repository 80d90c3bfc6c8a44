package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPoolProcessesEachItemOnce(t *testing.T) {
	q := NewQueue[int]()
	seen := make(map[int]int)

	p := New("count", q, 4, func(_ context.Context, item int, lock *sync.Mutex) error {
		lock.Lock()
		seen[item]++
		lock.Unlock()
		return nil
	})
	p.Start(context.Background())

	const n = 500
	for i := 0; i < n; i++ {
		q.Put(i)
	}
	p.Finish()

	if len(seen) != n {
		t.Fatalf("processed %d distinct items, want %d", len(seen), n)
	}
	for item, count := range seen {
		if count != 1 {
			t.Errorf("item %d processed %d times", item, count)
		}
	}
	if got := p.Stats().Processed; got != n {
		t.Errorf("Stats().Processed = %d, want %d", got, n)
	}
}

func TestPoolFinishWaitsForRecursiveWork(t *testing.T) {
	q := NewLIFOQueue[int]()
	var mu sync.Mutex
	total := 0

	// Each item below 64 enqueues two children, like a tree walk.
	p := New("tree", q, 3, func(_ context.Context, item int, lock *sync.Mutex) error {
		mu.Lock()
		total++
		mu.Unlock()
		if item < 64 {
			q.Put(item * 2)
			q.Put(item*2 + 1)
		}
		return nil
	})
	q.Put(1)
	p.Start(context.Background())
	p.Finish()

	if total != 127 {
		t.Errorf("visited %d nodes, want 127", total)
	}
	if q.Len() != 0 {
		t.Errorf("queue still holds %d items", q.Len())
	}
}

func TestLIFOOrder(t *testing.T) {
	q := NewLIFOQueue[string]()
	for _, s := range []string{"a", "b", "c"} {
		q.Put(s)
	}
	var order []string
	p := New("lifo", q, 1, func(_ context.Context, item string, _ *sync.Mutex) error {
		order = append(order, item)
		return nil
	})
	p.Start(context.Background())
	p.Finish()

	want := []string{"c", "b", "a"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order = %v, want %v", order, want)
			break
		}
	}
}

func TestPoolCountsFailuresAndPanics(t *testing.T) {
	q := NewQueue[int]()
	p := New("flaky", q, 2, func(_ context.Context, item int, _ *sync.Mutex) error {
		switch item {
		case 1:
			return errors.New("boom")
		case 2:
			panic("worse")
		}
		return nil
	})
	p.Start(context.Background())
	for i := 0; i < 4; i++ {
		q.Put(i)
	}
	p.Finish()

	stats := p.Stats()
	if stats.Failed != 2 || stats.Processed != 2 {
		t.Errorf("Stats() = %+v, want 2 failed and 2 processed", stats)
	}
}

func TestPoolDrainsAfterCancel(t *testing.T) {
	q := NewQueue[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := 0
	p := New("cancelled", q, 2, func(context.Context, int, *sync.Mutex) error {
		ran++
		return nil
	})
	for i := 0; i < 10; i++ {
		q.Put(i)
	}
	p.Start(ctx)

	done := make(chan struct{})
	go func() {
		p.Finish()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Finish did not return after cancellation")
	}
	if ran != 0 {
		t.Errorf("action ran %d times after cancellation", ran)
	}
	if got := p.Stats().Skipped; got != 10 {
		t.Errorf("Stats().Skipped = %d, want 10", got)
	}
}

func TestPoolSurvivesIdleTimeout(t *testing.T) {
	q := NewQueue[int]()
	var mu sync.Mutex
	got := 0
	p := New("idle", q, 1, func(context.Context, int, *sync.Mutex) error {
		mu.Lock()
		got++
		mu.Unlock()
		return nil
	}, WithDequeueTimeout(5*time.Millisecond))
	p.Start(context.Background())

	time.Sleep(30 * time.Millisecond)
	q.Put(7)
	p.Finish()

	if got != 1 {
		t.Errorf("processed %d items after idle period, want 1", got)
	}
}

func TestQueueDrain(t *testing.T) {
	q := NewQueue[int]()
	q.Put(1)
	q.Put(2)
	items := q.Drain()
	if len(items) != 2 || items[0] != 1 || items[1] != 2 {
		t.Errorf("Drain() = %v, want [1 2]", items)
	}

	done := make(chan struct{})
	go func() {
		q.Join()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Join blocked after Drain")
	}
}
