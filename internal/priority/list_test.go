package priority

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gray(v float64) Color {
	return Color{Red: v, Green: v, Blue: v}
}

func newFilledList() *List {
	l := NewList()
	l.Put(1, gray(1))
	l.Put(128, gray(128))
	l.Put(255, gray(255))
	return l
}

// waitAsync runs WaitForChange in a goroutine and reports its result.
func waitAsync(ctx context.Context, l *List, last Entry) <-chan Entry {
	result := make(chan Entry, 1)
	go func() {
		e, err := l.WaitForChange(ctx, last)
		if err == nil {
			result <- e
		}
	}()
	return result
}

func TestEmptyListFirstIsNone(t *testing.T) {
	l := NewList()

	assert.True(t, l.First().IsNone())
	assert.Equal(t, None, l.First())
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Priorities())
}

func TestPutSingleValue(t *testing.T) {
	l := NewList()
	l.Put(1, gray(1))

	assert.Equal(t, Entry{Priority: 1, Command: gray(1)}, l.First())
}

func TestFirstIsLowestPriority(t *testing.T) {
	l := newFilledList()

	assert.Equal(t, 3, l.Len())
	assert.Equal(t, Entry{Priority: 1, Command: gray(1)}, l.First())

	l.Put(0, Effect{Name: "Rainbow"})
	assert.Equal(t, Entry{Priority: 0, Command: Effect{Name: "Rainbow"}}, l.First())
}

func TestPutOverwrites(t *testing.T) {
	l := NewList()
	l.Put(5, gray(1))
	l.Put(5, gray(11))

	assert.Equal(t, 1, l.Len())
	assert.Equal(t, []int{5}, l.Priorities())
	assert.Equal(t, Entry{Priority: 5, Command: gray(11)}, l.First())
}

func TestRemoveFirstAdvances(t *testing.T) {
	l := NewList()
	l.Put(1, gray(1))
	l.Put(128, gray(128))

	l.Remove(1)
	assert.Equal(t, Entry{Priority: 128, Command: gray(128)}, l.First())

	l.Remove(128)
	assert.True(t, l.First().IsNone())

	// no-op
	l.Remove(42)
	assert.Equal(t, 0, l.Len())
}

func TestClear(t *testing.T) {
	l := newFilledList()
	l.Clear()

	assert.Equal(t, 0, l.Len())
	assert.True(t, l.First().IsNone())
}

func TestPrioritiesAscending(t *testing.T) {
	l := NewList()
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		l.Put(r.Intn(1000), gray(float64(i%256)))
	}

	ps := l.Priorities()
	assert.IsIncreasing(t, ps)
	assert.Equal(t, l.Len(), len(ps))
}

func TestFirstMatchesMinimumUnderRandomMutations(t *testing.T) {
	l := NewList()
	model := map[int]Command{}
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 1000; i++ {
		p := r.Intn(50)
		if r.Intn(3) == 0 {
			l.Remove(p)
			delete(model, p)
		} else {
			c := gray(float64(r.Intn(256)))
			l.Put(p, c)
			model[p] = c
		}

		want := None
		for mp, mc := range model {
			if want.IsNone() || mp < want.Priority {
				want = Entry{Priority: mp, Command: mc}
			}
		}
		require.Equal(t, want, l.First(), "iteration %d", i)
	}
}

func TestRequestShutdown(t *testing.T) {
	l := newFilledList()
	l.RequestShutdown()

	assert.Equal(t, Entry{Priority: 0, Command: Shutdown{}}, l.First())
}

func TestWaitForChangeOnEmptyList(t *testing.T) {
	l := NewList()
	result := waitAsync(context.Background(), l, l.First())

	time.Sleep(50 * time.Millisecond)
	l.Put(128, gray(128))

	select {
	case e := <-result:
		assert.Equal(t, Entry{Priority: 128, Command: gray(128)}, e)
	case <-time.After(time.Second):
		t.Fatal("waiter was not released by the first put")
	}
}

func TestWaitForChangeLowerPriorityReleases(t *testing.T) {
	l := NewList()
	l.Put(128, gray(128))
	result := waitAsync(context.Background(), l, l.First())

	time.Sleep(50 * time.Millisecond)
	l.Put(1, gray(1))

	select {
	case e := <-result:
		assert.Equal(t, Entry{Priority: 1, Command: gray(1)}, e)
	case <-time.After(time.Second):
		t.Fatal("waiter was not released by a lower priority put")
	}
}

func TestWaitForChangeHigherPriorityKeepsBlocking(t *testing.T) {
	l := NewList()
	l.Put(128, gray(128))
	result := waitAsync(context.Background(), l, l.First())

	l.Put(255, gray(255))
	select {
	case e := <-result:
		t.Fatalf("waiter released by a higher priority put: %v", e)
	case <-time.After(time.Second):
	}

	l.Put(1, gray(1))
	select {
	case e := <-result:
		assert.Equal(t, Entry{Priority: 1, Command: gray(1)}, e)
	case <-time.After(time.Second):
		t.Fatal("waiter was not released by a lower priority put")
	}
}

func TestWaitForChangeOnActiveUpdate(t *testing.T) {
	l := NewList()
	l.Put(1, gray(1))
	result := waitAsync(context.Background(), l, l.First())

	l.Put(1, gray(11))

	select {
	case e := <-result:
		assert.Equal(t, Entry{Priority: 1, Command: gray(11)}, e)
	case <-time.After(time.Second):
		t.Fatal("waiter was not released by an update of the active entry")
	}
}

func TestWaitForChangeOnRemove(t *testing.T) {
	l := newFilledList()
	result := waitAsync(context.Background(), l, l.First())

	l.Remove(255)
	select {
	case e := <-result:
		t.Fatalf("waiter released by removal of an inactive entry: %v", e)
	case <-time.After(200 * time.Millisecond):
	}

	l.Remove(1)
	select {
	case e := <-result:
		assert.Equal(t, Entry{Priority: 128, Command: gray(128)}, e)
	case <-time.After(time.Second):
		t.Fatal("waiter was not released by removal of the active entry")
	}
}

func TestWaitForChangeOnClear(t *testing.T) {
	l := newFilledList()
	result := waitAsync(context.Background(), l, l.First())

	l.Clear()

	select {
	case e := <-result:
		assert.True(t, e.IsNone())
	case <-time.After(time.Second):
		t.Fatal("waiter was not released by clear")
	}
}

func TestWaitForChangeReturnsImmediatelyWhenStale(t *testing.T) {
	l := NewList()
	last := l.First()
	l.Put(3, gray(3))
	l.Put(2, gray(2))

	e, err := l.WaitForChange(context.Background(), last)
	require.NoError(t, err)
	assert.Equal(t, Entry{Priority: 2, Command: gray(2)}, e)
}

func TestWaitForChangeCoalescesChangesThatCancelOut(t *testing.T) {
	l := NewList()
	l.Put(128, gray(128))
	last := l.First()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	result := waitAsync(ctx, l, last)

	// Put then remove a lower priority before the waiter can observe it. If
	// the waiter runs in between it returns 1, otherwise it stays blocked;
	// either way it must never report the unchanged 128 entry.
	l.Put(1, gray(1))
	l.Remove(1)

	select {
	case e := <-result:
		assert.Equal(t, Entry{Priority: 1, Command: gray(1)}, e)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWaitForChangeContextCancel(t *testing.T) {
	l := NewList()
	l.Put(128, gray(128))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := l.WaitForChange(ctx, l.First())
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("waiter ignored context cancellation")
	}
}

func TestConcurrentWriters(t *testing.T) {
	l := NewList()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				p := w*1000 + i
				l.Put(p, gray(float64(i%256)))
				if i%2 == 0 {
					l.Remove(p)
				}
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 8*250, l.Len())
	assert.IsIncreasing(t, l.Priorities())
	assert.Equal(t, 1, l.First().Priority)
}

func TestPutRejectsNaNColor(t *testing.T) {
	l := NewList()
	l.Put(2, Color{Red: 1})

	assert.Panics(t, func() { l.Put(1, Color{Red: math.NaN()}) })
	assert.Panics(t, func() { l.Put(1, Color{Blue: math.NaN()}) })
	assert.Equal(t, []int{2}, l.Priorities())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := l.WaitForChange(ctx, l.First())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
