// Package priority arbitrates between commands submitted at different
// priorities. The entry with the numerically lowest priority is active.
package priority

import (
	"context"
	"slices"
	"sync"
)

// List is a concurrent ordered map from priority to Command. Writers never
// block on it; a single consumer learns about changes of the active entry
// through WaitForChange.
type List struct {
	mu       sync.Mutex
	cond     *sync.Cond
	commands map[int]Command
	keys     []int // ascending
}

func NewList() *List {
	l := &List{
		commands: make(map[int]Command),
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Put stores command at priority, overwriting any previous command there.
// Waiters are woken only when the active entry changes. Entries are compared
// by value, so command must not be nil nor a Color with a NaN component.
func (l *List) Put(priority int, command Command) {
	if command == nil {
		panic("priority: nil command")
	}
	if c, ok := command.(Color); ok && c.hasNaN() {
		panic("priority: NaN color component")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	before := l.firstLocked()
	if _, found := l.commands[priority]; !found {
		i, _ := slices.BinarySearch(l.keys, priority)
		l.keys = slices.Insert(l.keys, i, priority)
	}
	l.commands[priority] = command
	l.notifyIfChanged(before)
}

// Remove deletes the command at priority. It is a no-op when there is none.
func (l *List) Remove(priority int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, found := l.commands[priority]; !found {
		return
	}
	before := l.firstLocked()
	delete(l.commands, priority)
	if i, found := slices.BinarySearch(l.keys, priority); found {
		l.keys = slices.Delete(l.keys, i, i+1)
	}
	l.notifyIfChanged(before)
}

// Clear removes every command and wakes all waiters.
func (l *List) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	clear(l.commands)
	l.keys = l.keys[:0]
	l.cond.Broadcast()
}

// RequestShutdown stores a Shutdown command at priority 0.
func (l *List) RequestShutdown() {
	l.Put(0, Shutdown{})
}

// Priorities returns the stored priorities in ascending order.
func (l *List) Priorities() []int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return slices.Clone(l.keys)
}

// Len is the number of stored commands, active or not.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.keys)
}

// First returns the active entry, or None when the list is empty.
func (l *List) First() Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.firstLocked()
}

// WaitForChange blocks until the active entry differs from last, the entry
// the caller observed most recently, and returns the new active entry.
// Changes that do not affect the active entry never release the caller, and
// several changes may be coalesced into one return.
func (l *List) WaitForChange(ctx context.Context, last Entry) (Entry, error) {
	stop := context.AfterFunc(ctx, func() {
		l.mu.Lock()
		l.cond.Broadcast()
		l.mu.Unlock()
	})
	defer stop()

	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		if current := l.firstLocked(); current != last {
			return current, nil
		}
		if err := ctx.Err(); err != nil {
			return last, err
		}
		l.cond.Wait()
	}
}

func (l *List) firstLocked() Entry {
	if len(l.keys) == 0 {
		return None
	}
	p := l.keys[0]
	return Entry{Priority: p, Command: l.commands[p]}
}

func (l *List) notifyIfChanged(before Entry) {
	if l.firstLocked() != before {
		l.cond.Broadcast()
	}
}
