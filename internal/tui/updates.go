package tui

import (
	"sync"

	"github.com/jroimartin/gocui"
)

// updateQueue applies view mutations on the gocui loop in the order they were
// pushed. gocui.Update hands each function to its own goroutine, so separate
// Update calls may run in any order; the queue keeps at most one drain
// scheduled and the drain runs everything pending in sequence.
type updateQueue struct {
	schedule func(func(*gocui.Gui) error)

	mu        sync.Mutex
	pending   []func(*gocui.Gui) error
	scheduled bool
}

func newUpdateQueue(schedule func(func(*gocui.Gui) error)) *updateQueue {
	return &updateQueue{schedule: schedule}
}

func (q *updateQueue) push(fn func(*gocui.Gui) error) {
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	if q.scheduled {
		q.mu.Unlock()
		return
	}
	q.scheduled = true
	q.mu.Unlock()

	q.schedule(q.drain)
}

func (q *updateQueue) drain(g *gocui.Gui) error {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.scheduled = false
	q.mu.Unlock()

	for _, fn := range batch {
		if err := fn(g); err != nil {
			return err
		}
	}
	return nil
}
