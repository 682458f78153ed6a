package statemachine

import (
	"sync"
	"sync/atomic"
)

// Cell holds a board's view of the pod state. There is a single writer (the
// authority or the shadow task) and any number of readers.
type Cell struct {
	state atomic.Uint32

	mu       sync.Mutex
	watchers []chan State
}

func NewCell() *Cell {
	return &Cell{}
}

func (c *Cell) Load() State {
	return State(c.state.Load())
}

// Store sets the state and notifies watchers. Watchers that are behind lose
// the oldest pending value; they always see the latest one.
func (c *Cell) Store(s State) {
	c.state.Store(uint32(s))
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.watchers {
		select {
		case ch <- s:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

// Watch returns a channel of state changes with room for size pending values.
func (c *Cell) Watch(size int) <-chan State {
	if size < 1 {
		size = 1
	}
	ch := make(chan State, size)
	c.mu.Lock()
	c.watchers = append(c.watchers, ch)
	c.mu.Unlock()
	return ch
}
