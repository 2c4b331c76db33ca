package led

import "sync"

// Button turns press edges into palette steps. The edge handler runs on
// its own goroutine; the latest color is delivered through a one-slot
// channel so a slow reader only ever sees the newest selection.
type Button struct {
	cycle *Cycle
	ch    chan Color

	closeOnce sync.Once
	release   func() error
}

func newButton(c *Cycle) *Button {
	return &Button{cycle: c, ch: make(chan Color, 1)}
}

// NewSimulated returns a button with no hardware; Press injects edges.
func NewSimulated(c *Cycle) *Button { return newButton(c) }

// Events delivers the color selected by the most recent press.
func (b *Button) Events() <-chan Color { return b.ch }

// Press handles one press edge.
func (b *Button) Press() {
	b.post(b.cycle.Press())
}

func (b *Button) post(c Color) {
	for {
		select {
		case b.ch <- c:
			return
		default:
		}
		// Drop the stale selection.
		select {
		case <-b.ch:
		default:
		}
	}
}

func (b *Button) Close() error {
	var err error
	b.closeOnce.Do(func() {
		if b.release != nil {
			err = b.release()
		}
	})
	return err
}
