package lifecycle

import (
	"sync"

	"github.com/zeusync/levelhost/internal/core/events/bus"
)

// Disposer collects cleanup funcs and releases them together, newest first.
// Anything added after Dispose is released immediately.
type Disposer struct {
	mu       sync.Mutex
	fns      []func()
	disposed bool
}

func (d *Disposer) Add(fn func()) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		fn()
		return
	}
	d.fns = append(d.fns, fn)
	d.mu.Unlock()
}

// Track cancels sub on Dispose.
func (d *Disposer) Track(sub bus.Subscription) {
	if sub == nil {
		return
	}
	d.Add(func() { _ = sub.Cancel() })
}

func (d *Disposer) Dispose() {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return
	}
	d.disposed = true
	fns := d.fns
	d.fns = nil
	d.mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

func (d *Disposer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.fns)
}
