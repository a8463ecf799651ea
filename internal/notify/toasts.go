package notify

import (
	"sync"
	"time"

	"github.com/opencampus/examdesk/pkg/idx"
)

// Toast is one transient in-app message.
type Toast struct {
	ID        idx.ID
	Title     string
	Message   string
	CreatedAt time.Time
}

// Toasts is the in-app transient display queue. Entries auto-dismiss
// after the configured TTL; the UI reads Active and may dismiss early.
type Toasts struct {
	ttl time.Duration

	mu     sync.Mutex
	active []Toast
	timers map[idx.ID]*time.Timer
	closed bool
}

// NewToasts creates a queue whose entries expire after ttl.
func NewToasts(ttl time.Duration) *Toasts {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Toasts{
		ttl:    ttl,
		timers: make(map[idx.ID]*time.Timer),
	}
}

// Push enqueues a toast and schedules its auto-dismiss.
func (t *Toasts) Push(title, message string) Toast {
	toast := Toast{
		ID:        idx.New(),
		Title:     title,
		Message:   message,
		CreatedAt: time.Now(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return toast
	}
	t.active = append(t.active, toast)
	t.timers[toast.ID] = time.AfterFunc(t.ttl, func() { t.Dismiss(toast.ID) })
	return toast
}

// Dismiss removes a toast before its TTL. Dismissing an unknown id is a
// no-op.
func (t *Toasts) Dismiss(id idx.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.timers[id]; ok {
		timer.Stop()
		delete(t.timers, id)
	}
	for i, toast := range t.active {
		if toast.ID == id {
			t.active = append(t.active[:i], t.active[i+1:]...)
			return
		}
	}
}

// Active returns the currently visible toasts in arrival order.
func (t *Toasts) Active() []Toast {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Toast, len(t.active))
	copy(out, t.active)
	return out
}

// Close cancels all pending dismiss timers. Idempotent.
func (t *Toasts) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
	t.active = nil
}
