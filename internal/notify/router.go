// Package notify routes inbound channel events to the user: preference
// gating, fan-out to independent presentation sinks (toast, sound,
// OS notification), and read-state bookkeeping against the server-backed
// notification cache.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/opencampus/examdesk/internal/store"
)

// Cache is the slice of the notification cache the router needs.
type Cache interface {
	Refresh(ctx context.Context) error
	Invalidate(ctx context.Context) error
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
}

// Options tune the router.
type Options struct {
	// PollInterval is the cadence of the polling fallback that keeps
	// the cache eventually consistent when the channel is down.
	// Default 30s.
	PollInterval time.Duration

	// ToastTTL is the auto-dismiss delay for in-app toasts. Default 5s.
	ToastTTL time.Duration

	Desktop DesktopNotifier
	Sound   SoundPlayer
	Perms   Permissions
	Logger  *slog.Logger
}

// Router is the notification router. Sink deliveries are independent
// and non-blocking with respect to each other; a slow or failing sink
// never delays the rest of the fan-out.
type Router struct {
	st     *store.Store
	cache  Cache
	toasts *Toasts

	desktop DesktopNotifier
	sound   SoundPlayer
	perms   Permissions
	logger  *slog.Logger

	poll time.Duration

	mu          sync.Mutex
	settings    Settings
	permGranted bool

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup

	// deliveries tracks in-flight sink fan-outs separately from the
	// poll loop, so Wait resolves while the router keeps running.
	deliveries sync.WaitGroup
}

// NewRouter creates a router, loading persisted settings (or defaults).
func NewRouter(st *store.Store, cache Cache, opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	if opts.Desktop == nil {
		opts.Desktop = NewDesktopNotifier()
	}
	if opts.Sound == nil {
		opts.Sound = NewSoundPlayer()
	}
	if opts.Perms == nil {
		opts.Perms = NewPermissions()
	}

	r := &Router{
		st:      st,
		cache:   cache,
		toasts:  NewToasts(opts.ToastTTL),
		desktop: opts.Desktop,
		sound:   opts.Sound,
		perms:   opts.Perms,
		logger:  logger.With("component", "notify"),
		poll:    opts.PollInterval,
		done:    make(chan struct{}),
	}

	r.settings = DefaultSettings()
	ok, err := st.Get(SettingsKey, &r.settings)
	if err != nil {
		r.logger.Warn("persisted settings unreadable, using defaults", "error", err)
		r.settings = DefaultSettings()
	}
	// Desktop notifications only ever turn on through a successful
	// grant, so a persisted true doubles as the recorded permission.
	if ok {
		r.permGranted = r.settings.DesktopNotifications
	}

	return r
}

// Start launches the polling fallback.
func (r *Router) Start() {
	r.startOnce.Do(func() {
		r.wg.Add(1)
		go r.pollLoop()
	})
}

// Close stops the poll loop, waits for in-flight fan-outs and cancels
// toast timers. Idempotent.
func (r *Router) Close() {
	r.closeOnce.Do(func() { close(r.done) })
	r.wg.Wait()
	r.deliveries.Wait()
	r.toasts.Close()
}

// Toasts exposes the in-app display queue to the UI layer.
func (r *Router) Toasts() *Toasts { return r.toasts }

// Settings returns a copy of the current settings.
func (r *Router) Settings() Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

// ============================================================================
// Event handling
// ============================================================================

// Handle routes one inbound event: gated kinds are dropped silently
// when their toggle is off; accepted events fan out to every applicable
// sink plus a cache invalidation.
func (r *Router) Handle(evt Event) {
	r.mu.Lock()
	settings := r.settings
	granted := r.permGranted
	r.mu.Unlock()

	if !settings.allows(evt.Kind) {
		r.logger.Debug("event dropped by preference", "kind", evt.Kind)
		return
	}

	r.toasts.Push(evt.Title, evt.Message)

	if settings.DesktopNotifications && granted {
		r.deliver("desktop", func() error { return r.desktop.Notify(evt.Title, evt.Message) })
	}
	if settings.SoundEnabled {
		r.deliver("sound", func() error { return r.sound.Play() })
	}
	r.deliver("cache", func() error { return r.cache.Invalidate(context.Background()) })
}

// deliver runs one sink delivery on its own goroutine; failures are
// logged and go nowhere else.
func (r *Router) deliver(name string, fn func() error) {
	r.deliveries.Add(1)
	go func() {
		defer r.deliveries.Done()
		if err := fn(); err != nil {
			r.logger.Warn("sink delivery failed", "sink", name, "error", err)
		}
	}()
}

// Wait blocks until pending deliveries finish or ctx expires. Tests use
// it to assert on fan-out effects.
func (r *Router) Wait(ctx context.Context) error {
	doneCh := make(chan struct{})
	go func() {
		r.deliveries.Wait()
		close(doneCh)
	}()
	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ============================================================================
// Settings and permission
// ============================================================================

// UpdateSettings merges a partial update, persists the full record and
// returns it.
func (r *Router) UpdateSettings(update SettingsUpdate) Settings {
	r.mu.Lock()
	update.apply(&r.settings)
	settings := r.settings
	r.mu.Unlock()

	if err := r.st.Set(SettingsKey, settings); err != nil {
		r.logger.Error("failed to persist notification settings", "error", err)
	}
	return settings
}

// RequestPermission asks the platform for notification permission and
// records the outcome in the settings.
func (r *Router) RequestPermission(ctx context.Context) bool {
	granted, err := r.perms.Request(ctx)
	if err != nil {
		r.logger.Warn("notification permission probe failed", "error", err)
		granted = false
	}

	r.mu.Lock()
	r.permGranted = granted
	r.mu.Unlock()

	r.UpdateSettings(SettingsUpdate{DesktopNotifications: &granted})
	return granted
}

// ============================================================================
// Read-state bookkeeping
// ============================================================================

// MarkAsRead marks one notification read. A failure surfaces only as an
// error toast; it never propagates, and there is no optimistic state to
// roll back.
func (r *Router) MarkAsRead(ctx context.Context, id string) {
	if err := r.cache.MarkRead(ctx, id); err != nil {
		r.logger.Warn("mark as read failed", "id", id, "error", err)
		r.toasts.Push("Notification", "Could not mark notification as read")
	}
}

// MarkAllAsRead marks every notification read, with the same failure
// semantics as MarkAsRead.
func (r *Router) MarkAllAsRead(ctx context.Context) {
	if err := r.cache.MarkAllRead(ctx); err != nil {
		r.logger.Warn("mark all as read failed", "error", err)
		r.toasts.Push("Notification", "Could not mark notifications as read")
	}
}

// ============================================================================
// Polling fallback
// ============================================================================

// pollLoop refreshes the cache on a fixed cadence so the list stays
// eventually consistent even with the channel down.
func (r *Router) pollLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			if err := r.cache.Refresh(context.Background()); err != nil {
				r.logger.Warn("notification poll failed", "error", err)
			}
		}
	}
}
