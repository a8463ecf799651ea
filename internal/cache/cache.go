// Package cache keeps a local sqlite mirror of the server-held
// notification list. The mirror is never the source of truth: every
// mutation goes to the server first and the mirror is re-derived by a
// full refresh, so there is no optimistic state to roll back.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/opencampus/examdesk/pkg/examapi"

	_ "modernc.org/sqlite"
)

// API is the slice of the platform client the cache needs.
type API interface {
	GetNotifications(ctx context.Context) ([]examapi.Notification, error)
	MarkNotificationAsRead(ctx context.Context, id string) error
	MarkAllNotificationsAsRead(ctx context.Context) error
}

// Options tune the cache.
type Options struct {
	// RefreshRate caps how often Invalidate actually refreshes; bursts
	// of invalidations from the fan-out collapse into one pull.
	// Default: one per 2 seconds with a burst of 1.
	RefreshRate rate.Limit

	Logger *slog.Logger
}

// Cache is the sqlite-backed notification mirror.
type Cache struct {
	db      *sql.DB
	api     API
	logger  *slog.Logger
	limiter *rate.Limiter

	mu       sync.Mutex
	trailing *time.Timer
}

// Open opens (or creates) the cache database at dsn and applies any
// pending migrations.
func Open(dsn string, api API, opts Options) (*Cache, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.RefreshRate == 0 {
		opts.RefreshRate = rate.Limit(0.5)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cache: open: %w", err)
	}

	c := &Cache{
		db:      db,
		api:     api,
		logger:  logger.With("component", "cache"),
		limiter: rate.NewLimiter(opts.RefreshRate, 1),
	}

	if err := c.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: migrate: %w", err)
	}

	return c, nil
}

// Close cancels any pending trailing refresh and closes the underlying
// database.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.trailing != nil {
		c.trailing.Stop()
		c.trailing = nil
	}
	c.mu.Unlock()
	return c.db.Close()
}

// Refresh replaces the mirror with the server's current list.
func (c *Cache) Refresh(ctx context.Context) error {
	list, err := c.api.GetNotifications(ctx)
	if err != nil {
		return fmt.Errorf("cache: fetch notifications: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM notifications`); err != nil {
		return fmt.Errorf("cache: clear: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO notifications (id, type, title, message, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("cache: prepare: %w", err)
	}
	defer stmt.Close()

	for _, n := range list {
		if _, err := stmt.ExecContext(ctx, n.ID, n.Type, n.Title, n.Message, boolToInt(n.IsRead), n.CreatedAt); err != nil {
			return fmt.Errorf("cache: insert %s: %w", n.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cache: commit: %w", err)
	}
	return nil
}

// Invalidate refreshes the mirror, collapsing bursts through the rate
// limiter. A rate-limited call is deferred, not dropped: the first one
// schedules a single trailing refresh and the rest of the burst folds
// into it, so items from the tail of a burst still reach the mirror.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c.limiter.Allow() {
		return c.Refresh(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.trailing != nil {
		c.logger.Debug("invalidate folded into pending refresh")
		return nil
	}

	delay := c.limiter.Reserve().Delay()
	c.trailing = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.trailing = nil
		c.mu.Unlock()
		if err := c.Refresh(context.Background()); err != nil {
			c.logger.Warn("trailing refresh failed", "error", err)
		}
	})
	return nil
}

// List returns the mirrored notifications, newest first.
func (c *Cache) List(ctx context.Context) ([]examapi.Notification, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, type, title, message, is_read, created_at
		FROM notifications
		ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("cache: list: %w", err)
	}
	defer rows.Close()

	var out []examapi.Notification
	for rows.Next() {
		var n examapi.Notification
		var isRead int
		if err := rows.Scan(&n.ID, &n.Type, &n.Title, &n.Message, &isRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("cache: scan: %w", err)
		}
		n.IsRead = isRead != 0
		out = append(out, n)
	}
	return out, rows.Err()
}

// UnreadCount returns the number of unread mirrored notifications.
func (c *Cache) UnreadCount(ctx context.Context) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE is_read = 0`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("cache: unread count: %w", err)
	}
	return count, nil
}

// MarkRead marks one notification read server-side, then re-derives the
// mirror.
func (c *Cache) MarkRead(ctx context.Context, id string) error {
	if err := c.api.MarkNotificationAsRead(ctx, id); err != nil {
		return fmt.Errorf("cache: mark read: %w", err)
	}
	return c.Refresh(ctx)
}

// MarkAllRead marks everything read server-side, then re-derives the
// mirror.
func (c *Cache) MarkAllRead(ctx context.Context) error {
	if err := c.api.MarkAllNotificationsAsRead(ctx); err != nil {
		return fmt.Errorf("cache: mark all read: %w", err)
	}
	return c.Refresh(ctx)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
