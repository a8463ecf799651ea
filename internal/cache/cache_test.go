package cache

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/opencampus/examdesk/pkg/examapi"
)

type fakeNotificationAPI struct {
	mu   sync.Mutex
	list []examapi.Notification

	getCalls     atomic.Int64
	listErr      error
	markErr      error
	markedIDs    []string
	markedAll    bool
	markAllCalls atomic.Int64
}

func (f *fakeNotificationAPI) GetNotifications(ctx context.Context) ([]examapi.Notification, error) {
	f.getCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]examapi.Notification, len(f.list))
	copy(out, f.list)
	return out, nil
}

func (f *fakeNotificationAPI) MarkNotificationAsRead(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.markedIDs = append(f.markedIDs, id)
	for i := range f.list {
		if f.list[i].ID == id {
			f.list[i].IsRead = true
		}
	}
	return nil
}

func (f *fakeNotificationAPI) MarkAllNotificationsAsRead(ctx context.Context) error {
	f.markAllCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.markedAll = true
	for i := range f.list {
		f.list[i].IsRead = true
	}
	return nil
}

func newTestCache(t *testing.T, api API, refreshRate rate.Limit) *Cache {
	t.Helper()

	c, err := Open(filepath.Join(t.TempDir(), "cache.db"), api, Options{RefreshRate: refreshRate})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sampleList() []examapi.Notification {
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	return []examapi.Notification{
		{ID: "n1", Type: "exam_reminder", Title: "Exam Reminder", Message: "Math at 10", CreatedAt: base},
		{ID: "n2", Type: "result_ready", Title: "Results Available", Message: "Physics graded", IsRead: true, CreatedAt: base.Add(time.Hour)},
		{ID: "n3", Type: "system_update", Title: "System Update", Message: "Maintenance", CreatedAt: base.Add(2 * time.Hour)},
	}
}

func TestRefreshMirrorsServerList(t *testing.T) {
	t.Parallel()

	api := &fakeNotificationAPI{list: sampleList()}
	c := newTestCache(t, api, rate.Inf)
	ctx := context.Background()

	require.NoError(t, c.Refresh(ctx))

	list, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, "n3", list[0].ID, "newest first")

	unread, err := c.UnreadCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, unread)
}

func TestRefreshReplacesStaleRows(t *testing.T) {
	t.Parallel()

	api := &fakeNotificationAPI{list: sampleList()}
	c := newTestCache(t, api, rate.Inf)
	ctx := context.Background()

	require.NoError(t, c.Refresh(ctx))

	api.mu.Lock()
	api.list = api.list[:1]
	api.mu.Unlock()

	require.NoError(t, c.Refresh(ctx))
	list, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1, "rows removed server-side disappear from the mirror")
}

func TestInvalidateCoalescesBursts(t *testing.T) {
	t.Parallel()

	api := &fakeNotificationAPI{list: sampleList()}
	c := newTestCache(t, api, rate.Limit(0.001)) // effectively one refresh
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, c.Invalidate(ctx))
	}
	require.EqualValues(t, 1, api.getCalls.Load(), "burst collapses into one immediate pull")
}

func TestInvalidateDefersTrailingRefresh(t *testing.T) {
	t.Parallel()

	api := &fakeNotificationAPI{}
	c := newTestCache(t, api, rate.Limit(20)) // one refill every 50ms
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, c.Invalidate(ctx))
	}
	require.EqualValues(t, 1, api.getCalls.Load())

	// The rate-limited tail is deferred, not dropped: one trailing
	// refresh picks up whatever the burst delivered last.
	require.Eventually(t, func() bool {
		return api.getCalls.Load() == 2
	}, 5*time.Second, 5*time.Millisecond)

	time.Sleep(150 * time.Millisecond)
	require.EqualValues(t, 2, api.getCalls.Load(), "the whole tail folds into one refresh")
}

func TestRefreshFailurePropagates(t *testing.T) {
	t.Parallel()

	api := &fakeNotificationAPI{list: sampleList()}
	c := newTestCache(t, api, rate.Inf)
	ctx := context.Background()

	require.NoError(t, c.Refresh(ctx))

	api.mu.Lock()
	api.listErr = &examapi.APIError{StatusCode: 502, Message: "upstream down"}
	api.mu.Unlock()

	require.Error(t, c.Refresh(ctx))

	// The mirror keeps its last good state.
	list, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
}

func TestMarkReadDelegatesThenRefreshes(t *testing.T) {
	t.Parallel()

	api := &fakeNotificationAPI{list: sampleList()}
	c := newTestCache(t, api, rate.Inf)
	ctx := context.Background()

	require.NoError(t, c.Refresh(ctx))
	require.NoError(t, c.MarkRead(ctx, "n1"))

	api.mu.Lock()
	require.Equal(t, []string{"n1"}, api.markedIDs)
	api.mu.Unlock()

	unread, err := c.UnreadCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, unread)
}

func TestMarkAllReadDelegatesThenRefreshes(t *testing.T) {
	t.Parallel()

	api := &fakeNotificationAPI{list: sampleList()}
	c := newTestCache(t, api, rate.Inf)
	ctx := context.Background()

	require.NoError(t, c.Refresh(ctx))
	require.NoError(t, c.MarkAllRead(ctx))

	unread, err := c.UnreadCount(ctx)
	require.NoError(t, err)
	require.Zero(t, unread)
}

func TestMarkReadFailurePropagatesAndLeavesMirror(t *testing.T) {
	t.Parallel()

	api := &fakeNotificationAPI{list: sampleList()}
	c := newTestCache(t, api, rate.Inf)
	ctx := context.Background()

	require.NoError(t, c.Refresh(ctx))

	api.mu.Lock()
	api.markErr = &examapi.APIError{StatusCode: 500, Message: "boom"}
	api.mu.Unlock()

	require.Error(t, c.MarkRead(ctx, "n1"))

	// No optimistic local mutation to roll back.
	unread, err := c.UnreadCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, unread)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	t.Parallel()

	dsn := filepath.Join(t.TempDir(), "cache.db")
	api := &fakeNotificationAPI{}

	c1, err := Open(dsn, api, Options{})
	require.NoError(t, err)
	require.NoError(t, c1.Close())

	c2, err := Open(dsn, api, Options{})
	require.NoError(t, err)
	require.NoError(t, c2.Close())
}
