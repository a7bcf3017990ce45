/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package resultcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/bigschom/ss-portal/requestqueue"
)

type testRemoteError struct {
	status  int
	message string
}

func (e *testRemoteError) Error() string {
	return fmt.Sprintf("remote error: status %d: %s", e.status, e.message)
}

func (e *testRemoteError) RemoteErrorMessage() string {
	return e.message
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(t *testing.T, opts Opts) *Cache[string] {
	t.Helper()
	queue, err := requestqueue.New[string](requestqueue.Opts{DrainDelay: requestqueue.NoDrainDelay})
	require.NoError(t, err)
	c, err := New[string](queue, opts)
	require.NoError(t, err)
	return c
}

func countingOp(calls *atomic.Int32, value string, err error) requestqueue.Operation[string] {
	return func(ctx context.Context) (string, error) {
		calls.Inc()
		return value, err
	}
}

func TestNew(t *testing.T) {
	c, err := New[string](nil, Opts{})
	require.NoError(t, err)
	require.Equal(t, DefaultTTL, c.ttl)
	require.Equal(t, DefaultErrorWindow, c.errorWindow)
	require.Equal(t, DefaultMaxEntries, c.entries.MaxEntries())
	require.NotNil(t, c.Queue())

	_, err = New[string](nil, Opts{TTL: -time.Second})
	require.EqualError(t, err, "TTL must be >= 0, got -1s")
	_, err = New[string](nil, Opts{ErrorWindow: -time.Second})
	require.EqualError(t, err, "error window must be >= 0, got -1s")
	_, err = New[string](nil, Opts{MaxEntries: -1})
	require.EqualError(t, err, "max entries must be >= 0, got -1")
}

func TestCache_Hit(t *testing.T) {
	c := newTestCache(t, Opts{})
	calls := atomic.NewInt32(0)

	for i := 0; i < 3; i++ {
		v, err := c.Get(context.Background(), "users", countingOp(calls, "[alice bob]", nil))
		require.NoError(t, err)
		require.Equal(t, "[alice bob]", v)
	}
	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, 1, c.Len())
}

func TestCache_Expiry(t *testing.T) {
	c := newTestCache(t, Opts{TTL: 100 * time.Millisecond})
	calls := atomic.NewInt32(0)

	_, err := c.Get(context.Background(), "service_requests/42", countingOp(calls, "v1", nil))
	require.NoError(t, err)

	v, err := c.Get(context.Background(), "service_requests/42", countingOp(calls, "v2", nil))
	require.NoError(t, err)
	require.Equal(t, "v1", v)
	require.Equal(t, int32(1), calls.Load())

	time.Sleep(150 * time.Millisecond)

	v, err = c.Get(context.Background(), "service_requests/42", countingOp(calls, "v2", nil))
	require.NoError(t, err)
	require.Equal(t, "v2", v)
	require.Equal(t, int32(2), calls.Load())
}

func TestCache_ExpiryBoundary(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, Opts{TTL: time.Minute})
	c.now = clock.Now
	calls := atomic.NewInt32(0)

	_, err := c.Get(context.Background(), "users", countingOp(calls, "v1", nil))
	require.NoError(t, err)

	clock.Advance(time.Minute - time.Nanosecond)
	v, err := c.Get(context.Background(), "users", countingOp(calls, "v2", nil))
	require.NoError(t, err)
	require.Equal(t, "v1", v)

	// An entry whose age has reached the TTL is stale.
	clock.Advance(time.Nanosecond)
	v, err = c.Get(context.Background(), "users", countingOp(calls, "v2", nil))
	require.NoError(t, err)
	require.Equal(t, "v2", v)
	require.Equal(t, int32(2), calls.Load())
}

func TestCache_GetWithTTL(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, Opts{TTL: time.Minute})
	c.now = clock.Now
	calls := atomic.NewInt32(0)

	_, err := c.GetWithTTL(context.Background(), "audit_logs?limit=10", countingOp(calls, "v1", nil), 10*time.Second)
	require.NoError(t, err)
	info, ok := c.Lookup("audit_logs?limit=10")
	require.True(t, ok)
	require.Equal(t, 10*time.Second, info.TTL)
	require.Equal(t, clock.Now().Add(10*time.Second), info.ExpiresAt)

	clock.Advance(10 * time.Second)
	_, err = c.GetWithTTL(context.Background(), "audit_logs?limit=10", countingOp(calls, "v2", nil), 10*time.Second)
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())

	// Non-positive TTL means the default one.
	_, err = c.GetWithTTL(context.Background(), "users", countingOp(calls, "v", nil), 0)
	require.NoError(t, err)
	info, ok = c.Lookup("users")
	require.True(t, ok)
	require.Equal(t, time.Minute, info.TTL)
}

func TestCache_RemoteErrorIsCachedForErrorWindow(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, Opts{TTL: time.Minute, ErrorWindow: 5 * time.Second})
	c.now = clock.Now
	calls := atomic.NewInt32(0)
	remoteErr := &testRemoteError{status: 500, message: "database is unavailable"}

	_, err := c.Get(context.Background(), "service_requests/7", countingOp(calls, "", remoteErr))
	require.ErrorIs(t, err, remoteErr)
	var cachedErr *CachedError
	require.False(t, errors.As(err, &cachedErr), "the first failure is returned as is")

	clock.Advance(4 * time.Second)
	_, err = c.Get(context.Background(), "service_requests/7", countingOp(calls, "ok", nil))
	require.True(t, errors.As(err, &cachedErr))
	require.Equal(t, "service_requests/7", cachedErr.Key)
	require.Equal(t, "database is unavailable", cachedErr.Message)
	require.Equal(t, clock.Now().Add(-4*time.Second), cachedErr.StoredAt)
	require.Equal(t, cachedErr.StoredAt.Add(5*time.Second), cachedErr.ExpiresAt)
	require.ErrorIs(t, err, remoteErr)
	require.EqualError(t, err, `cached failure for "service_requests/7": database is unavailable`)
	require.Equal(t, int32(1), calls.Load())

	clock.Advance(time.Second)
	v, err := c.Get(context.Background(), "service_requests/7", countingOp(calls, "ok", nil))
	require.NoError(t, err)
	require.Equal(t, "ok", v)
	require.Equal(t, int32(2), calls.Load())
}

func TestCache_ErrorTTLIsClamped(t *testing.T) {
	tests := []struct {
		name        string
		errorWindow time.Duration
		ttl         time.Duration
		wantTTL     time.Duration
	}{
		{name: "window shorter than TTL", errorWindow: 5 * time.Second, ttl: time.Minute, wantTTL: 5 * time.Second},
		{name: "window longer than TTL", errorWindow: 5 * time.Second, ttl: 2 * time.Second, wantTTL: 2 * time.Second},
		{name: "tiny TTL", errorWindow: 5 * time.Second, ttl: time.Microsecond, wantTTL: MinErrorTTL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCache(t, Opts{ErrorWindow: tt.errorWindow})
			_, err := c.GetWithTTL(context.Background(), "users/1", countingOp(atomic.NewInt32(0), "", &testRemoteError{500, "boom"}), tt.ttl)
			require.Error(t, err)
			info, ok := c.Lookup("users/1")
			require.True(t, ok)
			require.NotNil(t, info.Err)
			require.Equal(t, tt.wantTTL, info.TTL)
		})
	}
}

func TestCache_UnstructuredErrorIsNotCached(t *testing.T) {
	c := newTestCache(t, Opts{})
	calls := atomic.NewInt32(0)
	connErr := errors.New("dial tcp 127.0.0.1:443: connect: connection refused")

	for i := 0; i < 2; i++ {
		_, err := c.Get(context.Background(), "users", countingOp(calls, "", connErr))
		require.ErrorIs(t, err, connErr)
	}
	require.Equal(t, int32(2), calls.Load())
	require.Equal(t, 0, c.Len())
}

func TestCache_WrappedRemoteErrorIsCached(t *testing.T) {
	c := newTestCache(t, Opts{})
	calls := atomic.NewInt32(0)
	err := fmt.Errorf("get user: %w", &testRemoteError{404, "user not found"})

	_, gotErr := c.Get(context.Background(), "users/404", countingOp(calls, "", err))
	require.ErrorIs(t, gotErr, err)
	_, gotErr = c.Get(context.Background(), "users/404", countingOp(calls, "", err))
	var remoteErr *testRemoteError
	require.True(t, errors.As(gotErr, &remoteErr))
	require.Equal(t, 404, remoteErr.status)
	require.Equal(t, int32(1), calls.Load())
}

func TestCache_ConcurrentMissesAreMerged(t *testing.T) {
	c := newTestCache(t, Opts{})
	calls := atomic.NewInt32(0)
	release := make(chan struct{})
	op := func(ctx context.Context) (string, error) {
		calls.Inc()
		<-release
		return "value", nil
	}

	const callers = 10
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Get(context.Background(), "service_requests?limit=50", op)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 5*time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		require.Equal(t, "value", v)
	}
}

func TestCache_EmptyKey(t *testing.T) {
	c := newTestCache(t, Opts{})
	_, err := c.Get(context.Background(), "", countingOp(atomic.NewInt32(0), "", nil))
	require.ErrorIs(t, err, requestqueue.ErrEmptyKey)
}

func TestCache_Invalidate(t *testing.T) {
	c := newTestCache(t, Opts{})
	calls := atomic.NewInt32(0)
	ctx := context.Background()

	for _, key := range []string{"service_requests/1", "service_requests?limit=10", "service_requests?limit=20", "users"} {
		_, err := c.Get(ctx, key, countingOp(calls, key, nil))
		require.NoError(t, err)
	}
	require.Equal(t, 4, c.Len())

	require.True(t, c.Invalidate("service_requests/1"))
	require.False(t, c.Invalidate("service_requests/1"))
	require.Equal(t, 3, c.Len())

	require.Equal(t, 2, c.InvalidatePrefix("service_requests?"))
	require.Equal(t, []string{"users"}, c.Keys(""))

	_, err := c.Get(ctx, "service_requests?limit=10", countingOp(calls, "fresh", nil))
	require.NoError(t, err)
	require.Equal(t, int32(5), calls.Load())

	c.Clear()
	require.Equal(t, 0, c.Len())
	_, ok := c.Lookup("users")
	require.False(t, ok)
}

func TestCache_LRUEviction(t *testing.T) {
	c := newTestCache(t, Opts{MaxEntries: 2})
	calls := atomic.NewInt32(0)
	ctx := context.Background()

	for _, key := range []string{"a", "b"} {
		_, err := c.Get(ctx, key, countingOp(calls, key, nil))
		require.NoError(t, err)
	}
	// "a" becomes the most recently used one.
	_, err := c.Get(ctx, "a", countingOp(calls, "a", nil))
	require.NoError(t, err)
	_, err = c.Get(ctx, "c", countingOp(calls, "c", nil))
	require.NoError(t, err)

	require.Equal(t, 2, c.Len())
	_, ok := c.Lookup("b")
	require.False(t, ok)
	require.ElementsMatch(t, []string{"a", "c"}, c.Keys(""))
}

func TestCache_Lookup(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, Opts{TTL: time.Minute})
	c.now = clock.Now

	_, ok := c.Lookup("users")
	require.False(t, ok)

	_, err := c.Get(context.Background(), "users", countingOp(atomic.NewInt32(0), "v", nil))
	require.NoError(t, err)
	info, ok := c.Lookup("users")
	require.True(t, ok)
	require.Equal(t, "v", info.Value)
	require.True(t, info.Fresh)
	require.Nil(t, info.Err)

	clock.Advance(2 * time.Minute)
	info, ok = c.Lookup("users")
	require.True(t, ok, "lookup does not remove stale entries")
	require.False(t, info.Fresh)
	require.Equal(t, 1, c.Len())
}

func TestCache_Stats(t *testing.T) {
	c := newTestCache(t, Opts{})
	ctx := context.Background()
	for _, key := range []string{"users", "users", "users/1", "users"} {
		_, err := c.Get(ctx, key, countingOp(atomic.NewInt32(0), "v", nil))
		require.NoError(t, err)
	}
	require.Equal(t, Stats{
		Entries: 2,
		Hits:    2,
		Misses:  2,
		Queue:   requestqueue.Stats{MaxConcurrent: requestqueue.DefaultMaxConcurrent},
	}, c.Stats())

	// Lookup and Keys are not reads.
	_, _ = c.Lookup("users")
	_ = c.Keys("")
	require.Equal(t, int64(2), c.Stats().Hits)
}

func TestCache_KeysListsFreshEntriesSorted(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, Opts{TTL: time.Minute})
	c.now = clock.Now
	ctx := context.Background()

	for _, key := range []string{"users/2", "service_requests/9", "users/1"} {
		_, err := c.Get(ctx, key, countingOp(atomic.NewInt32(0), key, nil))
		require.NoError(t, err)
	}
	_, err := c.GetWithTTL(ctx, "users?active=true", countingOp(atomic.NewInt32(0), "v", nil), time.Second)
	require.NoError(t, err)
	require.Equal(t, []string{"users/1", "users/2", "users?active=true"}, c.Keys("users"))

	clock.Advance(time.Second)
	require.Equal(t, []string{"service_requests/9", "users/1", "users/2"}, c.Keys(""))
	require.Equal(t, 4, c.Len(), "stale entry is kept until it is read")
	require.Equal(t, []string{}, c.Keys("audit_logs"))
}

func TestCache_AbandonedOperationFillsCache(t *testing.T) {
	c := newTestCache(t, Opts{})
	calls := atomic.NewInt32(0)
	started := make(chan struct{})
	release := make(chan struct{})
	op := func(ctx context.Context) (string, error) {
		calls.Inc()
		close(started)
		<-release
		return "warm", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, "service_requests/42", op)
		errs <- err
	}()
	<-started
	cancel()
	require.ErrorIs(t, <-errs, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		_, ok := c.Lookup("service_requests/42")
		return ok
	}, 5*time.Second, time.Millisecond)

	v, err := c.Get(context.Background(), "service_requests/42", countingOp(calls, "cold", nil))
	require.NoError(t, err)
	require.Equal(t, "warm", v)
	require.Equal(t, int32(1), calls.Load())
}

func TestCache_AbandonedRemoteErrorIsCached(t *testing.T) {
	c := newTestCache(t, Opts{})
	calls := atomic.NewInt32(0)
	release := make(chan struct{})
	remoteErr := &testRemoteError{status: 502, message: "backend is down"}
	op := func(ctx context.Context) (string, error) {
		calls.Inc()
		<-release
		return "", remoteErr
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.Get(ctx, "users", op)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.Eventually(t, func() bool {
		info, ok := c.Lookup("users")
		return ok && info.Err != nil
	}, 5*time.Second, time.Millisecond)
	_, err = c.Get(context.Background(), "users", countingOp(calls, "ok", nil))
	var cachedErr *CachedError
	require.True(t, errors.As(err, &cachedErr))
	require.Equal(t, int32(1), calls.Load())
}

func TestCache_InvalidatedOperationIsNotStored(t *testing.T) {
	tests := []struct {
		name       string
		invalidate func(c *Cache[string])
	}{
		{name: "key", invalidate: func(c *Cache[string]) { c.Invalidate("service_requests/5") }},
		{name: "prefix", invalidate: func(c *Cache[string]) { c.InvalidatePrefix("service_requests/") }},
		{name: "clear", invalidate: func(c *Cache[string]) { c.Clear() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCache(t, Opts{})
			started := make(chan struct{})
			release := make(chan struct{})
			op := func(ctx context.Context) (string, error) {
				close(started)
				<-release
				return "status=new", nil
			}

			results := make(chan string, 1)
			go func() {
				v, err := c.Get(context.Background(), "service_requests/5", op)
				assert.NoError(t, err)
				results <- v
			}()
			<-started
			tt.invalidate(c)
			close(release)
			require.Equal(t, "status=new", <-results, "waiting callers still get the result")

			_, ok := c.Lookup("service_requests/5")
			require.False(t, ok)
			v, err := c.Get(context.Background(), "service_requests/5", countingOp(atomic.NewInt32(0), "status=completed", nil))
			require.NoError(t, err)
			require.Equal(t, "status=completed", v)
		})
	}
}

func TestCache_NilOperation(t *testing.T) {
	c := newTestCache(t, Opts{})
	_, err := c.Get(context.Background(), "users", nil)
	require.ErrorIs(t, err, requestqueue.ErrNilOperation)
}

func TestCache_Metrics(t *testing.T) {
	metrics := NewPrometheusMetrics()
	queue, err := requestqueue.New[string](requestqueue.Opts{DrainDelay: requestqueue.NoDrainDelay})
	require.NoError(t, err)
	c, err := New[string](queue, Opts{MaxEntries: 1, MetricsCollector: metrics})
	require.NoError(t, err)
	ctx := context.Background()

	_, _ = c.Get(ctx, "a", countingOp(atomic.NewInt32(0), "a", nil))
	_, _ = c.Get(ctx, "a", countingOp(atomic.NewInt32(0), "a", nil))
	_, _ = c.Get(ctx, "b", countingOp(atomic.NewInt32(0), "", &testRemoteError{503, "maintenance"}))

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.HitsTotal))
	require.Equal(t, 2.0, testutil.ToFloat64(metrics.MissesTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.ErrorsCachedTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.EvictionsTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.EntryAmount))

	c.Clear()
	require.Equal(t, 0.0, testutil.ToFloat64(metrics.EntryAmount))
}
