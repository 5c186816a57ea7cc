// Package cache implements the self-updating cache contract shared by
// the capability and webhook caches: an atomically-swapped immutable
// snapshot, refreshed on its own ticker, the same ctx/wg pair guarding
// a background goroutine that a stats collector's flush loop uses,
// except this loop fetches-and-swaps instead of flushing.
package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rp-notify/broker/internal/logging"
	"github.com/rp-notify/broker/internal/metrics"
)

// FetchFunc retrieves a full snapshot from the upstream catalog.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Refresher is a generic self-updating cache: it holds the latest
// installed snapshot behind an atomic pointer, refreshed at a fixed
// interval. ServiceData never blocks beyond a pointer read — readers
// never see a partially-installed snapshot.
type Refresher[T any] struct {
	name     string
	interval time.Duration
	fetch    FetchFunc[T]
	logger   *logging.Logger
	lock     RefreshLock // optional distributed debounce; nil disables it

	snapshot atomic.Pointer[T]

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// RefreshLock lets multiple broker replicas sharing one catalog avoid
// stampeding it every refresh interval. It is strictly an optimization:
// a replica that fails to acquire the lock simply skips that tick and
// keeps serving its own last-installed snapshot.
type RefreshLock interface {
	// TryLock attempts to acquire a short-lived lock for name. It
	// returns false (no error) when another replica already holds it.
	TryLock(ctx context.Context, name string, ttl time.Duration) (bool, error)
}

// NewRefresher constructs a Refresher. lock may be nil to disable the
// distributed debounce — every replica then refreshes independently,
// which is always correct, just not bandwidth-optimal.
func NewRefresher[T any](name string, interval time.Duration, fetch FetchFunc[T], logger *logging.Logger, lock RefreshLock) *Refresher[T] {
	if logger == nil {
		logger = logging.Default()
	}
	return &Refresher[T]{
		name:     name,
		interval: interval,
		fetch:    fetch,
		logger:   logger,
		lock:     lock,
	}
}

// Start performs one synchronous fetch-and-install before returning,
// then begins the background refresh loop. A failure on this first
// fetch is returned to the caller, who must treat it as fatal: the
// broker is unsafe to run without routing data.
func (r *Refresher[T]) Start(ctx context.Context) error {
	snap, err := r.fetch(ctx)
	if err != nil {
		metrics.CacheRefreshTotal.WithLabelValues(r.name, "error").Inc()
		return fmt.Errorf("initial refresh of %s cache failed: %w", r.name, err)
	}
	r.snapshot.Store(&snap)
	metrics.CacheRefreshTotal.WithLabelValues(r.name, "success").Inc()

	loopCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)
	go r.refreshLoop(loopCtx)

	return nil
}

// Stop cancels the refresh loop and waits for it to exit. An in-flight
// refresh has its context cancelled, so its fetch fails and the previous
// snapshot is kept; no further refreshes are scheduled afterward.
func (r *Refresher[T]) Stop() {
	r.once.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
		r.wg.Wait()
	})
}

// ServiceData returns the latest installed snapshot. It never blocks
// beyond an atomic pointer load.
func (r *Refresher[T]) ServiceData() T {
	p := r.snapshot.Load()
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

func (r *Refresher[T]) refreshLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshOnce(ctx)
		}
	}
}

func (r *Refresher[T]) refreshOnce(ctx context.Context) {
	if r.lock != nil {
		acquired, err := r.lock.TryLock(ctx, r.name, r.interval/2)
		if err != nil {
			r.logger.ErrorContext(ctx, "cache refresh debounce lock failed",
				logging.Cache(r.name), logging.Error(err))
			// Fall through and refresh anyway; the lock is an
			// optimization, never a correctness requirement.
		} else if !acquired {
			return
		}
	}

	snap, err := r.fetch(ctx)
	if err != nil {
		metrics.CacheRefreshTotal.WithLabelValues(r.name, "error").Inc()
		r.logger.ErrorContext(ctx, "cache refresh failed, retaining previous snapshot",
			logging.Cache(r.name), logging.Error(err))
		return
	}

	r.snapshot.Store(&snap)
	metrics.CacheRefreshTotal.WithLabelValues(r.name, "success").Inc()
}
