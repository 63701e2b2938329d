package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/listenupapp/coverfinder-server/internal/metrics"
)

// logHooks adapts logCache to one concrete log type.
type logHooks[T any] struct {
	empty func() *T
	clone func(*T) *T
	// fixup repairs a freshly loaded value (nil maps, capacity) in place.
	fixup func(*T)
	size  func(*T) int
}

// logCache owns one log: the in-memory value, the debounced flush timer and the save
// bookkeeping. All of it is guarded by mu; saves are serialized by saveMu so snapshots
// reach the store in version order.
type logCache[T any] struct {
	key     string
	persist *Persistence
	hooks   logHooks[T]
	logger  *slog.Logger
	now     func() time.Time

	batchInterval time.Duration
	minInterval   time.Duration
	maxPending    int

	mu           sync.Mutex
	value        *T
	loaded       bool
	version      uint64 // bumped by every mutation
	savedVersion uint64 // version of the last snapshot written
	timer        *time.Timer
	lastSave     time.Time

	saveMu sync.Mutex
}

func newLogCache[T any](key string, persist *Persistence, hooks logHooks[T], opts Options, logger *slog.Logger) *logCache[T] {
	return &logCache[T]{
		key:           key,
		persist:       persist,
		hooks:         hooks,
		logger:        logger.With("log", key),
		now:           opts.Now,
		batchInterval: opts.BatchSaveInterval,
		minInterval:   opts.MinSaveInterval,
		maxPending:    opts.MaxPendingMutations,
	}
}

// loadLocked reads the log from the store on first use and caches it. A read failure is
// returned and leaves the log unloaded. Must hold mu.
func (c *logCache[T]) loadLocked(ctx context.Context) (*T, error) {
	if c.loaded {
		return c.value, nil
	}

	value := c.hooks.empty()
	found, err := c.persist.load(ctx, c.key, value)
	if err != nil {
		return nil, err
	}
	if found {
		c.hooks.fixup(value)
	} else {
		value = c.hooks.empty()
	}

	c.setLoadedLocked(value)
	return value, nil
}

func (c *logCache[T]) setLoadedLocked(value *T) {
	c.value = value
	c.loaded = true
	metrics.TrackingLogEntries.WithLabelValues(c.key).Set(float64(c.hooks.size(value)))
}

// ensureLoaded is loadLocked that never fails. Must hold mu.
//
// When the read fails the returned value is an empty log. Readers get it without it being
// cached, so the next read tries the store again. Writers cache it: the mutation has to land
// somewhere and the next save will overwrite whatever the store held.
func (c *logCache[T]) ensureLoaded(ctx context.Context, forWrite bool) *T {
	value, err := c.loadLocked(ctx)
	if err == nil {
		return value
	}

	c.logger.Warn("tracking log load failed, using empty log", "error", err)
	value = c.hooks.empty()
	if forWrite {
		c.setLoadedLocked(value)
	}
	return value
}

// read runs fn against the current log under the lock. fn must not retain the pointer.
func (c *logCache[T]) read(ctx context.Context, fn func(*T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.ensureLoaded(ctx, false))
}

// apply runs fn under the lock and records a new version when it reports a change.
func (c *logCache[T]) apply(ctx context.Context, fn func(*T) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	value := c.ensureLoaded(ctx, true)
	if !fn(value) {
		return false
	}
	c.version++
	metrics.TrackingLogEntries.WithLabelValues(c.key).Set(float64(c.hooks.size(value)))
	return true
}

// applyStored is apply for maintenance work that adds no activity of its own. A log that
// cannot be read is left untouched and unloaded, so nothing replaces the stored copy.
func (c *logCache[T]) applyStored(ctx context.Context, fn func(*T) bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, err := c.loadLocked(ctx)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", c.key, err)
	}
	if !fn(value) {
		return false, nil
	}
	c.version++
	metrics.TrackingLogEntries.WithLabelValues(c.key).Set(float64(c.hooks.size(value)))
	return true, nil
}

// mutate applies fn and, on change, re-arms the flush timer. Once enough mutations are
// pending it also attempts an unforced save, which the min-interval guard may skip.
func (c *logCache[T]) mutate(ctx context.Context, fn func(*T) bool) bool {
	if !c.apply(ctx, fn) {
		return false
	}

	c.mu.Lock()
	c.armLocked()
	saveNow := c.maxPending > 0 && c.version-c.savedVersion >= uint64(c.maxPending)
	c.mu.Unlock()

	if saveNow {
		_, _ = c.save(ctx, false)
	}
	return true
}

// armLocked replaces any pending flush timer with a fresh one. Must hold mu.
func (c *logCache[T]) armLocked() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.batchInterval, func() {
		_, _ = c.save(context.Background(), true)
	})
}

// save writes a snapshot of the log when it has unsaved mutations. Unforced saves are
// skipped within minInterval of the last successful save. It reports whether a write
// happened. Failures are logged and leave the log dirty; nothing retries them until the
// next mutation re-arms the timer.
func (c *logCache[T]) save(ctx context.Context, force bool) (bool, error) {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.Lock()
	if !c.loaded || c.version == c.savedVersion {
		c.mu.Unlock()
		return false, nil
	}
	if !force && !c.lastSave.IsZero() && c.now().Sub(c.lastSave) < c.minInterval {
		c.mu.Unlock()
		metrics.TrackingSaves.WithLabelValues(c.key, "skipped").Inc()
		return false, nil
	}
	snapshot := c.hooks.clone(c.value)
	version := c.version
	c.mu.Unlock()

	start := time.Now()
	err := c.persist.Save(ctx, c.key, snapshot)
	metrics.RecordSave(c.key, err, time.Since(start))
	if err != nil {
		c.logger.Error("tracking log save failed", "forced", force, "error", err)
		return false, err
	}

	c.mu.Lock()
	c.savedVersion = version
	c.lastSave = c.now()
	c.mu.Unlock()

	c.logger.Debug("tracking log saved", "forced", force, "version", version)
	return true, nil
}

// flush cancels the pending timer and forces a save of any unsaved state.
func (c *logCache[T]) flush(ctx context.Context) error {
	c.stopTimer()
	_, err := c.save(ctx, true)
	return err
}

func (c *logCache[T]) stopTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// dirty reports whether mutations are waiting to be written.
func (c *logCache[T]) dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version != c.savedVersion
}
