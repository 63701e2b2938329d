package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/coverfinder-server/internal/logger"
)

func newTestQueryCache(backend Backend, clock *fakeClock) *logCache[SearchQueryLog] {
	opts := Options{
		BatchSaveInterval: time.Hour,
		MinSaveInterval:   MinSaveInterval,
		Now:               clock.Now,
	}
	return newLogCache(SearchQueriesKey, NewPersistence(backend, logger.Discard()), searchQueryHooks(MaxSearchQueries), opts, logger.Discard())
}

func addQuery(c *logCache[SearchQueryLog], clock *fakeClock, q string) {
	c.apply(context.Background(), func(l *SearchQueryLog) bool {
		return ApplySearchQuery(l, q, nil, clock.Now(), MaxSearchQueries)
	})
}

func TestSave_MinIntervalGuardsUnforcedSaves(t *testing.T) {
	ctx := context.Background()
	backend := newMemoryBackend()
	clock := newFakeClock()
	c := newTestQueryCache(backend, clock)

	addQuery(c, clock, "drake")
	wrote, err := c.save(ctx, false)
	require.NoError(t, err)
	assert.True(t, wrote)

	clock.Advance(2 * time.Second)
	addQuery(c, clock, "adele")
	wrote, err = c.save(ctx, false)
	require.NoError(t, err)
	assert.False(t, wrote)
	assert.Equal(t, 1, backend.setCount(SearchQueriesKey))

	// Forced saves ignore the interval.
	wrote, err = c.save(ctx, true)
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.Equal(t, 2, backend.setCount(SearchQueriesKey))

	clock.Advance(MinSaveInterval)
	addQuery(c, clock, "lorde")
	wrote, err = c.save(ctx, false)
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.Equal(t, 3, backend.setCount(SearchQueriesKey))
}

func TestSave_SkipsWhenClean(t *testing.T) {
	ctx := context.Background()
	backend := newMemoryBackend()
	c := newTestQueryCache(backend, newFakeClock())

	wrote, err := c.save(ctx, true)
	require.NoError(t, err)
	assert.False(t, wrote, "nothing loaded, nothing to write")

	c.read(ctx, func(*SearchQueryLog) {})
	wrote, err = c.save(ctx, true)
	require.NoError(t, err)
	assert.False(t, wrote, "loaded but unmodified")
	assert.Zero(t, backend.setCount(SearchQueriesKey))
}

func TestSave_FailureKeepsStateDirty(t *testing.T) {
	ctx := context.Background()
	backend := newMemoryBackend()
	clock := newFakeClock()
	c := newTestQueryCache(backend, clock)

	backend.failWrites(errors.New("store down"))
	addQuery(c, clock, "drake")

	_, err := c.save(ctx, true)
	require.Error(t, err)
	assert.True(t, c.dirty())

	var names []string
	c.read(ctx, func(l *SearchQueryLog) {
		for _, r := range TopQueries(l, 10) {
			names = append(names, r.Query)
		}
	})
	assert.Equal(t, []string{"drake"}, names, "in-memory state survives a failed write")

	backend.failWrites(nil)
	wrote, err := c.save(ctx, false)
	require.NoError(t, err)
	assert.True(t, wrote, "a failed save does not start the min interval")
	assert.False(t, c.dirty())

	var stored SearchQueryLog
	backend.decode(t, SearchQueriesKey, &stored)
	assert.Contains(t, stored.Queries, "drake")
}

func TestSave_WritesWholeSnapshot(t *testing.T) {
	ctx := context.Background()
	backend := newMemoryBackend()
	clock := newFakeClock()
	c := newTestQueryCache(backend, clock)

	addQuery(c, clock, "drake")
	addQuery(c, clock, "adele")
	_, err := c.save(ctx, true)
	require.NoError(t, err)

	var stored SearchQueryLog
	backend.decode(t, SearchQueriesKey, &stored)
	assert.Len(t, stored.Queries, 2)
	assert.Equal(t, clock.Now(), stored.LastUpdated)
}

func TestLoad_FixesUpStoredLog(t *testing.T) {
	backend := newMemoryBackend()
	backend.put(t, SearchQueriesKey, map[string]any{"queries": nil})
	c := newTestQueryCache(backend, newFakeClock())

	var size int
	c.read(context.Background(), func(l *SearchQueryLog) {
		require.NotNil(t, l.Queries)
		size = len(l.Queries)
	})
	assert.Zero(t, size)
}

func TestLoad_ReadFailureIsRetriedByReaders(t *testing.T) {
	ctx := context.Background()
	backend := newMemoryBackend()
	clock := newFakeClock()
	backend.put(t, SearchQueriesKey, SearchQueryLog{Queries: map[string]SearchQueryRecord{
		"drake": {Query: "Drake", NormalizedKey: "drake", VisitCount: 7, LastVisited: clock.Now()},
	}})
	c := newTestQueryCache(backend, clock)

	backend.failReads(errors.New("timeout"))
	c.read(ctx, func(l *SearchQueryLog) { assert.Empty(t, l.Queries) })

	backend.failReads(nil)
	c.read(ctx, func(l *SearchQueryLog) { assert.Equal(t, 7, l.Queries["drake"].VisitCount) })
}

func TestMutate_DebouncesTimer(t *testing.T) {
	backend := newMemoryBackend()
	opts := Options{BatchSaveInterval: 100 * time.Millisecond, Now: time.Now}
	c := newLogCache(SearchQueriesKey, NewPersistence(backend, logger.Discard()), searchQueryHooks(MaxSearchQueries), opts, logger.Discard())
	t.Cleanup(c.stopTimer)

	add := func(q string) {
		c.mutate(context.Background(), func(l *SearchQueryLog) bool {
			return ApplySearchQuery(l, q, nil, time.Now(), MaxSearchQueries)
		})
	}

	add("drake")
	time.Sleep(40 * time.Millisecond)
	add("adele")

	require.Eventually(t, func() bool { return backend.setCount(SearchQueriesKey) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, 1, backend.setCount(SearchQueriesKey), "re-arming replaces the pending timer")

	var stored SearchQueryLog
	backend.decode(t, SearchQueriesKey, &stored)
	assert.Len(t, stored.Queries, 2)
}

func TestMutate_PendingThresholdTriggersUnforcedSave(t *testing.T) {
	backend := newMemoryBackend()
	clock := newFakeClock()
	opts := Options{
		BatchSaveInterval:   time.Hour,
		MinSaveInterval:     MinSaveInterval,
		MaxPendingMutations: 3,
		Now:                 clock.Now,
	}
	c := newLogCache(SearchQueriesKey, NewPersistence(backend, logger.Discard()), searchQueryHooks(MaxSearchQueries), opts, logger.Discard())
	t.Cleanup(c.stopTimer)

	add := func(q string) {
		c.mutate(context.Background(), func(l *SearchQueryLog) bool {
			return ApplySearchQuery(l, q, nil, clock.Now(), MaxSearchQueries)
		})
	}

	add("one")
	add("two")
	assert.Zero(t, backend.setCount(SearchQueriesKey))
	add("three")
	assert.Equal(t, 1, backend.setCount(SearchQueriesKey))

	// Within the min interval the threshold save is skipped.
	add("four")
	add("five")
	add("six")
	assert.Equal(t, 1, backend.setCount(SearchQueriesKey))

	clock.Advance(MinSaveInterval + time.Second)
	add("seven")
	assert.Equal(t, 2, backend.setCount(SearchQueriesKey))
	assert.False(t, c.dirty())
}

func TestMutate_NoChangeDoesNotArmTimer(t *testing.T) {
	backend := newMemoryBackend()
	clock := newFakeClock()
	c := newTestQueryCache(backend, clock)

	changed := c.mutate(context.Background(), func(l *SearchQueryLog) bool {
		return ApplySearchQuery(l, "the", nil, clock.Now(), MaxSearchQueries)
	})
	assert.False(t, changed)
	assert.False(t, c.dirty())

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Nil(t, c.timer)
}
