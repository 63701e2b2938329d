package tracking

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/listenupapp/coverfinder-server/internal/metrics"
)

// Event kinds used in metrics and logs.
const (
	kindSearchQuery     = "search_query"
	kindAlbumAppearance = "album_appearance"
	kindAlbumVisit      = "album_visit"
)

// Options tunes a Tracker. Zero fields take the package defaults, except MinSaveInterval and
// MaxPendingMutations where zero disables the guard.
type Options struct {
	BatchSaveInterval   time.Duration
	MinSaveInterval     time.Duration
	MaxPendingMutations int
	MaxSearchQueries    int
	MaxAlbumPages       int
	QueueSize           int
	Now                 func() time.Time
}

// DefaultOptions returns the production settings.
func DefaultOptions() Options {
	return Options{
		BatchSaveInterval:   BatchSaveInterval,
		MinSaveInterval:     MinSaveInterval,
		MaxPendingMutations: MaxPendingMutations,
		MaxSearchQueries:    MaxSearchQueries,
		MaxAlbumPages:       MaxAlbumPages,
		QueueSize:           DefaultQueueSize,
		Now:                 time.Now,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BatchSaveInterval <= 0 {
		o.BatchSaveInterval = d.BatchSaveInterval
	}
	if o.MinSaveInterval < 0 {
		o.MinSaveInterval = d.MinSaveInterval
	}
	if o.MaxPendingMutations < 0 {
		o.MaxPendingMutations = 0
	}
	if o.MaxSearchQueries <= 0 {
		o.MaxSearchQueries = d.MaxSearchQueries
	}
	if o.MaxAlbumPages <= 0 {
		o.MaxAlbumPages = d.MaxAlbumPages
	}
	if o.QueueSize <= 0 {
		o.QueueSize = d.QueueSize
	}
	if o.Now == nil {
		o.Now = d.Now
	}
	return o
}

// Tracker owns both activity logs, their flush timers and the store adapter.
// Tracking methods never block on I/O and never fail; read methods observe every tracking
// call that returned before them, as long as it was queued. When more than QueueSize events
// (DefaultQueueSize unless configured) are waiting, further events are dropped and counted
// in the tracking events metric.
type Tracker struct {
	opts    Options
	persist *Persistence
	queries *logCache[SearchQueryLog]
	albums  *logCache[AlbumPageLog]
	exec    *executor
	logger  *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// New creates a Tracker writing through backend. A nil backend keeps activity in memory only.
func New(backend Backend, opts Options, logger *slog.Logger) *Tracker {
	opts = opts.withDefaults()
	persist := NewPersistence(backend, logger)

	return &Tracker{
		opts:    opts,
		persist: persist,
		queries: newLogCache(SearchQueriesKey, persist, searchQueryHooks(opts.MaxSearchQueries), opts, logger),
		albums:  newLogCache(AlbumPagesKey, persist, albumPageHooks(opts.MaxAlbumPages), opts, logger),
		exec:    newExecutor(opts.QueueSize, logger),
		logger:  logger,
	}
}

func searchQueryHooks(maxQueries int) logHooks[SearchQueryLog] {
	return logHooks[SearchQueryLog]{
		empty: newSearchQueryLog,
		clone: cloneSearchQueryLog,
		fixup: func(l *SearchQueryLog) {
			if l.Queries == nil {
				l.Queries = make(map[string]SearchQueryRecord)
			}
			EvictQueries(l, maxQueries)
		},
		size: func(l *SearchQueryLog) int { return len(l.Queries) },
	}
}

func albumPageHooks(maxAlbums int) logHooks[AlbumPageLog] {
	return logHooks[AlbumPageLog]{
		empty: newAlbumPageLog,
		clone: cloneAlbumPageLog,
		fixup: func(l *AlbumPageLog) {
			if l.Albums == nil {
				l.Albums = make(map[string]AlbumPageRecord)
			}
			EvictAlbums(l, maxAlbums)
		},
		size: func(l *AlbumPageLog) int { return len(l.Albums) },
	}
}

// TrackSearchQuery records a search. resultCount may be nil when unknown.
// Queries that are too short or are bare stop words are ignored.
func (t *Tracker) TrackSearchQuery(query string, resultCount *int) {
	if _, ok := NormalizeQuery(query); !ok {
		metrics.TrackingEvents.WithLabelValues(kindSearchQuery, "rejected").Inc()
		return
	}

	var count *int
	if resultCount != nil {
		count = ResultCount(*resultCount)
	}
	now := t.opts.Now()

	t.enqueue(kindSearchQuery, func() {
		t.queries.mutate(context.Background(), func(l *SearchQueryLog) bool {
			return ApplySearchQuery(l, query, count, now, t.opts.MaxSearchQueries)
		})
	})
}

// TrackAlbumPage records one exposure of an album page.
func (t *Tracker) TrackAlbumPage(visit AlbumVisit, isDirectVisit bool) {
	kind := kindAlbumAppearance
	if isDirectVisit {
		kind = kindAlbumVisit
	}
	if !visit.valid() {
		metrics.TrackingEvents.WithLabelValues(kind, "rejected").Inc()
		return
	}
	now := t.opts.Now()

	t.enqueue(kind, func() {
		t.albums.mutate(context.Background(), func(l *AlbumPageLog) bool {
			return ApplyAlbumPage(l, visit, isDirectVisit, now, t.opts.MaxAlbumPages)
		})
	})
}

// TrackAlbumPages records every visit as a search appearance, loading the log once.
func (t *Tracker) TrackAlbumPages(visits []AlbumVisit) {
	valid := make([]AlbumVisit, 0, len(visits))
	for _, v := range visits {
		if v.valid() {
			valid = append(valid, v)
		}
	}
	if rejected := len(visits) - len(valid); rejected > 0 {
		metrics.TrackingEvents.WithLabelValues(kindAlbumAppearance, "rejected").Add(float64(rejected))
	}
	if len(valid) == 0 {
		return
	}
	now := t.opts.Now()

	if !t.exec.submit(func() {
		t.albums.mutate(context.Background(), func(l *AlbumPageLog) bool {
			return ApplyAlbumAppearances(l, valid, now, t.opts.MaxAlbumPages) > 0
		})
	}) {
		t.dropped(kindAlbumAppearance, len(valid))
		return
	}
	metrics.TrackingEvents.WithLabelValues(kindAlbumAppearance, "accepted").Add(float64(len(valid)))
}

func (t *Tracker) enqueue(kind string, task func()) {
	if !t.exec.submit(task) {
		t.dropped(kind, 1)
		return
	}
	metrics.TrackingEvents.WithLabelValues(kind, "accepted").Inc()
}

func (t *Tracker) dropped(kind string, n int) {
	metrics.TrackingEvents.WithLabelValues(kind, "dropped").Add(float64(n))
	t.logger.Debug("tracking event dropped", "kind", kind, "count", n)
}

// FlushPendingData waits for queued tracking work, cancels pending timers and forces a save
// of each log that has unsaved mutations.
func (t *Tracker) FlushPendingData(ctx context.Context) error {
	if err := t.exec.call(ctx, func() {}); err != nil {
		return err
	}
	return t.flush(ctx)
}

func (t *Tracker) flush(ctx context.Context) error {
	return errors.Join(t.queries.flush(ctx), t.albums.flush(ctx))
}

// Close stops accepting tracking calls, drains the queue and flushes both logs.
// Read methods keep working afterwards.
func (t *Tracker) Close(ctx context.Context) error {
	t.closeOnce.Do(func() {
		if err := t.exec.stop(ctx); err != nil {
			t.closeErr = err
			return
		}
		t.closeErr = t.flush(ctx)
	})
	return t.closeErr
}

// Pending reports whether either log holds mutations not yet written to the store.
func (t *Tracker) Pending() bool {
	return t.queries.dirty() || t.albums.dirty()
}

// StoreConfigured reports whether activity is persisted.
func (t *Tracker) StoreConfigured() bool {
	return t.persist.Configured()
}
