package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/listenupapp/coverfinder-server/internal/metrics"
)

// GetPopularSearchQueries returns the display form of the limit most visited queries.
func (t *Tracker) GetPopularSearchQueries(ctx context.Context, limit int) []string {
	var records []SearchQueryRecord
	if err := t.exec.call(ctx, func() {
		t.queries.read(ctx, func(l *SearchQueryLog) {
			records = TopQueries(l, limit)
		})
	}); err != nil {
		return []string{}
	}

	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Query
	}
	return out
}

// GetPopularAlbumPages returns the limit most popular album pages.
func (t *Tracker) GetPopularAlbumPages(ctx context.Context, limit int) []AlbumPageRecord {
	var records []AlbumPageRecord
	if err := t.exec.call(ctx, func() {
		t.albums.read(ctx, func(l *AlbumPageLog) {
			records = TopAlbums(l, limit)
		})
	}); err != nil {
		return []AlbumPageRecord{}
	}
	return records
}

// GetSearchStatistics summarizes both logs. It never fails: an unreachable store or an
// expired context yields zero totals and empty lists.
func (t *Tracker) GetSearchStatistics(ctx context.Context) Statistics {
	var stats Statistics
	err := t.exec.call(ctx, func() {
		t.queries.read(ctx, func(l *SearchQueryLog) {
			stats.TotalQueries, stats.TotalVisits = l.Totals()
			stats.TopQueries = TopQueries(l, TopStatsLimit)
		})
		t.albums.read(ctx, func(l *AlbumPageLog) {
			stats.TotalAlbums, stats.TotalAlbumViews = l.Totals()
			stats.TopAlbums = TopAlbums(l, TopStatsLimit)
		})
	})
	if err != nil {
		return emptyStatistics()
	}
	return stats
}

func emptyStatistics() Statistics {
	return Statistics{
		TopQueries: []SearchQueryRecord{},
		TopAlbums:  []AlbumPageRecord{},
	}
}

// CleanOldData drops records older than the retention window whose activity is below the
// floor, then force-saves both logs whether or not anything was removed. A log that cannot
// be read from the store is neither pruned nor saved, and its read error is returned.
func (t *Tracker) CleanOldData(ctx context.Context) (CleanupResult, error) {
	result := CleanupResult{Cutoff: RetentionCutoff(t.opts.Now())}

	var queriesErr, albumsErr error
	if err := t.exec.call(ctx, func() {
		_, queriesErr = t.queries.applyStored(ctx, func(l *SearchQueryLog) bool {
			result.QueriesRemoved = PruneQueries(l, result.Cutoff)
			if result.QueriesRemoved > 0 {
				l.LastUpdated = t.opts.Now()
			}
			return true
		})
		_, albumsErr = t.albums.applyStored(ctx, func(l *AlbumPageLog) bool {
			result.AlbumsRemoved = PruneAlbums(l, result.Cutoff)
			if result.AlbumsRemoved > 0 {
				l.LastUpdated = t.opts.Now()
			}
			return true
		})
	}); err != nil {
		return CleanupResult{}, err
	}

	metrics.TrackingCleanupRemoved.WithLabelValues(SearchQueriesKey).Add(float64(result.QueriesRemoved))
	metrics.TrackingCleanupRemoved.WithLabelValues(AlbumPagesKey).Add(float64(result.AlbumsRemoved))

	// An unloaded log has nothing to save; flush skips it.
	err := errors.Join(queriesErr, albumsErr, t.flush(ctx))
	t.logger.Info("tracking retention run complete",
		"cutoff", result.Cutoff.Format(time.DateOnly),
		"queries_removed", result.QueriesRemoved,
		"albums_removed", result.AlbumsRemoved,
		"error", err,
	)
	return result, err
}
