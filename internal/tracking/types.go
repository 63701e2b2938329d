// Package tracking records which search queries and album pages visitors touch, keeps the
// aggregated logs in memory, persists them with debounced full-snapshot writes, and serves
// ranked views of them to the sitemap and the stats dashboard.
package tracking

import (
	"maps"
	"time"
)

// Store keys of the two logs.
const (
	SearchQueriesKey = "search-queries"
	AlbumPagesKey    = "album-pages"
)

// Defaults.
const (
	MaxSearchQueries    = 1000
	MaxAlbumPages       = 2000
	BatchSaveInterval   = 30 * time.Second
	MinSaveInterval     = 5 * time.Second
	MaxPendingMutations = 200
	DefaultQueueSize    = 4096

	// MinQueryLength is the shortest trimmed query that is recorded.
	MinQueryLength = 2
	// TopStatsLimit is the length of the top lists in Statistics.
	TopStatsLimit = 10
)

// Retention policy.
const (
	RetentionMonths       = 6
	MinRetainedVisits     = 5 // queries at or above this survive retention regardless of age
	MinRetainedPopularity = 3 // albums at or above this survive retention regardless of age
)

// SearchQueryRecord aggregates every submission of one normalized query.
type SearchQueryRecord struct {
	Query         string    `json:"query"`
	NormalizedKey string    `json:"normalizedKey"`
	FirstVisited  time.Time `json:"firstVisited"`
	LastVisited   time.Time `json:"lastVisited"`
	VisitCount    int       `json:"visitCount"`
	ResultCount   *int      `json:"resultCount,omitempty"`
}

// SearchQueryLog maps normalized keys to their records.
type SearchQueryLog struct {
	Queries     map[string]SearchQueryRecord `json:"queries"`
	LastUpdated time.Time                    `json:"lastUpdated"`
}

// AlbumPageRecord aggregates exposure of one album page.
type AlbumPageRecord struct {
	AlbumID           string    `json:"albumId"`
	Artist            string    `json:"artist"`
	Title             string    `json:"title"`
	Slug              string    `json:"slug"`
	Key               string    `json:"key"`
	FirstSeen         time.Time `json:"firstSeen"`
	LastSeen          time.Time `json:"lastSeen"`
	SearchAppearances int       `json:"searchAppearances"`
	DirectVisits      int       `json:"directVisits"`
}

// Popularity is the ranking metric for album pages.
func (r AlbumPageRecord) Popularity() int {
	return r.SearchAppearances + r.DirectVisits
}

// AlbumPageLog maps composite album keys to their records.
type AlbumPageLog struct {
	Albums      map[string]AlbumPageRecord `json:"albums"`
	LastUpdated time.Time                  `json:"lastUpdated"`
}

// AlbumVisit identifies an album page being shown.
// Slug is the display slug used in page URLs; it does not take part in the record key.
type AlbumVisit struct {
	AlbumID string `json:"albumId"`
	Artist  string `json:"artist"`
	Title   string `json:"title"`
	Slug    string `json:"slug,omitempty"`
}

// Statistics summarizes both logs for the dashboard.
type Statistics struct {
	TotalQueries    int                 `json:"totalQueries"`
	TotalVisits     int                 `json:"totalVisits"`
	TopQueries      []SearchQueryRecord `json:"topQueries"`
	TotalAlbums     int                 `json:"totalAlbums"`
	TotalAlbumViews int                 `json:"totalAlbumViews"`
	TopAlbums       []AlbumPageRecord   `json:"topAlbums"`
}

// CleanupResult reports what a retention run removed.
type CleanupResult struct {
	Cutoff         time.Time `json:"cutoff"`
	QueriesRemoved int       `json:"queriesRemoved"`
	AlbumsRemoved  int       `json:"albumsRemoved"`
}

// ResultCount is a convenience for the optional result count argument of TrackSearchQuery.
func ResultCount(n int) *int {
	return &n
}

func newSearchQueryLog() *SearchQueryLog {
	return &SearchQueryLog{Queries: make(map[string]SearchQueryRecord)}
}

func newAlbumPageLog() *AlbumPageLog {
	return &AlbumPageLog{Albums: make(map[string]AlbumPageRecord)}
}

// Records are plain values and ResultCount pointers are never written through, so a
// shallow map copy is a safe snapshot.
func cloneSearchQueryLog(l *SearchQueryLog) *SearchQueryLog {
	return &SearchQueryLog{Queries: maps.Clone(l.Queries), LastUpdated: l.LastUpdated}
}

func cloneAlbumPageLog(l *AlbumPageLog) *AlbumPageLog {
	return &AlbumPageLog{Albums: maps.Clone(l.Albums), LastUpdated: l.LastUpdated}
}
