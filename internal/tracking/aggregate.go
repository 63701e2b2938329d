package tracking

import (
	"cmp"
	"maps"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
}

var (
	slugInvalid   = regexp.MustCompile(`[^\w\s-]`)
	slugSeparator = regexp.MustCompile(`[\s_-]+`)
)

// NormalizeQuery returns the uniqueness key of a search query and whether the query is worth
// recording. Queries shorter than MinQueryLength after trimming and bare stop words are not.
func NormalizeQuery(query string) (string, bool) {
	trimmed := strings.TrimSpace(query)
	if utf8.RuneCountInString(trimmed) < MinQueryLength {
		return "", false
	}
	key := strings.ToLower(trimmed)
	if _, stop := stopWords[key]; stop {
		return "", false
	}
	return key, true
}

// Slugify lowercases s, strips everything but ASCII word characters, whitespace and hyphens,
// collapses separator runs into one hyphen and trims hyphens from both ends.
func Slugify(s string) string {
	s = strings.ToLower(s)
	s = slugInvalid.ReplaceAllString(s, "")
	s = slugSeparator.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// AlbumKey is the composite uniqueness key of an album page.
func AlbumKey(albumID, title string) string {
	return albumID + "-" + Slugify(title)
}

func (v AlbumVisit) valid() bool {
	return v.AlbumID != "" && v.Artist != "" && v.Title != ""
}

// ApplySearchQuery records one submission of query. It reports false, leaving the log
// untouched, when the query is rejected by NormalizeQuery.
func ApplySearchQuery(l *SearchQueryLog, query string, resultCount *int, now time.Time, maxQueries int) bool {
	key, ok := NormalizeQuery(query)
	if !ok {
		return false
	}

	rec, exists := l.Queries[key]
	if exists {
		rec.VisitCount++
		rec.LastVisited = now
	} else {
		rec = SearchQueryRecord{
			Query:         strings.TrimSpace(query),
			NormalizedKey: key,
			FirstVisited:  now,
			LastVisited:   now,
			VisitCount:    1,
		}
	}
	if resultCount != nil {
		n := *resultCount
		rec.ResultCount = &n
	}

	l.Queries[key] = rec
	l.LastUpdated = now
	EvictQueries(l, maxQueries)
	return true
}

// ApplyAlbumPage records one exposure of an album page, as a direct visit or as an
// appearance in a result set. It reports false when a required field is empty.
func ApplyAlbumPage(l *AlbumPageLog, visit AlbumVisit, direct bool, now time.Time, maxAlbums int) bool {
	if !applyAlbum(l, visit, direct, now) {
		return false
	}
	l.LastUpdated = now
	EvictAlbums(l, maxAlbums)
	return true
}

// ApplyAlbumAppearances records every visit as a search appearance in one pass and returns
// how many were applied. Invalid entries are skipped.
func ApplyAlbumAppearances(l *AlbumPageLog, visits []AlbumVisit, now time.Time, maxAlbums int) int {
	applied := 0
	for _, v := range visits {
		if applyAlbum(l, v, false, now) {
			applied++
		}
	}
	if applied > 0 {
		l.LastUpdated = now
		EvictAlbums(l, maxAlbums)
	}
	return applied
}

func applyAlbum(l *AlbumPageLog, v AlbumVisit, direct bool, now time.Time) bool {
	if !v.valid() {
		return false
	}

	key := AlbumKey(v.AlbumID, v.Title)
	rec, exists := l.Albums[key]
	if !exists {
		slug := v.Slug
		if slug == "" {
			slug = Slugify(v.Title)
		}
		rec = AlbumPageRecord{
			AlbumID:   v.AlbumID,
			Artist:    v.Artist,
			Title:     v.Title,
			Slug:      slug,
			Key:       key,
			FirstSeen: now,
		}
	}

	rec.LastSeen = now
	if direct {
		rec.DirectVisits++
	} else {
		rec.SearchAppearances++
	}
	l.Albums[key] = rec
	return true
}

// compareQueries orders by visit count, then most recent visit, then key.
func compareQueries(a, b SearchQueryRecord) int {
	if c := cmp.Compare(b.VisitCount, a.VisitCount); c != 0 {
		return c
	}
	if c := b.LastVisited.Compare(a.LastVisited); c != 0 {
		return c
	}
	return strings.Compare(a.NormalizedKey, b.NormalizedKey)
}

// compareAlbums orders by popularity, then most recent exposure, then key.
func compareAlbums(a, b AlbumPageRecord) int {
	if c := cmp.Compare(b.Popularity(), a.Popularity()); c != 0 {
		return c
	}
	if c := b.LastSeen.Compare(a.LastSeen); c != 0 {
		return c
	}
	return strings.Compare(a.Key, b.Key)
}

// TopQueries returns up to limit records in rank order.
func TopQueries(l *SearchQueryLog, limit int) []SearchQueryRecord {
	return top(l.Queries, limit, compareQueries)
}

// TopAlbums returns up to limit records in rank order.
func TopAlbums(l *AlbumPageLog, limit int) []AlbumPageRecord {
	return top(l.Albums, limit, compareAlbums)
}

func top[R any](records map[string]R, limit int, compare func(a, b R) int) []R {
	if limit <= 0 {
		return []R{}
	}
	ranked := slices.SortedFunc(maps.Values(records), compare)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	if ranked == nil {
		return []R{}
	}
	return slices.Clip(ranked)
}

// EvictQueries drops the lowest ranked records until at most maxQueries remain.
func EvictQueries(l *SearchQueryLog, maxQueries int) int {
	return evict(l.Queries, maxQueries, compareQueries, func(r SearchQueryRecord) string { return r.NormalizedKey })
}

// EvictAlbums drops the lowest ranked records until at most maxAlbums remain.
func EvictAlbums(l *AlbumPageLog, maxAlbums int) int {
	return evict(l.Albums, maxAlbums, compareAlbums, func(r AlbumPageRecord) string { return r.Key })
}

func evict[R any](records map[string]R, limit int, compare func(a, b R) int, key func(R) string) int {
	if limit <= 0 || len(records) <= limit {
		return 0
	}

	// A single insert over the cap only needs the minimum.
	if len(records) == limit+1 {
		var worst R
		first := true
		for _, r := range records {
			if first || compare(r, worst) > 0 {
				worst = r
				first = false
			}
		}
		delete(records, key(worst))
		return 1
	}

	ranked := slices.SortedFunc(maps.Values(records), compare)
	for _, r := range ranked[limit:] {
		delete(records, key(r))
	}
	return len(ranked) - limit
}

// PruneQueries drops records last visited before cutoff whose visit count is below the floor.
func PruneQueries(l *SearchQueryLog, cutoff time.Time) int {
	removed := 0
	for key, rec := range l.Queries {
		if rec.LastVisited.Before(cutoff) && rec.VisitCount < MinRetainedVisits {
			delete(l.Queries, key)
			removed++
		}
	}
	return removed
}

// PruneAlbums drops records last seen before cutoff whose popularity is below the floor.
func PruneAlbums(l *AlbumPageLog, cutoff time.Time) int {
	removed := 0
	for key, rec := range l.Albums {
		if rec.LastSeen.Before(cutoff) && rec.Popularity() < MinRetainedPopularity {
			delete(l.Albums, key)
			removed++
		}
	}
	return removed
}

// RetentionCutoff is the calendar date RetentionMonths before now.
func RetentionCutoff(now time.Time) time.Time {
	return now.AddDate(0, -RetentionMonths, 0)
}

// Totals returns the number of queries and the sum of their visit counts.
func (l *SearchQueryLog) Totals() (queries, visits int) {
	for _, rec := range l.Queries {
		visits += rec.VisitCount
	}
	return len(l.Queries), visits
}

// Totals returns the number of albums and the sum of their popularity.
func (l *AlbumPageLog) Totals() (albums, views int) {
	for _, rec := range l.Albums {
		views += rec.Popularity()
	}
	return len(l.Albums), views
}
