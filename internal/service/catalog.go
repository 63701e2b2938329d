package service

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	domainerrors "github.com/listenupapp/coverfinder-server/internal/errors"
	"github.com/listenupapp/coverfinder-server/internal/metadata/itunes"
	"github.com/listenupapp/coverfinder-server/internal/metrics"
	"github.com/listenupapp/coverfinder-server/internal/store"
	"github.com/listenupapp/coverfinder-server/internal/tracking"
	"github.com/listenupapp/coverfinder-server/internal/util"
)

// Search limits. Upstream is always asked for fetchLimit results so one cache entry
// serves every page size.
const (
	DefaultSearchLimit = 25
	MaxSearchLimit     = 50
	fetchLimit         = MaxSearchLimit
)

// SearchKind selects which catalog entities a search returns.
type SearchKind string

// Search kinds.
const (
	SearchAlbums SearchKind = "album"
	SearchSongs  SearchKind = "song"
	SearchAll    SearchKind = "all"
)

// CatalogClient is the upstream music catalog.
type CatalogClient interface {
	SearchAlbums(ctx context.Context, term string, limit int) ([]itunes.Album, error)
	SearchSongs(ctx context.Context, term string, limit int) ([]itunes.Song, error)
	LookupAlbum(ctx context.Context, id int64) (*itunes.Album, error)
}

// CatalogCache stores upstream responses. Lookups return nil, nil on a miss.
type CatalogCache interface {
	GetCachedSearch(ctx context.Context, country, entity, query string) (*store.CachedSearch, error)
	SetCachedSearch(ctx context.Context, country, entity, query string, albums []itunes.Album, songs []itunes.Song) error
	GetCachedAlbum(ctx context.Context, country string, id int64) (*store.CachedAlbum, error)
	SetCachedAlbum(ctx context.Context, country string, album itunes.Album) error
}

// ActivityTracker receives the visitor activity produced by catalog requests.
type ActivityTracker interface {
	TrackSearchQuery(query string, resultCount *int)
	TrackAlbumPage(visit tracking.AlbumVisit, isDirectVisit bool)
	TrackAlbumPages(visits []tracking.AlbumVisit)
}

// AlbumResult is an album card with the slug used in its page URL.
type AlbumResult struct {
	itunes.Album
	Slug string `json:"slug"`
}

// SongResult is a song card linking to its album page.
type SongResult struct {
	itunes.Song
	AlbumSlug string `json:"albumSlug"`
}

// SearchResult is what a visitor sees for one query.
type SearchResult struct {
	Query  string        `json:"query"`
	Albums []AlbumResult `json:"albums"`
	Songs  []SongResult  `json:"songs"`
}

// Total is the number of cards shown.
func (r *SearchResult) Total() int {
	return len(r.Albums) + len(r.Songs)
}

// CatalogService runs catalog searches and lookups, caching upstream responses and
// recording the activity they represent.
type CatalogService struct {
	client  CatalogClient
	cache   CatalogCache // nil disables caching
	tracker ActivityTracker
	country string
	logger  *slog.Logger
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(
	client CatalogClient,
	cache CatalogCache,
	tracker ActivityTracker,
	country string,
	logger *slog.Logger,
) *CatalogService {
	return &CatalogService{
		client:  client,
		cache:   cache,
		tracker: tracker,
		country: strings.ToUpper(country),
		logger:  logger,
	}
}

// ParseSearchKind maps a request value to a SearchKind; empty means albums.
func ParseSearchKind(s string) (SearchKind, error) {
	switch SearchKind(strings.ToLower(strings.TrimSpace(s))) {
	case "", SearchAlbums:
		return SearchAlbums, nil
	case SearchSongs:
		return SearchSongs, nil
	case SearchAll:
		return SearchAll, nil
	default:
		return "", domainerrors.Validationf("unknown search type %q", s)
	}
}

// Search queries the catalog. The query is tracked with the number of cards returned
// and every album shown counts as a search appearance.
func (s *CatalogService) Search(ctx context.Context, query string, kind SearchKind, limit int) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domainerrors.Validation("search query is required")
	}
	limit = clampSearchLimit(limit)

	result := &SearchResult{Query: query, Albums: []AlbumResult{}, Songs: []SongResult{}}

	if kind == SearchAlbums || kind == SearchAll {
		albums, err := s.searchAlbums(ctx, query)
		if err != nil {
			return nil, err
		}
		for _, a := range albums[:min(limit, len(albums))] {
			result.Albums = append(result.Albums, AlbumResult{Album: a, Slug: util.AlbumSlug(a.Artist, a.Title)})
		}
	}

	if kind == SearchSongs || kind == SearchAll {
		songs, err := s.searchSongs(ctx, query)
		if err != nil {
			return nil, err
		}
		for _, song := range songs[:min(limit, len(songs))] {
			result.Songs = append(result.Songs, SongResult{Song: song, AlbumSlug: util.AlbumSlug(song.Artist, song.AlbumTitle)})
		}
	}

	s.tracker.TrackSearchQuery(query, tracking.ResultCount(result.Total()))
	if visits := appearances(result); len(visits) > 0 {
		s.tracker.TrackAlbumPages(visits)
	}

	return result, nil
}

// Album looks up one album and records a direct visit to its page.
func (s *CatalogService) Album(ctx context.Context, id int64) (*AlbumResult, error) {
	if id <= 0 {
		return nil, domainerrors.Validationf("invalid album id %d", id)
	}

	album, err := s.lookupAlbum(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &AlbumResult{Album: *album, Slug: util.AlbumSlug(album.Artist, album.Title)}
	s.tracker.TrackAlbumPage(visitOf(result.Album.ID, result.Artist, result.Title, result.Slug), true)
	return result, nil
}

func (s *CatalogService) searchAlbums(ctx context.Context, query string) ([]itunes.Album, error) {
	if cached := s.cachedSearch(ctx, string(SearchAlbums), query); cached != nil {
		return cached.Albums, nil
	}

	s.logger.Debug("searching iTunes albums", "query", query)
	albums, err := s.client.SearchAlbums(ctx, query, fetchLimit)
	if err != nil {
		return nil, err
	}

	s.storeSearch(ctx, string(SearchAlbums), query, albums, nil)
	return albums, nil
}

func (s *CatalogService) searchSongs(ctx context.Context, query string) ([]itunes.Song, error) {
	if cached := s.cachedSearch(ctx, string(SearchSongs), query); cached != nil {
		return cached.Songs, nil
	}

	s.logger.Debug("searching iTunes songs", "query", query)
	songs, err := s.client.SearchSongs(ctx, query, fetchLimit)
	if err != nil {
		return nil, err
	}

	s.storeSearch(ctx, string(SearchSongs), query, nil, songs)
	return songs, nil
}

func (s *CatalogService) lookupAlbum(ctx context.Context, id int64) (*itunes.Album, error) {
	if s.cache != nil {
		cached, err := s.cache.GetCachedAlbum(ctx, s.country, id)
		if err != nil {
			s.logger.Warn("cache lookup failed", "error", err, "album_id", id)
		}
		metrics.RecordCacheLookup("album", cached != nil)
		if cached != nil {
			return &cached.Album, nil
		}
	}

	s.logger.Debug("looking up album on iTunes", "album_id", id)
	album, err := s.client.LookupAlbum(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetCachedAlbum(ctx, s.country, *album); err != nil {
			s.logger.Warn("failed to cache album", "error", err, "album_id", id)
		}
	}
	return album, nil
}

func (s *CatalogService) cachedSearch(ctx context.Context, entity, query string) *store.CachedSearch {
	if s.cache == nil {
		return nil
	}
	cached, err := s.cache.GetCachedSearch(ctx, s.country, entity, query)
	if err != nil {
		s.logger.Warn("cache lookup failed", "error", err, "entity", entity, "query", query)
	}
	metrics.RecordCacheLookup(entity, cached != nil)
	return cached
}

func (s *CatalogService) storeSearch(ctx context.Context, entity, query string, albums []itunes.Album, songs []itunes.Song) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetCachedSearch(ctx, s.country, entity, query, albums, songs); err != nil {
		s.logger.Warn("failed to cache search", "error", err, "entity", entity, "query", query)
	}
}

// appearances lists each album shown in result once, song albums included.
func appearances(result *SearchResult) []tracking.AlbumVisit {
	seen := make(map[int64]bool, result.Total())
	visits := make([]tracking.AlbumVisit, 0, result.Total())

	add := func(id int64, artist, title, slug string) {
		if id <= 0 || seen[id] {
			return
		}
		seen[id] = true
		visits = append(visits, visitOf(id, artist, title, slug))
	}

	for _, a := range result.Albums {
		add(a.ID, a.Artist, a.Title, a.Slug)
	}
	for _, song := range result.Songs {
		add(song.AlbumID, song.Artist, song.AlbumTitle, song.AlbumSlug)
	}
	return visits
}

func visitOf(id int64, artist, title, slug string) tracking.AlbumVisit {
	return tracking.AlbumVisit{
		AlbumID: strconv.FormatInt(id, 10),
		Artist:  artist,
		Title:   title,
		Slug:    slug,
	}
}

func clampSearchLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	return min(limit, MaxSearchLimit)
}
