package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/listenupapp/coverfinder-server/internal/errors"
	"github.com/listenupapp/coverfinder-server/internal/logger"
	"github.com/listenupapp/coverfinder-server/internal/metadata/itunes"
	"github.com/listenupapp/coverfinder-server/internal/store"
	"github.com/listenupapp/coverfinder-server/internal/tracking"
)

type fakeCatalog struct {
	albums      []itunes.Album
	songs       []itunes.Song
	err         error
	albumCalls  int
	songCalls   int
	lookupCalls int
}

func (f *fakeCatalog) SearchAlbums(_ context.Context, _ string, limit int) ([]itunes.Album, error) {
	f.albumCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.albums[:min(limit, len(f.albums))], nil
}

func (f *fakeCatalog) SearchSongs(_ context.Context, _ string, limit int) ([]itunes.Song, error) {
	f.songCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.songs[:min(limit, len(f.songs))], nil
}

func (f *fakeCatalog) LookupAlbum(_ context.Context, id int64) (*itunes.Album, error) {
	f.lookupCalls++
	if f.err != nil {
		return nil, f.err
	}
	for _, a := range f.albums {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, domainerrors.NotFoundf("album %d not found", id)
}

type recordingTracker struct {
	mu      sync.Mutex
	queries []string
	counts  []*int
	visits  []tracking.AlbumVisit
	direct  []bool
	batches [][]tracking.AlbumVisit
}

func (r *recordingTracker) TrackSearchQuery(query string, resultCount *int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, query)
	r.counts = append(r.counts, resultCount)
}

func (r *recordingTracker) TrackAlbumPage(visit tracking.AlbumVisit, isDirectVisit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visits = append(r.visits, visit)
	r.direct = append(r.direct, isDirectVisit)
}

func (r *recordingTracker) TrackAlbumPages(visits []tracking.AlbumVisit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, visits)
}

func sampleAlbums() []itunes.Album {
	return []itunes.Album{
		{ID: 617154241, Title: "Random Access Memories", Artist: "Daft Punk", Kind: itunes.KindAlbum},
		{ID: 697194953, Title: "Discovery", Artist: "Daft Punk", Kind: itunes.KindAlbum},
		{ID: 1440857781, Title: "Get Lucky - Single", Artist: "Daft Punk", Kind: itunes.KindSingle},
	}
}

func sampleSongs() []itunes.Song {
	return []itunes.Song{
		{ID: 617154366, Title: "Get Lucky", Artist: "Daft Punk", AlbumID: 617154241, AlbumTitle: "Random Access Memories"},
		{ID: 617154400, Title: "Doin' It Right", Artist: "Daft Punk", AlbumID: 617154241, AlbumTitle: "Random Access Memories"},
		{ID: 697195462, Title: "One More Time", Artist: "Daft Punk", AlbumID: 697194953, AlbumTitle: "Discovery"},
	}
}

func setupCatalogService(t *testing.T, withCache bool) (*CatalogService, *fakeCatalog, *recordingTracker) {
	t.Helper()

	client := &fakeCatalog{albums: sampleAlbums(), songs: sampleSongs()}
	tracker := &recordingTracker{}

	var cache CatalogCache
	if withCache {
		s, err := store.NewInMemory(logger.Discard())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		cache = s
	}

	return NewCatalogService(client, cache, tracker, "us", logger.Discard()), client, tracker
}

func TestCatalogService_SearchTracksQueryAndAppearances(t *testing.T) {
	svc, _, tracker := setupCatalogService(t, false)

	result, err := svc.Search(context.Background(), "  daft punk ", SearchAlbums, 0)
	require.NoError(t, err)

	assert.Equal(t, "daft punk", result.Query)
	require.Len(t, result.Albums, 3)
	assert.Empty(t, result.Songs)
	assert.Equal(t, "daft-punk-random-access-memories", result.Albums[0].Slug)

	require.Equal(t, []string{"daft punk"}, tracker.queries)
	require.NotNil(t, tracker.counts[0])
	assert.Equal(t, 3, *tracker.counts[0])

	require.Len(t, tracker.batches, 1)
	require.Len(t, tracker.batches[0], 3)
	assert.Equal(t, tracking.AlbumVisit{
		AlbumID: "617154241",
		Artist:  "Daft Punk",
		Title:   "Random Access Memories",
		Slug:    "daft-punk-random-access-memories",
	}, tracker.batches[0][0])
	assert.Empty(t, tracker.visits)
}

func TestCatalogService_SearchSongsDedupesAlbumAppearances(t *testing.T) {
	svc, _, tracker := setupCatalogService(t, false)

	result, err := svc.Search(context.Background(), "get lucky", SearchSongs, 10)
	require.NoError(t, err)
	require.Len(t, result.Songs, 3)
	assert.Equal(t, "daft-punk-discovery", result.Songs[2].AlbumSlug)

	require.Len(t, tracker.batches, 1)
	ids := make([]string, 0, len(tracker.batches[0]))
	for _, v := range tracker.batches[0] {
		ids = append(ids, v.AlbumID)
	}
	assert.Equal(t, []string{"617154241", "697194953"}, ids)
}

func TestCatalogService_SearchAllCombines(t *testing.T) {
	svc, client, tracker := setupCatalogService(t, false)

	result, err := svc.Search(context.Background(), "daft punk", SearchAll, 2)
	require.NoError(t, err)

	assert.Len(t, result.Albums, 2)
	assert.Len(t, result.Songs, 2)
	assert.Equal(t, 4, result.Total())
	assert.Equal(t, 1, client.albumCalls)
	assert.Equal(t, 1, client.songCalls)
	assert.Equal(t, 4, *tracker.counts[0])

	// Song albums already shown as album cards are not counted twice.
	assert.Len(t, tracker.batches[0], 2)
}

func TestCatalogService_SearchNoResults(t *testing.T) {
	svc, client, tracker := setupCatalogService(t, false)
	client.albums = nil

	result, err := svc.Search(context.Background(), "zzzz", SearchAlbums, 5)
	require.NoError(t, err)

	assert.NotNil(t, result.Albums)
	assert.Empty(t, result.Albums)
	require.Len(t, tracker.counts, 1)
	assert.Equal(t, 0, *tracker.counts[0])
	assert.Empty(t, tracker.batches)
}

func TestCatalogService_SearchValidation(t *testing.T) {
	svc, client, tracker := setupCatalogService(t, false)

	_, err := svc.Search(context.Background(), "   ", SearchAlbums, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
	assert.Zero(t, client.albumCalls)
	assert.Empty(t, tracker.queries)
}

func TestCatalogService_SearchUpstreamErrorIsNotTracked(t *testing.T) {
	svc, client, tracker := setupCatalogService(t, false)
	client.err = domainerrors.Unavailable("music catalog unavailable")

	_, err := svc.Search(context.Background(), "daft punk", SearchAlbums, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrUnavailable)
	assert.Empty(t, tracker.queries)
}

func TestCatalogService_SearchUsesCache(t *testing.T) {
	svc, client, tracker := setupCatalogService(t, true)
	ctx := context.Background()

	_, err := svc.Search(ctx, "Daft Punk", SearchAlbums, 5)
	require.NoError(t, err)

	client.err = errors.New("upstream should not be called")
	result, err := svc.Search(ctx, "daft punk", SearchAlbums, 2)
	require.NoError(t, err)

	assert.Equal(t, 1, client.albumCalls)
	assert.Len(t, result.Albums, 2)
	assert.Len(t, tracker.queries, 2)
}

func TestCatalogService_AlbumTracksDirectVisit(t *testing.T) {
	svc, client, tracker := setupCatalogService(t, true)
	ctx := context.Background()

	album, err := svc.Album(ctx, 697194953)
	require.NoError(t, err)
	assert.Equal(t, "Discovery", album.Title)
	assert.Equal(t, "daft-punk-discovery", album.Slug)

	require.Len(t, tracker.visits, 1)
	assert.True(t, tracker.direct[0])
	assert.Equal(t, "697194953", tracker.visits[0].AlbumID)

	// Second lookup is served from cache but still counts as a visit.
	_, err = svc.Album(ctx, 697194953)
	require.NoError(t, err)
	assert.Equal(t, 1, client.lookupCalls)
	assert.Len(t, tracker.visits, 2)
}

func TestCatalogService_AlbumErrors(t *testing.T) {
	svc, _, tracker := setupCatalogService(t, false)
	ctx := context.Background()

	_, err := svc.Album(ctx, 0)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = svc.Album(ctx, 42)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	assert.Empty(t, tracker.visits)
}

func TestParseSearchKind(t *testing.T) {
	tests := []struct {
		input   string
		want    SearchKind
		wantErr bool
	}{
		{"", SearchAlbums, false},
		{"album", SearchAlbums, false},
		{"SONG", SearchSongs, false},
		{" all ", SearchAll, false},
		{"podcast", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSearchKind(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, domainerrors.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClampSearchLimit(t *testing.T) {
	assert.Equal(t, DefaultSearchLimit, clampSearchLimit(0))
	assert.Equal(t, DefaultSearchLimit, clampSearchLimit(-3))
	assert.Equal(t, 10, clampSearchLimit(10))
	assert.Equal(t, MaxSearchLimit, clampSearchLimit(500))
}
