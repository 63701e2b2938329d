package api

import (
	"net/http"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/coverfinder-server/internal/config"
	domainerrors "github.com/listenupapp/coverfinder-server/internal/errors"
)

func TestTrackSearch_VisibleImmediately(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/track/search", map[string]any{"query": "Daft Punk", "resultCount": 12})
	require.Equal(t, http.StatusAccepted, resp.Code, resp.Body.String())

	ts.api.Post("/api/v1/track/search", map[string]any{"query": "daft punk"})
	ts.api.Post("/api/v1/track/search", map[string]any{"query": "taylor swift"})

	popular := ts.api.Get("/api/v1/popular/queries?limit=5")
	require.Equal(t, http.StatusOK, popular.Code)

	var body PopularQueriesResponse
	require.NoError(t, json.Unmarshal(popular.Body.Bytes(), &body))
	assert.Equal(t, []string{"Daft Punk", "taylor swift"}, body.Queries)
}

func TestTrackSearch_RejectedQueriesAreAccepted(t *testing.T) {
	ts := setupTestServer(t)

	// Stop words are acknowledged but never recorded.
	resp := ts.api.Post("/api/v1/track/search", map[string]any{"query": "the"})
	assert.Equal(t, http.StatusAccepted, resp.Code)

	popular := ts.api.Get("/api/v1/popular/queries")
	var body PopularQueriesResponse
	require.NoError(t, json.Unmarshal(popular.Body.Bytes(), &body))
	assert.Empty(t, body.Queries)
}

func TestTrackSearch_Validation(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/track/search", map[string]any{"query": ""})

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	var apiErr APIError
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &apiErr))
	assert.Equal(t, string(domainerrors.CodeValidation), apiErr.Code)
}

func TestTrackAlbum_DirectAndAppearance(t *testing.T) {
	ts := setupTestServer(t)

	album := map[string]any{"albumId": "617154241", "artist": "Daft Punk", "title": "Random Access Memories"}
	resp := ts.api.Post("/api/v1/track/album", album)
	require.Equal(t, http.StatusAccepted, resp.Code, resp.Body.String())

	appearance := map[string]any{
		"albumId":       "617154241",
		"artist":        "Daft Punk",
		"title":         "Random Access Memories",
		"isDirectVisit": false,
	}
	ts.api.Post("/api/v1/track/album", appearance)

	popular := ts.api.Get("/api/v1/popular/albums")
	var body PopularAlbumsResponse
	require.NoError(t, json.Unmarshal(popular.Body.Bytes(), &body))
	require.Len(t, body.Albums, 1)

	got := body.Albums[0]
	assert.Equal(t, 1, got.DirectVisits)
	assert.Equal(t, 1, got.SearchAppearances)
	assert.Equal(t, 2, got.Popularity)
	assert.Equal(t, "random-access-memories", got.Slug)
	assert.Equal(t, "/album/617154241/random-access-memories", got.Path)
}

func TestTrackAlbums_Batch(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/track/albums", map[string]any{
		"albums": []map[string]any{
			{"albumId": "1", "artist": "Daft Punk", "title": "Homework", "slug": "daft-punk-homework"},
			{"albumId": "2", "artist": "Daft Punk", "title": "Discovery"},
			{"albumId": "1", "artist": "Daft Punk", "title": "Homework"},
		},
	})
	require.Equal(t, http.StatusAccepted, resp.Code, resp.Body.String())

	var ack TrackResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &ack))
	assert.Equal(t, 3, ack.Accepted)

	popular := ts.api.Get("/api/v1/popular/albums")
	var body PopularAlbumsResponse
	require.NoError(t, json.Unmarshal(popular.Body.Bytes(), &body))
	require.Len(t, body.Albums, 2)
	assert.Equal(t, "1", body.Albums[0].AlbumID)
	assert.Equal(t, 2, body.Albums[0].SearchAppearances)
	assert.Equal(t, "daft-punk-homework", body.Albums[0].Slug)
}

func TestTrackAlbums_EmptyBatch(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/track/albums", map[string]any{"albums": []any{}})

	assert.GreaterOrEqual(t, resp.Code, http.StatusBadRequest)
	assert.Less(t, resp.Code, http.StatusInternalServerError)
}

func TestTrack_RateLimitedPerClient(t *testing.T) {
	ts := setupTestServer(t, func(cfg *config.Config) {
		cfg.Server.TrackRateLimitPerMinute = 1
		cfg.Server.TrackRateLimitBurst = 2
	})

	for range 2 {
		resp := ts.api.Post("/api/v1/track/search", map[string]any{"query": "daft punk"})
		require.Equal(t, http.StatusAccepted, resp.Code)
	}

	resp := ts.api.Post("/api/v1/track/search", map[string]any{"query": "daft punk"})
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)

	var apiErr APIError
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &apiErr))
	assert.Equal(t, string(domainerrors.CodeRateLimited), apiErr.Code)

	// Album tracking is keyed by album as well, so a different album still has tokens.
	album := map[string]any{"albumId": "1", "artist": "Daft Punk", "title": "Homework"}
	assert.Equal(t, http.StatusAccepted, ts.api.Post("/api/v1/track/album", album).Code)
}
