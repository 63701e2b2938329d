package api

import (
	"context"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/coverfinder-server/internal/config"
	domainerrors "github.com/listenupapp/coverfinder-server/internal/errors"
	"github.com/listenupapp/coverfinder-server/internal/logger"
	"github.com/listenupapp/coverfinder-server/internal/metadata/itunes"
	"github.com/listenupapp/coverfinder-server/internal/service"
	"github.com/listenupapp/coverfinder-server/internal/sitemap"
	"github.com/listenupapp/coverfinder-server/internal/store"
	"github.com/listenupapp/coverfinder-server/internal/tracking"
)

// fakeCatalog serves a fixed set of albums.
type fakeCatalog struct {
	albums []itunes.Album
	err    error
}

func (f *fakeCatalog) SearchAlbums(_ context.Context, _ string, limit int) ([]itunes.Album, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.albums[:min(limit, len(f.albums))], nil
}

func (f *fakeCatalog) SearchSongs(_ context.Context, _ string, _ int) ([]itunes.Song, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []itunes.Song{}, nil
}

func (f *fakeCatalog) LookupAlbum(_ context.Context, id int64) (*itunes.Album, error) {
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

type testServer struct {
	*Server
	api     humatest.TestAPI
	tracker *tracking.Tracker
	catalog *fakeCatalog
}

func testConfig() *config.Config {
	return &config.Config{
		App:    config.AppConfig{Environment: "development"},
		Logger: config.LoggerConfig{Level: "info"},
		Server: config.ServerConfig{
			Name:                    "Cover Finder Test",
			PublicURL:               "https://covers.example.com",
			CORSOrigins:             []string{"*"},
			RateLimitPerMinute:      1000,
			TrackRateLimitPerMinute: 600,
			TrackRateLimitBurst:     100,
		},
		Sitemap: config.SitemapConfig{MaxQueries: 100, MaxAlbums: 500},
	}
}

// setupTestServer creates a test server over an in-memory store.
// Optional modifiers adjust the config before the server is built.
func setupTestServer(t *testing.T, modify ...func(*config.Config)) *testServer {
	t.Helper()

	cfg := testConfig()
	for _, m := range modify {
		m(cfg)
	}

	log := logger.Discard()

	st, err := store.NewInMemory(log)
	require.NoError(t, err)

	tracker := tracking.New(st, tracking.Options{BatchSaveInterval: time.Hour}, log)
	catalog := &fakeCatalog{albums: []itunes.Album{
		{ID: 617154241, Title: "Random Access Memories", Artist: "Daft Punk", Kind: itunes.KindAlbum},
		{ID: 697194953, Title: "Discovery", Artist: "Daft Punk", Kind: itunes.KindAlbum},
	}}

	services := &Services{
		Catalog: service.NewCatalogService(catalog, st, tracker, "US", log),
		Tracker: tracker,
		Sitemap: sitemap.NewBuilder(tracker, sitemap.Options{
			BaseURL:    cfg.Server.PublicURL,
			MaxQueries: cfg.Sitemap.MaxQueries,
			MaxAlbums:  cfg.Sitemap.MaxAlbums,
		}),
	}

	srv := NewServer(st, services, cfg, log)

	t.Cleanup(func() {
		srv.Close()
		_ = tracker.Close(context.Background())
		_ = st.Close()
	})

	return &testServer{
		Server:  srv,
		api:     humatest.Wrap(t, srv.API()),
		tracker: tracker,
		catalog: catalog,
	}
}
