package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/listenupapp/coverfinder-server/internal/errors"
	"github.com/listenupapp/coverfinder-server/internal/sitemap"
	"github.com/listenupapp/coverfinder-server/internal/tracking"
)

func (s *Server) registerStatsRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getPopularQueries",
		Method:      http.MethodGet,
		Path:        "/api/v1/popular/queries",
		Summary:     "Popular searches",
		Description: "Returns the most searched queries, most visited first",
		Tags:        []string{"Stats"},
	}, s.handlePopularQueries)

	huma.Register(s.api, huma.Operation{
		OperationID: "getPopularAlbums",
		Method:      http.MethodGet,
		Path:        "/api/v1/popular/albums",
		Summary:     "Popular albums",
		Description: "Returns the album pages with the most appearances and visits",
		Tags:        []string{"Stats"},
	}, s.handlePopularAlbums)

	huma.Register(s.api, huma.Operation{
		OperationID: "getStats",
		Method:      http.MethodGet,
		Path:        "/api/v1/stats",
		Summary:     "Activity statistics",
		Description: "Totals and top entries for the stats dashboard",
		Tags:        []string{"Stats"},
	}, s.handleStats)
}

func (s *Server) registerMaintenanceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "cleanupActivity",
		Method:      http.MethodPost,
		Path:        "/api/v1/maintenance/cleanup",
		Summary:     "Run retention",
		Description: "Drops old low-activity records and saves both activity logs",
		Tags:        []string{"Maintenance"},
	}, s.handleCleanup)

	huma.Register(s.api, huma.Operation{
		OperationID: "flushActivity",
		Method:      http.MethodPost,
		Path:        "/api/v1/maintenance/flush",
		Summary:     "Flush activity",
		Description: "Writes pending activity to the store immediately",
		Tags:        []string{"Maintenance"},
	}, s.handleFlush)
}

// === DTOs ===

// PopularInput bounds a popularity listing.
type PopularInput struct {
	Limit int `query:"limit" minimum:"1" maximum:"100" default:"10" doc:"Number of entries"`
}

// PopularQueriesResponse lists query display strings by rank.
type PopularQueriesResponse struct {
	Queries []string `json:"queries" doc:"Queries, most visited first"`
}

// PopularQueriesOutput wraps the popular queries response for Huma.
type PopularQueriesOutput struct {
	CacheControl string `header:"Cache-Control"`
	Body         PopularQueriesResponse
}

// PopularAlbum is an album page record with its ranking metric and page path.
type PopularAlbum struct {
	tracking.AlbumPageRecord
	Popularity int    `json:"popularity" doc:"Search appearances plus direct visits"`
	Path       string `json:"path" doc:"Album page path"`
}

// PopularAlbumsResponse lists album pages by rank.
type PopularAlbumsResponse struct {
	Albums []PopularAlbum `json:"albums" doc:"Album pages, most popular first"`
}

// PopularAlbumsOutput wraps the popular albums response for Huma.
type PopularAlbumsOutput struct {
	CacheControl string `header:"Cache-Control"`
	Body         PopularAlbumsResponse
}

// StatsOutput wraps the statistics for Huma.
type StatsOutput struct {
	CacheControl string `header:"Cache-Control"`
	Body         tracking.Statistics
}

// MaintenanceInput carries the maintenance token.
type MaintenanceInput struct {
	Token string `header:"X-Maintenance-Token" doc:"Required when the server has a maintenance token configured"`
}

// CleanupResponse reports a retention run.
type CleanupResponse struct {
	Cutoff         string `json:"cutoff" doc:"Records last seen before this date were eligible"`
	QueriesRemoved int    `json:"queriesRemoved"`
	AlbumsRemoved  int    `json:"albumsRemoved"`
}

// CleanupOutput wraps the cleanup response for Huma.
type CleanupOutput struct {
	Body CleanupResponse
}

// FlushResponse reports whether unsaved activity remains.
type FlushResponse struct {
	Pending bool `json:"pending" doc:"True when some activity could not be saved"`
}

// FlushOutput wraps the flush response for Huma.
type FlushOutput struct {
	Body FlushResponse
}

// === Handlers ===

func (s *Server) handlePopularQueries(ctx context.Context, input *PopularInput) (*PopularQueriesOutput, error) {
	queries := s.services.Tracker.GetPopularSearchQueries(ctx, input.Limit)

	return &PopularQueriesOutput{
		CacheControl: CacheNoStore,
		Body:         PopularQueriesResponse{Queries: queries},
	}, nil
}

func (s *Server) handlePopularAlbums(ctx context.Context, input *PopularInput) (*PopularAlbumsOutput, error) {
	records := s.services.Tracker.GetPopularAlbumPages(ctx, input.Limit)

	albums := make([]PopularAlbum, len(records))
	for i, r := range records {
		albums[i] = PopularAlbum{
			AlbumPageRecord: r,
			Popularity:      r.Popularity(),
			Path:            sitemap.AlbumPath(r.AlbumID, r.Slug),
		}
	}

	return &PopularAlbumsOutput{
		CacheControl: CacheNoStore,
		Body:         PopularAlbumsResponse{Albums: albums},
	}, nil
}

func (s *Server) handleStats(ctx context.Context, _ *struct{}) (*StatsOutput, error) {
	return &StatsOutput{
		CacheControl: CacheNoStore,
		Body:         s.services.Tracker.GetSearchStatistics(ctx),
	}, nil
}

func (s *Server) handleCleanup(ctx context.Context, input *MaintenanceInput) (*CleanupOutput, error) {
	if err := s.checkMaintenanceToken(input.Token); err != nil {
		return nil, err
	}

	result, err := s.services.Tracker.CleanOldData(ctx)
	if err != nil {
		return nil, toAPIError(domainerrors.Wrap(err, domainerrors.CodeUnavailable, "retention run could not complete"))
	}

	return &CleanupOutput{Body: CleanupResponse{
		Cutoff:         result.Cutoff.Format(time.DateOnly),
		QueriesRemoved: result.QueriesRemoved,
		AlbumsRemoved:  result.AlbumsRemoved,
	}}, nil
}

func (s *Server) handleFlush(ctx context.Context, input *MaintenanceInput) (*FlushOutput, error) {
	if err := s.checkMaintenanceToken(input.Token); err != nil {
		return nil, err
	}

	if err := s.services.Tracker.FlushPendingData(ctx); err != nil {
		s.logger.Warn("manual flush failed", "error", err)
	}

	return &FlushOutput{Body: FlushResponse{Pending: s.services.Tracker.Pending()}}, nil
}

// checkMaintenanceToken allows every caller when no token is configured.
func (s *Server) checkMaintenanceToken(token string) error {
	want := s.config.Tracking.MaintenanceToken
	if want == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(want)) != 1 {
		return toAPIError(domainerrors.Forbidden("invalid maintenance token"))
	}
	return nil
}
