package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/coverfinder-server/internal/service"
)

func (s *Server) registerCatalogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "searchCatalog",
		Method:      http.MethodGet,
		Path:        "/api/v1/search",
		Summary:     "Search covers",
		Description: "Searches the music catalog for albums, singles and songs. The query and every album shown are recorded as visitor activity.",
		Tags:        []string{"Catalog"},
	}, s.handleSearch)

	huma.Register(s.api, huma.Operation{
		OperationID: "getAlbum",
		Method:      http.MethodGet,
		Path:        "/api/v1/albums/{id}",
		Summary:     "Get album",
		Description: "Looks up one album with full resolution cover artwork and records a page visit",
		Tags:        []string{"Catalog"},
	}, s.handleGetAlbum)
}

// === DTOs ===

// SearchInput contains parameters for searching the catalog.
type SearchInput struct {
	Query string `query:"q" required:"true" minLength:"1" maxLength:"200" doc:"Search query"`
	Type  string `query:"type" enum:"album,song,all" default:"album" doc:"Which entities to return"`
	Limit int    `query:"limit" minimum:"0" maximum:"50" doc:"Max results per entity (default 25)"`
}

// SearchOutput wraps the search response for Huma.
type SearchOutput struct {
	CacheControl string `header:"Cache-Control"`
	Body         *service.SearchResult
}

// AlbumInput identifies an album by its catalog collection ID.
type AlbumInput struct {
	ID int64 `path:"id" minimum:"1" doc:"Catalog collection ID"`
}

// AlbumOutput wraps the album response for Huma.
type AlbumOutput struct {
	CacheControl string `header:"Cache-Control"`
	Body         *service.AlbumResult
}

// === Handlers ===

func (s *Server) handleSearch(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
	kind, err := service.ParseSearchKind(input.Type)
	if err != nil {
		return nil, toAPIError(err)
	}

	result, err := s.services.Catalog.Search(ctx, input.Query, kind, input.Limit)
	if err != nil {
		s.logger.Warn("catalog search failed", "query", input.Query, "error", err)
		return nil, toAPIError(err)
	}

	return &SearchOutput{CacheControl: CacheNoStore, Body: result}, nil
}

func (s *Server) handleGetAlbum(ctx context.Context, input *AlbumInput) (*AlbumOutput, error) {
	album, err := s.services.Catalog.Album(ctx, input.ID)
	if err != nil {
		s.logger.Warn("album lookup failed", "album_id", input.ID, "error", err)
		return nil, toAPIError(err)
	}

	return &AlbumOutput{CacheControl: CacheNoStore, Body: album}, nil
}
