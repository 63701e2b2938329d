package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/coverfinder-server/internal/tracking"
)

func (s *Server) registerTrackingRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "trackSearch",
		Method:        http.MethodPost,
		Path:          "/api/v1/track/search",
		Summary:       "Track search",
		Description:   "Records a search query submitted by a visitor",
		Tags:          []string{"Tracking"},
		DefaultStatus: http.StatusAccepted,
	}, s.handleTrackSearch)

	huma.Register(s.api, huma.Operation{
		OperationID:   "trackAlbum",
		Method:        http.MethodPost,
		Path:          "/api/v1/track/album",
		Summary:       "Track album page",
		Description:   "Records one album page exposure, a direct visit unless isDirectVisit is false",
		Tags:          []string{"Tracking"},
		DefaultStatus: http.StatusAccepted,
	}, s.handleTrackAlbum)

	huma.Register(s.api, huma.Operation{
		OperationID:   "trackAlbums",
		Method:        http.MethodPost,
		Path:          "/api/v1/track/albums",
		Summary:       "Track search appearances",
		Description:   "Records every album in the batch as having appeared in search results",
		Tags:          []string{"Tracking"},
		DefaultStatus: http.StatusAccepted,
	}, s.handleTrackAlbums)
}

// === DTOs ===

// TrackSearchRequest is the body for tracking a search.
type TrackSearchRequest struct {
	Query       string `json:"query" validate:"required,max=200" maxLength:"200" doc:"Query as typed by the visitor"`
	ResultCount *int   `json:"resultCount,omitempty" validate:"omitempty,gte=0" minimum:"0" doc:"Number of results shown, when known"`
}

// TrackSearchInput wraps the search tracking body.
type TrackSearchInput struct {
	Body TrackSearchRequest
}

// TrackAlbum identifies an album page.
type TrackAlbum struct {
	AlbumID string `json:"albumId" validate:"required,max=64" maxLength:"64" doc:"Catalog collection ID"`
	Artist  string `json:"artist" validate:"required,max=300" maxLength:"300" doc:"Artist display name"`
	Title   string `json:"title" validate:"required,max=300" maxLength:"300" doc:"Album display title"`
	Slug    string `json:"slug,omitempty" validate:"omitempty,max=300" maxLength:"300" doc:"URL slug; derived from the title when empty"`
}

func (a TrackAlbum) visit() tracking.AlbumVisit {
	return tracking.AlbumVisit{AlbumID: a.AlbumID, Artist: a.Artist, Title: a.Title, Slug: a.Slug}
}

// TrackAlbumRequest is the body for tracking one album page.
type TrackAlbumRequest struct {
	TrackAlbum
	IsDirectVisit *bool `json:"isDirectVisit,omitempty" doc:"False records a search appearance instead of a visit (default true)"`
}

// TrackAlbumInput wraps the album tracking body.
type TrackAlbumInput struct {
	Body TrackAlbumRequest
}

// TrackAlbumsRequest is the body for batch appearance tracking.
type TrackAlbumsRequest struct {
	Albums []TrackAlbum `json:"albums" validate:"required,min=1,max=200,dive" minItems:"1" maxItems:"200" doc:"Albums shown on one results page"`
}

// TrackAlbumsInput wraps the batch tracking body.
type TrackAlbumsInput struct {
	Body TrackAlbumsRequest
}

// TrackResponse acknowledges a tracking event. Events are applied asynchronously.
type TrackResponse struct {
	Accepted int `json:"accepted" doc:"Number of events queued"`
}

// TrackOutput wraps the acknowledgement for Huma.
type TrackOutput struct {
	Body TrackResponse
}

// === Handlers ===

func (s *Server) handleTrackSearch(ctx context.Context, input *TrackSearchInput) (*TrackOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, toAPIError(err)
	}
	if err := s.allowTrack(ctx, "/api/v1/track/search"); err != nil {
		return nil, err
	}

	s.services.Tracker.TrackSearchQuery(input.Body.Query, input.Body.ResultCount)

	return &TrackOutput{Body: TrackResponse{Accepted: 1}}, nil
}

func (s *Server) handleTrackAlbum(ctx context.Context, input *TrackAlbumInput) (*TrackOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, toAPIError(err)
	}
	if err := s.allowTrack(ctx, "/api/v1/track/album", input.Body.AlbumID); err != nil {
		return nil, err
	}

	direct := input.Body.IsDirectVisit == nil || *input.Body.IsDirectVisit
	s.services.Tracker.TrackAlbumPage(input.Body.visit(), direct)

	return &TrackOutput{Body: TrackResponse{Accepted: 1}}, nil
}

func (s *Server) handleTrackAlbums(ctx context.Context, input *TrackAlbumsInput) (*TrackOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, toAPIError(err)
	}
	if err := s.allowTrack(ctx, "/api/v1/track/albums"); err != nil {
		return nil, err
	}

	visits := make([]tracking.AlbumVisit, len(input.Body.Albums))
	for i, a := range input.Body.Albums {
		visits[i] = a.visit()
	}
	s.services.Tracker.TrackAlbumPages(visits)

	return &TrackOutput{Body: TrackResponse{Accepted: len(visits)}}, nil
}
