package itunes

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	domainerrors "github.com/listenupapp/coverfinder-server/internal/errors"
)

const (
	// DefaultLimit is used when a caller passes a non-positive limit.
	DefaultLimit = 25
	// MaxLimit is the largest page iTunes will return.
	MaxLimit = 200
)

// SearchAlbums searches iTunes for albums, singles and EPs matching term.
// Returns results with high-resolution cover URLs.
func (c *Client) SearchAlbums(ctx context.Context, term string, limit int) ([]Album, error) {
	resp, err := c.search(ctx, term, "album", limit)
	if err != nil {
		return nil, err
	}

	albums := make([]Album, 0, len(resp.Results))
	for i := range resp.Results {
		r := &resp.Results[i]
		if !r.isCollection() {
			continue
		}
		albums = append(albums, r.toAlbum())
	}

	c.logger.Debug("iTunes album search results", "term", term, "raw", resp.ResultCount, "albums", len(albums))
	return albums, nil
}

// SearchSongs searches iTunes for songs matching term. Each song carries its album's cover.
func (c *Client) SearchSongs(ctx context.Context, term string, limit int) ([]Song, error) {
	resp, err := c.search(ctx, term, "song", limit)
	if err != nil {
		return nil, err
	}

	songs := make([]Song, 0, len(resp.Results))
	for i := range resp.Results {
		r := &resp.Results[i]
		if !r.isSong() {
			continue
		}
		songs = append(songs, r.toSong())
	}

	return songs, nil
}

// LookupAlbum fetches a single collection by its iTunes ID.
func (c *Client) LookupAlbum(ctx context.Context, id int64) (*Album, error) {
	if id <= 0 {
		return nil, domainerrors.Validation("album id must be positive")
	}

	params := url.Values{}
	params.Set("id", strconv.FormatInt(id, 10))
	params.Set("entity", "album")

	body, err := c.get(ctx, "lookup", params)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	for i := range resp.Results {
		r := &resp.Results[i]
		if r.isCollection() && r.CollectionID == id {
			album := r.toAlbum()
			return &album, nil
		}
	}

	return nil, domainerrors.NotFoundf("album %d not found", id)
}

func (c *Client) search(ctx context.Context, term, entity string, limit int) (*searchResponse, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, domainerrors.Validation("search term is required")
	}

	params := url.Values{}
	params.Set("term", term)
	params.Set("media", "music")
	params.Set("entity", entity)
	params.Set("limit", strconv.Itoa(clampLimit(limit)))

	body, err := c.get(ctx, "search", params)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &resp, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}
