package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/listenupapp/coverfinder-server/internal/metadata/itunes"
)

const (
	catalogSearchPrefix = "catalog:search:"
	catalogAlbumPrefix  = "catalog:album:"

	// Differentiated cache durations.
	searchCacheDuration = 24 * time.Hour     // High volume, changes often
	albumCacheDuration  = 7 * 24 * time.Hour // Stable once released
)

// CachedSearch wraps album and song search results with cache info.
type CachedSearch struct {
	Albums    []itunes.Album `json:"albums"`
	Songs     []itunes.Song  `json:"songs,omitempty"`
	FetchedAt time.Time      `json:"fetchedAt"`
	Country   string         `json:"country"`
	Query     string         `json:"query"`
}

// CachedAlbum wraps a looked-up album with cache info.
type CachedAlbum struct {
	Album     itunes.Album `json:"album"`
	FetchedAt time.Time    `json:"fetchedAt"`
	Country   string       `json:"country"`
}

// searchCacheKey generates a cache key for search results.
// Uses hash to handle long query strings; case and surrounding space do not matter.
func searchCacheKey(country, entity, query string) []byte {
	hash := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	hashStr := hex.EncodeToString(hash[:8]) // First 8 bytes = 16 hex chars
	return fmt.Appendf(nil, "%s%s:%s:%s", catalogSearchPrefix, country, entity, hashStr)
}

func albumCacheKey(country string, id int64) []byte {
	return fmt.Appendf(nil, "%s%s:%s", catalogAlbumPrefix, country, strconv.FormatInt(id, 10))
}

// GetCachedSearch retrieves cached search results.
// Returns nil, nil if not found or expired.
func (s *Store) GetCachedSearch(ctx context.Context, country, entity, query string) (*CachedSearch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var cached CachedSearch
	found, err := s.getFresh(searchCacheKey(country, entity, query), &cached, func() time.Time { return cached.FetchedAt }, searchCacheDuration)
	if err != nil {
		return nil, fmt.Errorf("get cached search: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &cached, nil
}

// SetCachedSearch stores search results in cache.
func (s *Store) SetCachedSearch(ctx context.Context, country, entity, query string, albums []itunes.Album, songs []itunes.Song) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cached := CachedSearch{
		Albums:    albums,
		Songs:     songs,
		FetchedAt: s.now(),
		Country:   country,
		Query:     query,
	}
	if err := s.set(searchCacheKey(country, entity, query), cached); err != nil {
		return fmt.Errorf("set cached search: %w", err)
	}
	return nil
}

// DeleteCachedSearch removes cached search results.
func (s *Store) DeleteCachedSearch(ctx context.Context, country, entity, query string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.delete(searchCacheKey(country, entity, query))
}

// GetCachedAlbum retrieves a cached album lookup.
// Returns nil, nil if not found or expired.
func (s *Store) GetCachedAlbum(ctx context.Context, country string, id int64) (*CachedAlbum, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var cached CachedAlbum
	found, err := s.getFresh(albumCacheKey(country, id), &cached, func() time.Time { return cached.FetchedAt }, albumCacheDuration)
	if err != nil {
		return nil, fmt.Errorf("get cached album: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &cached, nil
}

// SetCachedAlbum stores an album lookup in cache.
func (s *Store) SetCachedAlbum(ctx context.Context, country string, album itunes.Album) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cached := CachedAlbum{Album: album, FetchedAt: s.now(), Country: country}
	if err := s.set(albumCacheKey(country, album.ID), cached); err != nil {
		return fmt.Errorf("set cached album: %w", err)
	}
	return nil
}

// getFresh loads key into dest and reports whether it exists and is younger than ttl.
// fetchedAt is read after dest has been decoded.
func (s *Store) getFresh(key []byte, dest any, fetchedAt func() time.Time, ttl time.Duration) (bool, error) {
	err := s.get(key, dest)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	// Expired entries are treated as a cache miss.
	if s.now().Sub(fetchedAt()) > ttl {
		return false, nil
	}
	return true, nil
}
