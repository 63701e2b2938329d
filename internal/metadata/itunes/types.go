// Package itunes provides a client for the Apple iTunes Search API, used to find albums,
// singles and songs together with their cover artwork.
package itunes

import "strings"

// Kind classifies a collection.
type Kind string

// Collection kinds. iTunes reports every collection as "Album" and marks singles and EPs
// with a suffix on the collection name.
const (
	KindAlbum  Kind = "album"
	KindSingle Kind = "single"
	KindEP     Kind = "ep"
)

// Album is an album, single or EP from the catalog.
type Album struct {
	ID           int64  `json:"id"` // iTunes collectionId
	Title        string `json:"title"`
	Artist       string `json:"artist"`
	Kind         Kind   `json:"kind"`
	CoverURL     string `json:"coverUrl"`     // full resolution artwork
	ThumbnailURL string `json:"thumbnailUrl"` // 600x600 artwork for result cards
	TrackCount   int    `json:"trackCount,omitempty"`
	ReleaseDate  string `json:"releaseDate,omitempty"`
	Genre        string `json:"genre,omitempty"`
	Explicit     bool   `json:"explicit,omitempty"`
	ViewURL      string `json:"viewUrl,omitempty"`
}

// Song is a single track together with the collection it belongs to.
type Song struct {
	ID           int64  `json:"id"` // iTunes trackId
	Title        string `json:"title"`
	Artist       string `json:"artist"`
	AlbumID      int64  `json:"albumId"`
	AlbumTitle   string `json:"albumTitle"`
	CoverURL     string `json:"coverUrl"`
	ThumbnailURL string `json:"thumbnailUrl"`
	ReleaseDate  string `json:"releaseDate,omitempty"`
	PreviewURL   string `json:"previewUrl,omitempty"`
}

// searchResponse is the raw iTunes API response, shared by /search and /lookup.
type searchResponse struct {
	ResultCount int            `json:"resultCount"`
	Results     []searchResult `json:"results"`
}

// searchResult is a single result from iTunes search or lookup.
type searchResult struct {
	WrapperType            string `json:"wrapperType"`
	Kind                   string `json:"kind"`
	CollectionType         string `json:"collectionType"`
	CollectionID           int64  `json:"collectionId"`
	TrackID                int64  `json:"trackId"`
	CollectionName         string `json:"collectionName"`
	TrackName              string `json:"trackName"`
	ArtistName             string `json:"artistName"`
	ArtworkURL60           string `json:"artworkUrl60"`
	ArtworkURL100          string `json:"artworkUrl100"`
	CollectionViewURL      string `json:"collectionViewUrl"`
	PreviewURL             string `json:"previewUrl"`
	TrackCount             int    `json:"trackCount,omitempty"`
	ReleaseDate            string `json:"releaseDate,omitempty"`
	PrimaryGenreName       string `json:"primaryGenreName,omitempty"`
	CollectionExplicitness string `json:"collectionExplicitness,omitempty"`
}

func (r *searchResult) isCollection() bool {
	return r.WrapperType == "collection" && r.CollectionType == "Album"
}

func (r *searchResult) isSong() bool {
	return r.WrapperType == "track" && r.Kind == "song"
}

func (r *searchResult) artwork() string {
	if r.ArtworkURL100 != "" {
		return r.ArtworkURL100
	}
	return r.ArtworkURL60
}

func (r *searchResult) toAlbum() Album {
	artwork := r.artwork()
	return Album{
		ID:           r.CollectionID,
		Title:        r.CollectionName,
		Artist:       r.ArtistName,
		Kind:         kindOf(r.CollectionName),
		CoverURL:     MaxCoverURL(artwork),
		ThumbnailURL: CoverURL(artwork, ThumbnailSize),
		TrackCount:   r.TrackCount,
		ReleaseDate:  r.ReleaseDate,
		Genre:        r.PrimaryGenreName,
		Explicit:     r.CollectionExplicitness == "explicit",
		ViewURL:      r.CollectionViewURL,
	}
}

func (r *searchResult) toSong() Song {
	artwork := r.artwork()
	return Song{
		ID:           r.TrackID,
		Title:        r.TrackName,
		Artist:       r.ArtistName,
		AlbumID:      r.CollectionID,
		AlbumTitle:   r.CollectionName,
		CoverURL:     MaxCoverURL(artwork),
		ThumbnailURL: CoverURL(artwork, ThumbnailSize),
		ReleaseDate:  r.ReleaseDate,
		PreviewURL:   r.PreviewURL,
	}
}

func kindOf(collectionName string) Kind {
	switch {
	case strings.HasSuffix(collectionName, " - Single"):
		return KindSingle
	case strings.HasSuffix(collectionName, " - EP"):
		return KindEP
	default:
		return KindAlbum
	}
}
