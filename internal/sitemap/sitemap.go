// Package sitemap builds the site's sitemap.xml from static pages and tracked visitor activity.
package sitemap

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/listenupapp/coverfinder-server/internal/tracking"
)

// Change frequencies understood by search engines.
const (
	Daily   = "daily"
	Weekly  = "weekly"
	Monthly = "monthly"
)

// Defaults for the dynamic part of the sitemap.
const (
	DefaultMaxQueries = 100
	DefaultMaxAlbums  = 500

	// MinQueryLength filters out queries too short to be useful landing pages.
	MinQueryLength = 3
)

// Priority bands. Rank 0 gets the high end, the last entry the low end.
const (
	queryPriorityHigh = 0.8
	queryPriorityLow  = 0.5
	albumPriorityHigh = 0.7
	albumPriorityLow  = 0.4
)

const xmlns = "http://www.sitemaps.org/schemas/sitemap/0.9"

// Source is the read side of the activity tracker.
type Source interface {
	GetPopularSearchQueries(ctx context.Context, limit int) []string
	GetPopularAlbumPages(ctx context.Context, limit int) []tracking.AlbumPageRecord
}

// URL is one sitemap entry.
type URL struct {
	Loc        string
	LastMod    time.Time // zero omits <lastmod>
	ChangeFreq string
	Priority   float64
}

// StaticPage is a fixed page listed ahead of the tracked ones.
type StaticPage struct {
	Path       string
	ChangeFreq string
	Priority   float64
}

// DefaultStaticPages are the site's fixed pages.
var DefaultStaticPages = []StaticPage{
	{Path: "/", ChangeFreq: Daily, Priority: 1.0},
	{Path: "/blog", ChangeFreq: Weekly, Priority: 0.6},
	{Path: "/terms", ChangeFreq: Monthly, Priority: 0.3},
	{Path: "/privacy", ChangeFreq: Monthly, Priority: 0.3},
}

// Options configures a Builder.
type Options struct {
	BaseURL     string
	MaxQueries  int
	MaxAlbums   int
	StaticPages []StaticPage // nil uses DefaultStaticPages
	Now         func() time.Time
}

// Builder assembles sitemap entries.
type Builder struct {
	source Source
	opts   Options
}

// NewBuilder creates a sitemap builder over source.
func NewBuilder(source Source, opts Options) *Builder {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.StaticPages == nil {
		opts.StaticPages = DefaultStaticPages
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Builder{source: source, opts: opts}
}

// Build returns static pages, then one entry per popular query, then one per popular
// album page. Locations are unique.
func (b *Builder) Build(ctx context.Context) []URL {
	now := b.opts.Now().UTC()
	seen := make(map[string]bool)
	urls := make([]URL, 0, len(b.opts.StaticPages)+b.opts.MaxQueries+b.opts.MaxAlbums)

	add := func(u URL) {
		if seen[u.Loc] {
			return
		}
		seen[u.Loc] = true
		urls = append(urls, u)
	}

	for _, p := range b.opts.StaticPages {
		add(URL{Loc: b.opts.BaseURL + p.Path, LastMod: now, ChangeFreq: p.ChangeFreq, Priority: p.Priority})
	}

	if b.opts.MaxQueries > 0 {
		var queries []string
		for _, q := range b.source.GetPopularSearchQueries(ctx, b.opts.MaxQueries) {
			if q = strings.TrimSpace(q); utf8.RuneCountInString(q) >= MinQueryLength {
				queries = append(queries, q)
			}
		}
		for i, q := range queries {
			add(URL{
				Loc:        b.opts.BaseURL + "/search?q=" + url.QueryEscape(q),
				LastMod:    now,
				ChangeFreq: Daily,
				Priority:   rankPriority(i, len(queries), queryPriorityHigh, queryPriorityLow),
			})
		}
	}

	if b.opts.MaxAlbums > 0 {
		albums := b.source.GetPopularAlbumPages(ctx, b.opts.MaxAlbums)
		for i, a := range albums {
			add(URL{
				Loc:        b.opts.BaseURL + AlbumPath(a.AlbumID, a.Slug),
				LastMod:    a.LastSeen.UTC(),
				ChangeFreq: Weekly,
				Priority:   rankPriority(i, len(albums), albumPriorityHigh, albumPriorityLow),
			})
		}
	}

	return urls
}

// AlbumPath is the page path of an album: /album/{id}/{slug}, or /album/{id} without a slug.
func AlbumPath(albumID, slug string) string {
	p := "/album/" + url.PathEscape(albumID)
	if slug != "" {
		p += "/" + url.PathEscape(slug)
	}
	return p
}

// rankPriority interpolates linearly from high (rank 0) to low (last rank).
func rankPriority(rank, total int, high, low float64) float64 {
	if total <= 1 {
		return high
	}
	return high - (high-low)*float64(rank)/float64(total-1)
}

type urlset struct {
	XMLName xml.Name `xml:"urlset"`
	Xmlns   string   `xml:"xmlns,attr"`
	URLs    []xmlURL `xml:"url"`
}

type xmlURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

// WriteXML renders urls as a sitemaps.org urlset document.
func WriteXML(w io.Writer, urls []URL) error {
	doc := urlset{Xmlns: xmlns, URLs: make([]xmlURL, len(urls))}
	for i, u := range urls {
		x := xmlURL{Loc: u.Loc, ChangeFreq: u.ChangeFreq, Priority: fmt.Sprintf("%.2f", u.Priority)}
		if !u.LastMod.IsZero() {
			x.LastMod = u.LastMod.Format("2006-01-02")
		}
		doc.URLs[i] = x
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("write sitemap header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode sitemap: %w", err)
	}
	return enc.Close()
}
