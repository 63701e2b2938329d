package sitemap

import (
	"bytes"
	"context"
	"encoding/xml"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/coverfinder-server/internal/tracking"
)

type fakeSource struct {
	queries     []string
	albums      []tracking.AlbumPageRecord
	queryLimit  int
	albumLimit  int
	queryCalled bool
}

func (f *fakeSource) GetPopularSearchQueries(_ context.Context, limit int) []string {
	f.queryCalled = true
	f.queryLimit = limit
	return f.queries[:min(limit, len(f.queries))]
}

func (f *fakeSource) GetPopularAlbumPages(_ context.Context, limit int) []tracking.AlbumPageRecord {
	f.albumLimit = limit
	return f.albums[:min(limit, len(f.albums))]
}

var fixedNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func newTestBuilder(src Source, maxQueries, maxAlbums int) *Builder {
	return NewBuilder(src, Options{
		BaseURL:     "https://covers.example.com/",
		MaxQueries:  maxQueries,
		MaxAlbums:   maxAlbums,
		StaticPages: []StaticPage{{Path: "/", ChangeFreq: Daily, Priority: 1}},
		Now:         func() time.Time { return fixedNow },
	})
}

func locs(urls []URL) []string {
	out := make([]string, len(urls))
	for i, u := range urls {
		out[i] = u.Loc
	}
	return out
}

func TestBuild_QueriesFilteredAndEscaped(t *testing.T) {
	src := &fakeSource{queries: []string{"daft punk", "ab", "Beyoncé", " x "}}
	urls := newTestBuilder(src, 10, 0).Build(context.Background())

	assert.Equal(t, []string{
		"https://covers.example.com/",
		"https://covers.example.com/search?q=daft+punk",
		"https://covers.example.com/search?q=Beyonc%C3%A9",
	}, locs(urls))
	assert.Equal(t, 10, src.queryLimit)
	assert.Equal(t, Daily, urls[1].ChangeFreq)
}

func TestBuild_QueryPriorityDecreasesWithRank(t *testing.T) {
	src := &fakeSource{queries: []string{"first", "second", "third", "fourth"}}
	urls := newTestBuilder(src, 10, 0).Build(context.Background())[1:]

	require.Len(t, urls, 4)
	assert.InDelta(t, 0.8, urls[0].Priority, 1e-9)
	assert.InDelta(t, 0.7, urls[1].Priority, 1e-9)
	assert.InDelta(t, 0.6, urls[2].Priority, 1e-9)
	assert.InDelta(t, 0.5, urls[3].Priority, 1e-9)
}

func TestBuild_AlbumURLs(t *testing.T) {
	seen := time.Date(2026, 4, 1, 8, 30, 0, 0, time.UTC)
	src := &fakeSource{albums: []tracking.AlbumPageRecord{
		{AlbumID: "617154241", Slug: "daft-punk-random-access-memories", LastSeen: seen},
		{AlbumID: "697194953", Slug: "", LastSeen: seen},
		{AlbumID: "617154241", Slug: "daft-punk-random-access-memories", LastSeen: seen},
	}}
	urls := newTestBuilder(src, 0, 50).Build(context.Background())[1:]

	require.Len(t, urls, 2)
	assert.Equal(t, "https://covers.example.com/album/617154241/daft-punk-random-access-memories", urls[0].Loc)
	assert.Equal(t, "https://covers.example.com/album/697194953", urls[1].Loc)
	assert.Equal(t, Weekly, urls[0].ChangeFreq)
	assert.Equal(t, seen, urls[0].LastMod)
	assert.InDelta(t, 0.7, urls[0].Priority, 1e-9)
	assert.Equal(t, 50, src.albumLimit)
	assert.False(t, src.queryCalled, "zero query limit skips the query source")
}

func TestBuild_DeduplicatesQueryURLs(t *testing.T) {
	src := &fakeSource{queries: []string{"daft punk", "daft punk "}}
	urls := newTestBuilder(src, 10, 0).Build(context.Background())

	assert.Len(t, urls, 2)
}

func TestBuild_EmptySource(t *testing.T) {
	b := NewBuilder(&fakeSource{}, Options{BaseURL: "https://covers.example.com", MaxQueries: 5, MaxAlbums: 5})
	urls := b.Build(context.Background())

	assert.Len(t, urls, len(DefaultStaticPages))
	assert.Equal(t, "https://covers.example.com/", urls[0].Loc)
}

func TestAlbumPath(t *testing.T) {
	assert.Equal(t, "/album/1/abc", AlbumPath("1", "abc"))
	assert.Equal(t, "/album/1", AlbumPath("1", ""))
	assert.Equal(t, "/album/a%2Fb/c", AlbumPath("a/b", "c"))
}

func TestWriteXML(t *testing.T) {
	urls := []URL{
		{Loc: "https://covers.example.com/", LastMod: fixedNow, ChangeFreq: Daily, Priority: 1},
		{Loc: "https://covers.example.com/search?q=a&b", ChangeFreq: Daily, Priority: 0.8},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteXML(&buf, urls))

	out := buf.String()
	assert.Contains(t, out, `<?xml version="1.0" encoding="UTF-8"?>`)
	assert.Contains(t, out, `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	assert.Contains(t, out, "<lastmod>2026-05-04</lastmod>")
	assert.Contains(t, out, "<priority>1.00</priority>")
	assert.Contains(t, out, "search?q=a&amp;b")

	var parsed urlset
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &parsed))
	require.Len(t, parsed.URLs, 2)
	assert.Empty(t, parsed.URLs[1].LastMod)
}
