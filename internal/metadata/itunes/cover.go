package itunes

import (
	"fmt"
	"regexp"
)

// MaxCoverSize is the size we request from iTunes.
// iTunes will serve the largest available size up to this.
const MaxCoverSize = 7000

// ThumbnailSize is the edge length used for result cards.
const ThumbnailSize = 600

// sizePattern matches iTunes artwork size patterns like "100x100bb.jpg"
var sizePattern = regexp.MustCompile(`/\d+x\d+bb\.(jpg|png)$`)

// CoverURL rewrites an iTunes artwork URL to request a square image of the given edge length.
// URLs that do not carry a size suffix are returned unchanged.
func CoverURL(url string, size int) string {
	if url == "" || size <= 0 {
		return url
	}
	return sizePattern.ReplaceAllString(url, fmt.Sprintf("/%dx%dbb.$1", size, size))
}

// MaxCoverURL transforms an iTunes artwork URL to request maximum resolution.
// iTunes will serve the largest available size (e.g., 3000x3000 if that's the max).
func MaxCoverURL(url string) string {
	return CoverURL(url, MaxCoverSize)
}
