// Package util provides common utility functions.
package util

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	// Matches spaces, underscores, and slashes (for replacement with dashes).
	wordSeparatorRe = regexp.MustCompile(`[\s_/&+]+`)
	// Matches non-alphanumeric characters (except dashes).
	nonAlphanumericRe = regexp.MustCompile(`[^a-z0-9-]`)
	// Matches multiple consecutive dashes.
	multipleDashRe = regexp.MustCompile(`-+`)
)

// URLSlug converts display text into an ASCII slug for page URLs.
//
// Normalization rules:
//  1. Decompose accented characters and drop what is left outside ASCII
//  2. Trim whitespace and lowercase
//  3. Replace spaces, underscores, slashes, ampersands and pluses with dashes
//  4. Remove non-alphanumeric characters (except dashes)
//  5. Collapse multiple dashes and trim leading/trailing dashes
//
// Examples:
//
//	"Beyoncé"                → "beyonce"
//	"AC/DC"                  → "ac-dc"
//	"Simon & Garfunkel"      → "simon-garfunkel"
//	"1989 (Taylor's Version)" → "1989-taylors-version"
//	"Sigur Rós"              → "sigur-ros"
func URLSlug(input string) string {
	s := norm.NFKD.String(input)
	s = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, s)

	s = strings.ToLower(strings.TrimSpace(s))
	s = wordSeparatorRe.ReplaceAllString(s, "-")
	s = nonAlphanumericRe.ReplaceAllString(s, "")
	s = multipleDashRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// AlbumSlug is the display slug of an album page: artist and title joined.
// Falls back to the title alone when the artist produces no slug characters.
func AlbumSlug(artist, title string) string {
	a, t := URLSlug(artist), URLSlug(title)
	switch {
	case a == "":
		return t
	case t == "":
		return a
	default:
		return a + "-" + t
	}
}
