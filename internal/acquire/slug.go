package acquire

import (
	"regexp"
	"strings"
)

var slugSeparator = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lowercases value, collapses every run of characters outside [a-z0-9]
// into a single underscore, and trims underscores from both ends.
func Slug(value string) string {
	lowered := strings.ToLower(value)
	return strings.Trim(slugSeparator.ReplaceAllString(lowered, "_"), "_")
}

// FileName derives the on-disk name for a track.
func FileName(artist, title string) string {
	return Slug(artist) + "_" + Slug(title) + ".mp3"
}
