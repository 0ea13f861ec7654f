package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/lucianfialho/urban-lullaby/internal/acquire"
)

// WriteFile creates path (and its parent directories) holding size bytes of
// filler. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, size), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteTracks creates one placeholder audio file per artist/title pair in dir
// and returns the matching tracks in order. pairs alternates artist, title.
func WriteTracks(t testing.TB, dir string, pairs ...string) []acquire.Track {
	t.Helper()

	if len(pairs)%2 != 0 {
		t.Fatalf("WriteTracks needs artist/title pairs, got %d values", len(pairs))
	}
	tracks := make([]acquire.Track, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		artist, title := pairs[i], pairs[i+1]
		path := filepath.Join(dir, acquire.FileName(artist, title))
		WriteFile(t, path, 128)
		tracks = append(tracks, acquire.Track{Title: title, Artist: artist, LocalPath: path})
	}
	return tracks
}
