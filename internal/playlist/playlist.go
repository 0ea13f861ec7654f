// Package playlist writes and reads the ffconcat manifest that lists one
// pass's tracks in catalogue order.
package playlist

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lucianfialho/urban-lullaby/internal/acquire"
	"github.com/lucianfialho/urban-lullaby/internal/fileutil"
	"github.com/lucianfialho/urban-lullaby/internal/services"
)

const (
	// FileName is the manifest name inside a pass output directory.
	FileName = "playlist.ffconcat"
	// Header is the first line of every manifest.
	Header = "ffconcat version 1.0"
)

var (
	// ErrEmptyPlaylist is returned when there is nothing to assemble.
	ErrEmptyPlaylist = errors.New("no tracks to assemble")
	// ErrNoOutputDirectory is returned when the destination is unset.
	ErrNoOutputDirectory = errors.New("output directory is empty")
)

// Assemble writes the manifest for tracks into outputDir and returns its path.
// The file is replaced atomically; an earlier manifest is overwritten.
func Assemble(outputDir string, tracks []acquire.Track) (string, error) {
	if strings.TrimSpace(outputDir) == "" {
		return "", services.Wrap(services.ErrValidation, "assemble", "playlist", "", ErrNoOutputDirectory)
	}
	if len(tracks) == 0 {
		return "", services.Wrap(services.ErrValidation, "assemble", "playlist", "", ErrEmptyPlaylist)
	}
	paths := make([]string, 0, len(tracks))
	for _, track := range tracks {
		if strings.TrimSpace(track.LocalPath) == "" {
			return "", services.Wrap(services.ErrValidation, "assemble", "playlist",
				fmt.Sprintf("track %q has no local path", track.Title), nil)
		}
		paths = append(paths, track.LocalPath)
	}

	manifest := filepath.Join(outputDir, FileName)
	if err := fileutil.WriteFileAtomic(manifest, Render(paths), 0o644); err != nil {
		return "", services.Wrap(services.ErrTransient, "assemble", "write manifest", manifest, err)
	}
	return manifest, nil
}

// Render produces manifest content for paths: the header, then one file
// directive per path, newline separated, without a trailing newline.
func Render(paths []string) []byte {
	var buf bytes.Buffer
	buf.WriteString(Header)
	for _, p := range paths {
		buf.WriteString("\nfile ")
		buf.WriteString(Quote(p))
	}
	return buf.Bytes()
}

// Quote wraps value in single quotes, escaping embedded quotes the way the
// concat demuxer expects.
func Quote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}

// Parse reads a manifest and returns the referenced paths in order. Relative
// paths are resolved against the manifest's directory.
func Parse(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	base := filepath.Dir(path)
	scanner := bufio.NewScanner(f)
	var (
		paths     []string
		lineNo    int
		sawHeader bool
	)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		directive, rest, _ := strings.Cut(line, " ")
		switch directive {
		case "ffconcat":
			if sawHeader {
				return nil, fmt.Errorf("line %d: duplicate header", lineNo)
			}
			sawHeader = true
		case "file":
			value, err := unquote(strings.TrimSpace(rest))
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			if value == "" {
				return nil, fmt.Errorf("line %d: empty file directive", lineNo)
			}
			if !filepath.IsAbs(value) {
				value = filepath.Join(base, value)
			}
			paths = append(paths, value)
		default:
			// duration, inpoint and friends are irrelevant here.
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if !sawHeader {
		return nil, fmt.Errorf("missing %q header", Header)
	}
	return paths, nil
}

// unquote reverses Quote and also accepts backslash escapes outside quotes.
func unquote(token string) (string, error) {
	var out strings.Builder
	inQuote := false
	for i := 0; i < len(token); i++ {
		c := token[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
		case c == '\\' && !inQuote:
			if i+1 >= len(token) {
				return "", errors.New("dangling escape")
			}
			i++
			out.WriteByte(token[i])
		default:
			out.WriteByte(c)
		}
	}
	if inQuote {
		return "", errors.New("unterminated quote")
	}
	return out.String(), nil
}
