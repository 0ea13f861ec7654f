package acquire

import (
	"fmt"

	"github.com/bogem/id3v2/v2"
	"golang.org/x/text/unicode/norm"
)

// Tagger embeds title and artist metadata into a downloaded file.
type Tagger interface {
	Tag(path, title, artist string) error
}

// ID3Tagger writes ID3v2.4 TIT2/TPE1 frames in UTF-8. Catalogue strings are
// NFC-normalized first so decomposed accents render correctly in players.
type ID3Tagger struct{}

// Tag opens path, replaces its title and artist frames, and saves it.
func (ID3Tagger) Tag(path, title, artist string) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open id3 tag: %w", err)
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	tag.SetTitle(norm.NFC.String(title))
	tag.SetArtist(norm.NFC.String(artist))
	if err := tag.Save(); err != nil {
		return fmt.Errorf("save id3 tag: %w", err)
	}
	return nil
}
