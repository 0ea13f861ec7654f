package catalogue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Entry is one catalogue track as returned by the service. Fields are left
// raw; the acquirer decides which entries are usable.
type Entry struct {
	ID       string
	Title    string
	Artist   string
	AudioURL string
}

// Response holds the decoded search result in catalogue order.
type Response struct {
	Entries []Entry
}

type rawEntry struct {
	Title     string `json:"title"`
	Creatives struct {
		MainArtists []struct {
			Name string `json:"name"`
		} `json:"mainArtists"`
	} `json:"creatives"`
	Stems struct {
		Full struct {
			LQMP3URL string `json:"lqMp3Url"`
		} `json:"full"`
	} `json:"stems"`
}

type rawResponse struct {
	Entities *struct {
		Tracks json.RawMessage `json:"tracks"`
	} `json:"entities"`
}

func decodeResponse(r io.Reader) (*Response, error) {
	var payload rawResponse
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("catalogue: decode search response: %w", err)
	}
	if payload.Entities == nil || len(payload.Entities.Tracks) == 0 || string(payload.Entities.Tracks) == "null" {
		return nil, ErrNoTracks
	}
	entries, err := decodeTracks(payload.Entities.Tracks)
	if err != nil {
		return nil, err
	}
	return &Response{Entries: entries}, nil
}

// decodeTracks walks the tracks object key by key so entries keep the order
// the server wrote them in.
func decodeTracks(data json.RawMessage) ([]Entry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("catalogue: decode tracks: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("catalogue: entities.tracks is not an object")
	}

	var entries []Entry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("catalogue: decode track key: %w", err)
		}
		key, _ := keyTok.(string)
		var raw rawEntry
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("catalogue: decode track %q: %w", key, err)
		}
		entry := Entry{
			ID:       key,
			Title:    strings.TrimSpace(raw.Title),
			AudioURL: strings.TrimSpace(raw.Stems.Full.LQMP3URL),
		}
		if len(raw.Creatives.MainArtists) > 0 {
			entry.Artist = strings.TrimSpace(raw.Creatives.MainArtists[0].Name)
		}
		entries = append(entries, entry)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("catalogue: decode tracks: %w", err)
	}
	return entries, nil
}
