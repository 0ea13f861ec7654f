package acquire_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/lucianfialho/urban-lullaby/internal/acquire"
	"github.com/lucianfialho/urban-lullaby/internal/catalogue"
	"github.com/lucianfialho/urban-lullaby/internal/logging"
)

type recordingTagger struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *recordingTagger) Tag(path, title, artist string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf("%s|%s|%s", filepath.Base(path), title, artist))
	return r.err
}

type catalogueServer struct {
	*httptest.Server
	searchBody string
}

func newCatalogueServer(t *testing.T, tracksJSON string) *catalogueServer {
	t.Helper()
	cs := &catalogueServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/json/search/tracks":
			_, _ = io.WriteString(w, cs.searchBody)
		case r.URL.Path == "/audio/broken.mp3":
			http.Error(w, "gone", http.StatusGone)
		case strings.HasPrefix(r.URL.Path, "/audio/"):
			_, _ = io.WriteString(w, "audio:"+strings.TrimPrefix(r.URL.Path, "/audio/"))
		default:
			http.NotFound(w, r)
		}
	}))
	cs.searchBody = strings.ReplaceAll(tracksJSON, "{{base}}", cs.URL)
	t.Cleanup(cs.Close)
	return cs
}

func newAcquirer(t *testing.T, baseURL string, tagger acquire.Tagger) *acquire.Acquirer {
	t.Helper()
	client, err := catalogue.New(catalogue.Config{BaseURL: baseURL})
	if err != nil {
		t.Fatalf("catalogue.New: %v", err)
	}
	return acquire.New(client, logging.NewNop(), acquire.WithTagger(tagger))
}

const fourTracks = `{"entities":{"tracks":{
 "1":{"title":"Lo-Fi Dreams","creatives":{"mainArtists":[{"name":"Boom Tschak!!"}]},"stems":{"full":{"lqMp3Url":"{{base}}/audio/1.mp3"}}},
 "2":{"title":"","creatives":{"mainArtists":[{"name":"Nameless"}]},"stems":{"full":{"lqMp3Url":"{{base}}/audio/2.mp3"}}},
 "3":{"title":"Night Bus","creatives":{"mainArtists":[{"name":"Sleepwalker"}]},"stems":{"full":{"lqMp3Url":"{{base}}/audio/3.mp3"}}},
 "4":{"title":"Rain Loop","creatives":{"mainArtists":[{"name":"Cloud Nine"}]},"stems":{"full":{"lqMp3Url":"{{base}}/audio/4.mp3"}}}
}}}`

func TestAcquireDownloadsUsableEntriesInCatalogueOrder(t *testing.T) {
	srv := newCatalogueServer(t, fourTracks)
	tagger := &recordingTagger{}
	outputDir := t.TempDir()

	result := newAcquirer(t, srv.URL, tagger).Acquire(context.Background(), "lofi", outputDir)

	if len(result.Tracks) != 3 {
		t.Fatalf("expected 3 tracks, got %d (%+v)", len(result.Tracks), result.Skipped)
	}
	if len(result.Skipped) != 1 || result.Skipped[0].Reason != acquire.ReasonMissingTitleOrArtist || result.Skipped[0].ID != "2" {
		t.Fatalf("expected entry 2 skipped for missing title, got %+v", result.Skipped)
	}
	wantNames := []string{"boom_tschak_lo_fi_dreams.mp3", "sleepwalker_night_bus.mp3", "cloud_nine_rain_loop.mp3"}
	for i, track := range result.Tracks {
		if filepath.Base(track.LocalPath) != wantNames[i] {
			t.Fatalf("track %d: got %s want %s", i, filepath.Base(track.LocalPath), wantNames[i])
		}
		if filepath.Dir(track.LocalPath) != outputDir {
			t.Fatalf("track %d written outside output dir: %s", i, track.LocalPath)
		}
		data, err := os.ReadFile(track.LocalPath)
		if err != nil {
			t.Fatalf("read track: %v", err)
		}
		if !strings.HasPrefix(string(data), "audio:") {
			t.Fatalf("unexpected content %q", data)
		}
	}
	if result.Tracks[0].Artist != "Boom Tschak!!" || result.Tracks[0].Title != "Lo-Fi Dreams" {
		t.Fatalf("expected original title/artist preserved, got %+v", result.Tracks[0])
	}
	if len(tagger.calls) != 3 || tagger.calls[0] != "boom_tschak_lo_fi_dreams.mp3|Lo-Fi Dreams|Boom Tschak!!" {
		t.Fatalf("unexpected tagger calls %v", tagger.calls)
	}
	matches, _ := filepath.Glob(filepath.Join(outputDir, "*.part"))
	if len(matches) != 0 {
		t.Fatalf("expected no temp files, got %v", matches)
	}
}

func TestAcquireSkipsMissingAudioFailedDownloadAndDuplicates(t *testing.T) {
	body := `{"entities":{"tracks":{
 "a":{"title":"One","creatives":{"mainArtists":[{"name":"Artist"}]},"stems":{"full":{}}},
 "b":{"title":"Two","creatives":{"mainArtists":[{"name":"Artist"}]},"stems":{"full":{"lqMp3Url":"{{base}}/audio/broken.mp3"}}},
 "c":{"title":"Three","creatives":{"mainArtists":[{"name":"Artist"}]},"stems":{"full":{"lqMp3Url":"{{base}}/audio/c.mp3"}}},
 "d":{"title":"Three!","creatives":{"mainArtists":[{"name":"artist"}]},"stems":{"full":{"lqMp3Url":"{{base}}/audio/d.mp3"}}},
 "e":{"title":"Four","creatives":{"mainArtists":[]},"stems":{"full":{"lqMp3Url":"{{base}}/audio/e.mp3"}}}
}}}`
	srv := newCatalogueServer(t, body)
	outputDir := t.TempDir()

	result := newAcquirer(t, srv.URL, nil).Acquire(context.Background(), "x", outputDir)

	if len(result.Tracks) != 1 || filepath.Base(result.Tracks[0].LocalPath) != "artist_three.mp3" {
		t.Fatalf("expected only artist_three.mp3, got %+v", result.Tracks)
	}
	reasons := map[string]string{}
	for _, s := range result.Skipped {
		reasons[s.ID] = s.Reason
	}
	want := map[string]string{
		"a": acquire.ReasonMissingAudioSource,
		"b": acquire.ReasonDownloadFailed,
		"d": acquire.ReasonDuplicateFileName,
		"e": acquire.ReasonMissingTitleOrArtist,
	}
	for id, reason := range want {
		if reasons[id] != reason {
			t.Fatalf("entry %s: got reason %q want %q (all: %v)", id, reasons[id], reason, reasons)
		}
	}
	if _, err := os.Stat(filepath.Join(outputDir, "artist_two.mp3")); !os.IsNotExist(err) {
		t.Fatalf("failed download must not leave a file, err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(outputDir, "artist_two.mp3.part")); !os.IsNotExist(err) {
		t.Fatalf("failed download must not leave a temp file, err=%v", err)
	}
}

func TestAcquireCatalogueFailureYieldsEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	result := newAcquirer(t, srv.URL, nil).Acquire(context.Background(), "x", t.TempDir())
	if len(result.Tracks) != 0 || len(result.Skipped) != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestAcquireMalformedResponseYieldsEmptyResult(t *testing.T) {
	srv := newCatalogueServer(t, `{"entities":`)
	result := newAcquirer(t, srv.URL, nil).Acquire(context.Background(), "x", t.TempDir())
	if len(result.Tracks) != 0 {
		t.Fatalf("expected no tracks, got %+v", result.Tracks)
	}
}

func TestAcquireTagFailureKeepsTrack(t *testing.T) {
	srv := newCatalogueServer(t, fourTracks)
	tagger := &recordingTagger{err: errors.New("not an mp3")}
	result := newAcquirer(t, srv.URL, tagger).Acquire(context.Background(), "lofi", t.TempDir())
	if len(result.Tracks) != 3 {
		t.Fatalf("expected tracks kept despite tag failure, got %d", len(result.Tracks))
	}
}
