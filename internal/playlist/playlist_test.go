package playlist_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lucianfialho/urban-lullaby/internal/acquire"
	"github.com/lucianfialho/urban-lullaby/internal/media/ffmpeg"
	"github.com/lucianfialho/urban-lullaby/internal/playlist"
	"github.com/lucianfialho/urban-lullaby/internal/services"
)

func TestAssembleWritesExactManifest(t *testing.T) {
	dir := t.TempDir()
	tracks := []acquire.Track{
		{Title: "One", Artist: "A", LocalPath: "/music/a_one.mp3"},
		{Title: "Two", Artist: "B", LocalPath: "/music/b_two.mp3"},
		{Title: "Three", Artist: "C", LocalPath: "/music/c_three.mp3"},
	}

	path, err := playlist.Assemble(dir, tracks)
	if err != nil {
		t.Fatalf("Assemble returned error: %v", err)
	}
	if path != filepath.Join(dir, playlist.FileName) {
		t.Fatalf("unexpected manifest path %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	want := "ffconcat version 1.0\n" +
		"file '/music/a_one.mp3'\n" +
		"file '/music/b_two.mp3'\n" +
		"file '/music/c_three.mp3'"
	if string(data) != want {
		t.Fatalf("unexpected manifest:\n%s\nwant:\n%s", data, want)
	}
	if _, err := os.Stat(path + ".part"); !os.IsNotExist(err) {
		t.Fatalf("expected no temp file left behind, stat err=%v", err)
	}
}

func TestAssembleReplacesPreviousManifest(t *testing.T) {
	dir := t.TempDir()
	if _, err := playlist.Assemble(dir, []acquire.Track{{LocalPath: "/old.mp3"}}); err != nil {
		t.Fatalf("first Assemble: %v", err)
	}
	path, err := playlist.Assemble(dir, []acquire.Track{{LocalPath: "/new.mp3"}})
	if err != nil {
		t.Fatalf("second Assemble: %v", err)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "old.mp3") {
		t.Fatalf("expected manifest to be replaced, got %s", data)
	}
}

func TestAssembleRejectsEmptyInput(t *testing.T) {
	dir := t.TempDir()
	path, err := playlist.Assemble(dir, nil)
	if err == nil || path != "" {
		t.Fatalf("expected empty path and error, got %q, %v", path, err)
	}
	if !errors.Is(err, playlist.ErrEmptyPlaylist) || !errors.Is(err, services.ErrValidation) {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, playlist.FileName)); !os.IsNotExist(statErr) {
		t.Fatal("expected no manifest on disk")
	}

	if _, err := playlist.Assemble("", []acquire.Track{{LocalPath: "/a.mp3"}}); !errors.Is(err, playlist.ErrNoOutputDirectory) {
		t.Fatalf("expected missing directory error, got %v", err)
	}
}

func TestQuoteAndParseRoundTripAwkwardPaths(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		filepath.Join(dir, "it's_late.mp3"),
		filepath.Join(dir, "two words.mp3"),
		"relative.mp3",
	}
	manifest := filepath.Join(dir, playlist.FileName)
	if err := os.WriteFile(manifest, playlist.Render(paths), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if got := playlist.Quote("it's"); got != `'it'\''s'` {
		t.Fatalf("unexpected quoting: %s", got)
	}

	parsed, err := playlist.Parse(manifest)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	want := []string{paths[0], paths[1], filepath.Join(dir, "relative.mp3")}
	if len(parsed) != len(want) {
		t.Fatalf("unexpected entries: %v", parsed)
	}
	for i := range want {
		if parsed[i] != want[i] {
			t.Fatalf("entry %d: got %q want %q", i, parsed[i], want[i])
		}
	}
}

func TestParseRejectsMissingHeader(t *testing.T) {
	manifest := filepath.Join(t.TempDir(), "bad.ffconcat")
	if err := os.WriteFile(manifest, []byte("file '/a.mp3'"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if _, err := playlist.Parse(manifest); err == nil {
		t.Fatal("expected error for manifest without header")
	}
}

func TestVerifyReportsMissingAndTaggedEntries(t *testing.T) {
	dir := t.TempDir()
	tagged := filepath.Join(dir, "artist_song.mp3")
	if err := os.WriteFile(tagged, []byte("not really audio but non-empty"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	if err := (acquire.ID3Tagger{}).Tag(tagged, "Song", "Artist"); err != nil {
		t.Fatalf("tag audio: %v", err)
	}
	empty := filepath.Join(dir, "empty.mp3")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("write empty: %v", err)
	}
	missing := filepath.Join(dir, "missing.mp3")

	manifest := filepath.Join(dir, playlist.FileName)
	if err := os.WriteFile(manifest, playlist.Render([]string{tagged, empty, missing}), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	report, err := playlist.Verify(context.Background(), manifest)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if len(report.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(report.Entries))
	}
	first := report.Entries[0]
	if !first.OK() || first.Title != "Song" || first.Artist != "Artist" {
		t.Fatalf("unexpected tagged entry: %+v", first)
	}
	if report.Entries[1].OK() || report.Entries[1].Error != "file is empty" {
		t.Fatalf("expected empty entry to fail: %+v", report.Entries[1])
	}
	if report.Entries[2].Exists || report.Entries[2].OK() {
		t.Fatalf("expected missing entry to fail: %+v", report.Entries[2])
	}
	if report.Failed() != 2 || report.OK() {
		t.Fatalf("expected two failures, got %d", report.Failed())
	}
}

type recordingExecutor struct {
	args []string
	err  error
}

func (r *recordingExecutor) Run(_ context.Context, _ string, args []string, _, onStderr func(string)) error {
	r.args = args
	if r.err != nil {
		onStderr("Invalid data found when processing input")
	}
	return r.err
}

func TestVerifyDecodeCheckRunsConcatDemuxer(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "a.mp3")
	if err := os.WriteFile(audio, []byte("data"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	manifest := filepath.Join(dir, playlist.FileName)
	if err := os.WriteFile(manifest, playlist.Render([]string{audio}), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	exec := &recordingExecutor{}
	report, err := playlist.Verify(context.Background(), manifest,
		playlist.WithDecodeCheck(ffmpeg.New("ffmpeg", ffmpeg.WithExecutor(exec))))
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !report.OK() {
		t.Fatalf("expected clean report, got %+v", report)
	}
	joined := strings.Join(exec.args, " ")
	if !strings.Contains(joined, "-f concat -safe 0 -i "+manifest+" -f null -") {
		t.Fatalf("unexpected decode args: %s", joined)
	}

	exec.err = errors.New("exit status 1")
	report, err = playlist.Verify(context.Background(), manifest,
		playlist.WithDecodeCheck(ffmpeg.New("ffmpeg", ffmpeg.WithExecutor(exec))))
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if report.OK() || !strings.Contains(report.DecodeError, "Invalid data") {
		t.Fatalf("expected decode error in report, got %+v", report)
	}
}
