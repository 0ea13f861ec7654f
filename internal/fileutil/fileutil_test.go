package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFileAtomicReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playlist.ffconcat")
	if err := WriteFileAtomic(path, []byte("first"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomic(path, []byte("second"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Fatalf("content mismatch: got %q", got)
	}
	if _, err := os.Stat(path + PartSuffix); !os.IsNotExist(err) {
		t.Fatalf("expected temp file cleaned up, err=%v", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestWriteStreamAtomicRemovesTempOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.mp3")
	_, err := WriteStreamAtomic(path, failingReader{}, 0)
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("expected read error, got %v", err)
	}
	for _, p := range []string{path, path + PartSuffix} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be absent, err=%v", p, err)
		}
	}
}

func TestWriteStreamAtomicReportsBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.mp3")
	n, err := WriteStreamAtomic(path, strings.NewReader("ID3-audio"), 0o600)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(len("ID3-audio")) {
		t.Fatalf("unexpected byte count %d", n)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o077 != 0 {
		t.Fatalf("expected private mode, got %v", info.Mode().Perm())
	}
}

func TestCommitTempRejectsEmptyOutput(t *testing.T) {
	dir := t.TempDir()
	tmp := filepath.Join(dir, "output.mp3.part")
	dst := filepath.Join(dir, "output.mp3")
	if err := os.WriteFile(tmp, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CommitTemp(tmp, dst); err == nil {
		t.Fatal("expected error for empty temp output")
	}
	if NonEmptyFile(dst) {
		t.Fatal("destination should not exist")
	}

	if err := os.WriteFile(tmp, []byte("mp3"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CommitTemp(tmp, dst); err != nil {
		t.Fatalf("CommitTemp: %v", err)
	}
	if !NonEmptyFile(dst) {
		t.Fatal("expected committed destination")
	}
}

func TestRemoveContentsKeepsDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.mp3"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "nested", "deeper"), 0o755); err != nil {
		t.Fatal(err)
	}

	removed, failures := RemoveContents(dir)
	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed entries, got %d", removed)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("directory should remain: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty directory, got %d entries", len(entries))
	}
}

func TestRemoveContentsMissingDirectory(t *testing.T) {
	removed, failures := RemoveContents(filepath.Join(t.TempDir(), "missing"))
	if removed != 0 || failures != nil {
		t.Fatalf("expected no-op, got %d %v", removed, failures)
	}
}
