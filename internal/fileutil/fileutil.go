// Package fileutil holds the small filesystem primitives the pipeline relies on
// for durability: write-then-rename commits and best-effort directory wipes.
package fileutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// PartSuffix marks in-progress files. Anything carrying it is never treated as
// a finished artifact.
const PartSuffix = ".part"

// WriteFileAtomic writes data to a sibling temp file, fsyncs it, and renames it
// over path. Readers observe either the previous content or the new content.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	_, err := WriteStreamAtomic(path, bytes.NewReader(data), mode)
	return err
}

// WriteStreamAtomic streams r into path+".part", fsyncs and closes it, then
// renames it into place. The temp file is removed on any failure. It returns
// the number of bytes written.
func WriteStreamAtomic(path string, r io.Reader, mode os.FileMode) (int64, error) {
	if mode == 0 {
		mode = 0o644
	}
	tmp := path + PartSuffix
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	written, err := io.Copy(out, r)
	if err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return written, fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return written, fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return written, fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return written, fmt.Errorf("commit %s: %w", filepath.Base(path), err)
	}
	return written, nil
}

// CommitTemp renames a finished temp file produced by an external tool into
// place. A missing or empty temp file is an error and leaves path untouched.
func CommitTemp(tmp, path string) error {
	info, err := os.Stat(tmp)
	if err != nil {
		return fmt.Errorf("stat temp output: %w", err)
	}
	if info.Size() == 0 {
		_ = os.Remove(tmp)
		return fmt.Errorf("temp output %s is empty", filepath.Base(tmp))
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit %s: %w", filepath.Base(path), err)
	}
	return nil
}

// NonEmptyFile reports whether path is a regular file with non-zero size.
func NonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// RemoveFailure records one entry RemoveContents could not delete.
type RemoveFailure struct {
	Path string
	Err  error
}

// RemoveContents deletes every entry beneath dir but keeps dir itself. It does
// not stop on failure; each entry that could not be removed is reported and the
// count of removed entries is returned. A missing dir is not an error.
func RemoveContents(dir string) (int, []RemoveFailure) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, []RemoveFailure{{Path: dir, Err: err}}
	}
	removed := 0
	var failures []RemoveFailure
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			failures = append(failures, RemoveFailure{Path: path, Err: err})
			continue
		}
		removed++
	}
	return removed, failures
}
