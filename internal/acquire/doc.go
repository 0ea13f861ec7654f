// Package acquire turns one catalogue search into a set of audio files on
// disk.
//
// Entries without a title, primary artist, or audio URL are skipped with a
// warning. Each usable entry is streamed to a ".part" file, fsynced, and
// renamed to <artist>_<title>.mp3 before it is reported as a Track, so the
// playlist never references a half-written download. Catalogue failures are
// logged and produce an empty result; Acquire never returns an error.
package acquire
