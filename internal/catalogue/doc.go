// Package catalogue is the HTTP client for the remote music-search service.
//
// Search returns entries in the order the service sent them; that order is
// the playlist order downstream, so the JSON object holding the tracks is
// decoded token by token instead of into a map. Download fetches a track's
// audio stream with its own, longer timeout.
package catalogue
