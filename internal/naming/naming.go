// Package naming parses the filename conventions used by imported media.
// Imported files are named source_playlistID_rest.ext so their origin can be
// recovered from the name alone, without touching the store.
package naming

import (
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/dkrugman/pf-aspect/internal/constants"
)

// SourceUnknown is reported for files that do not follow the naming scheme
// or whose source tag is not among the configured sources.
const SourceUnknown = "unknown"

// Origin is the parsed provenance of a media filename.
type Origin struct {
	Source   string
	Playlist string // numeric playlist ID, empty when absent or malformed
}

// Recognized reports whether the name carried a known source tag.
func (o Origin) Recognized() bool {
	return o.Source != SourceUnknown
}

// ParseOrigin extracts source and playlist from a filename of the form
// source_playlist_rest. The path portion is ignored. When configured is
// non-empty, a source tag not present in it degrades to SourceUnknown.
// A non-numeric playlist segment yields an empty Playlist.
func ParseOrigin(name string, configured []string) Origin {
	base := filepath.Base(name)
	parts := strings.Split(base, "_")
	if len(parts) < 2 {
		return Origin{Source: SourceUnknown}
	}

	source := parts[0]
	if len(configured) > 0 && !contains(configured, source) {
		source = SourceUnknown
	}

	playlist := ""
	if isDigits(parts[1]) {
		playlist = parts[1]
	}
	return Origin{Source: source, Playlist: playlist}
}

// SplitURLName extracts the base filename and lowercase extension (without
// dot) from a URL or local path, stripping any query string.
func SplitURLName(urlOrPath string) (base, ext string) {
	if urlOrPath == "" {
		return "", ""
	}
	name := urlOrPath
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	if idx := strings.Index(name, "?"); idx >= 0 {
		name = name[:idx]
	}
	ext = strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	base = strings.TrimSuffix(name, path.Ext(name))
	return base, ext
}

// ImportBaseName builds the on-disk basename for a downloaded item,
// prefixing source and playlist so ParseOrigin can recover them later.
func ImportBaseName(source, playlistID, base string) string {
	return source + "_" + playlistID + "_" + base
}

// SafeName replaces characters that cannot appear in filesystem names with
// underscores and trims surrounding whitespace. Remote item names are the
// only name component not under our control.
func SafeName(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if strings.ContainsRune(constants.InvalidPathChars, r) {
			return '_'
		}
		return r
	}, s)
	return strings.TrimSpace(mapped)
}

// NormalizeTimestamp converts a UNIX timestamp that may be expressed in
// seconds, milliseconds, or microseconds into a UTC ISO 8601 string. ISO
// input passes through reformatted. Unparseable input returns "".
func NormalizeTimestamp(raw string) string {
	if raw == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC().Format(time.RFC3339)
	}
	var n int64
	for _, r := range raw {
		if !unicode.IsDigit(r) {
			return ""
		}
		n = n*10 + int64(r-'0')
	}
	switch {
	case n > 1e14: // microseconds
		return time.Unix(n/1e6, (n%1e6)*1e3).UTC().Format(time.RFC3339)
	case n > 1e11: // milliseconds
		return time.Unix(n/1e3, (n%1e3)*1e6).UTC().Format(time.RFC3339)
	default:
		return time.Unix(n, 0).UTC().Format(time.RFC3339)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
