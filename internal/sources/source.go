// Package sources lists playlists and media items on remote picture
// services. Implementations are pure API clients: they hold no database
// state, so the ingestor decides what is new, stale, or already imported.
package sources

import (
	"context"

	"github.com/dkrugman/pf-aspect/internal/domain"
)

// Source is one configured remote picture service.
type Source interface {
	// Name is the configured source name; it prefixes downloaded filenames.
	Name() string
	// Login establishes an authenticated session for subsequent calls.
	Login(ctx context.Context) error
	// Playlists lists the remote playlists whose names match the configured
	// identifier suffix.
	Playlists(ctx context.Context) ([]domain.RemotePlaylist, error)
	// Items lists a playlist's media together with the remote version
	// counter for that playlist's content.
	Items(ctx context.Context, playlistID string) ([]domain.MediaItem, int64, error)
}

// Config carries one source's connection settings.
type Config struct {
	Name       string
	BaseURL    string
	Username   string
	Password   string
	Identifier string
}
