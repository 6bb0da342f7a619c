package store

import (
	"database/sql"
	"fmt"

	"github.com/dkrugman/pf-aspect/internal/domain"
)

// ListImportedPlaylists returns the stored sync state for one source.
func (db *DB) ListImportedPlaylists(source string) ([]domain.ImportedPlaylist, error) {
	var playlists []domain.ImportedPlaylist
	err := db.Select(&playlists, `
		SELECT id, source, playlist_id, playlist_name, picture_count, last_modified, last_imported, src_version
		FROM imported_playlists WHERE source = ?`, source)
	return playlists, err
}

// GetImportedPlaylist returns one playlist's sync state, or nil when the
// playlist has never been imported.
func (db *DB) GetImportedPlaylist(source, playlistID string) (*domain.ImportedPlaylist, error) {
	p := &domain.ImportedPlaylist{}
	err := db.Get(p, `
		SELECT id, source, playlist_id, playlist_name, picture_count, last_modified, last_imported, src_version
		FROM imported_playlists WHERE source = ? AND playlist_id = ?`, source, playlistID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpsertImportedPlaylist inserts a newly seen playlist or refreshes the name,
// count, and remote modification stamp of a known one. The src_version of an
// existing row is left alone; it only moves through SetPlaylistVersion.
func (db *DB) UpsertImportedPlaylist(p domain.ImportedPlaylist) error {
	_, err := db.Exec(`
		INSERT INTO imported_playlists (source, playlist_id, playlist_name, picture_count, last_modified, last_imported, src_version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, playlist_id) DO UPDATE SET
			playlist_name = excluded.playlist_name,
			picture_count = excluded.picture_count,
			last_modified = excluded.last_modified`,
		p.Source, p.PlaylistID, p.PlaylistName, p.PictureCount, p.LastModified, p.LastImported, p.SrcVersion)
	return err
}

// SetPlaylistVersion advances the stored remote version watermark. The
// watermark never regresses; a smaller value is ignored.
func (db *DB) SetPlaylistVersion(source, playlistID string, version int64) error {
	_, err := db.Exec(`
		UPDATE imported_playlists SET src_version = ?
		WHERE source = ? AND playlist_id = ? AND src_version < ?`,
		version, source, playlistID, version)
	return err
}

// SetPlaylistImported stamps last_imported after a download cycle touches the
// playlist.
func (db *DB) SetPlaylistImported(source, playlistID, when string) error {
	_, err := db.Exec(`
		UPDATE imported_playlists SET last_imported = ? WHERE source = ? AND playlist_id = ?`,
		when, source, playlistID)
	return err
}

// DeleteImportedPlaylist removes one playlist's sync row.
func (db *DB) DeleteImportedPlaylist(source, playlistID string) error {
	_, err := db.Exec("DELETE FROM imported_playlists WHERE source = ? AND playlist_id = ?", source, playlistID)
	return err
}

// ListImportedMediaIDs returns the set of media item ids already downloaded
// for a source. Items in this set are skipped even across version bumps.
func (db *DB) ListImportedMediaIDs(source string) (map[string]struct{}, error) {
	var ids []string
	if err := db.Select(&ids, "SELECT media_item_id FROM imported_files WHERE source = ?", source); err != nil {
		return nil, fmt.Errorf("failed to list imported media ids: %w", err)
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// InsertImportedFile records one completed download for dedupe.
func (db *DB) InsertImportedFile(f domain.ImportedFile) error {
	_, err := db.Exec(`
		INSERT INTO imported_files (source, playlist_id, media_item_id, original_url, basename, extension,
			caption, orig_extension, processed, orig_timestamp, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Source, f.PlaylistID, f.MediaItemID, f.OriginalURL, f.Basename, f.Extension,
		f.Caption, f.OrigExtension, f.Processed, f.OrigTimestamp, f.LastModified)
	return err
}

// DeleteImportedFiles drops the dedupe rows of one playlist.
func (db *DB) DeleteImportedFiles(source, playlistID string) error {
	_, err := db.Exec("DELETE FROM imported_files WHERE source = ? AND playlist_id = ?", source, playlistID)
	return err
}

// CountImportedFiles reports how many downloads are recorded for a source.
func (db *DB) CountImportedFiles(source string) (int, error) {
	var count int
	err := db.Get(&count, "SELECT COUNT(*) FROM imported_files WHERE source = ?", source)
	return count, err
}
