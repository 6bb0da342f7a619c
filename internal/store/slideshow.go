package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dkrugman/pf-aspect/internal/domain"
)

const nextUnplayedSQL = `
	SELECT s.file_id,
	       fo.name || '/' || f.basename || '.' || f.extension AS fname,
	       COALESCE(m.orientation, 1) AS orientation,
	       COALESCE(m.exif_datetime, 0) AS exif_datetime,
	       COALESCE(m.f_number, 0) AS f_number,
	       m.exposure_time,
	       COALESCE(m.iso, 0) AS iso,
	       m.focal_length, m.make, m.model, m.lens,
	       COALESCE(m.rating, 0) AS rating,
	       m.latitude, m.longitude,
	       COALESCE(f.width, 0) AS width,
	       COALESCE(f.height, 0) AS height,
	       f.height > f.width AS is_portrait,
	       l.description AS location,
	       m.title, m.caption, m.tags
	FROM slideshow s
		JOIN file f ON s.file_id = f.file_id
		JOIN folder fo ON f.folder_id = fo.folder_id
		LEFT JOIN meta m ON s.file_id = m.file_id
		LEFT JOIN location l ON l.latitude = m.latitude AND l.longitude = m.longitude
	WHERE s.played = 0
	ORDER BY s.group_num ASC, s.order_in_group ASC
	LIMIT 1`

// NextUnplayed returns the first unplayed slideshow entry joined with its
// file, metadata, and location, or nil when the sequence is exhausted or
// empty. Entries whose file row vanished are skipped by the inner join.
func (db *DB) NextUnplayed() (*domain.SlideshowPic, error) {
	pic := &domain.SlideshowPic{}
	err := db.Get(pic, nextUnplayedSQL)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read next slideshow entry: %w", err)
	}
	return pic, nil
}

// MarkPlayed flips the entry to played and bumps the file's display counter
// in one transaction.
func (db *DB) MarkPlayed(fileID int64) error {
	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin mark played: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("UPDATE slideshow SET played = 1 WHERE file_id = ?", fileID); err != nil {
		return fmt.Errorf("failed to mark slideshow entry played: %w", err)
	}
	if _, err := tx.Exec(
		"UPDATE file SET displayed_count = displayed_count + 1, last_displayed = ? WHERE file_id = ?",
		float64(time.Now().UnixNano())/1e9, fileID); err != nil {
		return fmt.Errorf("failed to update display count: %w", err)
	}
	return tx.Commit()
}

// ReplaceSequence swaps in a freshly generated slideshow wholesale. The old
// rows and the new rows never coexist outside the transaction.
func (db *DB) ReplaceSequence(entries []domain.SlideshowEntry) error {
	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin sequence replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM slideshow"); err != nil {
		return fmt.Errorf("failed to clear slideshow: %w", err)
	}
	stmt, err := tx.Preparex(`
		INSERT INTO slideshow (group_num, order_in_group, file_id, basename, extension, orientation, played)
		VALUES (?, ?, ?, ?, ?, ?, 0)`)
	if err != nil {
		return fmt.Errorf("failed to prepare slideshow insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.Exec(e.GroupNum, e.OrderInGroup, e.FileID, e.Basename, e.Extension, e.Orientation); err != nil {
			return fmt.Errorf("failed to insert slideshow entry: %w", err)
		}
	}
	return tx.Commit()
}

// HasActiveSequence reports whether any unplayed entry remains.
func (db *DB) HasActiveSequence() (bool, error) {
	var count int
	err := db.Get(&count, "SELECT COUNT(*) FROM slideshow WHERE played = 0")
	return count > 0, err
}

// SequenceSize returns the total number of slideshow entries.
func (db *DB) SequenceSize() (int, error) {
	var count int
	err := db.Get(&count, "SELECT COUNT(*) FROM slideshow")
	return count, err
}
