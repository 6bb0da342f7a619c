package store

import (
	"database/sql"
	"fmt"

	"github.com/dkrugman/pf-aspect/internal/domain"
	"github.com/jmoiron/sqlx"
)

// FileRecord carries everything needed to upsert one file, its folder, and
// its metadata in a single pass.
type FileRecord struct {
	Dir          string
	Source       string
	Playlist     string
	Basename     string
	Extension    string
	Width        int
	Height       int
	CreationTime float64
	Meta         *domain.Metadata
}

func (r FileRecord) fname() string {
	return r.Dir + "/" + r.Basename + "." + r.Extension
}

const fileInsertSQL = `
	INSERT OR IGNORE INTO file (folder_id, source, playlist, basename, extension, width, height, creation_time)
	VALUES ((SELECT folder_id FROM folder WHERE name = ?), ?, ?, ?, ?, ?, ?, ?)`

const metaInsertSQL = `
	INSERT OR REPLACE INTO meta (file_id, orientation, exif_datetime, f_number, exposure_time, iso,
		focal_length, make, model, lens, rating, latitude, longitude, title, caption, tags)
	VALUES ((SELECT file_id FROM all_data WHERE fname = ?), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertFileRecord upserts folder, file, and meta rows for one file in a
// single transaction. Insert-or-ignore on the unique key keeps concurrent
// same-path calls from corrupting or duplicating the row.
func (db *DB) InsertFileRecord(rec FileRecord) error {
	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin insert: %w", err)
	}
	defer tx.Rollback()

	if err := insertRecordTx(tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

// InsertFilesBatch upserts many records in one transaction. When the batch
// transaction fails it falls back to per-record transactions; the returned
// count is how many records landed.
func (db *DB) InsertFilesBatch(recs []FileRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := db.Beginx()
	if err == nil {
		batchErr := func() error {
			for _, rec := range recs {
				if err := insertRecordTx(tx, rec); err != nil {
					return err
				}
			}
			return tx.Commit()
		}()
		if batchErr == nil {
			return len(recs), nil
		}
		tx.Rollback()
		err = batchErr
	}

	// Batch failed; retry record by record so one bad file cannot sink the rest.
	inserted := 0
	for _, rec := range recs {
		if insErr := db.InsertFileRecord(rec); insErr == nil {
			inserted++
		}
	}
	return inserted, fmt.Errorf("batch insert fell back to per-file: %w", err)
}

func insertRecordTx(tx *sqlx.Tx, rec FileRecord) error {
	if _, err := tx.Exec("INSERT OR IGNORE INTO folder (name) VALUES (?)", rec.Dir); err != nil {
		return fmt.Errorf("failed to insert folder %s: %w", rec.Dir, err)
	}
	if _, err := tx.Exec(fileInsertSQL,
		rec.Dir, domain.NullString(rec.Source), domain.NullString(rec.Playlist),
		rec.Basename, rec.Extension, rec.Width, rec.Height, rec.CreationTime); err != nil {
		return fmt.Errorf("failed to insert file %s: %w", rec.Basename, err)
	}
	if rec.Meta != nil {
		m := rec.Meta
		if _, err := tx.Exec(metaInsertSQL,
			rec.fname(), m.Orientation, m.ExifDatetime, m.FNumber, m.ExposureTime, m.ISO,
			m.FocalLength, m.Make, m.Model, m.Lens, m.Rating, m.Latitude, m.Longitude,
			m.Title, m.Caption, m.Tags); err != nil {
			return fmt.Errorf("failed to insert meta for %s: %w", rec.Basename, err)
		}
	}
	return nil
}

// GetFolder returns the folder row for a directory name, or nil when unknown.
func (db *DB) GetFolder(name string) (*domain.Folder, error) {
	folder := &domain.Folder{}
	err := db.Get(folder, "SELECT folder_id, name, last_modified FROM folder WHERE name = ?", name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return folder, nil
}

// ListFolders returns every folder row.
func (db *DB) ListFolders() ([]domain.Folder, error) {
	var folders []domain.Folder
	err := db.Select(&folders, "SELECT folder_id, name, last_modified FROM folder")
	return folders, err
}

// SetFolderModified writes back the on-disk mtime after a folder's files have
// been drained into the catalog.
func (db *DB) SetFolderModified(name string, modified float64) error {
	_, err := db.Exec("UPDATE folder SET last_modified = ? WHERE name = ?", modified, name)
	return err
}

// HasCurrentFile reports whether a row already exists for the file with a
// creation time at least as new as the on-disk one. Creation time is used
// instead of mtime because imported files are re-stamped on arrival.
func (db *DB) HasCurrentFile(dir, basename, extension string, creation float64) (bool, error) {
	var count int
	err := db.Get(&count, `
		SELECT COUNT(*)
		FROM file
			INNER JOIN folder ON folder.folder_id = file.folder_id
		WHERE file.basename = ? AND file.extension = ? AND folder.name = ? AND file.creation_time >= ?`,
		basename, extension, dir, creation)
	return count > 0, err
}

// GetFileID resolves the id for a (dir, basename, extension) triple, or 0.
func (db *DB) GetFileID(dir, basename, extension string) (int64, error) {
	var id int64
	err := db.Get(&id, `
		SELECT file.file_id
		FROM file
			INNER JOIN folder ON folder.folder_id = file.folder_id
		WHERE folder.name = ? AND file.basename = ? AND file.extension = ?`,
		dir, basename, extension)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return id, err
}

// DeleteFolder removes a folder row; cascade triggers clean its files/meta.
func (db *DB) DeleteFolder(folderID int64) error {
	_, err := db.Exec("DELETE FROM folder WHERE folder_id = ?", folderID)
	return err
}

// DeleteFile removes a file row; the cascade trigger cleans its meta.
func (db *DB) DeleteFile(fileID int64) error {
	_, err := db.Exec("DELETE FROM file WHERE file_id = ?", fileID)
	return err
}

// DeleteFilesByOrigin removes the file rows imported from one playlist of one
// source. Used when a remote playlist disappears.
func (db *DB) DeleteFilesByOrigin(source, playlist string) error {
	_, err := db.Exec("DELETE FROM file WHERE source = ? AND playlist = ?", source, playlist)
	return err
}

// FilePath pairs a file id with its reconstructed path for the purge walk.
type FilePath struct {
	FileID int64  `db:"file_id"`
	Fname  string `db:"fname"`
}

// ListFilePaths returns every cataloged file with its reconstructed path.
func (db *DB) ListFilePaths() ([]FilePath, error) {
	var rows []FilePath
	err := db.Select(&rows, "SELECT file_id, fname FROM all_data")
	return rows, err
}

// QueryFileIDs runs a raw filtered/sorted query over the all_data view.
// Errors yield an empty result, never SQL errors; callers treat the view as
// read-only search surface.
func (db *DB) QueryFileIDs(whereClause, sortClause string) []int64 {
	if sortClause == "" {
		sortClause = "fname ASC"
	}
	var ids []int64
	query := fmt.Sprintf("SELECT file_id FROM all_data WHERE %s ORDER BY %s", whereClause, sortClause)
	if err := db.Select(&ids, query); err != nil {
		return []int64{}
	}
	return ids
}

// ViewColumns lists the all_data view's column names.
func (db *DB) ViewColumns() ([]string, error) {
	rows, err := db.Queryx("PRAGMA table_info(all_data)")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   sql.NullString
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// OrientedFile pairs a file id with its folder-derived orientation. The
// terminal path segment of the folder names the category.
type OrientedFile struct {
	FileID     int64  `db:"file_id"`
	Basename   string `db:"basename"`
	Extension  string `db:"extension"`
	FolderName string `db:"name"`
}

// ListOrientedFiles returns every file with its folder name, ordered by id.
// The sequencer derives each file's orientation from the folder.
func (db *DB) ListOrientedFiles() ([]OrientedFile, error) {
	var rows []OrientedFile
	err := db.Select(&rows, `
		SELECT file.file_id, file.basename, file.extension, folder.name
		FROM file
			INNER JOIN folder ON folder.folder_id = file.folder_id
		ORDER BY file.file_id`)
	return rows, err
}
