package store

// SchemaVersion is bumped whenever the layout below changes in a way old
// databases cannot serve. An older db_info marker triggers a destructive
// rebuild; the catalog is fully re-derivable from disk and remote re-import.
const SchemaVersion = 2

const Schema = `
CREATE TABLE IF NOT EXISTS folder (
	folder_id INTEGER NOT NULL PRIMARY KEY,
	name TEXT UNIQUE NOT NULL,
	last_modified REAL DEFAULT 0 NOT NULL
);

CREATE TABLE IF NOT EXISTS file (
	file_id INTEGER NOT NULL PRIMARY KEY,
	folder_id INTEGER NOT NULL,
	source TEXT,
	playlist TEXT,
	basename TEXT NOT NULL,
	extension TEXT NOT NULL,
	width INTEGER DEFAULT 0 NOT NULL,
	height INTEGER DEFAULT 0 NOT NULL,
	creation_time REAL DEFAULT 0 NOT NULL,
	displayed_count INTEGER DEFAULT 0 NOT NULL,
	last_displayed REAL DEFAULT 0 NOT NULL,
	UNIQUE(folder_id, basename, extension)
);

CREATE TABLE IF NOT EXISTS meta (
	file_id INTEGER NOT NULL PRIMARY KEY,
	orientation INTEGER DEFAULT 1 NOT NULL,
	exif_datetime REAL,
	f_number REAL,
	exposure_time TEXT,
	iso REAL,
	focal_length TEXT,
	make TEXT,
	model TEXT,
	lens TEXT,
	rating INTEGER,
	latitude REAL,
	longitude REAL,
	title TEXT,
	caption TEXT,
	tags TEXT
);

CREATE INDEX IF NOT EXISTS idx_meta_exif_datetime ON meta(exif_datetime);

CREATE TABLE IF NOT EXISTS location (
	id INTEGER NOT NULL PRIMARY KEY,
	latitude REAL,
	longitude REAL,
	description TEXT,
	UNIQUE(latitude, longitude)
);

CREATE TABLE IF NOT EXISTS imported_playlists (
	id INTEGER NOT NULL PRIMARY KEY,
	source TEXT NOT NULL,
	playlist_id TEXT NOT NULL,
	playlist_name TEXT NOT NULL,
	picture_count INTEGER DEFAULT 0 NOT NULL,
	last_modified TEXT,
	last_imported TEXT,
	src_version INTEGER DEFAULT -1 NOT NULL,
	UNIQUE(source, playlist_id)
);

CREATE TABLE IF NOT EXISTS imported_files (
	id INTEGER NOT NULL PRIMARY KEY,
	source TEXT NOT NULL,
	playlist_id TEXT NOT NULL,
	media_item_id TEXT NOT NULL,
	original_url TEXT,
	basename TEXT,
	extension TEXT,
	caption TEXT,
	orig_extension TEXT,
	processed INTEGER DEFAULT 0 NOT NULL,
	orig_timestamp TEXT,
	last_modified TEXT
);

CREATE INDEX IF NOT EXISTS idx_imported_files_media ON imported_files(source, media_item_id);
CREATE INDEX IF NOT EXISTS idx_imported_files_playlist ON imported_files(source, playlist_id);

CREATE TABLE IF NOT EXISTS slideshow (
	id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
	group_num INTEGER NOT NULL,
	order_in_group INTEGER NOT NULL,
	file_id INTEGER NOT NULL,
	basename TEXT NOT NULL,
	extension TEXT NOT NULL,
	orientation TEXT NOT NULL,
	played INTEGER DEFAULT 0 NOT NULL
);

CREATE TABLE IF NOT EXISTS timer_state (
	name TEXT NOT NULL PRIMARY KEY,
	last_run REAL DEFAULT 0 NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS db_info (
	schema_version INTEGER NOT NULL
);

CREATE VIEW IF NOT EXISTS all_data
AS
SELECT
	folder.name || '/' || file.basename || '.' || file.extension AS fname,
	file.file_id,
	file.folder_id,
	file.source,
	file.playlist,
	file.basename,
	file.extension,
	file.width,
	file.height,
	file.creation_time,
	file.displayed_count,
	file.last_displayed,
	meta.orientation,
	meta.exif_datetime,
	meta.f_number,
	meta.exposure_time,
	meta.iso,
	meta.focal_length,
	meta.make,
	meta.model,
	meta.lens,
	meta.rating,
	meta.latitude,
	meta.longitude,
	meta.title,
	meta.caption,
	meta.tags,
	file.height > file.width AS is_portrait,
	location.description AS location
FROM file
	INNER JOIN folder ON folder.folder_id = file.folder_id
	LEFT JOIN meta ON file.file_id = meta.file_id
	LEFT JOIN location ON location.latitude = meta.latitude AND location.longitude = meta.longitude;

CREATE TRIGGER IF NOT EXISTS clean_file_trigger
AFTER DELETE ON folder
FOR EACH ROW
BEGIN
	DELETE FROM file WHERE folder_id = OLD.folder_id;
END;

CREATE TRIGGER IF NOT EXISTS clean_meta_trigger
AFTER DELETE ON file
FOR EACH ROW
BEGIN
	DELETE FROM meta WHERE file_id = OLD.file_id;
END;
`

// dropAll reverses Schema for the destructive rebuild path.
const dropAll = `
DROP TRIGGER IF EXISTS clean_meta_trigger;
DROP TRIGGER IF EXISTS clean_file_trigger;
DROP VIEW IF EXISTS all_data;
DROP TABLE IF EXISTS db_info;
DROP TABLE IF EXISTS settings;
DROP TABLE IF EXISTS timer_state;
DROP TABLE IF EXISTS slideshow;
DROP TABLE IF EXISTS imported_files;
DROP TABLE IF EXISTS imported_playlists;
DROP TABLE IF EXISTS location;
DROP TABLE IF EXISTS meta;
DROP TABLE IF EXISTS file;
DROP TABLE IF EXISTS folder;
`
