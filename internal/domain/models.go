package domain

import (
	"database/sql"
)

// Folder is one scanned directory under the watched roots.
type Folder struct {
	ID           int64   `json:"id" db:"folder_id"`
	Name         string  `json:"name" db:"name"`
	LastModified float64 `json:"last_modified" db:"last_modified"`
}

// File is one cataloged media file. The (FolderID, Basename, Extension)
// triple is unique.
type File struct {
	ID             int64          `json:"id" db:"file_id"`
	FolderID       int64          `json:"folder_id" db:"folder_id"`
	Source         sql.NullString `json:"source" db:"source"`
	Playlist       sql.NullString `json:"playlist" db:"playlist"`
	Basename       string         `json:"basename" db:"basename"`
	Extension      string         `json:"extension" db:"extension"`
	Width          int            `json:"width" db:"width"`
	Height         int            `json:"height" db:"height"`
	CreationTime   float64        `json:"creation_time" db:"creation_time"`
	DisplayedCount int            `json:"displayed_count" db:"displayed_count"`
	LastDisplayed  float64        `json:"last_displayed" db:"last_displayed"`
}

// Metadata holds the EXIF/IPTC fields extracted for a file. Absent fields
// stay NULL so "unknown" never reads as "measured zero".
type Metadata struct {
	FileID       int64           `json:"file_id" db:"file_id"`
	Orientation  int             `json:"orientation" db:"orientation"`
	ExifDatetime sql.NullFloat64 `json:"exif_datetime" db:"exif_datetime"`
	FNumber      sql.NullFloat64 `json:"f_number" db:"f_number"`
	ExposureTime sql.NullString  `json:"exposure_time" db:"exposure_time"`
	ISO          sql.NullFloat64 `json:"iso" db:"iso"`
	FocalLength  sql.NullString  `json:"focal_length" db:"focal_length"`
	Make         sql.NullString  `json:"make" db:"make"`
	Model        sql.NullString  `json:"model" db:"model"`
	Lens         sql.NullString  `json:"lens" db:"lens"`
	Rating       sql.NullInt64   `json:"rating" db:"rating"`
	Latitude     sql.NullFloat64 `json:"latitude" db:"latitude"`
	Longitude    sql.NullFloat64 `json:"longitude" db:"longitude"`
	Title        sql.NullString  `json:"title" db:"title"`
	Caption      sql.NullString  `json:"caption" db:"caption"`
	Tags         sql.NullString  `json:"tags" db:"tags"`
}

// Location caches one reverse-geocoded coordinate pair.
type Location struct {
	ID          int64   `json:"id" db:"id"`
	Latitude    float64 `json:"latitude" db:"latitude"`
	Longitude   float64 `json:"longitude" db:"longitude"`
	Description string  `json:"description" db:"description"`
}

// ImportedPlaylist tracks the sync state of one remote playlist. SrcVersion
// is the remote change counter; -1 means never fetched.
type ImportedPlaylist struct {
	ID           int64          `json:"id" db:"id"`
	Source       string         `json:"source" db:"source"`
	PlaylistID   string         `json:"playlist_id" db:"playlist_id"`
	PlaylistName string         `json:"playlist_name" db:"playlist_name"`
	PictureCount int            `json:"picture_count" db:"picture_count"`
	LastModified sql.NullString `json:"last_modified" db:"last_modified"`
	LastImported sql.NullString `json:"last_imported" db:"last_imported"`
	SrcVersion   int64          `json:"src_version" db:"src_version"`
}

// ImportedFile is the dedupe record for one downloaded media item.
// MediaItemID is the stable remote identity.
type ImportedFile struct {
	ID            int64          `json:"id" db:"id"`
	Source        string         `json:"source" db:"source"`
	PlaylistID    string         `json:"playlist_id" db:"playlist_id"`
	MediaItemID   string         `json:"media_item_id" db:"media_item_id"`
	OriginalURL   string         `json:"original_url" db:"original_url"`
	Basename      string         `json:"basename" db:"basename"`
	Extension     string         `json:"extension" db:"extension"`
	Caption       sql.NullString `json:"caption" db:"caption"`
	OrigExtension string         `json:"orig_extension" db:"orig_extension"`
	Processed     int            `json:"processed" db:"processed"`
	OrigTimestamp sql.NullString `json:"orig_timestamp" db:"orig_timestamp"`
	LastModified  sql.NullString `json:"last_modified" db:"last_modified"`
}

// SlideshowEntry is one row of the materialized slideshow sequence.
type SlideshowEntry struct {
	ID           int64       `json:"id" db:"id"`
	GroupNum     int         `json:"group_num" db:"group_num"`
	OrderInGroup int         `json:"order_in_group" db:"order_in_group"`
	FileID       int64       `json:"file_id" db:"file_id"`
	Basename     string      `json:"basename" db:"basename"`
	Extension    string      `json:"extension" db:"extension"`
	Orientation  Orientation `json:"orientation" db:"orientation"`
	Played       int         `json:"played" db:"played"`
}

// TimerState persists one scheduled job's last run.
type TimerState struct {
	Name    string  `json:"name" db:"name"`
	LastRun float64 `json:"last_run" db:"last_run"`
}

// SlideshowPic is the fully joined record the display layer consumes: the
// next unplayed slideshow entry with its file, metadata, and location.
type SlideshowPic struct {
	FileID       int64           `json:"file_id" db:"file_id"`
	Fname        string          `json:"fname" db:"fname"`
	Orientation  int             `json:"orientation" db:"orientation"`
	ExifDatetime float64         `json:"exif_datetime" db:"exif_datetime"`
	FNumber      float64         `json:"f_number" db:"f_number"`
	ExposureTime sql.NullString  `json:"exposure_time" db:"exposure_time"`
	ISO          float64         `json:"iso" db:"iso"`
	FocalLength  sql.NullString  `json:"focal_length" db:"focal_length"`
	Make         sql.NullString  `json:"make" db:"make"`
	Model        sql.NullString  `json:"model" db:"model"`
	Lens         sql.NullString  `json:"lens" db:"lens"`
	Rating       int64           `json:"rating" db:"rating"`
	Latitude     sql.NullFloat64 `json:"latitude" db:"latitude"`
	Longitude    sql.NullFloat64 `json:"longitude" db:"longitude"`
	Width        int             `json:"width" db:"width"`
	Height       int             `json:"height" db:"height"`
	IsPortrait   bool            `json:"is_portrait" db:"is_portrait"`
	Location     sql.NullString  `json:"location" db:"location"`
	Title        sql.NullString  `json:"title" db:"title"`
	Caption      sql.NullString  `json:"caption" db:"caption"`
	Tags         sql.NullString  `json:"tags" db:"tags"`
}

// MediaItem is one entry of a remote playlist listing.
type MediaItem struct {
	MediaItemID  string `json:"mediaItemId"`
	MediaType    string `json:"mediaType"`
	OriginalURL  string `json:"originalUrl"`
	Caption      string `json:"caption"`
	Timestamp    string `json:"timestamp"`
	Filename     string `json:"filename"`
	PlaylistID   string `json:"playlist_id"`
	PlaylistName string `json:"playlist_name"`
}

// RemotePlaylist is one entry of a source's playlist listing.
type RemotePlaylist struct {
	ID           string `json:"id"`
	Name         string `json:"playlist_name"`
	LastUpdated  string `json:"last_updated_date"`
	PictureCount int    `json:"picture_count"`
}
