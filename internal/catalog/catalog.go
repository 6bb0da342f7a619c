package catalog

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/dkrugman/pf-aspect/internal/constants"
	"github.com/dkrugman/pf-aspect/internal/domain"
	"github.com/dkrugman/pf-aspect/internal/geo"
	"github.com/dkrugman/pf-aspect/internal/imagemeta"
	"github.com/dkrugman/pf-aspect/internal/logger"
	"github.com/dkrugman/pf-aspect/internal/naming"
	"github.com/dkrugman/pf-aspect/internal/store"
)

// Catalog keeps the database in step with the picture tree on disk. Scans
// are incremental: only folders whose mtime moved past the recorded value
// are re-listed, and only files whose on-disk creation time is newer than
// the stored one are re-inserted.
type Catalog struct {
	db         *store.DB
	resolver   geo.Resolver
	log        *logger.Logger
	pictureDir string
	sources    []string

	mu             sync.Mutex
	pendingFiles   []string
	pendingFolders []folderInfo
}

type folderInfo struct {
	name     string
	modified float64
}

// New builds a Catalog rooted at pictureDir's parent. sources are the
// configured remote source names used to attribute imported files by their
// filename; resolver may be nil to disable place-name lookups.
func New(db *store.DB, resolver geo.Resolver, pictureDir string, sources []string, log *logger.Logger) *Catalog {
	if log == nil {
		log = logger.Default()
	}
	return &Catalog{
		db:         db,
		resolver:   resolver,
		log:        log.WithComponent("catalog"),
		pictureDir: pictureDir,
		sources:    sources,
	}
}

// ScanAndUpdate walks the oriented picture folders, catalogs anything new
// or changed, records the folder mtimes, and reconciles rows whose backing
// files vanished. Work interrupted by ctx stays queued in memory and is
// resumed on the next call.
func (c *Catalog) ScanAndUpdate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pendingFiles) == 0 {
		c.pendingFolders = c.modifiedFolders()
		c.pendingFiles = c.modifiedFiles(c.pendingFolders)
		if len(c.pendingFiles) > 0 {
			c.log.Info("scan found files to catalog",
				"folders", len(c.pendingFolders), "files", len(c.pendingFiles))
		}
	}

	for len(c.pendingFiles) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(len(c.pendingFiles), constants.InsertBatchMax)
		batch := c.pendingFiles[:n]
		c.pendingFiles = c.pendingFiles[n:]
		c.insertBatch(batch)
	}

	// Folder mtimes are only recorded once every file in them landed, so an
	// interrupted scan re-lists the same folders next time.
	for _, folder := range c.pendingFolders {
		if err := c.db.SetFolderModified(folder.name, folder.modified); err != nil {
			c.log.Warn("cannot record folder mtime", "folder", folder.name, "error", err)
		}
	}
	c.pendingFolders = nil

	if err := ctx.Err(); err != nil {
		return err
	}
	c.purgeMissing()
	return nil
}

// modifiedFolders returns the oriented folders that need re-listing: new to
// the database, or with an on-disk mtime newer than the recorded one. Every
// folder returned exists on disk.
func (c *Catalog) modifiedFolders() []folderInfo {
	var out []folderInfo
	parent := filepath.Dir(c.pictureDir)
	for _, sub := range []string{constants.DirLandscape, constants.DirPortrait, constants.DirSquare} {
		root := filepath.Join(parent, sub)
		if _, err := os.Stat(root); err != nil {
			continue
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				c.log.Warn("cannot walk folder", "path", path, "error", walkErr)
				return nil
			}
			if !d.IsDir() {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			// Whole-second mtimes, so re-listing a folder twice within one
			// second never marks it stale against its own recorded time.
			modified := float64(info.ModTime().Unix())
			known, err := c.db.GetFolder(path)
			if err != nil {
				c.log.Warn("cannot look up folder", "folder", path, "error", err)
				return nil
			}
			if known == nil || known.LastModified < modified {
				out = append(out, folderInfo{name: path, modified: modified})
			}
			return nil
		})
		if err != nil {
			c.log.Warn("walk failed", "root", root, "error", err)
		}
	}
	return out
}

// modifiedFiles lists the media files in the given folders that are absent
// from the database or older there than on disk.
func (c *Catalog) modifiedFiles(folders []folderInfo) []string {
	var out []string
	for _, folder := range folders {
		if strings.Contains(folder.name, ".AppleDouble") {
			continue
		}
		entries, err := os.ReadDir(folder.name)
		if err != nil {
			c.log.Warn("cannot list folder", "folder", folder.name, "error", err)
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			if strings.HasPrefix(name, ".") || !hasMediaExtension(name) {
				continue
			}
			full := filepath.Join(folder.name, name)
			dotExt := filepath.Ext(name)
			base := strings.TrimSuffix(name, dotExt)
			ext := strings.TrimPrefix(strings.ToLower(dotExt), ".")
			current, err := c.db.HasCurrentFile(folder.name, base, ext, creationTime(full))
			if err != nil {
				c.log.Warn("cannot check file currency", "file", full, "error", err)
			}
			if !current {
				out = append(out, full)
			}
		}
	}
	return out
}

func hasMediaExtension(name string) bool {
	return slices.Contains(constants.MediaExtensions, strings.ToLower(filepath.Ext(name)))
}

func (c *Catalog) insertBatch(files []string) {
	recs := make([]store.FileRecord, 0, len(files))
	for _, file := range files {
		recs = append(recs, c.fileRecord(file))
	}
	inserted, err := c.db.InsertFilesBatch(recs)
	if err != nil {
		c.log.Error("batch insert failed", "files", len(recs), "inserted", inserted, "error", err)
		return
	}
	c.log.Debug("batch inserted files", "files", inserted)
}

// fileRecord reads everything the database wants to know about one file.
// Files whose image data cannot be read still get a minimal record with
// zero dimensions and no metadata, so they are cataloged rather than
// rediscovered on every scan.
func (c *Catalog) fileRecord(path string) store.FileRecord {
	dir, name := filepath.Split(path)
	dotExt := filepath.Ext(name)
	origin := naming.ParseOrigin(name, c.sources)
	rec := store.FileRecord{
		Dir:          filepath.Clean(dir),
		Source:       origin.Source,
		Playlist:     origin.Playlist,
		Basename:     strings.TrimSuffix(name, dotExt),
		Extension:    strings.TrimPrefix(strings.ToLower(dotExt), "."),
		CreationTime: creationTime(path),
	}
	info, err := imagemeta.Extract(path)
	if err != nil {
		c.log.Warn("cannot read image metadata", "file", path, "error", err)
		return rec
	}
	rec.Width = info.Width
	rec.Height = info.Height
	meta := info.Meta
	rec.Meta = &meta
	return rec
}

// creationTime returns the best creation timestamp available for path.
// Plain stat does not surface birth time on Linux, so the modification time
// stands in; unreadable files report zero and stay eligible for re-insert.
func creationTime(path string) float64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return float64(info.ModTime().UnixNano()) / 1e9
}

// purgeMissing reconciles rows whose folders or files are gone from disk.
// Folder rows are checked on every pass but only deleted once a purge was
// requested; file rows are only examined under a requested purge. The
// request is one-shot and cleared after the pass.
func (c *Catalog) purgeMissing() {
	flag, err := c.db.GetSetting(store.SettingPurgeRequested)
	if err != nil {
		c.log.Warn("cannot read purge flag", "error", err)
	}
	purgeRequested := flag != ""

	folders, err := c.db.ListFolders()
	if err != nil {
		c.log.Warn("cannot list folders", "error", err)
		return
	}
	var missing []domain.Folder
	for _, folder := range folders {
		if _, err := os.Stat(folder.Name); os.IsNotExist(err) {
			missing = append(missing, folder)
		}
	}
	if len(missing) > 0 {
		if purgeRequested {
			for _, folder := range missing {
				if err := c.db.DeleteFolder(folder.ID); err != nil {
					c.log.Warn("cannot purge folder", "folder", folder.Name, "error", err)
				}
			}
			c.log.Info("purged missing folders", "folders", len(missing))
		} else {
			names := make([]string, len(missing))
			for i, folder := range missing {
				names[i] = folder.Name
			}
			c.log.Error("folders in database not found on disk", "folders", strings.Join(names, ", "))
		}
	}

	if !purgeRequested {
		return
	}
	paths, err := c.db.ListFilePaths()
	if err != nil {
		c.log.Warn("cannot list files", "error", err)
		return
	}
	removed := 0
	for _, p := range paths {
		if _, err := os.Stat(p.Fname); os.IsNotExist(err) {
			if err := c.db.DeleteFile(p.FileID); err != nil {
				c.log.Warn("cannot purge file", "file", p.Fname, "error", err)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		c.log.Info("purged missing files", "files", removed)
	}
	if err := c.db.DeleteSetting(store.SettingPurgeRequested); err != nil {
		c.log.Warn("cannot clear purge flag", "error", err)
	}
}

// InsertFile catalogs a single file immediately, outside the scan cycle.
func (c *Catalog) InsertFile(path string) error {
	return c.db.InsertFileRecord(c.fileRecord(path))
}

// NextPic returns the next unplayed slideshow entry, resolving a place name
// for geotagged pictures that do not have one yet. Nil means the sequence
// is exhausted.
func (c *Catalog) NextPic(ctx context.Context) (*domain.SlideshowPic, error) {
	pic, err := c.db.NextUnplayed()
	if err != nil || pic == nil {
		return pic, err
	}
	if pic.Latitude.Valid && pic.Longitude.Valid && !pic.Location.Valid {
		desc, err := c.LookupGeo(ctx, pic.Latitude.Float64, pic.Longitude.Float64)
		if err != nil {
			c.log.Warn("reverse geocode failed", "file", pic.Fname, "error", err)
		} else if desc != "" {
			pic.Location = domain.NullString(desc)
		}
	}
	return pic, nil
}

// LookupGeo resolves a place name for the coordinates. With a caching
// resolver wired in, repeat lookups are served from the location table.
func (c *Catalog) LookupGeo(ctx context.Context, lat, lon float64) (string, error) {
	if c.resolver == nil {
		return "", nil
	}
	return c.resolver.Resolve(ctx, lat, lon)
}

// MarkPlayed flags the picture as shown and bumps its display counters.
func (c *Catalog) MarkPlayed(fileID int64) error {
	return c.db.MarkPlayed(fileID)
}

// Query returns the file ids matching a caller-supplied filter over the
// flattened catalog view.
func (c *Catalog) Query(where, sort string) []int64 {
	return c.db.QueryFileIDs(where, sort)
}

// RequestPurge arms the next scan to delete database rows whose files are
// gone from disk. The request survives restarts.
func (c *Catalog) RequestPurge() error {
	return c.db.SetSetting(store.SettingPurgeRequested, "1")
}

// Columns lists the columns exposed by the flattened catalog view.
func (c *Catalog) Columns() ([]string, error) {
	return c.db.ViewColumns()
}

// HasActiveSequence reports whether unplayed slideshow entries remain.
func (c *Catalog) HasActiveSequence() (bool, error) {
	return c.db.HasActiveSequence()
}
