// Package ingestor mirrors remote playlists onto the local disk: it lists
// each configured source, reconciles the stored sync state, downloads what
// is missing, and hands finished files to the normalizer over the bus.
package ingestor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkrugman/pf-aspect/internal/bus"
	"github.com/dkrugman/pf-aspect/internal/constants"
	"github.com/dkrugman/pf-aspect/internal/domain"
	"github.com/dkrugman/pf-aspect/internal/faults"
	"github.com/dkrugman/pf-aspect/internal/httpclient"
	"github.com/dkrugman/pf-aspect/internal/logger"
	"github.com/dkrugman/pf-aspect/internal/naming"
	"github.com/dkrugman/pf-aspect/internal/sources"
	"github.com/dkrugman/pf-aspect/internal/store"
)

// Options tunes one Ingestor. Zero values fall back to the defaults.
type Options struct {
	// ImportDir receives raw downloads before normalization.
	ImportDir string
	// PictureDir is the landscape directory; the sibling category
	// directories are derived from its parent for stale-file cleanup.
	PictureDir string

	BatchSize      int
	MaxDownloads   int
	MaxStoreWrites int
}

type Ingestor struct {
	db      *store.DB
	sources *sources.Manager
	broker  *bus.Broker
	http    *httpclient.Client
	log     *logger.Logger

	importDir      string
	pictureDir     string
	batchSize      int
	maxDownloads   int
	maxStoreWrites int

	running atomic.Bool
}

func New(db *store.DB, manager *sources.Manager, broker *bus.Broker, opts Options, log *logger.Logger) *Ingestor {
	if log == nil {
		log = logger.Default()
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = constants.DefaultBatchSize
	}
	if opts.MaxDownloads < 1 {
		opts.MaxDownloads = constants.DefaultMaxDownloads
	}
	if opts.MaxStoreWrites < 1 {
		opts.MaxStoreWrites = constants.DefaultMaxStoreWrites
	}
	return &Ingestor{
		db:             db,
		sources:        manager,
		broker:         broker,
		http:           httpclient.NewClient(nil, 0),
		log:            log.WithComponent("ingestor"),
		importDir:      opts.ImportDir,
		pictureDir:     opts.PictureDir,
		batchSize:      opts.BatchSize,
		maxDownloads:   opts.MaxDownloads,
		maxStoreWrites: opts.MaxStoreWrites,
	}
}

// Running reports whether an import cycle is in progress.
func (ing *Ingestor) Running() bool {
	return ing.running.Load()
}

// CheckForUpdates runs one import cycle across every registered source and
// reports whether this call ran it. A cycle already in progress makes the
// call a no-op; it is not queued.
func (ing *Ingestor) CheckForUpdates(ctx context.Context) bool {
	if !ing.running.CompareAndSwap(false, true) {
		ing.log.Info("import cycle already running, skipping")
		return false
	}
	defer ing.running.Store(false)

	for _, src := range ing.sources.Sources() {
		if ctx.Err() != nil {
			return true
		}
		if err := ing.syncSource(ctx, src); err != nil {
			ing.log.Error("source import failed", "source", src.Name(), "error", err)
		}
	}

	// Each download published a normalization request; the cycle is only
	// complete once those have been handled.
	if err := ing.broker.Wait(ctx); err != nil {
		ing.log.Warn("interrupted waiting for processing to settle", "error", err)
	}
	return true
}

// syncSource brings one source's local mirror up to date. Auth and listing
// failures abort this source only.
func (ing *Ingestor) syncSource(ctx context.Context, src sources.Source) error {
	source := src.Name()
	if err := src.Login(ctx); err != nil {
		return err
	}
	remote, err := src.Playlists(ctx)
	if err != nil {
		return err
	}
	candidates, err := ing.reconcile(source, remote)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		ing.log.Info("no playlists for source", "source", source)
		return nil
	}

	var queue []domain.MediaItem
	versions := make(map[string]int64)
	for _, pl := range candidates {
		items, version, upToDate, err := ing.newItems(ctx, src, pl)
		if err != nil {
			ing.log.Error("listing playlist items failed",
				"source", source, "playlist", pl.ID, "error", err)
			continue
		}
		if upToDate {
			continue
		}
		queue = append(queue, items...)
		versions[pl.ID] = version
	}

	failed := ing.download(ctx, source, queue)

	now := time.Now().UTC().Format(time.RFC3339)
	for _, pl := range candidates {
		if err := ing.db.SetPlaylistImported(source, pl.ID, now); err != nil {
			ing.log.Warn("failed to stamp last_imported",
				"source", source, "playlist", pl.ID, "error", err)
		}
	}

	// The version watermark only advances once every item of the playlist
	// has landed; a partial batch leaves it behind so the next cycle
	// retries just the missing items.
	for id, version := range versions {
		if failed[id] > 0 {
			ing.log.Warn("playlist import incomplete, version not advanced",
				"source", source, "playlist", id, "failed", failed[id])
			continue
		}
		if err := ing.db.SetPlaylistVersion(source, id, version); err != nil {
			ing.log.Warn("failed to advance playlist version",
				"source", source, "playlist", id, "error", err)
		}
	}
	return nil
}

// reconcile upserts the current remote playlists and tears down local state
// for playlists that vanished remotely. It returns the current listing.
func (ing *Ingestor) reconcile(source string, remote []domain.RemotePlaylist) ([]domain.RemotePlaylist, error) {
	known, err := ing.db.ListImportedPlaylists(source)
	if err != nil {
		return nil, err
	}

	current := make(map[string]struct{}, len(remote))
	for _, pl := range remote {
		current[pl.ID] = struct{}{}
		row := domain.ImportedPlaylist{
			Source:       source,
			PlaylistID:   pl.ID,
			PlaylistName: pl.Name,
			PictureCount: pl.PictureCount,
			LastModified: domain.NullString(naming.NormalizeTimestamp(pl.LastUpdated)),
			SrcVersion:   -1,
		}
		if err := ing.db.UpsertImportedPlaylist(row); err != nil {
			ing.log.Error("failed to upsert playlist",
				"source", source, "playlist", pl.ID, "error", err)
		}
	}

	for _, p := range known {
		if _, ok := current[p.PlaylistID]; ok {
			continue
		}
		ing.removeStale(source, p.PlaylistID, p.PlaylistName)
	}
	return remote, nil
}

// removeStale deletes a vanished playlist's files from disk first, then its
// store rows. Disk first: a crash in between leaves rows pointing nowhere,
// which the next cycle cleans up, never orphaned files.
func (ing *Ingestor) removeStale(source, playlistID, name string) {
	pattern := naming.ImportBaseName(source, playlistID, "*")
	removed := 0
	for _, dir := range ing.mediaDirs() {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		for _, path := range matches {
			if err := os.Remove(path); err != nil {
				ing.log.Warn("failed to delete stale file", "file", path, "error", err)
				continue
			}
			removed++
		}
	}

	if err := ing.db.DeleteImportedFiles(source, playlistID); err != nil {
		ing.log.Warn("failed to delete import records",
			"source", source, "playlist", playlistID, "error", err)
	}
	if err := ing.db.DeleteFilesByOrigin(source, playlistID); err != nil {
		ing.log.Warn("failed to delete catalog rows",
			"source", source, "playlist", playlistID, "error", err)
	}
	if err := ing.db.DeleteImportedPlaylist(source, playlistID); err != nil {
		ing.log.Warn("failed to delete playlist record",
			"source", source, "playlist", playlistID, "error", err)
	}
	ing.log.Info("removed stale playlist",
		"source", source, "playlist", name, "files", removed)
}

func (ing *Ingestor) mediaDirs() []string {
	parent := filepath.Dir(ing.pictureDir)
	return []string{
		ing.importDir,
		filepath.Join(parent, constants.DirLandscape),
		filepath.Join(parent, constants.DirPortrait),
		filepath.Join(parent, constants.DirSquare),
	}
}

// newItems lists one playlist remotely and filters it down to items not yet
// imported. upToDate reports that the stored version watermark already
// matches the remote one, so the listing can be skipped entirely.
func (ing *Ingestor) newItems(ctx context.Context, src sources.Source, pl domain.RemotePlaylist) (items []domain.MediaItem, version int64, upToDate bool, err error) {
	source := src.Name()
	remote, version, err := src.Items(ctx, pl.ID)
	if err != nil {
		return nil, 0, false, err
	}

	stored, err := ing.db.GetImportedPlaylist(source, pl.ID)
	if err != nil {
		return nil, 0, false, err
	}
	if stored != nil && stored.SrcVersion >= 0 && stored.SrcVersion == version {
		ing.log.Info("playlist up to date",
			"source", source, "playlist", pl.Name, "version", version)
		return nil, version, true, nil
	}

	existing, err := ing.db.ListImportedMediaIDs(source)
	if err != nil {
		return nil, 0, false, err
	}

	seen := make(map[string]struct{}, len(remote))
	for _, item := range remote {
		if _, dup := seen[item.MediaItemID]; dup {
			continue
		}
		seen[item.MediaItemID] = struct{}{}
		if _, ok := existing[item.MediaItemID]; ok {
			continue
		}
		item.PlaylistID = pl.ID
		item.PlaylistName = pl.Name
		items = append(items, item)
	}
	ing.log.Info("playlist items",
		"source", source, "playlist", pl.Name,
		"total", len(remote), "new", len(items), "known", len(remote)-len(items))
	return items, version, false, nil
}

// download fetches the queue in fixed-size batches and returns the count of
// failed items per playlist. Downloads and store writes are throttled by
// separate semaphores.
func (ing *Ingestor) download(ctx context.Context, source string, queue []domain.MediaItem) map[string]int {
	failed := make(map[string]int)
	if len(queue) == 0 {
		return failed
	}
	if err := os.MkdirAll(ing.importDir, constants.DirPermissions); err != nil {
		ing.log.Error("cannot create import dir", "dir", ing.importDir, "error", err)
		for _, item := range queue {
			failed[item.PlaylistID]++
		}
		return failed
	}

	downloads := make(chan struct{}, ing.maxDownloads)
	writes := make(chan struct{}, ing.maxStoreWrites)
	var mu sync.Mutex

	total := len(queue)
	batches := (total + ing.batchSize - 1) / ing.batchSize
	for start := 0; start < total; start += ing.batchSize {
		end := min(start+ing.batchSize, total)
		batch := queue[start:end]
		ing.log.Info("downloading batch", "source", source,
			"batch", start/ing.batchSize+1, "batches", batches, "items", len(batch))

		var wg sync.WaitGroup
		for _, item := range batch {
			wg.Add(1)
			go func(item domain.MediaItem) {
				defer wg.Done()
				if err := ing.fetchItem(ctx, source, item, downloads, writes); err != nil {
					ing.log.Error("item import failed", "source", source,
						"media", item.MediaItemID, "error", err)
					mu.Lock()
					failed[item.PlaylistID]++
					mu.Unlock()
				}
			}(item)
		}
		wg.Wait()

		if end < total {
			select {
			case <-ctx.Done():
				for _, item := range queue[end:] {
					failed[item.PlaylistID]++
				}
				return failed
			case <-time.After(constants.BatchPause):
			}
		}
	}
	return failed
}

// fetchItem downloads one media item, records it, and publishes the path so
// normalization starts while the rest of the batch is still in flight.
func (ing *Ingestor) fetchItem(ctx context.Context, source string, item domain.MediaItem, downloads, writes chan struct{}) error {
	if item.OriginalURL == "" {
		ing.log.Warn("media item has no url, skipping", "media", item.MediaItemID)
		return nil
	}

	select {
	case downloads <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-downloads }()

	name := item.Filename
	if name == "" {
		name = item.OriginalURL
	}
	base, ext := naming.SplitURLName(name)
	base = naming.ImportBaseName(source, item.PlaylistID, naming.SafeName(base))
	dest := filepath.Join(ing.importDir, base+"."+ext)
	log := ing.log.WithFile(dest)

	if _, err := ing.http.Download(ctx, item.OriginalURL, dest, nil); err != nil {
		return faults.E(faults.KindTransientRemote, "ingestor.download", err)
	}

	select {
	case writes <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-writes }()

	modified := time.Now().UTC()
	if info, err := os.Stat(dest); err == nil {
		modified = info.ModTime().UTC()
	}
	rec := domain.ImportedFile{
		Source:        source,
		PlaylistID:    item.PlaylistID,
		MediaItemID:   item.MediaItemID,
		OriginalURL:   item.OriginalURL,
		Basename:      base,
		Extension:     ext,
		Caption:       domain.NullString(item.Caption),
		OrigExtension: ext,
		Processed:     0,
		OrigTimestamp: domain.NullString(naming.NormalizeTimestamp(item.Timestamp)),
		LastModified:  domain.NullString(modified.Format(time.RFC3339)),
	}
	if err := ing.db.InsertImportedFile(rec); err != nil {
		return fmt.Errorf("failed to record import of %s: %w", base, err)
	}

	ing.broker.Publish(bus.TopicMediaDownloaded, dest)
	log.Debug("imported media item")
	return nil
}
