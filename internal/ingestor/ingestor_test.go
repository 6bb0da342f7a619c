package ingestor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/dkrugman/pf-aspect/internal/bus"
	"github.com/dkrugman/pf-aspect/internal/domain"
	"github.com/dkrugman/pf-aspect/internal/sources"
	"github.com/dkrugman/pf-aspect/internal/store"
)

type fixture struct {
	ing       *Ingestor
	db        *store.DB
	mock      *sources.MockSource
	broker    *bus.Broker
	importDir string
	picsDir   string
}

func setupIngestor(t *testing.T) *fixture {
	t.Helper()
	tmp := t.TempDir()
	db, _, err := store.Open(filepath.Join(tmp, "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mock := sources.NewMockSource("nixview")
	mgr := sources.NewManager()
	mgr.Add(mock)
	broker := bus.New()

	picsDir := filepath.Join(tmp, "Pictures")
	importDir := filepath.Join(picsDir, "Import")
	ing := New(db, mgr, broker, Options{
		ImportDir:  importDir,
		PictureDir: filepath.Join(picsDir, "Landscape"),
	}, nil)
	return &fixture{ing: ing, db: db, mock: mock, broker: broker, importDir: importDir, picsDir: picsDir}
}

// mediaServer serves downloadable bytes and records per-path hits; paths can
// be forced to fail to simulate flaky storage.
type mediaServer struct {
	srv  *httptest.Server
	mu   sync.Mutex
	hits map[string]int
	fail map[string]bool
}

func newMediaServer(t *testing.T) *mediaServer {
	t.Helper()
	ms := &mediaServer{hits: make(map[string]int), fail: make(map[string]bool)}
	ms.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ms.mu.Lock()
		ms.hits[r.URL.Path]++
		failing := ms.fail[r.URL.Path]
		ms.mu.Unlock()
		if failing {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("media-bytes" + r.URL.Path))
	}))
	t.Cleanup(ms.srv.Close)
	return ms
}

func (ms *mediaServer) url(name string) string {
	return ms.srv.URL + "/" + name
}

func (ms *mediaServer) setFail(name string, fail bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.fail["/"+name] = fail
}

func (ms *mediaServer) totalHits() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	total := 0
	for _, n := range ms.hits {
		total += n
	}
	return total
}

func mediaItem(id, url, filename string) domain.MediaItem {
	return domain.MediaItem{
		MediaItemID: id,
		MediaType:   "photo",
		OriginalURL: url,
		Filename:    filename,
		Timestamp:   "1718400000",
	}
}

func TestCheckForUpdates_ImportsNewPlaylist(t *testing.T) {
	f := setupIngestor(t)
	ms := newMediaServer(t)

	f.mock.AddPlaylist(domain.RemotePlaylist{ID: "1", Name: "Vacation FR001", LastUpdated: "1718476980000", PictureCount: 3}, 5,
		mediaItem("m-1", ms.url("beach.jpg"), "beach.jpg"),
		mediaItem("m-2", ms.url("pier.jpg"), "pier.jpg"),
		mediaItem("m-3", ms.url("cliff.jpg"), "cliff.jpg"),
	)

	var mu sync.Mutex
	var published []string
	if err := f.broker.Subscribe(bus.TopicMediaDownloaded, func(path string) {
		mu.Lock()
		published = append(published, path)
		mu.Unlock()
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if !f.ing.CheckForUpdates(context.Background()) {
		t.Fatal("cycle did not run")
	}

	for _, name := range []string{"nixview_1_beach.jpg", "nixview_1_pier.jpg", "nixview_1_cliff.jpg"} {
		if _, err := os.Stat(filepath.Join(f.importDir, name)); err != nil {
			t.Errorf("downloaded file missing: %s", name)
		}
	}
	if n, err := f.db.CountImportedFiles("nixview"); err != nil || n != 3 {
		t.Errorf("imported file rows = %d (%v), want 3", n, err)
	}

	pl, err := f.db.GetImportedPlaylist("nixview", "1")
	if err != nil || pl == nil {
		t.Fatalf("playlist row missing: %v", err)
	}
	if pl.SrcVersion != 5 {
		t.Errorf("src_version = %d, want 5", pl.SrcVersion)
	}
	if !pl.LastImported.Valid || pl.LastImported.String == "" {
		t.Error("last_imported not stamped")
	}
	if !pl.LastModified.Valid || pl.LastModified.String != "2024-06-15T18:43:00Z" {
		t.Errorf("last_modified = %+v, want normalized epoch", pl.LastModified)
	}

	// CheckForUpdates only returns after the published notifications have
	// been handled, so no extra synchronization is needed here.
	mu.Lock()
	defer mu.Unlock()
	sort.Strings(published)
	if len(published) != 3 {
		t.Fatalf("published %d paths, want 3: %v", len(published), published)
	}
	if published[0] != filepath.Join(f.importDir, "nixview_1_beach.jpg") {
		t.Errorf("unexpected published path %s", published[0])
	}
}

func TestCheckForUpdates_SecondCycleDownloadsNothing(t *testing.T) {
	f := setupIngestor(t)
	ms := newMediaServer(t)
	f.mock.AddPlaylist(domain.RemotePlaylist{ID: "1", Name: "Vacation FR001"}, 5,
		mediaItem("m-1", ms.url("beach.jpg"), "beach.jpg"),
		mediaItem("m-2", ms.url("pier.jpg"), "pier.jpg"),
	)

	f.ing.CheckForUpdates(context.Background())
	after := ms.totalHits()
	if after != 2 {
		t.Fatalf("first cycle made %d requests, want 2", after)
	}

	f.ing.CheckForUpdates(context.Background())
	if ms.totalHits() != after {
		t.Errorf("second cycle downloaded again: %d requests total", ms.totalHits())
	}
	if f.mock.ItemsCalls["1"] != 2 {
		t.Errorf("playlist listed %d times, want 2", f.mock.ItemsCalls["1"])
	}
}

func TestCheckForUpdates_VersionBumpDownloadsOnlyNew(t *testing.T) {
	f := setupIngestor(t)
	ms := newMediaServer(t)
	pl := domain.RemotePlaylist{ID: "1", Name: "Vacation FR001"}
	older := []domain.MediaItem{
		mediaItem("m-1", ms.url("beach.jpg"), "beach.jpg"),
		mediaItem("m-2", ms.url("pier.jpg"), "pier.jpg"),
	}
	f.mock.AddPlaylist(pl, 5, older...)
	f.ing.CheckForUpdates(context.Background())

	f.mock.AddPlaylist(pl, 6, append(older,
		mediaItem("m-3", ms.url("cliff.jpg"), "cliff.jpg"))...)
	f.ing.CheckForUpdates(context.Background())

	ms.mu.Lock()
	beach, cliff := ms.hits["/beach.jpg"], ms.hits["/cliff.jpg"]
	ms.mu.Unlock()
	if beach != 1 {
		t.Errorf("existing item re-downloaded %d times", beach)
	}
	if cliff != 1 {
		t.Errorf("new item downloaded %d times, want 1", cliff)
	}

	stored, _ := f.db.GetImportedPlaylist("nixview", "1")
	if stored == nil || stored.SrcVersion != 6 {
		t.Errorf("version not advanced to 6: %+v", stored)
	}
	if n, _ := f.db.CountImportedFiles("nixview"); n != 3 {
		t.Errorf("imported rows = %d, want 3", n)
	}
}

func TestCheckForUpdates_PartialFailureHoldsVersion(t *testing.T) {
	f := setupIngestor(t)
	ms := newMediaServer(t)
	ms.setFail("pier.jpg", true)

	f.mock.AddPlaylist(domain.RemotePlaylist{ID: "1", Name: "Vacation FR001"}, 5,
		mediaItem("m-1", ms.url("beach.jpg"), "beach.jpg"),
		mediaItem("m-2", ms.url("pier.jpg"), "pier.jpg"),
		mediaItem("m-3", ms.url("cliff.jpg"), "cliff.jpg"),
	)

	f.ing.CheckForUpdates(context.Background())
	if n, _ := f.db.CountImportedFiles("nixview"); n != 2 {
		t.Fatalf("imported rows after failed cycle = %d, want 2", n)
	}
	stored, _ := f.db.GetImportedPlaylist("nixview", "1")
	if stored == nil || stored.SrcVersion != -1 {
		t.Fatalf("version advanced despite failure: %+v", stored)
	}

	// The item recovers; only it should be fetched again.
	ms.setFail("pier.jpg", false)
	f.ing.CheckForUpdates(context.Background())

	ms.mu.Lock()
	beach, pier := ms.hits["/beach.jpg"], ms.hits["/pier.jpg"]
	ms.mu.Unlock()
	if beach != 1 {
		t.Errorf("landed item re-downloaded %d times", beach)
	}
	if pier != 2 {
		t.Errorf("missing item fetched %d times, want 2", pier)
	}
	if n, _ := f.db.CountImportedFiles("nixview"); n != 3 {
		t.Errorf("imported rows = %d, want 3", n)
	}
	stored, _ = f.db.GetImportedPlaylist("nixview", "1")
	if stored == nil || stored.SrcVersion != 5 {
		t.Errorf("version not advanced after recovery: %+v", stored)
	}
}

func TestCheckForUpdates_RemovesStalePlaylist(t *testing.T) {
	f := setupIngestor(t)
	ms := newMediaServer(t)
	f.mock.AddPlaylist(domain.RemotePlaylist{ID: "1", Name: "Vacation FR001"}, 5,
		mediaItem("m-1", ms.url("beach.jpg"), "beach.jpg"),
		mediaItem("m-2", ms.url("pier.jpg"), "pier.jpg"),
	)
	f.ing.CheckForUpdates(context.Background())

	// A processed copy in a category dir and its catalog row share the
	// playlist's fate.
	landscape := filepath.Join(f.picsDir, "Landscape")
	if err := os.MkdirAll(landscape, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	processed := filepath.Join(landscape, "nixview_1_beach.jpg")
	if err := os.WriteFile(processed, []byte("normalized"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := f.db.InsertFileRecord(store.FileRecord{
		Dir: landscape, Source: "nixview", Playlist: "1",
		Basename: "nixview_1_beach", Extension: "jpg",
	}); err != nil {
		t.Fatalf("insert catalog row: %v", err)
	}

	f.mock.RemovePlaylist("1")
	f.ing.CheckForUpdates(context.Background())

	if matches, _ := filepath.Glob(filepath.Join(f.importDir, "nixview_1_*")); len(matches) != 0 {
		t.Errorf("stale downloads left on disk: %v", matches)
	}
	if _, err := os.Stat(processed); !os.IsNotExist(err) {
		t.Error("stale processed copy left on disk")
	}
	if pl, _ := f.db.GetImportedPlaylist("nixview", "1"); pl != nil {
		t.Error("stale playlist row not deleted")
	}
	if n, _ := f.db.CountImportedFiles("nixview"); n != 0 {
		t.Errorf("stale import rows left: %d", n)
	}
	if ids := f.db.QueryFileIDs("source = 'nixview' AND playlist = '1'", ""); len(ids) != 0 {
		t.Errorf("stale catalog rows left: %v", ids)
	}
}

func TestCheckForUpdates_LoginFailureSkipsSourceOnly(t *testing.T) {
	f := setupIngestor(t)
	ms := newMediaServer(t)

	bad := sources.NewMockSource("badsrc")
	bad.LoginErr = errors.New("credentials rejected")
	bad.AddPlaylist(domain.RemotePlaylist{ID: "9", Name: "Never FR001"}, 1,
		mediaItem("x-1", ms.url("never.jpg"), "never.jpg"))

	mgr := sources.NewManager()
	mgr.Add(bad)
	mgr.Add(f.mock)
	f.mock.AddPlaylist(domain.RemotePlaylist{ID: "1", Name: "Vacation FR001"}, 5,
		mediaItem("m-1", ms.url("beach.jpg"), "beach.jpg"))

	ing := New(f.db, mgr, f.broker, Options{
		ImportDir:  f.importDir,
		PictureDir: filepath.Join(f.picsDir, "Landscape"),
	}, nil)

	if !ing.CheckForUpdates(context.Background()) {
		t.Fatal("cycle did not run")
	}

	if bad.ListCalls != 0 {
		t.Error("failed login should abort before the playlist listing")
	}
	if lists, _ := f.db.ListImportedPlaylists("badsrc"); len(lists) != 0 {
		t.Errorf("rows recorded for unauthenticated source: %v", lists)
	}
	if n, _ := f.db.CountImportedFiles("nixview"); n != 1 {
		t.Errorf("healthy source did not import: %d rows", n)
	}
}

// blockingSource parks inside Login until released, holding the in-progress
// flag so overlap behavior can be observed.
type blockingSource struct {
	*sources.MockSource
	enterOnce sync.Once
	entered   chan struct{}
	release   chan struct{}
}

func (s *blockingSource) Login(ctx context.Context) error {
	s.enterOnce.Do(func() { close(s.entered) })
	<-s.release
	return s.MockSource.Login(ctx)
}

func TestCheckForUpdates_ConcurrentCallNoOps(t *testing.T) {
	f := setupIngestor(t)
	slow := &blockingSource{
		MockSource: sources.NewMockSource("nixview"),
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	mgr := sources.NewManager()
	mgr.Add(slow)
	ing := New(f.db, mgr, f.broker, Options{
		ImportDir:  f.importDir,
		PictureDir: filepath.Join(f.picsDir, "Landscape"),
	}, nil)

	done := make(chan bool)
	go func() { done <- ing.CheckForUpdates(context.Background()) }()
	<-slow.entered

	if ing.CheckForUpdates(context.Background()) {
		t.Error("overlapping call should no-op")
	}
	close(slow.release)
	if !<-done {
		t.Error("first call should have run the cycle")
	}
	if !ing.CheckForUpdates(context.Background()) {
		t.Error("flag not released after the cycle finished")
	}
}
