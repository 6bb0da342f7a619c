package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dkrugman/pf-aspect/internal/catalog"
	"github.com/dkrugman/pf-aspect/internal/constants"
	"github.com/dkrugman/pf-aspect/internal/normalizer"
	"github.com/dkrugman/pf-aspect/internal/scheduler"
	"github.com/dkrugman/pf-aspect/internal/sequencer"
	"github.com/dkrugman/pf-aspect/internal/store"
)

type fixture struct {
	router    *chi.Mux
	db        *store.DB
	sched     *scheduler.Scheduler
	importDir string
	picsRoot  string
}

func setupAPI(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	importDir := filepath.Join(root, "Import")
	if err := os.MkdirAll(importDir, 0o755); err != nil {
		t.Fatal(err)
	}
	picsRoot := filepath.Join(root, "Pictures")
	landscape := filepath.Join(picsRoot, "Landscape")

	db, _, err := store.Open(filepath.Join(root, "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cat := catalog.New(db, nil, landscape, nil, nil)
	norm, err := normalizer.New(cat, nil, normalizer.Options{
		ImportDir:    importDir,
		PictureDir:   landscape,
		TargetWidth:  192,
		TargetHeight: 108,
	}, nil)
	if err != nil {
		t.Fatalf("failed to build normalizer: %v", err)
	}
	seq := sequencer.New(db, sequencer.Options{TargetSetSize: 5, MinSetSize: 3, Shuffle: false}, nil)
	sched := scheduler.New(db, nil)

	router := chi.NewRouter()
	NewHandler(sched, cat, norm, seq, nil).RegisterRoutes(router)

	return &fixture{router: router, db: db, sched: sched, importDir: importDir, picsRoot: picsRoot}
}

func (fx *fixture) do(t *testing.T, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func insertFiles(t *testing.T, db *store.DB, dir, prefix string, count int) []int64 {
	t.Helper()
	ids := make([]int64, 0, count)
	for i := 0; i < count; i++ {
		rec := store.FileRecord{
			Dir:          dir,
			Basename:     fmt.Sprintf("%s%02d", prefix, i),
			Extension:    "jpg",
			Width:        192,
			Height:       108,
			CreationTime: float64(i + 1),
		}
		if err := db.InsertFileRecord(rec); err != nil {
			t.Fatalf("failed to insert record: %v", err)
		}
		id, err := db.GetFileID(dir, rec.Basename, "jpg")
		if err != nil || id == 0 {
			t.Fatalf("failed to look up inserted record: id=%d err=%v", id, err)
		}
		ids = append(ids, id)
	}
	return ids
}

func writeJPEG(t *testing.T, path string, width, height int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("failed to write test image: %v", err)
	}
}

func TestHealth(t *testing.T) {
	fx := setupAPI(t)
	rec := fx.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestNextSlideWithoutSequence(t *testing.T) {
	fx := setupAPI(t)
	rec := fx.do(t, http.MethodGet, "/api/v1/slideshow/next", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body interface{}
	decodeBody(t, rec, &body)
	if body != nil {
		t.Fatalf("expected JSON null for an empty sequence, got %v", body)
	}
}

func TestSlideshowFlow(t *testing.T) {
	fx := setupAPI(t)
	insertFiles(t, fx.db, filepath.Join(fx.picsRoot, "Landscape"), "land", 3)

	rec := fx.do(t, http.MethodPost, "/api/v1/sequence", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from sequence, got %d: %s", rec.Code, rec.Body.String())
	}
	var seqBody map[string]int
	decodeBody(t, rec, &seqBody)
	if seqBody["groups"] != 1 {
		t.Fatalf("expected 1 group, got %d", seqBody["groups"])
	}

	// Pull and acknowledge every slide, then the feed runs dry.
	for i := 0; i < 3; i++ {
		rec = fx.do(t, http.MethodGet, "/api/v1/slideshow/next", nil)
		var pic struct {
			FileID int64  `json:"file_id"`
			Fname  string `json:"fname"`
		}
		decodeBody(t, rec, &pic)
		if pic.FileID == 0 || pic.Fname == "" {
			t.Fatalf("slide %d: unexpected payload %s", i, rec.Body.String())
		}

		rec = fx.do(t, http.MethodPost, fmt.Sprintf("/api/v1/slideshow/%d/played", pic.FileID), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 from played, got %d", rec.Code)
		}
	}

	rec = fx.do(t, http.MethodGet, "/api/v1/slideshow/next", nil)
	var done interface{}
	decodeBody(t, rec, &done)
	if done != nil {
		t.Fatalf("expected exhausted sequence, got %v", done)
	}
}

func TestGenerateSequenceEmptyCatalog(t *testing.T) {
	fx := setupAPI(t)
	rec := fx.do(t, http.MethodPost, "/api/v1/sequence", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	decodeBody(t, rec, &body)
	if v, ok := body["groups"]; !ok || v != nil {
		t.Fatalf("expected groups:null, got %v", body)
	}
}

func TestMarkPlayedRejectsBadID(t *testing.T) {
	fx := setupAPI(t)
	rec := fx.do(t, http.MethodPost, "/api/v1/slideshow/notanumber/played", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestQueryCatalog(t *testing.T) {
	fx := setupAPI(t)
	insertFiles(t, fx.db, filepath.Join(fx.picsRoot, "Landscape"), "land", 2)

	q := url.Values{"where": {"extension = 'jpg'"}, "sort": {"basename ASC"}}
	rec := fx.do(t, http.MethodGet, "/api/v1/catalog/query?"+q.Encode(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		FileIDs []int64 `json:"file_ids"`
		Count   int     `json:"count"`
	}
	decodeBody(t, rec, &body)
	if body.Count != 2 || len(body.FileIDs) != 2 {
		t.Fatalf("expected 2 matches, got %+v", body)
	}
}

func TestQueryCatalogRejectsUnknownSortColumn(t *testing.T) {
	fx := setupAPI(t)

	q := url.Values{"sort": {"no_such_column DESC"}}
	rec := fx.do(t, http.MethodGet, "/api/v1/catalog/query?"+q.Encode(), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	// Direction tokens other than ASC/DESC are rejected too
	q = url.Values{"sort": {"basename SIDEWAYS"}}
	rec = fx.do(t, http.MethodGet, "/api/v1/catalog/query?"+q.Encode(), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad direction, got %d", rec.Code)
	}
}

func TestRequestPurge(t *testing.T) {
	fx := setupAPI(t)
	rec := fx.do(t, http.MethodPost, "/api/v1/catalog/purge", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestTriggerJobEndpoints(t *testing.T) {
	fx := setupAPI(t)

	ran := make(chan string, 3)
	note := func(name string) scheduler.JobFunc {
		return func(ctx context.Context) error {
			ran <- name
			return nil
		}
	}
	if err := fx.sched.Register(constants.JobImport, time.Hour, note(constants.JobImport)); err != nil {
		t.Fatal(err)
	}
	if err := fx.sched.Register(constants.JobScan, time.Hour, note(constants.JobScan)); err != nil {
		t.Fatal(err)
	}

	// Before Start the scheduler refuses manual triggers.
	rec := fx.do(t, http.MethodPost, "/api/v1/import", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before start, got %d", rec.Code)
	}

	fx.sched.Start()
	t.Cleanup(fx.sched.Stop)

	rec = fx.do(t, http.MethodPost, "/api/v1/import", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	select {
	case name := <-ran:
		if name != constants.JobImport {
			t.Fatalf("expected import job, ran %q", name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("triggered job never ran")
	}

	rec = fx.do(t, http.MethodPost, "/api/v1/catalog/scan", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	select {
	case name := <-ran:
		if name != constants.JobScan {
			t.Fatalf("expected scan job, ran %q", name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("triggered job never ran")
	}
}

func TestListJobs(t *testing.T) {
	fx := setupAPI(t)
	if err := fx.sched.Register(constants.JobProcess, time.Minute, scheduler.JobFunc(func(ctx context.Context) error {
		return nil
	})); err != nil {
		t.Fatal(err)
	}

	rec := fx.do(t, http.MethodGet, "/api/v1/scheduler/jobs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Jobs []scheduler.JobStatus `json:"jobs"`
	}
	decodeBody(t, rec, &body)
	if len(body.Jobs) != 1 || body.Jobs[0].Name != constants.JobProcess {
		t.Fatalf("unexpected job list: %+v", body.Jobs)
	}
}

func TestTriggerProcessSinglePath(t *testing.T) {
	fx := setupAPI(t)
	src := filepath.Join(fx.importDir, "direct.jpg")
	writeJPEG(t, src, 400, 300)

	payload, _ := json.Marshal(map[string]string{"path": src})
	rec := fx.do(t, http.MethodPost, "/api/v1/process", bytes.NewReader(payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if _, err := os.Stat(filepath.Join(fx.picsRoot, "Landscape", "direct.jpg")); err != nil {
		t.Fatalf("expected processed output: %v", err)
	}
}
