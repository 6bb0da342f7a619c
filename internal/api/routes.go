package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dkrugman/pf-aspect/internal/constants"
	"github.com/dkrugman/pf-aspect/internal/domain"
	"github.com/dkrugman/pf-aspect/internal/sequencer"
)

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// slideResponse flattens the joined slideshow record for the display client.
// NULL columns drop out of the payload instead of arriving as wrapper
// objects.
type slideResponse struct {
	FileID       int64    `json:"file_id"`
	Fname        string   `json:"fname"`
	Orientation  int      `json:"orientation"`
	ExifDatetime float64  `json:"exif_datetime"`
	FNumber      float64  `json:"f_number,omitempty"`
	ExposureTime string   `json:"exposure_time,omitempty"`
	ISO          float64  `json:"iso,omitempty"`
	FocalLength  string   `json:"focal_length,omitempty"`
	Make         string   `json:"make,omitempty"`
	Model        string   `json:"model,omitempty"`
	Lens         string   `json:"lens,omitempty"`
	Rating       int64    `json:"rating"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	Width        int      `json:"width"`
	Height       int      `json:"height"`
	IsPortrait   bool     `json:"is_portrait"`
	Location     string   `json:"location,omitempty"`
	Title        string   `json:"title,omitempty"`
	Caption      string   `json:"caption,omitempty"`
	Tags         string   `json:"tags,omitempty"`
}

func newSlideResponse(p *domain.SlideshowPic) *slideResponse {
	return &slideResponse{
		FileID:       p.FileID,
		Fname:        p.Fname,
		Orientation:  p.Orientation,
		ExifDatetime: p.ExifDatetime,
		FNumber:      p.FNumber,
		ExposureTime: stringOrEmpty(p.ExposureTime),
		ISO:          p.ISO,
		FocalLength:  stringOrEmpty(p.FocalLength),
		Make:         stringOrEmpty(p.Make),
		Model:        stringOrEmpty(p.Model),
		Lens:         stringOrEmpty(p.Lens),
		Rating:       p.Rating,
		Latitude:     floatOrNil(p.Latitude),
		Longitude:    floatOrNil(p.Longitude),
		Width:        p.Width,
		Height:       p.Height,
		IsPortrait:   p.IsPortrait,
		Location:     stringOrEmpty(p.Location),
		Title:        stringOrEmpty(p.Title),
		Caption:      stringOrEmpty(p.Caption),
		Tags:         stringOrEmpty(p.Tags),
	}
}

func stringOrEmpty(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

func floatOrNil(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

// NextSlide returns the next unplayed picture, or a JSON null once the
// sequence is exhausted.
func (h *Handler) NextSlide(w http.ResponseWriter, r *http.Request) {
	pic, err := h.Catalog.NextPic(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if pic == nil {
		h.writeJSON(w, http.StatusOK, nil)
		return
	}
	h.writeJSON(w, http.StatusOK, newSlideResponse(pic))
}

func (h *Handler) MarkPlayed(w http.ResponseWriter, r *http.Request) {
	fileID, err := strconv.ParseInt(chi.URLParam(r, "fileID"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "fileID must be an integer")
		return
	}
	if err := h.Catalog.MarkPlayed(fileID); err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GenerateSequence builds a fresh slideshow synchronously. An empty catalog
// reports groups:null rather than an error.
func (h *Handler) GenerateSequence(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Sequencer.GenerateSequence(r.Context())
	if err != nil {
		if errors.Is(err, sequencer.ErrNoFiles) {
			h.writeJSON(w, http.StatusOK, map[string]interface{}{"groups": nil})
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"groups": groups})
}

func (h *Handler) TriggerImport(w http.ResponseWriter, r *http.Request) {
	h.runJob(w, constants.JobImport)
}

// TriggerProcess sweeps the import directory through the scheduler, or
// processes one file synchronously when the body names a path.
func (h *Handler) TriggerProcess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	// An empty body is a plain sweep request.
	_ = json.NewDecoder(r.Body).Decode(&req)

	if req.Path != "" {
		if err := h.Normalizer.ProcessOne(r.Context(), req.Path); err != nil {
			h.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}
	h.runJob(w, constants.JobProcess)
}

func (h *Handler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	h.runJob(w, constants.JobScan)
}

// runJob hands the named job to the scheduler outside its cadence. The
// scheduler skips jobs already running, so repeated triggers are safe.
func (h *Handler) runJob(w http.ResponseWriter, name string) {
	if err := h.Scheduler.RunNow(name); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]interface{}{"triggered": true, "job": name})
}

// RequestPurge arms the next catalog scan to drop rows whose files are gone.
func (h *Handler) RequestPurge(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.RequestPurge(); err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "note": "purge runs on next scan"})
}

// QueryCatalog filters the flattened catalog view with a caller-supplied
// where/sort pair and returns matching file ids.
func (h *Handler) QueryCatalog(w http.ResponseWriter, r *http.Request) {
	where := r.URL.Query().Get("where")
	if where == "" {
		where = "1=1"
	}
	sort := r.URL.Query().Get("sort")
	if sort != "" && !h.validSort(sort) {
		h.writeError(w, http.StatusBadRequest, "unknown sort column")
		return
	}

	ids := h.Catalog.Query(where, sort)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"file_ids": ids, "count": len(ids)})
}

// validSort accepts "column" or "column ASC|DESC" where column is one of the
// catalog view's columns.
func (h *Handler) validSort(sort string) bool {
	fields := strings.Fields(sort)
	if len(fields) == 0 || len(fields) > 2 {
		return false
	}
	if len(fields) == 2 {
		dir := strings.ToUpper(fields[1])
		if dir != "ASC" && dir != "DESC" {
			return false
		}
	}
	cols, err := h.Catalog.Columns()
	if err != nil {
		return false
	}
	return slices.Contains(cols, fields[0])
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": h.Scheduler.Jobs()})
}
