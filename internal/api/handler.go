// Package api exposes the frame's control surface over HTTP: the display
// pulls slides and acknowledges them here, and operators can trigger scans,
// imports, processing, and sequence generation outside their schedule.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dkrugman/pf-aspect/internal/catalog"
	"github.com/dkrugman/pf-aspect/internal/logger"
	"github.com/dkrugman/pf-aspect/internal/normalizer"
	"github.com/dkrugman/pf-aspect/internal/scheduler"
	"github.com/dkrugman/pf-aspect/internal/sequencer"
)

type Handler struct {
	Scheduler  *scheduler.Scheduler
	Catalog    *catalog.Catalog
	Normalizer *normalizer.Normalizer
	Sequencer  *sequencer.Sequencer
	Log        *logger.Logger
}

func NewHandler(sched *scheduler.Scheduler, cat *catalog.Catalog, norm *normalizer.Normalizer, seq *sequencer.Sequencer, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{
		Scheduler:  sched,
		Catalog:    cat,
		Normalizer: norm,
		Sequencer:  seq,
		Log:        log.WithComponent("api"),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/slideshow/next", h.NextSlide)
		r.Post("/slideshow/{fileID}/played", h.MarkPlayed)
		r.Post("/sequence", h.GenerateSequence)

		r.Post("/import", h.TriggerImport)
		r.Post("/process", h.TriggerProcess)

		r.Post("/catalog/scan", h.TriggerScan)
		r.Post("/catalog/purge", h.RequestPurge)
		r.Get("/catalog/query", h.QueryCatalog)

		r.Get("/scheduler/jobs", h.ListJobs)
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Log.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
