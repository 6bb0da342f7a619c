package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dkrugman/pf-aspect/internal/api"
	"github.com/dkrugman/pf-aspect/internal/bus"
	"github.com/dkrugman/pf-aspect/internal/catalog"
	"github.com/dkrugman/pf-aspect/internal/config"
	"github.com/dkrugman/pf-aspect/internal/constants"
	"github.com/dkrugman/pf-aspect/internal/geo"
	"github.com/dkrugman/pf-aspect/internal/ingestor"
	"github.com/dkrugman/pf-aspect/internal/logger"
	"github.com/dkrugman/pf-aspect/internal/normalizer"
	"github.com/dkrugman/pf-aspect/internal/scheduler"
	"github.com/dkrugman/pf-aspect/internal/sequencer"
	"github.com/dkrugman/pf-aspect/internal/sources"
	"github.com/dkrugman/pf-aspect/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	appLogger := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	db, rebuilt, err := store.Open(cfg.DBPath)
	if err != nil {
		appLogger.Error("Failed to open catalog database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if rebuilt {
		// Timer state went with the old schema, so every job is due at once
		// and the first scan restores the catalog from disk.
		appLogger.Warn("Catalog database was rebuilt, full rescan scheduled")
	}

	var resolver geo.Resolver
	if cfg.GeoURL != "" {
		resolver = geo.NewCachedResolver(geo.NewClient(cfg.GeoURL, cfg.GeoKey), db)
	}

	cat := catalog.New(db, resolver, cfg.PictureDir, cfg.SourceNames(), appLogger)

	broker := bus.New()
	defer broker.Close(bus.TopicMediaDownloaded)

	manager := sources.NewManager()
	enabled := cfg.EnabledSources()
	if len(enabled) == 0 {
		appLogger.Warn("No media sources enabled, remote import is idle")
	}
	for _, name := range enabled {
		sc := cfg.Sources[name]
		src, err := sources.NewNixplay(sources.Config{
			Name:       name,
			BaseURL:    sc.URL,
			Username:   sc.Username,
			Password:   sc.Password,
			Identifier: sc.Identifier,
		}, appLogger)
		if err != nil {
			appLogger.Error("Failed to configure source", "source", name, "error", err)
			os.Exit(1)
		}
		manager.Add(src)
	}

	ing := ingestor.New(db, manager, broker, ingestor.Options{
		ImportDir:      cfg.ImportDir,
		PictureDir:     cfg.PictureDir,
		BatchSize:      cfg.BatchSize,
		MaxDownloads:   cfg.MaxDownloads,
		MaxStoreWrites: cfg.MaxStoreWrites,
	}, appLogger)

	norm, err := normalizer.New(cat, broker, normalizer.Options{
		ImportDir:    cfg.ImportDir,
		PictureDir:   cfg.PictureDir,
		TargetWidth:  cfg.DisplayWidth,
		TargetHeight: cfg.DisplayHeight,
		Workers:      cfg.NormalizeWorkers,
	}, appLogger)
	if err != nil {
		appLogger.Error("Failed to init normalizer", "error", err)
		os.Exit(1)
	}

	seq := sequencer.New(db, sequencer.Options{
		RandomURL:     cfg.RandomURL,
		RandomAPIKey:  cfg.RandomAPIKey,
		FrameID:       cfg.FrameID,
		TargetSetSize: cfg.TargetSetSize,
		MinSetSize:    cfg.MinSetSize,
		Shuffle:       cfg.Shuffle,
	}, appLogger)

	sched := scheduler.New(db, appLogger)
	mustRegister(sched, constants.JobScan, cfg.ScanInterval, scheduler.JobFunc(cat.ScanAndUpdate))
	mustRegister(sched, constants.JobImport, cfg.ImportInterval, scheduler.JobFunc(func(ctx context.Context) error {
		ing.CheckForUpdates(ctx)
		return nil
	}))
	mustRegister(sched, constants.JobProcess, cfg.ProcessInterval, scheduler.JobFunc(norm.ProcessAll))
	sched.Start()
	defer sched.Stop()

	// A sequence that survived the restart resumes where it left off;
	// otherwise build one once the catalog has content.
	go func() {
		active, err := cat.HasActiveSequence()
		if err != nil {
			appLogger.Error("Failed to check slideshow state", "error", err)
			return
		}
		if active {
			return
		}
		if _, err := seq.GenerateSequence(context.Background()); err != nil && !errors.Is(err, sequencer.ErrNoFiles) {
			appLogger.Error("Failed to build initial slideshow", "error", err)
		}
	}()

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	api.NewHandler(sched, cat, norm, seq, appLogger).RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		appLogger.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
}

func mustRegister(s *scheduler.Scheduler, name string, interval time.Duration, job scheduler.Job) {
	if err := s.Register(name, interval, job); err != nil {
		log.Fatalf("Failed to register job %s: %v", name, err)
	}
}
