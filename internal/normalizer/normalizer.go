// Package normalizer turns freshly imported images into display-ready copies.
// Each file is decoded, rotated upright per its EXIF orientation, classified
// as Landscape, Portrait or Square, scaled so it covers the display target,
// and written into the matching category directory before the import copy is
// removed. A file is only deleted from the import directory after its
// normalized copy has been cataloged, so a crash mid-run leaves the original
// in place for the next sweep.
package normalizer

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/nfnt/resize"

	"github.com/dkrugman/pf-aspect/internal/bus"
	"github.com/dkrugman/pf-aspect/internal/catalog"
	"github.com/dkrugman/pf-aspect/internal/constants"
	"github.com/dkrugman/pf-aspect/internal/domain"
	"github.com/dkrugman/pf-aspect/internal/faults"
	"github.com/dkrugman/pf-aspect/internal/imagemeta"
	"github.com/dkrugman/pf-aspect/internal/logger"
)

// Options configures a Normalizer. Zero values fall back to the package
// defaults in constants.
type Options struct {
	ImportDir    string
	PictureDir   string // the Landscape directory; siblings are derived from it
	TargetWidth  int
	TargetHeight int
	Workers      int
}

// Normalizer owns the import-to-pictures pipeline. It is safe for concurrent
// use: a per-path permit map guarantees at most one worker per file, and a
// semaphore caps how many files are in flight at once.
type Normalizer struct {
	catalog *catalog.Catalog
	log     *logger.Logger

	importDir    string
	outputRoot   string
	targetWidth  int
	targetHeight int

	workers chan struct{}

	mu     sync.Mutex
	active map[string]struct{}
}

// New builds a Normalizer, creates the category output directories, and, when
// a broker is given, subscribes to downloaded-media events so files are
// processed as soon as the ingestor lands them.
func New(cat *catalog.Catalog, broker *bus.Broker, opts Options, log *logger.Logger) (*Normalizer, error) {
	if log == nil {
		log = logger.Default()
	}
	if opts.Workers < 1 {
		opts.Workers = constants.DefaultNormalizeWorkers
	}
	if opts.TargetWidth < 1 {
		opts.TargetWidth = constants.DefaultDisplayWidth
	}
	if opts.TargetHeight < 1 {
		opts.TargetHeight = constants.DefaultDisplayHeight
	}

	n := &Normalizer{
		catalog:      cat,
		log:          log.WithComponent("normalizer"),
		importDir:    opts.ImportDir,
		outputRoot:   filepath.Dir(opts.PictureDir),
		targetWidth:  opts.TargetWidth,
		targetHeight: opts.TargetHeight,
		workers:      make(chan struct{}, opts.Workers),
		active:       make(map[string]struct{}),
	}

	for _, dir := range []string{constants.DirLandscape, constants.DirPortrait, constants.DirSquare} {
		if err := os.MkdirAll(filepath.Join(n.outputRoot, dir), constants.DirPermissions); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	if broker != nil {
		err := broker.Subscribe(bus.TopicMediaDownloaded, func(path string) {
			if err := n.ProcessOne(context.Background(), path); err != nil {
				n.log.Error("Processing failed", "file", path, "error", err)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("failed to subscribe to downloads: %w", err)
		}
	}
	return n, nil
}

// ProcessAll sweeps the import directory and processes every media file in
// it. Files already being processed elsewhere are skipped, and one bad file
// never stops its siblings.
func (n *Normalizer) ProcessAll(ctx context.Context) error {
	entries, err := os.ReadDir(n.importDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return faults.E(faults.KindTransientLocalIO, "normalizer.sweep", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if !slices.Contains(constants.MediaExtensions, ext) {
			continue
		}
		files = append(files, filepath.Join(n.importDir, entry.Name()))
	}
	if len(files) == 0 {
		n.log.Info("No images waiting in import directory")
		return nil
	}
	n.log.Info("Processing import directory", "count", len(files))

	var wg sync.WaitGroup
	for _, path := range files {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			if err := n.ProcessOne(ctx, path); err != nil {
				n.log.Error("Processing failed", "file", path, "error", err)
			}
		}(path)
	}
	wg.Wait()
	return nil
}

// ProcessOne normalizes a single file. If another goroutine already holds the
// permit for this path the call returns immediately, which is what makes
// concurrent sweeps and event-driven processing of the same file safe.
func (n *Normalizer) ProcessOne(ctx context.Context, path string) error {
	if !n.acquire(path) {
		n.log.Debug("Already processing, skipping", "file", path)
		return nil
	}
	defer n.release(path)

	select {
	case n.workers <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-n.workers }()

	return n.process(path)
}

func (n *Normalizer) acquire(path string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, busy := n.active[path]; busy {
		return false
	}
	n.active[path] = struct{}{}
	return true
}

func (n *Normalizer) release(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.active, path)
}

// process runs the full pipeline for one file. The import copy is removed
// only after the normalized output is on disk and in the catalog.
func (n *Normalizer) process(path string) error {
	outPath, err := n.normalize(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Someone beat us to it between release and reacquire.
			n.log.Debug("Source already gone", "file", path)
			return nil
		}
		return err
	}

	if err := n.catalog.InsertFile(outPath); err != nil {
		return fmt.Errorf("failed to catalog %s: %w", outPath, err)
	}

	if err := os.Remove(path); err != nil {
		n.log.Warn("Could not remove import copy", "file", path, "error", err)
	}
	n.log.Info("Processed", "file", filepath.Base(path), "output", outPath)
	return nil
}

// normalize decodes, uprights, classifies, scales and writes one image,
// returning the output path. WebP input is re-encoded as JPEG since nothing
// downstream decodes WebP; JPEG and PNG keep their format.
func (n *Normalizer) normalize(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	img, format, err := image.Decode(f)
	f.Close()
	if err != nil {
		return "", faults.E(faults.KindTransientLocalIO, "normalizer.decode", fmt.Errorf("%s: %w", filepath.Base(path), err))
	}

	orientation := 1
	if info, err := imagemeta.Extract(path); err == nil {
		orientation = info.Meta.Orientation
	}
	img = imagemeta.Upright(img, orientation)

	width := img.Bounds().Dx()
	height := img.Bounds().Dy()
	if width < 1 || height < 1 {
		return "", faults.E(faults.KindTransientLocalIO, "normalizer.decode", fmt.Errorf("%s: empty image", filepath.Base(path)))
	}

	category := domain.Classify(width, height)
	scale := coverScale(category, width, height, n.targetWidth, n.targetHeight)

	outW := int(math.Round(float64(width) * scale))
	outH := int(math.Round(float64(height) * scale))
	scaled := resize.Resize(uint(outW), uint(outH), img, resize.Lanczos3)
	scaled = smartCrop(scaled)

	n.logCropLoss(filepath.Base(path), category, scaled.Bounds().Dx(), scaled.Bounds().Dy())

	outPath := filepath.Join(n.outputRoot, string(category), outputName(filepath.Base(path), format))
	if err := n.encode(outPath, scaled, format); err != nil {
		return "", faults.E(faults.KindTransientLocalIO, "normalizer.encode", err)
	}
	return outPath, nil
}

// coverScale returns the uniform factor that makes the image cover the
// display target. Portrait images are matched against swapped axes because
// the frame rotates them a quarter turn for display.
func coverScale(category domain.Orientation, width, height, targetW, targetH int) float64 {
	w, h := float64(width), float64(height)
	tw, th := float64(targetW), float64(targetH)
	if category == domain.OrientationPortrait {
		return max(tw/h, th/w)
	}
	return max(tw/w, th/h)
}

// logCropLoss records how much of the scaled image falls outside the display
// target. Half the overshoot is trimmed from each side at render time.
func (n *Normalizer) logCropLoss(name string, category domain.Orientation, scaledW, scaledH int) {
	tw, th := n.targetWidth, n.targetHeight
	var hCrop, vCrop int
	var loss float64
	switch category {
	case domain.OrientationPortrait:
		hCrop = scaledW - th
		vCrop = scaledH - tw
		loss = float64(vCrop) / float64(th)
	default:
		hCrop = scaledW - tw
		vCrop = scaledH - th
		loss = float64(hCrop) / float64(tw)
	}
	n.log.Info("Scaled", "file", name, "category", string(category),
		"h_crop", hCrop/2, "v_crop", vCrop/2, "loss_pct", fmt.Sprintf("%.2f", loss*100))
}

// smartCrop is the seam for content-aware trimming. For now the scaled image
// passes through unchanged and the display centers it.
func smartCrop(img image.Image) image.Image {
	return img
}

// outputName maps a source file name to its output name. Only WebP changes
// extension, everything else keeps its own.
func outputName(name, format string) string {
	if format == "webp" {
		return strings.TrimSuffix(name, filepath.Ext(name)) + ".jpg"
	}
	return name
}

func (n *Normalizer) encode(path string, img image.Image, format string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	switch format {
	case "png":
		err = png.Encode(out, img)
	default:
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: 100})
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
