// Package sequencer turns the cataloged pictures into a slideshow: an
// externally shuffled ordering split into alternating runs of landscape and
// portrait so the display never flips orientation every slide. The generated
// sequence replaces the previous one wholesale.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/dkrugman/pf-aspect/internal/constants"
	"github.com/dkrugman/pf-aspect/internal/domain"
	"github.com/dkrugman/pf-aspect/internal/faults"
	"github.com/dkrugman/pf-aspect/internal/httpclient"
	"github.com/dkrugman/pf-aspect/internal/logger"
	"github.com/dkrugman/pf-aspect/internal/store"
)

// ErrNoFiles reports an empty catalog. Callers surface it as "no sequence
// generated" rather than an empty success.
var ErrNoFiles = errors.New("no files in catalog")

// Options configures a Sequencer. RandomURL and RandomAPIKey enable the
// external randomness service; without both, shuffling is local.
type Options struct {
	RandomURL     string
	RandomAPIKey  string
	FrameID       string
	TargetSetSize int
	MinSetSize    int
	Shuffle       bool
}

// Sequencer generates orientation-balanced slideshow sequences.
type Sequencer struct {
	db   *store.DB
	http *httpclient.Client
	log  *logger.Logger

	randomURL     string
	randomAPIKey  string
	frameID       string
	targetSetSize int
	minSetSize    int
	shuffle       bool
}

func New(db *store.DB, opts Options, log *logger.Logger) *Sequencer {
	if log == nil {
		log = logger.Default()
	}
	if opts.TargetSetSize < 1 {
		opts.TargetSetSize = constants.DefaultTargetSetSize
	}
	if opts.MinSetSize < 1 {
		opts.MinSetSize = constants.DefaultMinSetSize
	}
	return &Sequencer{
		db:            db,
		http:          httpclient.NewClient(nil, 0),
		log:           log.WithComponent("sequencer"),
		randomURL:     opts.RandomURL,
		randomAPIKey:  opts.RandomAPIKey,
		frameID:       opts.FrameID,
		targetSetSize: opts.TargetSetSize,
		minSetSize:    opts.MinSetSize,
		shuffle:       opts.Shuffle,
	}
}

// GenerateSequence builds a fresh slideshow from every cataloged file and
// swaps it in, returning the number of groups created. An empty catalog
// yields ErrNoFiles.
func (s *Sequencer) GenerateSequence(ctx context.Context) (int, error) {
	files, err := s.db.ListOrientedFiles()
	if err != nil {
		return 0, fmt.Errorf("failed to list files: %w", err)
	}
	if len(files) == 0 {
		return 0, ErrNoFiles
	}

	if s.shuffle {
		positions := s.randomOrder(ctx, len(files))
		shuffled := make([]store.OrientedFile, len(files))
		for i, pos := range positions {
			shuffled[i] = files[pos-1]
		}
		files = shuffled
	} else {
		s.log.Info("Shuffle disabled, keeping catalog order")
	}

	groups := s.buildGroups(files)

	var entries []domain.SlideshowEntry
	for gi, group := range groups {
		for oi, f := range group {
			entries = append(entries, domain.SlideshowEntry{
				GroupNum:     gi + 1,
				OrderInGroup: oi + 1,
				FileID:       f.FileID,
				Basename:     f.Basename,
				Extension:    f.Extension,
				Orientation:  orientationOf(f),
			})
		}
	}
	if err := s.db.ReplaceSequence(entries); err != nil {
		return 0, fmt.Errorf("failed to write slideshow: %w", err)
	}
	s.log.Info("Slideshow generated", "groups", len(groups), "files", len(entries))
	return len(groups), nil
}

// orientationOf derives the display category from the terminal segment of
// the file's folder path. Anything that is not Portrait or Square counts as
// landscape.
func orientationOf(f store.OrientedFile) domain.Orientation {
	switch filepath.Base(f.FolderName) {
	case constants.DirPortrait:
		return domain.OrientationPortrait
	case constants.DirSquare:
		return domain.OrientationSquare
	default:
		return domain.OrientationLandscape
	}
}

// buildGroups splits the ordered files into alternating orientation runs.
// Square pictures pool with landscape for grouping; the larger pool is
// dominant and takes every other slot, portrait winning ties. A minority too
// small to fill even one minimum-size group sits this sequence out.
func (s *Sequencer) buildGroups(files []store.OrientedFile) [][]store.OrientedFile {
	var portrait, landscape []store.OrientedFile
	for _, f := range files {
		if orientationOf(f) == domain.OrientationPortrait {
			portrait = append(portrait, f)
		} else {
			landscape = append(landscape, f)
		}
	}

	dominant, minority := landscape, portrait
	if len(portrait) >= len(landscape) {
		dominant, minority = portrait, landscape
	}

	total := len(files)
	numGroups := (total + s.targetSetSize - 1) / s.targetSetSize

	minorityGroups := numGroups / 2
	if minorityGroups*s.minSetSize > len(minority) {
		minorityGroups = len(minority) / s.minSetSize
	}
	dominantGroups := numGroups - minorityGroups

	dominantSizes := splitSizes(len(dominant), dominantGroups, s.minSetSize)
	minoritySizes := splitSizes(len(minority), minorityGroups, s.minSetSize)

	groups := make([][]store.OrientedFile, 0, numGroups)
	dIdx, mIdx := 0, 0
	for i := 0; i < numGroups; i++ {
		if i%2 == 0 || len(minoritySizes) == 0 {
			size := dominantSizes[0]
			dominantSizes = dominantSizes[1:]
			end := min(dIdx+size, len(dominant))
			groups = append(groups, dominant[dIdx:end])
			dIdx = end
		} else {
			size := minoritySizes[0]
			minoritySizes = minoritySizes[1:]
			end := min(mIdx+size, len(minority))
			groups = append(groups, minority[mIdx:end])
			mIdx = end
		}
	}
	return groups
}

// splitSizes spreads count files across the given number of groups, never
// below the minimum size. The last group absorbs the remainder.
func splitSizes(count, groups, minSize int) []int {
	sizes := make([]int, 0, groups)
	rem := count
	for i := 0; i < groups; i++ {
		size := max(minSize, int(math.Round(float64(rem)/float64(groups-i))))
		sizes = append(sizes, size)
		rem -= size
	}
	return sizes
}

// randomOrder returns positions 1..n in slideshow order. The external
// service is asked first when configured; any failure falls back to a local
// shuffle so generation always succeeds.
func (s *Sequencer) randomOrder(ctx context.Context, n int) []int {
	if s.randomURL == "" || s.randomAPIKey == "" {
		return localOrder(n)
	}
	positions, err := s.fetchRandomOrder(ctx, n)
	if err != nil {
		s.log.Warn("Randomness service failed, using local shuffle", "error", err)
		return localOrder(n)
	}
	return positions
}

func localOrder(n int) []int {
	positions := make([]int, n)
	for i := range positions {
		positions[i] = i + 1
	}
	rand.Shuffle(n, func(i, j int) {
		positions[i], positions[j] = positions[j], positions[i]
	})
	return positions
}

// fetchRandomOrder asks the randomness service for a permutation of 1..n,
// batching large requests and dropping values already seen. The service
// draws without replacement per request only, so duplicates can still
// arrive across batches.
func (s *Sequencer) fetchRandomOrder(ctx context.Context, n int) ([]int, error) {
	positions := make([]int, 0, n)
	used := make(map[int]struct{}, n)

	for len(positions) < n {
		batch := min(constants.RandomBatchLimit, n-len(positions))
		request := map[string]interface{}{
			"jsonrpc": "2.0",
			"method":  "generateIntegers",
			"params": map[string]interface{}{
				"apiKey":      s.randomAPIKey,
				"n":           batch,
				"min":         1,
				"max":         n,
				"replacement": false,
			},
			"id": fmt.Sprintf("%s-%d", s.frameID, time.Now().UnixMilli()),
		}

		var resp struct {
			Result struct {
				Random struct {
					Data []int `json:"data"`
				} `json:"random"`
			} `json:"result"`
			Error *struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}

		s.log.Info("Fetching random positions", "count", batch, "of", n)
		if err := s.http.PostJSON(ctx, s.randomURL, request, &resp); err != nil {
			return nil, faults.E(faults.KindTransientRemote, "sequencer.random", err)
		}
		if resp.Error != nil {
			return nil, faults.E(faults.KindTransientRemote, "sequencer.random",
				fmt.Errorf("rpc error %d: %s", resp.Error.Code, resp.Error.Message))
		}

		fresh := 0
		for _, v := range resp.Result.Random.Data {
			if v < 1 || v > n {
				return nil, faults.E(faults.KindTransientRemote, "sequencer.random",
					fmt.Errorf("position %d outside 1..%d", v, n))
			}
			if _, dup := used[v]; dup {
				continue
			}
			used[v] = struct{}{}
			positions = append(positions, v)
			fresh++
		}
		// A batch of nothing but repeats would loop forever.
		if fresh == 0 {
			return nil, faults.E(faults.KindTransientRemote, "sequencer.random",
				errors.New("batch added no new positions"))
		}
	}
	return positions, nil
}
