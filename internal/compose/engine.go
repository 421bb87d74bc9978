package compose

import (
	"context"
	"fmt"
	"image"
	"math"
	"math/rand"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"

	"github.com/synthgrove/synthgen/internal/assets"
	"github.com/synthgrove/synthgen/internal/imageio"
)

// zeroPadding gives 8-digit image names (00000027.jpg), enough for
// 100 million images per dataset.
const zeroPadding = 8

// Config holds every parameter of one generation run.
type Config struct {
	Count  int `mapstructure:"count"`
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`

	// OverlapThreshold is the maximum fraction of a new instance's opaque
	// pixels allowed to cover previously placed instances. 0 forces fully
	// disjoint instances.
	OverlapThreshold float64 `mapstructure:"overlap_threshold"`

	// Seed drives every random choice. Two runs with the same seed, assets,
	// and parameters produce identical composites and documents.
	Seed int64 `mapstructure:"seed"`

	MinInstances int `mapstructure:"min_instances"`
	MaxInstances int `mapstructure:"max_instances"`

	OutputDir string `mapstructure:"output_dir"`

	// OutputType is the composite extension, ".jpg" or ".png". Masks are
	// always PNG regardless.
	OutputType string `mapstructure:"output_type"`

	// Workers bounds the generation pool. 0 means runtime.NumCPU().
	Workers int `mapstructure:"workers"`

	// Progress enables the in-place progress line on stderr.
	Progress bool `mapstructure:"progress"`

	Transform TransformConfig `mapstructure:"transform"`

	// Free-form dataset_info fields.
	Description string `mapstructure:"description"`
	Version     string `mapstructure:"version"`
	Contributor string `mapstructure:"contributor"`
}

func (c *Config) validate() error {
	if c.Count <= 0 {
		return fmt.Errorf("count must be greater than 0, got %d", c.Count)
	}
	if c.Width < 64 || c.Height < 64 {
		return fmt.Errorf("output dimensions must be at least 64x64, got %dx%d", c.Width, c.Height)
	}
	if c.OverlapThreshold < 0 || c.OverlapThreshold > 1 {
		return fmt.Errorf("overlap threshold must be in [0, 1], got %g", c.OverlapThreshold)
	}
	if c.MinInstances < 1 {
		c.MinInstances = 1
	}
	if c.MaxInstances < c.MinInstances {
		c.MaxInstances = c.MinInstances
	}
	switch c.OutputType {
	case "":
		c.OutputType = ".jpg"
	case ".jpg", ".jpeg", ".png":
	default:
		return fmt.Errorf("unsupported output type %q", c.OutputType)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	return nil
}

// SkipEvent records one instance that could not be placed. Skips are
// non-fatal; the image is still emitted with its remaining instances.
type SkipEvent struct {
	ImageID       int    `json:"image_id"`
	Category      string `json:"category"`
	SuperCategory string `json:"super_category"`
	Asset         string `json:"asset"`
	Reason        string `json:"reason"`
}

// Report aggregates what a run actually did, including everything that was
// skipped and why. A run never drops work silently.
type Report struct {
	Generated int           `json:"generated"`
	Abandoned int           `json:"abandoned"`
	Failed    int           `json:"failed_images"`
	Placed    int           `json:"placed_instances"`
	Skipped   int           `json:"skipped_instances"`
	Skips     []SkipEvent   `json:"skips,omitempty"`
	Elapsed   time.Duration `json:"-"`
}

// Result is everything Generate produces besides the image files themselves.
type Result struct {
	MaskDefinitions *MaskDefinitions
	DatasetInfo     *DatasetInfo
	Report          Report
}

// Engine orchestrates composition of a whole dataset: background selection,
// instance transforms, placement, mask recording, and document assembly.
type Engine struct {
	cfg   Config
	lib   *assets.Library
	cache *imageio.Cache
}

// NewEngine validates cfg and prepares an engine over the given library.
func NewEngine(cfg Config, lib *assets.Library) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if lib == nil || len(lib.Categories()) == 0 {
		return nil, fmt.Errorf("no foregrounds: %w", assets.ErrEmptyAssetSet)
	}
	if len(lib.Backgrounds()) == 0 {
		return nil, fmt.Errorf("no backgrounds: %w", assets.ErrEmptyAssetSet)
	}
	return &Engine{cfg: cfg, lib: lib, cache: imageio.NewCache()}, nil
}

type imageOutcome struct {
	record ImageRecord
	skips  []SkipEvent
	failed bool
}

// Generate produces the configured number of composite images in parallel,
// one worker per image, then writes mask_definitions.json and
// dataset_info.json.
//
// Each image derives its own RNG from the run seed and the image id, so
// output is reproducible regardless of how the scheduler interleaves
// workers. Within one image, placement is strictly sequential because mask
// overwrites must follow z-order.
//
// Cancelling ctx abandons images that have not started; images already
// completed are kept and included in the documents.
//
// An image whose background cannot be loaded is recorded as failed and the
// batch continues. Only output I/O failures abort the run.
func (e *Engine) Generate(ctx context.Context) (*Result, error) {
	start := time.Now()

	imagesDir := filepath.Join(e.cfg.OutputDir, "images")
	masksDir := filepath.Join(e.cfg.OutputDir, "masks")
	for _, dir := range []string{imagesDir, masksDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	outcomes := make([]*imageOutcome, e.cfg.Count)
	errs := make([]error, e.cfg.Count)

	var done int64
	stopProgress := e.startProgress(&done)

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.cfg.Workers)

launch:
	for i := 0; i < e.cfg.Count; i++ {
		if ctx.Err() != nil {
			break launch
		}
		select {
		case <-ctx.Done():
			break launch
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, err := e.composeOne(id)
			if err != nil {
				errs[id] = err
				return
			}
			outcomes[id] = outcome
			atomic.AddInt64(&done, 1)
		}(i)
	}
	wg.Wait()
	stopProgress()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	report := Report{Elapsed: time.Since(start)}
	defs := &MaskDefinitions{SuperCategories: e.lib.SuperCategories()}
	for _, o := range outcomes {
		if o == nil {
			report.Abandoned++
			continue
		}
		if o.failed {
			report.Failed++
			report.Skips = append(report.Skips, o.skips...)
			continue
		}
		report.Generated++
		report.Placed += len(o.record.Instances)
		report.Skipped += len(o.skips)
		report.Skips = append(report.Skips, o.skips...)
		defs.Images = append(defs.Images, o.record)
	}
	sort.Slice(defs.Images, func(i, j int) bool { return defs.Images[i].ID < defs.Images[j].ID })
	sort.Slice(report.Skips, func(i, j int) bool { return report.Skips[i].ImageID < report.Skips[j].ImageID })

	info := &DatasetInfo{
		Description: e.cfg.Description,
		Version:     e.cfg.Version,
		Contributor: e.cfg.Contributor,
		Created:     time.Now().UTC().Format("2006-01-02"),
		Params: RunParams{
			Count:            e.cfg.Count,
			Width:            e.cfg.Width,
			Height:           e.cfg.Height,
			OverlapThreshold: e.cfg.OverlapThreshold,
			Seed:             e.cfg.Seed,
			MinInstances:     e.cfg.MinInstances,
			MaxInstances:     e.cfg.MaxInstances,
			OutputType:       e.cfg.OutputType,
		},
		SuperCategories: e.lib.SuperCategories(),
	}

	if err := WriteJSON(filepath.Join(e.cfg.OutputDir, "mask_definitions.json"), defs); err != nil {
		return nil, err
	}
	if err := WriteJSON(filepath.Join(e.cfg.OutputDir, "dataset_info.json"), info); err != nil {
		return nil, err
	}

	return &Result{MaskDefinitions: defs, DatasetInfo: info, Report: report}, nil
}

// composeOne builds composite image id: crops a random background window,
// places a random number of transformed foregrounds, and writes the
// composite and mask files.
func (e *Engine) composeOne(id int) (*imageOutcome, error) {
	rng := rand.New(rand.NewSource(e.cfg.Seed + int64(id)))

	bgs := e.lib.Backgrounds()
	bg := bgs[rng.Intn(len(bgs))]
	canvas, err := e.prepareCanvas(bg.Path, rng)
	if err != nil {
		// An unusable background spoils only this image; the batch continues
		// and the failure is recorded, never silently dropped.
		return &imageOutcome{
			failed: true,
			skips: []SkipEvent{{
				ImageID: id,
				Asset:   bg.Path,
				Reason:  fmt.Sprintf("background unusable: %v", err),
			}},
		}, nil
	}

	count := e.cfg.MinInstances + rng.Intn(e.cfg.MaxInstances-e.cfg.MinInstances+1)
	palette := Palette(count)

	mask := NewMaskCanvas(e.cfg.Width, e.cfg.Height)
	occ := NewOccupancy(e.cfg.Width, e.cfg.Height)
	cats := e.lib.Categories()

	var instances []InstanceRecord
	var skips []SkipEvent

	for n := 0; n < count; n++ {
		cat := cats[rng.Intn(len(cats))]
		fgs := e.lib.Foregrounds(cat)
		fg := fgs[rng.Intn(len(fgs))]

		skip := func(reason string) {
			skips = append(skips, SkipEvent{
				ImageID:       id,
				Category:      cat.Name,
				SuperCategory: cat.SuperCategory,
				Asset:         fg.Path,
				Reason:        reason,
			})
		}

		src, err := e.cache.Load(fg.Path)
		if err != nil {
			skip(err.Error())
			continue
		}
		if err := ValidateForeground(src, fg.Path); err != nil {
			skip(err.Error())
			continue
		}

		transformed := ApplyTransform(src, SampleTransform(rng, e.cfg.Transform))
		pos, err := FindPlacement(rng, occ, transformed, e.cfg.OverlapThreshold)
		if err != nil {
			skip(err.Error())
			continue
		}

		canvas = Composite(canvas, occ, transformed, pos)
		mask.Paint(transformed, pos, palette[n])

		instances = append(instances, InstanceRecord{
			ColorKey:      KeyHex(palette[n]),
			Category:      cat.Name,
			SuperCategory: cat.SuperCategory,
		})
	}

	name := fmt.Sprintf("%0*d", zeroPadding, id)
	imageRel := path.Join("images", name+e.cfg.OutputType)
	maskRel := path.Join("masks", name+".png")

	if err := imageio.Save(filepath.Join(e.cfg.OutputDir, filepath.FromSlash(imageRel)), canvas); err != nil {
		return nil, err
	}
	if err := imageio.Save(filepath.Join(e.cfg.OutputDir, filepath.FromSlash(maskRel)), mask.Image()); err != nil {
		return nil, err
	}

	return &imageOutcome{
		record: ImageRecord{
			ID:           id,
			FileName:     imageRel,
			MaskFileName: maskRel,
			Width:        e.cfg.Width,
			Height:       e.cfg.Height,
			Instances:    instances,
		},
		skips: skips,
	}, nil
}

// prepareCanvas loads a background and cuts a random crop window of the
// output size. Backgrounds smaller than the output are first scaled up to
// cover it; the classic recipe rejected them outright, but upscaling keeps
// small asset sets usable.
func (e *Engine) prepareCanvas(bgPath string, rng Rand) (*image.NRGBA, error) {
	img, err := e.cache.Load(bgPath)
	if err != nil {
		return nil, err
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w < e.cfg.Width || h < e.cfg.Height {
		scale := math.Max(float64(e.cfg.Width)/float64(w), float64(e.cfg.Height)/float64(h))
		w = int(math.Ceil(float64(w) * scale))
		h = int(math.Ceil(float64(h) * scale))
		img = imaging.Resize(img, w, h, imaging.Lanczos)
	}

	x := rng.Intn(w - e.cfg.Width + 1)
	y := rng.Intn(h - e.cfg.Height + 1)
	return imaging.Crop(img, image.Rect(x, y, x+e.cfg.Width, y+e.cfg.Height)), nil
}
