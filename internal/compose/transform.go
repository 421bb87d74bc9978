package compose

import (
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/disintegration/imaging"

	"github.com/synthgrove/synthgen/internal/assets"
	"github.com/synthgrove/synthgen/internal/imageio"
)

// opaqueThreshold is the alpha value above which a foreground pixel counts as
// part of the instance, for both overlap accounting and mask painting.
// Softer edge pixels still blend into the composite but do not claim mask
// territory, which keeps annotations tight around the visible object.
const opaqueThreshold = 200

// TransformConfig bounds the random transform sampled for each placement.
type TransformConfig struct {
	// MinScale and MaxScale bound the uniform aspect-preserving scale factor.
	MinScale float64 `mapstructure:"min_scale"`
	MaxScale float64 `mapstructure:"max_scale"`

	// RotationRange is the width in degrees of the uniform rotation interval
	// [0, RotationRange). 360 allows any orientation; 0 disables rotation.
	RotationRange float64 `mapstructure:"rotation_range"`

	// FlipProbability is the chance of a horizontal mirror, applied
	// independently of the other transform components.
	FlipProbability float64 `mapstructure:"flip_probability"`

	// BrightnessMin and BrightnessMax bound the uniform brightness change
	// passed to bild's adjust.Brightness (0 = unchanged, -0.3 = 30% darker).
	BrightnessMin float64 `mapstructure:"brightness_min"`
	BrightnessMax float64 `mapstructure:"brightness_max"`
}

// DefaultTransformConfig mirrors the classic synthetic-dataset recipe:
// half-to-full scale, any rotation, no flips, slight brightness jitter.
func DefaultTransformConfig() TransformConfig {
	return TransformConfig{
		MinScale:        0.5,
		MaxScale:        1.0,
		RotationRange:   360,
		FlipProbability: 0,
		BrightnessMin:   -0.3,
		BrightnessMax:   0.1,
	}
}

// Transform is one concrete sampled transform, recorded per placed instance.
type Transform struct {
	Scale      float64
	Rotation   float64 // degrees counter-clockwise
	FlipH      bool
	Brightness float64
}

// SampleTransform draws a transform uniformly within the configured bounds.
func SampleTransform(rng Rand, cfg TransformConfig) Transform {
	t := Transform{
		Scale:      cfg.MinScale + rng.Float64()*(cfg.MaxScale-cfg.MinScale),
		Brightness: cfg.BrightnessMin + rng.Float64()*(cfg.BrightnessMax-cfg.BrightnessMin),
	}
	if cfg.RotationRange > 0 {
		t.Rotation = rng.Float64() * cfg.RotationRange
	}
	if cfg.FlipProbability > 0 && rng.Float64() < cfg.FlipProbability {
		t.FlipH = true
	}
	return t
}

// Rand is the subset of math/rand used by the sampling helpers. The engine
// passes a per-image *rand.Rand so parallel workers stay deterministic.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// ValidateForeground rejects cutouts that cannot produce a meaningful
// instance: images whose decoded type has no alpha channel, fully transparent
// images (zero-area instance), and fully opaque images (no cutout boundary,
// so the "instance" would be the whole rectangle).
func ValidateForeground(img image.Image, path string) error {
	if !imageio.HasAlpha(img) {
		return &assets.InvalidAssetError{Path: path, Reason: "no alpha channel"}
	}

	bounds := img.Bounds()
	opaque, transparent := 0, 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			_, _, _, a := img.At(x, y).RGBA()
			switch a8 := uint8(a >> 8); {
			case a8 > opaqueThreshold:
				opaque++
			case a8 == 0:
				transparent++
			}
		}
	}
	if opaque == 0 {
		return &assets.InvalidAssetError{Path: path, Reason: "zero opaque area"}
	}
	if transparent == 0 {
		return &assets.InvalidAssetError{Path: path, Reason: "no transparency"}
	}
	return nil
}

// ApplyTransform renders the sampled transform. Rotation expands the canvas
// to fit the rotated bounding box, filling the corners with transparency, so
// the result's opaque pixels are exactly the transformed cutout.
func ApplyTransform(img image.Image, t Transform) *image.NRGBA {
	out := imaging.Clone(img)

	if t.FlipH {
		out = imaging.FlipH(out)
	}
	if t.Rotation != 0 {
		out = imaging.Rotate(out, t.Rotation, color.NRGBA{})
	}
	if t.Scale != 1 {
		w := int(math.Round(float64(out.Bounds().Dx()) * t.Scale))
		if w < 1 {
			w = 1
		}
		// Height 0 preserves aspect ratio.
		out = imaging.Resize(out, w, 0, imaging.Lanczos)
	}
	if t.Brightness != 0 {
		rgba := adjust.Brightness(out, t.Brightness)
		out = rgbaToNRGBA(rgba)
	}
	return out
}

// rgbaToNRGBA converts bild's premultiplied RGBA output back to the
// non-premultiplied form the rest of the pipeline works in.
func rgbaToNRGBA(src *image.RGBA) *image.NRGBA {
	bounds := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			dst.SetNRGBA(x-bounds.Min.X, y-bounds.Min.Y, color.NRGBAModel.Convert(src.RGBAAt(x, y)).(color.NRGBA))
		}
	}
	return dst
}
