package compose

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// goldenAngle spaces palette hues so that any prefix of the palette stays
// maximally spread around the hue circle.
const goldenAngle = 137.50776405003785

// Palette returns n visually distinct, fully saturated instance color keys.
// The palette is a pure function of n: the same call always yields the same
// colors, which keeps mask output reproducible across runs. Black is reserved
// for "no instance" and can never appear in the palette.
func Palette(n int) []color.NRGBA {
	keys := make([]color.NRGBA, 0, n)
	seen := map[color.NRGBA]bool{}

	for i := 0; len(keys) < n; i++ {
		hue := math.Mod(float64(i)*goldenAngle, 360)
		// Alternate value slightly so hue near-collisions at large n still
		// produce distinct 8-bit keys.
		val := 0.95 - 0.25*float64(i%3)/2
		r, g, b := colorful.Hsv(hue, 0.85, val).RGB255()
		key := color.NRGBA{R: r, G: g, B: b, A: 255}
		if key == (color.NRGBA{A: 255}) || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys
}

// KeyHex formats a color key the way the mask definition document stores it.
func KeyHex(c color.NRGBA) string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// ParseKeyHex parses a "#RRGGBB" color key string.
func ParseKeyHex(s string) (color.NRGBA, error) {
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "#%02X%02X%02X", &r, &g, &b); err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color key %q: %w", s, err)
	}
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}

// MaskCanvas is the per-image instance mask, aligned 1:1 with the composite.
// Pixels start at the reserved no-instance value (opaque black) and are
// overwritten front-to-back as instances are placed, so occlusion in the mask
// matches occlusion in the composite exactly.
type MaskCanvas struct {
	img *image.NRGBA
}

// NewMaskCanvas creates a mask canvas of the given size with every pixel set
// to the no-instance value.
func NewMaskCanvas(w, h int) *MaskCanvas {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+3] = 255
	}
	return &MaskCanvas{img: img}
}

// Paint writes key into exactly the opaque pixels of fg placed at pos,
// overwriting whatever was there. Returns the number of pixels painted.
func (m *MaskCanvas) Paint(fg *image.NRGBA, pos Placement, key color.NRGBA) int {
	painted := 0
	for _, p := range opaquePixels(fg) {
		m.img.SetNRGBA(pos.X+p.X, pos.Y+p.Y, key)
		painted++
	}
	return painted
}

// Image returns the mask raster for encoding. The mask must always be saved
// as PNG; lossy compression would corrupt the color keys.
func (m *MaskCanvas) Image() *image.NRGBA {
	return m.img
}
