package compose

import (
	"errors"
	"image"

	"github.com/disintegration/imaging"
)

// maxPlacementAttempts bounds the random placement search for one instance.
// Exhausting the budget skips the instance for this image; it is recorded as
// a skip event, never an unbounded retry.
const maxPlacementAttempts = 30

// Placement failure causes. Each one becomes the recorded skip reason, so a
// foreground that can never fit is distinguishable from a crowded canvas.
var (
	ErrDoesNotFit        = errors.New("foreground does not fit canvas")
	ErrNothingOpaque     = errors.New("no opaque pixels after transform")
	ErrAttemptsExhausted = errors.New("placement attempts exhausted")
)

// Placement is the accepted top-left offset of a transformed foreground on
// the canvas.
type Placement struct {
	X int
	Y int
}

// Occupancy tracks which canvas pixels are already claimed by placed
// instances, for the maximum-overlap constraint. One Occupancy belongs to one
// composite image and is only touched by that image's (sequential) placement
// loop.
type Occupancy struct {
	w, h     int
	occupied []bool
}

// NewOccupancy creates an empty occupancy grid for a w x h canvas.
func NewOccupancy(w, h int) *Occupancy {
	return &Occupancy{w: w, h: h, occupied: make([]bool, w*h)}
}

// Occupied reports whether any placed instance claims pixel (x, y).
func (o *Occupancy) Occupied(x, y int) bool {
	return o.occupied[y*o.w+x]
}

// OccupiedCount returns the number of claimed pixels.
func (o *Occupancy) OccupiedCount() int {
	n := 0
	for _, v := range o.occupied {
		if v {
			n++
		}
	}
	return n
}

// opaquePixels lists the foreground-local coordinates whose alpha exceeds the
// instance threshold.
func opaquePixels(fg *image.NRGBA) []Placement {
	bounds := fg.Bounds()
	pts := make([]Placement, 0, bounds.Dx()*bounds.Dy()/4)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		row := fg.Pix[(y-bounds.Min.Y)*fg.Stride:]
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if row[(x-bounds.Min.X)*4+3] > opaqueThreshold {
				pts = append(pts, Placement{X: x - bounds.Min.X, Y: y - bounds.Min.Y})
			}
		}
	}
	return pts
}

// FindPlacement searches for a random position whose bounding box stays
// inside the canvas and whose opaque pixels overlap previously placed
// instances by at most maxOverlap (as a fraction of this instance's opaque
// pixel count).
//
// On failure the error names the cause: ErrDoesNotFit when the foreground
// exceeds the canvas, ErrNothingOpaque when transformation left no opaque
// pixels, ErrAttemptsExhausted when the retry budget runs out.
func FindPlacement(rng Rand, occ *Occupancy, fg *image.NRGBA, maxOverlap float64) (Placement, error) {
	fgW, fgH := fg.Bounds().Dx(), fg.Bounds().Dy()
	maxX := occ.w - fgW
	maxY := occ.h - fgH
	if maxX < 0 || maxY < 0 {
		return Placement{}, ErrDoesNotFit
	}

	opaque := opaquePixels(fg)
	if len(opaque) == 0 {
		return Placement{}, ErrNothingOpaque
	}

	for attempt := 0; attempt < maxPlacementAttempts; attempt++ {
		pos := Placement{X: rng.Intn(maxX + 1), Y: rng.Intn(maxY + 1)}

		overlapping := 0
		for _, p := range opaque {
			if occ.Occupied(pos.X+p.X, pos.Y+p.Y) {
				overlapping++
			}
		}
		if float64(overlapping)/float64(len(opaque)) <= maxOverlap {
			return pos, nil
		}
	}
	return Placement{}, ErrAttemptsExhausted
}

// Composite alpha-blends fg over the canvas at pos and claims the instance's
// opaque pixels in the occupancy grid. imaging.Overlay performs the standard
// premultiplied-correct "over" operation, so translucent edges blend without
// color fringing.
func Composite(canvas *image.NRGBA, occ *Occupancy, fg *image.NRGBA, pos Placement) *image.NRGBA {
	out := imaging.Overlay(canvas, fg, image.Pt(pos.X, pos.Y), 1.0)

	for _, p := range opaquePixels(fg) {
		occ.occupied[(pos.Y+p.Y)*occ.w+pos.X+p.X] = true
	}
	return out
}
