package compose

import (
	"errors"
	"image"
	"image/color"
	"math/rand"
	"testing"
)

func TestFindPlacement_StaysInsideCanvas(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	occ := NewOccupancy(100, 100)
	fg := newCutout(30, 30, 5, color.NRGBA{R: 255, A: 255})

	for i := 0; i < 50; i++ {
		pos, err := FindPlacement(rng, occ, fg, 1.0)
		if err != nil {
			t.Fatalf("placement on empty canvas should always succeed, got %v", err)
		}
		if pos.X < 0 || pos.Y < 0 || pos.X+30 > 100 || pos.Y+30 > 100 {
			t.Fatalf("placement %+v puts 30x30 foreground outside 100x100 canvas", pos)
		}
	}
}

func TestFindPlacement_TooLargeForCanvas(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	occ := NewOccupancy(20, 20)
	fg := newCutout(30, 30, 5, color.NRGBA{R: 255, A: 255})

	if _, err := FindPlacement(rng, occ, fg, 1.0); !errors.Is(err, ErrDoesNotFit) {
		t.Errorf("oversized foreground: got %v, want ErrDoesNotFit", err)
	}
}

func TestFindPlacement_FullyTransparentForeground(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	occ := NewOccupancy(100, 100)
	fg := image.NewNRGBA(image.Rect(0, 0, 10, 10))

	if _, err := FindPlacement(rng, occ, fg, 1.0); !errors.Is(err, ErrNothingOpaque) {
		t.Errorf("transparent foreground: got %v, want ErrNothingOpaque", err)
	}
}

func TestFindPlacement_ZeroOverlapDisjoint(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	canvasW, canvasH := 120, 120
	occ := NewOccupancy(canvasW, canvasH)
	canvas := image.NewNRGBA(image.Rect(0, 0, canvasW, canvasH))
	fg := newCutout(40, 40, 0, color.NRGBA{B: 255, A: 255}) // fully opaque block

	placed := 0
	claimed := make(map[Placement]bool)
	for i := 0; i < 6; i++ {
		pos, err := FindPlacement(rng, occ, fg, 0.0)
		if err != nil {
			continue // canvas can fill up; exhaustion is the expected exit
		}
		canvas = Composite(canvas, occ, fg, pos)
		placed++

		for _, p := range opaquePixels(fg) {
			at := Placement{X: pos.X + p.X, Y: pos.Y + p.Y}
			if claimed[at] {
				t.Fatalf("pixel %+v claimed by two instances despite zero overlap threshold", at)
			}
			claimed[at] = true
		}
	}

	if placed == 0 {
		t.Fatal("expected at least one successful placement")
	}
	if got := occ.OccupiedCount(); got != placed*40*40 {
		t.Errorf("occupancy count: got %d, want %d", got, placed*40*40)
	}
}

func TestFindPlacement_ExhaustsOnFullCanvas(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	occ := NewOccupancy(50, 50)
	fg := newCutout(50, 50, 0, color.NRGBA{G: 255, A: 255})

	// First placement covers the whole canvas.
	pos, err := FindPlacement(rng, occ, fg, 0.0)
	if err != nil {
		t.Fatalf("first placement should succeed, got %v", err)
	}
	canvas := image.NewNRGBA(image.Rect(0, 0, 50, 50))
	Composite(canvas, occ, fg, pos)

	// The second has nowhere to go under a zero overlap threshold.
	if _, err := FindPlacement(rng, occ, fg, 0.0); !errors.Is(err, ErrAttemptsExhausted) {
		t.Errorf("placement on a fully occupied canvas: got %v, want ErrAttemptsExhausted", err)
	}

	// With full overlap allowed it succeeds immediately.
	if _, err := FindPlacement(rng, occ, fg, 1.0); err != nil {
		t.Errorf("placement with overlap threshold 1.0 should always succeed, got %v", err)
	}
}

func TestComposite_BlendsOpaquePixels(t *testing.T) {
	canvas := image.NewNRGBA(image.Rect(0, 0, 60, 60))
	for y := 0; y < 60; y++ {
		for x := 0; x < 60; x++ {
			canvas.SetNRGBA(x, y, color.NRGBA{R: 10, G: 10, B: 10, A: 255})
		}
	}
	occ := NewOccupancy(60, 60)
	fg := newCutout(20, 20, 5, color.NRGBA{R: 250, A: 255})

	out := Composite(canvas, occ, fg, Placement{X: 10, Y: 10})

	// Center of the placed cutout takes the foreground color.
	if got := out.NRGBAAt(20, 20); got.R < 200 {
		t.Errorf("composited center pixel: got %+v, want red foreground", got)
	}
	// The transparent border leaves the background untouched.
	if got := out.NRGBAAt(11, 11); got.R != 10 {
		t.Errorf("pixel under transparent border: got %+v, want background", got)
	}
	// Occupancy covers exactly the opaque 10x10 center.
	if got := occ.OccupiedCount(); got != 100 {
		t.Errorf("occupied count: got %d, want 100", got)
	}
	if occ.Occupied(11, 11) {
		t.Error("transparent border pixel must not claim occupancy")
	}
}
