package annotate

import (
	"image"
	"image/color"
	"testing"

	"github.com/synthgrove/synthgen/internal/compose"
)

// testMaskImage paints two instance keys onto a black mask raster: red in
// the top-left quadrant and green in a small patch that partially overlaps
// nothing.
func testMaskImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			img.SetNRGBA(x, y, color.NRGBA{A: 255})
		}
	}
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, A: 255})
		}
	}
	for y := 12; y < 16; y++ {
		for x := 12; x < 16; x++ {
			img.SetNRGBA(x, y, color.NRGBA{G: 255, A: 255})
		}
	}
	return img
}

func TestDecodeInstances(t *testing.T) {
	records := []compose.InstanceRecord{
		{ColorKey: "#FF0000", Category: "eagle", SuperCategory: "bird"},
		{ColorKey: "#00FF00", Category: "horse", SuperCategory: "mammal"},
	}

	var got []InstanceMask
	err := DecodeInstances(testMaskImage(), records, nil, func(im InstanceMask) error {
		got = append(got, im)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(got) != 2 {
		t.Fatalf("decoded %d instances, want 2", len(got))
	}
	// Instances arrive in recorded z-order.
	if got[0].Category != "eagle" || got[1].Category != "horse" {
		t.Errorf("instance order: got %s, %s", got[0].Category, got[1].Category)
	}
	if n := got[0].Mask.Count(); n != 100 {
		t.Errorf("eagle mask pixels: got %d, want 100", n)
	}
	if n := got[1].Mask.Count(); n != 16 {
		t.Errorf("horse mask pixels: got %d, want 16", n)
	}
}

func TestDecodeInstances_FullyOccluded(t *testing.T) {
	records := []compose.InstanceRecord{
		{ColorKey: "#FF0000", Category: "eagle", SuperCategory: "bird"},
		{ColorKey: "#123456", Category: "ghost", SuperCategory: "mammal"}, // never painted
	}

	var occluded []string
	var decoded []string
	err := DecodeInstances(testMaskImage(), records,
		func(rec compose.InstanceRecord) { occluded = append(occluded, rec.Category) },
		func(im InstanceMask) error {
			decoded = append(decoded, im.Category)
			return nil
		})
	if err != nil {
		t.Fatal(err)
	}

	if len(decoded) != 1 || decoded[0] != "eagle" {
		t.Errorf("decoded: got %v, want [eagle]", decoded)
	}
	if len(occluded) != 1 || occluded[0] != "ghost" {
		t.Errorf("occluded: got %v, want [ghost]", occluded)
	}
}

func TestDecodeInstances_BadColorKey(t *testing.T) {
	records := []compose.InstanceRecord{{ColorKey: "red", Category: "eagle", SuperCategory: "bird"}}
	err := DecodeInstances(testMaskImage(), records, nil, func(InstanceMask) error { return nil })
	if err == nil {
		t.Error("expected error for malformed color key")
	}
}
