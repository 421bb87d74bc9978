package annotate

import (
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/synthgrove/synthgen/internal/compose"
	"github.com/synthgrove/synthgen/internal/imageio"
)

// writeConversionFixture saves one 32x32 mask with a 6x6 red instance and an
// unpainted (occluded) green key, and returns the matching documents.
func writeConversionFixture(t *testing.T, dir string) (*compose.DatasetInfo, *compose.MaskDefinitions) {
	t.Helper()

	mask := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			mask.SetNRGBA(x, y, color.NRGBA{A: 255})
		}
	}
	for y := 4; y < 10; y++ {
		for x := 8; x < 14; x++ {
			mask.SetNRGBA(x, y, color.NRGBA{R: 255, A: 255})
		}
	}
	if err := imageio.Save(filepath.Join(dir, "mask0.png"), mask); err != nil {
		t.Fatal(err)
	}

	taxonomy := map[string][]string{"bird": {"eagle"}, "mammal": {"horse"}}
	info := &compose.DatasetInfo{
		Description:     "fixture",
		Version:         "1.0",
		SuperCategories: taxonomy,
	}
	defs := &compose.MaskDefinitions{
		Images: []compose.ImageRecord{{
			ID:           0,
			FileName:     "image0.png",
			MaskFileName: "mask0.png",
			Width:        32,
			Height:       32,
			Instances: []compose.InstanceRecord{
				{ColorKey: "#FF0000", Category: "eagle", SuperCategory: "bird"},
				{ColorKey: "#00FF00", Category: "horse", SuperCategory: "mammal"},
			},
		}},
		SuperCategories: taxonomy,
	}
	return info, defs
}

func TestConvert(t *testing.T) {
	dir := t.TempDir()
	info, defs := writeConversionFixture(t, dir)

	doc, report, err := Convert(info, defs, dir, imageio.NewCache())
	if err != nil {
		t.Fatal(err)
	}

	if len(doc.Images) != 1 {
		t.Fatalf("images: got %d, want 1", len(doc.Images))
	}
	if got, want := doc.Images[0], (Image{ID: 0, FileName: "image0.png", Width: 32, Height: 32}); got != want {
		t.Errorf("image: got %+v, want %+v", got, want)
	}

	wantCats := []CategoryDef{
		{ID: 1, Name: "eagle", SuperCategory: "bird"},
		{ID: 2, Name: "horse", SuperCategory: "mammal"},
	}
	if diff := cmp.Diff(wantCats, doc.Categories); diff != "" {
		t.Errorf("categories mismatch (-want +got):\n%s", diff)
	}

	if len(doc.Annotations) != 1 {
		t.Fatalf("annotations: got %d, want 1 (occluded horse dropped)", len(doc.Annotations))
	}
	ann := doc.Annotations[0]
	if ann.ID != 1 || ann.ImageID != 0 || ann.CategoryID != 1 {
		t.Errorf("annotation ids: %+v", ann)
	}
	if ann.Area != 36 {
		t.Errorf("area: got %d, want 36", ann.Area)
	}
	if ann.BBox != [4]int{8, 4, 6, 6} {
		t.Errorf("bbox: got %v, want [8 4 6 6]", ann.BBox)
	}
	if ann.IsCrowd != 0 {
		t.Errorf("iscrowd: got %d, want 0", ann.IsCrowd)
	}
	if len(ann.Segmentation) != 1 || len(ann.Segmentation[0]) != 8 {
		t.Errorf("segmentation: got %v, want one 4-vertex ring", ann.Segmentation)
	}

	if report.OccludedDropped != 1 {
		t.Errorf("occluded dropped: got %d, want 1", report.OccludedDropped)
	}
	if report.Annotations != 1 || report.Images != 1 {
		t.Errorf("report: %+v", report)
	}
}

// Converting the same composition output twice must yield the same document.
func TestConvert_Idempotent(t *testing.T) {
	dir := t.TempDir()
	info, defs := writeConversionFixture(t, dir)

	first, _, err := Convert(info, defs, dir, imageio.NewCache())
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := Convert(info, defs, dir, imageio.NewCache())
	if err != nil {
		t.Fatal(err)
	}

	ignoreDate := cmpopts.IgnoreFields(Info{}, "DateCreated")
	if diff := cmp.Diff(first, second, ignoreDate); diff != "" {
		t.Errorf("repeated conversion differs (-first +second):\n%s", diff)
	}
}

func TestConvert_SchemaMismatch(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name   string
		mutate func(*compose.MaskDefinitions)
	}{
		{
			"unknown category",
			func(defs *compose.MaskDefinitions) {
				defs.Images[0].Instances[0].Category = "dragon"
			},
		},
		{
			"duplicate image id",
			func(defs *compose.MaskDefinitions) {
				defs.Images = append(defs.Images, defs.Images[0])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, defs := writeConversionFixture(t, dir)
			tt.mutate(defs)

			_, _, err := Convert(info, defs, dir, imageio.NewCache())
			var mismatch *SchemaMismatchError
			if !errors.As(err, &mismatch) {
				t.Errorf("expected SchemaMismatchError, got %v", err)
			}
		})
	}
}
