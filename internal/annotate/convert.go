package annotate

import (
	"fmt"
	"image"
	"log"
	"path/filepath"
	"sort"
	"time"

	"github.com/synthgrove/synthgen/internal/assets"
	"github.com/synthgrove/synthgen/internal/compose"
)

// SchemaMismatchError indicates that the composition-stage documents
// disagree with each other, e.g. a mask definition referencing a category
// the dataset taxonomy never declared. It aborts the conversion; partial
// annotation documents are worse than none.
type SchemaMismatchError struct {
	Detail string
}

func (e *SchemaMismatchError) Error() string {
	return "schema mismatch between dataset_info and mask_definitions: " + e.Detail
}

// COCO document types, structurally compatible with the COCO instance
// annotation schema.

type Info struct {
	Description string `json:"description"`
	Version     string `json:"version"`
	Contributor string `json:"contributor,omitempty"`
	DateCreated string `json:"date_created"`
}

type Image struct {
	ID       int    `json:"id"`
	FileName string `json:"file_name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

type CategoryDef struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	SuperCategory string `json:"supercategory"`
}

type Annotation struct {
	ID         int    `json:"id"`
	ImageID    int    `json:"image_id"`
	CategoryID int    `json:"category_id"`
	// Segmentation holds one flattened [x0, y0, x1, y1, ...] ring per
	// disconnected part of the instance.
	Segmentation [][]float64 `json:"segmentation"`
	Area         int         `json:"area"`
	BBox         [4]int      `json:"bbox"`
	IsCrowd      int         `json:"iscrowd"`
}

// Document is the final annotation output.
type Document struct {
	Info        Info          `json:"info"`
	Images      []Image       `json:"images"`
	Categories  []CategoryDef `json:"categories"`
	Annotations []Annotation  `json:"annotations"`
}

// Report summarizes a conversion run, including every instance that was
// dropped and why.
type Report struct {
	Images          int `json:"images"`
	Annotations     int `json:"annotations"`
	OccludedDropped int `json:"occluded_dropped"`
	DegenerateDrops int `json:"degenerate_dropped"`
}

// MaskLoader loads mask rasters by path. *imageio.Cache satisfies it.
type MaskLoader interface {
	Load(path string) (image.Image, error)
}

// Convert assembles the final annotation document from the composition
// stage's outputs. Image ids are carried over from the mask definitions;
// category and annotation ids are assigned sequentially from 1 in a single
// pass, so they are unique and deterministic.
//
// Policy for multi-part instances: one annotation per instance, with one
// segmentation ring per disconnected part, which is the COCO convention for
// instances split by occlusion. Hole boundaries are traced but not emitted
// because the COCO polygon format cannot express them; the area field is
// the true pixel count, so holes are still excluded from area.
//
// Fully occluded instances (color key with no surviving pixels) are dropped
// with a logged warning and counted in the report, never emitted as
// zero-area annotations.
func Convert(info *compose.DatasetInfo, defs *compose.MaskDefinitions, datasetDir string, loader MaskLoader) (*Document, *Report, error) {
	if err := checkSchema(info, defs); err != nil {
		return nil, nil, err
	}

	catIDs, categories := enumerateCategories(info.SuperCategories)

	doc := &Document{
		Info: Info{
			Description: info.Description,
			Version:     info.Version,
			Contributor: info.Contributor,
			DateCreated: time.Now().UTC().Format("2006-01-02"),
		},
		Categories: categories,
	}
	report := &Report{}

	images := append([]compose.ImageRecord(nil), defs.Images...)
	sort.Slice(images, func(i, j int) bool { return images[i].ID < images[j].ID })

	nextAnnID := 1
	for _, rec := range images {
		doc.Images = append(doc.Images, Image{
			ID:       rec.ID,
			FileName: rec.FileName,
			Width:    rec.Width,
			Height:   rec.Height,
		})
		report.Images++

		maskImg, err := loader.Load(filepath.Join(datasetDir, filepath.FromSlash(rec.MaskFileName)))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load mask for image %d: %w", rec.ID, err)
		}

		onOccluded := func(inst compose.InstanceRecord) {
			log.Printf("warning: image %d: instance %s (%s/%s) fully occluded, dropping", rec.ID, inst.ColorKey, inst.SuperCategory, inst.Category)
			report.OccludedDropped++
		}

		err = DecodeInstances(maskImg, rec.Instances, onOccluded, func(inst InstanceMask) error {
			shape := TraceShape(inst.Mask)
			if shape.Area == 0 || len(shape.Polygons) == 0 {
				log.Printf("warning: image %d: instance %s produced a degenerate mask, dropping", rec.ID, inst.ColorKey)
				report.DegenerateDrops++
				return nil
			}

			catID := catIDs[assets.Category{Name: inst.Category, SuperCategory: inst.SuperCategory}]
			segmentation := make([][]float64, 0, len(shape.Polygons))
			for _, ring := range shape.Polygons {
				segmentation = append(segmentation, flattenRing(ring))
			}

			doc.Annotations = append(doc.Annotations, Annotation{
				ID:           nextAnnID,
				ImageID:      rec.ID,
				CategoryID:   catID,
				Segmentation: segmentation,
				Area:         shape.Area,
				BBox:         [4]int{shape.BBox.X, shape.BBox.Y, shape.BBox.W, shape.BBox.H},
				IsCrowd:      0,
			})
			nextAnnID++
			report.Annotations++
			return nil
		})
		if err != nil {
			return nil, nil, err
		}
	}

	return doc, report, nil
}

// checkSchema verifies the two composition documents agree before any
// geometry work starts.
func checkSchema(info *compose.DatasetInfo, defs *compose.MaskDefinitions) error {
	known := make(map[assets.Category]bool)
	for superCat, names := range info.SuperCategories {
		for _, name := range names {
			known[assets.Category{Name: name, SuperCategory: superCat}] = true
		}
	}

	seenIDs := make(map[int]bool)
	for _, rec := range defs.Images {
		if seenIDs[rec.ID] {
			return &SchemaMismatchError{Detail: fmt.Sprintf("duplicate image id %d", rec.ID)}
		}
		seenIDs[rec.ID] = true

		for _, inst := range rec.Instances {
			cat := assets.Category{Name: inst.Category, SuperCategory: inst.SuperCategory}
			if !known[cat] {
				return &SchemaMismatchError{Detail: fmt.Sprintf("image %d references unknown category %s", rec.ID, cat)}
			}
		}
	}
	return nil
}

// enumerateCategories assigns sequential ids from 1 in (supercategory, name)
// order, deduplicated by the pair.
func enumerateCategories(superCats map[string][]string) (map[assets.Category]int, []CategoryDef) {
	var cats []assets.Category
	for superCat, names := range superCats {
		for _, name := range names {
			cats = append(cats, assets.Category{Name: name, SuperCategory: superCat})
		}
	}
	sort.Slice(cats, func(i, j int) bool {
		if cats[i].SuperCategory != cats[j].SuperCategory {
			return cats[i].SuperCategory < cats[j].SuperCategory
		}
		return cats[i].Name < cats[j].Name
	})

	ids := make(map[assets.Category]int, len(cats))
	defs := make([]CategoryDef, 0, len(cats))
	next := 1
	for _, c := range cats {
		if _, dup := ids[c]; dup {
			continue
		}
		ids[c] = next
		defs = append(defs, CategoryDef{ID: next, Name: c.Name, SuperCategory: c.SuperCategory})
		next++
	}
	return ids, defs
}

func flattenRing(ring Ring) []float64 {
	flat := make([]float64, 0, len(ring)*2)
	for _, p := range ring {
		flat = append(flat, float64(p.X), float64(p.Y))
	}
	return flat
}
