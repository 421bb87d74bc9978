// Package assets models the two-level label taxonomy and the source imagery
// the composition engine draws from.
//
// Foreground cutouts are grouped by super-category and category. The library
// can be built directly from slices (taxonomy as explicit configuration) or
// scanned from the conventional directory layout:
//
//	input/
//	  foregrounds/
//	    <super_category>/
//	      <category>/
//	        cutout.png
//	  backgrounds/
//	    scene.jpg
//
// Scanning is tolerant: stray files and unsupported extensions are logged and
// skipped rather than aborting the run.
package assets

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrEmptyAssetSet indicates that a run was started without any usable
// foregrounds or without any usable backgrounds.
var ErrEmptyAssetSet = errors.New("empty asset set")

// InvalidAssetError describes a source image that cannot participate in
// composition, such as a foreground without transparency.
type InvalidAssetError struct {
	Path   string
	Reason string
}

func (e *InvalidAssetError) Error() string {
	return fmt.Sprintf("invalid asset %s: %s", e.Path, e.Reason)
}

// Category is one leaf of the two-level label taxonomy. Categories are
// value-comparable; two categories are the same label exactly when both
// fields match.
type Category struct {
	Name          string `json:"name"`
	SuperCategory string `json:"super_category"`
}

func (c Category) String() string {
	return c.SuperCategory + "/" + c.Name
}

// Foreground is a transparent cutout image tagged with its category.
type Foreground struct {
	Path     string
	Category Category
}

// Background is an opaque scene image.
type Background struct {
	Path string
}

// Library holds the full asset set for one run. It is immutable after
// construction and safe to share across worker goroutines.
type Library struct {
	foregrounds map[Category][]Foreground
	backgrounds []Background
	categories  []Category
}

// NewLibrary builds a library from explicit asset lists, decoupled from any
// filesystem layout. Returns ErrEmptyAssetSet if either side is empty.
func NewLibrary(foregrounds []Foreground, backgrounds []Background) (*Library, error) {
	if len(foregrounds) == 0 {
		return nil, fmt.Errorf("no foregrounds: %w", ErrEmptyAssetSet)
	}
	if len(backgrounds) == 0 {
		return nil, fmt.Errorf("no backgrounds: %w", ErrEmptyAssetSet)
	}

	byCat := make(map[Category][]Foreground)
	for _, fg := range foregrounds {
		byCat[fg.Category] = append(byCat[fg.Category], fg)
	}

	cats := make([]Category, 0, len(byCat))
	for c := range byCat {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool {
		if cats[i].SuperCategory != cats[j].SuperCategory {
			return cats[i].SuperCategory < cats[j].SuperCategory
		}
		return cats[i].Name < cats[j].Name
	})

	return &Library{
		foregrounds: byCat,
		backgrounds: backgrounds,
		categories:  cats,
	}, nil
}

// Categories returns every category with at least one foreground, ordered by
// (super_category, name). The slice is shared; callers must not mutate it.
func (l *Library) Categories() []Category {
	return l.categories
}

// Foregrounds returns the cutouts registered under cat.
func (l *Library) Foregrounds(cat Category) []Foreground {
	return l.foregrounds[cat]
}

// Backgrounds returns every background scene.
func (l *Library) Backgrounds() []Background {
	return l.backgrounds
}

// SuperCategories returns the taxonomy as a map from super-category to its
// sorted category names, the shape both output documents embed.
func (l *Library) SuperCategories() map[string][]string {
	out := make(map[string][]string)
	for _, c := range l.categories {
		out[c.SuperCategory] = append(out[c.SuperCategory], c.Name)
	}
	for _, names := range out {
		sort.Strings(names)
	}
	return out
}

var backgroundExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// Scan walks the conventional input layout and builds a library from it.
// Foregrounds must be PNG (the only supported format with an alpha channel
// here); backgrounds may be PNG or JPEG. Unexpected entries are logged and
// skipped.
func Scan(inputDir string) (*Library, error) {
	fgDir := filepath.Join(inputDir, "foregrounds")
	bgDir := filepath.Join(inputDir, "backgrounds")

	if _, err := os.Stat(fgDir); err != nil {
		return nil, fmt.Errorf("foregrounds directory not found in %s: %w", inputDir, err)
	}
	if _, err := os.Stat(bgDir); err != nil {
		return nil, fmt.Errorf("backgrounds directory not found in %s: %w", inputDir, err)
	}

	foregrounds, err := scanForegrounds(fgDir)
	if err != nil {
		return nil, err
	}
	backgrounds, err := scanBackgrounds(bgDir)
	if err != nil {
		return nil, err
	}

	return NewLibrary(foregrounds, backgrounds)
}

func scanForegrounds(fgDir string) ([]Foreground, error) {
	superDirs, err := os.ReadDir(fgDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", fgDir, err)
	}

	var out []Foreground
	for _, superEntry := range superDirs {
		if !superEntry.IsDir() {
			log.Printf("warning: expected super-category directory, skipping file %s", filepath.Join(fgDir, superEntry.Name()))
			continue
		}
		superName := superEntry.Name()

		catDirs, err := os.ReadDir(filepath.Join(fgDir, superName))
		if err != nil {
			return nil, fmt.Errorf("failed to read super-category %s: %w", superName, err)
		}
		for _, catEntry := range catDirs {
			if !catEntry.IsDir() {
				log.Printf("warning: expected category directory, skipping file %s", filepath.Join(fgDir, superName, catEntry.Name()))
				continue
			}
			catName := catEntry.Name()
			cat := Category{Name: catName, SuperCategory: superName}

			files, err := os.ReadDir(filepath.Join(fgDir, superName, catName))
			if err != nil {
				return nil, fmt.Errorf("failed to read category %s: %w", cat, err)
			}
			for _, f := range files {
				path := filepath.Join(fgDir, superName, catName, f.Name())
				if f.IsDir() {
					log.Printf("warning: directory inside category %s, skipping %s", cat, path)
					continue
				}
				if strings.ToLower(filepath.Ext(f.Name())) != ".png" {
					log.Printf("warning: foreground must be .png, skipping %s", path)
					continue
				}
				out = append(out, Foreground{Path: path, Category: cat})
			}
		}
	}
	return out, nil
}

func scanBackgrounds(bgDir string) ([]Background, error) {
	files, err := os.ReadDir(bgDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", bgDir, err)
	}

	var out []Background
	for _, f := range files {
		path := filepath.Join(bgDir, f.Name())
		if f.IsDir() {
			log.Printf("warning: directory inside backgrounds, skipping %s", path)
			continue
		}
		if !backgroundExts[strings.ToLower(filepath.Ext(f.Name()))] {
			log.Printf("warning: background must be png or jpeg, skipping %s", path)
			continue
		}
		out = append(out, Background{Path: path})
	}
	return out, nil
}
