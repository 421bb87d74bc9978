// Package imageio handles decoding, caching, and encoding of the raster
// assets the pipeline consumes and produces.
//
// Foreground cutouts are loaded many times across a run (once per placement),
// so decoded images are cached in memory keyed by path. Output encoding is
// deliberately minimal: composites are JPEG or PNG, masks are always PNG
// because a lossy mask would corrupt the color keys that identify instances.
package imageio

import (
	"fmt"
	"image"
	_ "image/gif" // Register GIF format decoder
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Cache provides thread-safe caching of decoded images to avoid redundant
// disk reads. Safe for concurrent use by the worker pool; all methods lock.
//
// Cached images remain in memory until Clear is called. A run over a large
// asset library should call Clear between batches if memory is a concern.
type Cache struct {
	mu     sync.RWMutex
	images map[string]image.Image
}

// NewCache creates an empty image cache ready for concurrent use.
func NewCache() *Cache {
	return &Cache{images: make(map[string]image.Image)}
}

// Load retrieves an image from the cache or decodes it from disk if not
// cached. The cache key is the exact path string, so relative and absolute
// paths to the same file occupy separate entries.
func (c *Cache) Load(path string) (image.Image, error) {
	c.mu.RLock()
	if img, ok := c.images[path]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	c.mu.Lock()
	c.images[path] = img
	c.mu.Unlock()

	return img, nil
}

// Clear removes all cached images, freeing the associated memory.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]image.Image)
	c.mu.Unlock()
}

// Len reports the number of cached images.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// HasAlpha reports whether the decoded image type carries an alpha channel.
// This is a type-level check; a fully opaque RGBA image still returns true.
func HasAlpha(img image.Image) bool {
	switch img.(type) {
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return true
	}
	return false
}

// jpegQuality matches the encoder default used for dataset composites.
// Masks never go through JPEG.
const jpegQuality = 90

// Save encodes img to path, choosing the encoder from the file extension.
// Supported extensions are .png, .jpg, and .jpeg. The parent directory must
// already exist.
func Save(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png":
		err = png.Encode(f, img)
	case ".jpg", ".jpeg":
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality})
	default:
		return fmt.Errorf("unsupported output extension %q", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}
