package annotate

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/synthgrove/synthgen/internal/compose"
)

// InstanceMask is one decoded instance: the binary raster of the pixels
// carrying its color key, plus the label recorded for that key.
type InstanceMask struct {
	ColorKey      string
	Category      string
	SuperCategory string
	Mask          *BinaryMask
}

// DecodeInstances walks a combined mask raster against its mask-definition
// records and calls fn once per instance that still owns at least one pixel,
// in recorded (z-order) sequence. Masks are materialized one instance at a
// time, never all at once.
//
// A color key that is listed but absent from the pixels belongs to a fully
// occluded instance; it produces no callback and is reported through
// onOccluded so the caller can warn rather than silently drop it.
//
// fn returning an error stops the walk and propagates the error.
func DecodeInstances(maskImg image.Image, records []compose.InstanceRecord, onOccluded func(compose.InstanceRecord), fn func(InstanceMask) error) error {
	nrgba := imaging.Clone(maskImg)
	w, h := nrgba.Bounds().Dx(), nrgba.Bounds().Dy()

	for _, rec := range records {
		key, err := compose.ParseKeyHex(rec.ColorKey)
		if err != nil {
			return err
		}

		bm := NewBinaryMask(w, h)
		found := false
		for y := 0; y < h; y++ {
			row := nrgba.Pix[y*nrgba.Stride:]
			for x := 0; x < w; x++ {
				px := row[x*4:]
				if px[0] == key.R && px[1] == key.G && px[2] == key.B {
					bm.Set(x, y, true)
					found = true
				}
			}
		}

		if !found {
			if onOccluded != nil {
				onOccluded(rec)
			}
			continue
		}

		if err := fn(InstanceMask{
			ColorKey:      rec.ColorKey,
			Category:      rec.Category,
			SuperCategory: rec.SuperCategory,
			Mask:          bm,
		}); err != nil {
			return err
		}
	}
	return nil
}
