// Package annotate converts color-keyed instance masks into a polygon
// annotation document compatible with the COCO instance schema.
//
// The conversion runs in three layers:
//
//   - DecodeInstances splits a combined mask raster into one binary mask per
//     recorded color key, skipping keys whose instance was fully occluded
//   - TraceShape extracts boundary polygons, bounding box, and pixel area
//     from each binary mask
//   - Convert orchestrates both across the whole dataset and assembles the
//     final document with consistent sequential ids
//
// # Geometry conventions
//
// Polygon vertices live on the pixel-corner grid, so a region's polygon
// encloses exactly its pixels, and even a single-pixel instance yields a
// valid 4-vertex ring. Areas are counted from mask pixels rather than
// derived from polygon geometry.
//
// # Failure policy
//
// Inconsistent metadata between the composition documents aborts the
// conversion with SchemaMismatchError. Per-instance problems (full
// occlusion, degenerate masks) drop that instance with a logged warning and
// a report counter; they never abort the run and never emit zero-area
// annotations.
package annotate
