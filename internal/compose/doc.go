// Package compose implements the composition stage of the synthetic dataset
// pipeline: it layers transformed foreground cutouts over background crops
// and records, per placed instance, a color-keyed segmentation mask.
//
// # Pipeline
//
// For each generated image the engine runs the same sequence:
//
//  1. Background: pick a random background and cut a random window of the
//     output size (upscaling first if the background is too small)
//  2. Transform: sample scale, rotation, flip, and brightness within the
//     configured bounds and render the foreground accordingly
//  3. Placement: search randomly for a position that keeps the instance
//     inside the canvas and under the overlap threshold, with a fixed
//     attempt budget
//  4. Compositing: alpha-blend the instance onto the canvas and write its
//     color key into the mask canvas, overwriting occluded instances
//
// # Determinism
//
// Every random decision for image i flows from a rand.Rand seeded with
// seed+i. The worker pool parallelizes across images, and because no random
// state is shared between images, scheduling order cannot change the output.
// Given the same seed, assets, and parameters, a run reproduces its images,
// masks, and documents exactly.
//
// # Masks and color keys
//
// The mask canvas starts as opaque black, the reserved "no instance" value.
// Instance color keys come from a deterministic palette that never contains
// black. Later placements overwrite earlier ones in the mask exactly as they
// occlude them visually, so the mask is always consistent with the composite.
//
// # Failure policy
//
// Instance-level problems (invalid cutout, nothing fits, placement budget
// exhausted) skip the instance and record a SkipEvent; the image and the run
// continue. An unusable background fails only its image, also recorded.
// Only whole-batch preconditions (no assets, bad parameters) or output I/O
// failures abort a run.
package compose
