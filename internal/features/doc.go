// Package features detects local keypoints on rasterized drawings and matches
// them between two pages.
//
// # Algorithm
//
// Detection runs on a downscaled working copy whose long side is at most
// Options.WorkingSize pixels:
//
//  1. Smoothing: the working copy is blurred with a small Gaussian. Ink
//     darkness (1 - luminance) is used so that paper contributes nothing.
//
//  2. Gradients: 3x3 Sobel operators give Ix and Iy.
//
//  3. Corner response: the Harris measure det(M) - k*trace(M)^2 of the
//     structure tensor M, smoothed with a 5-tap binomial window.
//
//  4. Selection: strict 5x5 non-maximum suppression, a response floor relative
//     to the strongest corner, and grid bucketing so that features spread over
//     the whole sheet instead of clustering in the title block.
//
//  5. Orientation: the intensity centroid of ink inside a small disc gives a
//     dominant direction per keypoint.
//
//  6. Description: an 8x8 grid of ink samples, rotated to the keypoint
//     orientation and normalized to zero mean and unit variance.
//
// The same steps run on a second octave at half resolution, which extends the
// usable scale range. Every keypoint position is reported in full-resolution
// pixel coordinates.
//
// # Matching
//
// Descriptors are matched by exhaustive nearest-neighbour search. A match is
// kept only when the best distance is below RatioTest times the second-best
// distance, and only the closest of several matches to the same target
// survives. A page without features yields no correspondences, never an error.
package features
