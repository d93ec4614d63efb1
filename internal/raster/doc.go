// Package raster provides the immutable page image type consumed by the
// comparison engine, together with decoding from files and byte slices.
//
// # Coordinate System
//
// All pixel coordinates are 0-based with the origin at the top-left corner:
// X increases rightward and Y increases downward. A Raster is always
// normalized so that its bounds start at (0,0).
//
// # Pixel Formats
//
// A Raster holds either an *image.Gray (one channel) or an *image.NRGBA
// (three colour channels plus alpha). Any other decoded format is converted
// into one of the two when the Raster is built. Transparent pixels are
// composited over white paper when a grayscale view is requested.
//
// # Ownership
//
// New takes ownership of the image it is given. Callers must not mutate the
// image afterwards, and consumers of Image or Gray must treat the returned
// pixels as read-only.
//
// # Errors
//
// Decoding failures and zero-area images wrap failure.ErrStructuralInput.
// Images whose pixel count exceeds Limits.MaxPixels wrap
// failure.ErrResourceExhausted and are rejected before pixel data is decoded.
package raster
