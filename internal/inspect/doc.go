// Package inspect produces close-up views of change regions for review.
//
// Crop cuts a padded window around a region out of an overlay and optionally
// magnifies it. Annotate draws a numbered box around every region so that
// the numbers in a report can be found on the page.
//
// # Coordinate System
//
// Coordinates are those of the overlay: (0,0) is the top-left pixel, X grows
// rightward and Y downward. Rectangles are half-open, Min inclusive and Max
// exclusive, as in image.Rectangle.
//
// Region numbers are 1-based and follow the order of the region list, which
// matches the Region column of the XLSX report.
package inspect
