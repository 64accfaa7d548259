// Package render drives a periodic consumer of the aggregate, the stand-in
// for the plot redraw timer of a desktop viewer.
package render
