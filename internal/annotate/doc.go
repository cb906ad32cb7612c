// Package annotate draws detection results and location context onto a
// captured frame.
//
// Boxes are stroked in the configured colour, 3 pixels wide by default,
// with a "<class> (<confidence>%)" label. The label sits 5 pixels above the
// box when the box top is more than 20 pixels from the frame edge and 20
// pixels below the box top otherwise. Label size scales with the frame as
// max(14, width/50) pixels.
//
// The enrichment badge is a semi-opaque box at (10,10) listing the place
// name and the coordinates, sized to its text.
//
// Drawing is cumulative. Callers discard the frame to clear overlays.
package annotate
