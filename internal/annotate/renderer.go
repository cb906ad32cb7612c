package annotate

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"

	"github.com/ironsheep/pothole-cam/internal/detect"
	"github.com/ironsheep/pothole-cam/internal/location"
)

// Options configures a Renderer. Colours are "#RRGGBB" hex strings.
type Options struct {
	BoxColor     string
	BadgeColor   string
	BadgeOpacity float64
	TextColor    string
	StrokeWidth  int
	BadgeSize    float64
}

// DefaultOptions returns red 3px boxes and a 60% black badge with white
// 16px text.
func DefaultOptions() Options {
	return Options{
		BoxColor:     "#FF0000",
		BadgeColor:   "#000000",
		BadgeOpacity: 0.6,
		TextColor:    "#FFFFFF",
		StrokeWidth:  3,
		BadgeSize:    16,
	}
}

const (
	// MinLabelSize is the smallest detection label size in pixels.
	MinLabelSize = 14

	badgeOffset  = 10
	badgePadding = 8
)

// Label describes a drawn detection label.
type Label struct {
	Text     string          `json:"text"`
	Box      image.Rectangle `json:"box"`
	Baseline image.Point     `json:"baseline"`
	Size     float64         `json:"size"`
}

// Renderer draws detections and location badges onto frames.
type Renderer struct {
	box    color.NRGBA
	badge  color.NRGBA
	text   color.NRGBA
	stroke int
	size   float64
	font   *truetype.Font
}

// NewRenderer parses the colours in o and loads the label font.
func NewRenderer(o Options) (*Renderer, error) {
	box, err := parseColor(o.BoxColor, 1)
	if err != nil {
		return nil, fmt.Errorf("box color: %w", err)
	}
	if o.BadgeOpacity < 0 || o.BadgeOpacity > 1 {
		return nil, fmt.Errorf("badge opacity %v out of range [0,1]", o.BadgeOpacity)
	}
	badge, err := parseColor(o.BadgeColor, o.BadgeOpacity)
	if err != nil {
		return nil, fmt.Errorf("badge color: %w", err)
	}
	text, err := parseColor(o.TextColor, 1)
	if err != nil {
		return nil, fmt.Errorf("text color: %w", err)
	}

	f, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	stroke := o.StrokeWidth
	if stroke <= 0 {
		stroke = 3
	}
	size := o.BadgeSize
	if size <= 0 {
		size = 16
	}

	return &Renderer{
		box:    box,
		badge:  badge,
		text:   text,
		stroke: stroke,
		size:   size,
		font:   f,
	}, nil
}

func parseColor(hex string, alpha float64) (color.NRGBA, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.NRGBA{}, err
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: uint8(math.Round(alpha * 255))}, nil
}

func (r *Renderer) face(size float64) font.Face {
	return truetype.NewFace(r.font, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// DrawDetections strokes each detection box and writes its label. Earlier
// drawings on dst are kept.
func (r *Renderer) DrawDetections(dst draw.Image, dets []detect.Detection) []Label {
	if len(dets) == 0 {
		return nil
	}

	size := FontSize(dst.Bounds().Dx())
	face := r.face(size)
	defer face.Close()

	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(r.box),
		Face: face,
	}

	labels := make([]Label, 0, len(dets))
	for _, d := range dets {
		box := d.Rect()
		r.strokeRect(dst, box)

		text := LabelText(d)
		pos := LabelPlacement(d)
		drawer.Dot = fixed.P(pos.X, pos.Y)
		drawer.DrawString(text)

		labels = append(labels, Label{Text: text, Box: box, Baseline: pos, Size: size})
	}
	return labels
}

// strokeRect draws the outline of box with the stroke centred on its edges.
func (r *Renderer) strokeRect(dst draw.Image, box image.Rectangle) {
	src := image.NewUniform(r.box)
	in := r.stroke / 2
	out := r.stroke - in

	outer := image.Rect(box.Min.X-in, box.Min.Y-in, box.Max.X+out, box.Max.Y+out)
	edges := []image.Rectangle{
		image.Rect(outer.Min.X, outer.Min.Y, outer.Max.X, outer.Min.Y+r.stroke), // top
		image.Rect(outer.Min.X, outer.Max.Y-r.stroke, outer.Max.X, outer.Max.Y), // bottom
		image.Rect(outer.Min.X, outer.Min.Y, outer.Min.X+r.stroke, outer.Max.Y), // left
		image.Rect(outer.Max.X-r.stroke, outer.Min.Y, outer.Max.X, outer.Max.Y), // right
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), src, image.Point{}, draw.Over)
	}
}

// DrawEnrichmentBadge draws the place name and coordinates in a
// semi-opaque box at the top-left of dst. It draws nothing and returns
// false when enr has neither.
func (r *Renderer) DrawEnrichmentBadge(dst draw.Image, enr location.Enrichment) bool {
	lines := BadgeLines(enr)
	if len(lines) == 0 {
		return false
	}

	face := r.face(r.size)
	defer face.Close()

	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(r.text),
		Face: face,
	}

	widest := 0
	for _, l := range lines {
		if w := drawer.MeasureString(l).Ceil(); w > widest {
			widest = w
		}
	}
	metrics := face.Metrics()
	lineHeight := (metrics.Ascent + metrics.Descent).Ceil()

	rect := image.Rect(
		badgeOffset, badgeOffset,
		badgeOffset+widest+2*badgePadding,
		badgeOffset+len(lines)*lineHeight+2*badgePadding,
	)
	draw.Draw(dst, rect.Add(dst.Bounds().Min).Intersect(dst.Bounds()), image.NewUniform(r.badge), image.Point{}, draw.Over)

	y := dst.Bounds().Min.Y + badgeOffset + badgePadding + metrics.Ascent.Ceil()
	for _, l := range lines {
		drawer.Dot = fixed.P(dst.Bounds().Min.X+badgeOffset+badgePadding, y)
		drawer.DrawString(l)
		y += lineHeight
	}
	return true
}

// BadgeLines returns the badge text for enr, place name first.
func BadgeLines(enr location.Enrichment) []string {
	var lines []string
	if enr.PlaceName != "" {
		lines = append(lines, enr.PlaceName)
	}
	if enr.HasPosition() {
		lines = append(lines, fmt.Sprintf("Lat: %.5f, Lng: %.5f", enr.Position.Latitude, enr.Position.Longitude))
	}
	return lines
}

// LabelText formats a detection as "<class> (<confidence>%)" with one
// decimal.
func LabelText(d detect.Detection) string {
	return fmt.Sprintf("%s (%.1f%%)", d.Class, d.Confidence*100)
}

// LabelPlacement returns the label baseline origin: 5px above the box when
// there is room for the text, otherwise 20px below its top edge.
func LabelPlacement(d detect.Detection) image.Point {
	r := d.Rect()
	if d.BBox[1] > 20 {
		return image.Pt(r.Min.X, r.Min.Y-5)
	}
	return image.Pt(r.Min.X, r.Min.Y+20)
}

// FontSize returns the label size for a frame of the given width.
func FontSize(frameWidth int) float64 {
	return math.Max(MinLabelSize, float64(frameWidth)/50)
}
