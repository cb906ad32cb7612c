package fakeapi

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/segment"

	"github.com/ironsheep/pothole-cam/internal/detect"
)

// DefaultDarkThreshold is the luminance below which a pixel counts as dark.
const DefaultDarkThreshold = 50

const (
	minDarkFraction = 0.005
	maxDarkFraction = 0.5
)

// DarkRegionDetector reports the bounding box of dark pixels as a single
// "pothole" when they cover a plausible share of the frame. It is a demo
// heuristic, not a model.
func DarkRegionDetector(threshold uint8) Detector {
	return func(img image.Image) []detect.Detection {
		mask := segment.Threshold(img, threshold)
		b := mask.Bounds()

		minX, minY := b.Max.X, b.Max.Y
		maxX, maxY := b.Min.X-1, b.Min.Y-1
		dark := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				if mask.GrayAt(x, y).Y != 0 {
					continue
				}
				dark++
				minX = min(minX, x)
				minY = min(minY, y)
				maxX = max(maxX, x)
				maxY = max(maxY, y)
			}
		}

		total := b.Dx() * b.Dy()
		if total == 0 {
			return nil
		}
		frac := float64(dark) / float64(total)
		if frac < minDarkFraction || frac > maxDarkFraction {
			return nil
		}

		// Denser regions score higher.
		area := float64((maxX - minX + 1) * (maxY - minY + 1))
		conf := 0.5 + 0.5*math.Min(1, float64(dark)/area)

		return []detect.Detection{{
			BBox:       [4]float64{float64(minX), float64(minY), float64(maxX + 1), float64(maxY + 1)},
			Class:      "pothole",
			Confidence: math.Round(conf*1000) / 1000,
		}}
	}
}

// StaticDetector always returns dets.
func StaticDetector(dets ...detect.Detection) Detector {
	return func(image.Image) []detect.Detection {
		return dets
	}
}
