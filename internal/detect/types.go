// Package detect is the client for the remote pothole detection service.
//
// Frames are submitted as JPEG data URLs together with the device
// identifier and whatever location context is available. The service
// replies with zero or more bounding boxes in the coordinate space of the
// submitted frame.
package detect

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"
	"strconv"
)

// Detection is one object found by the detection service.
type Detection struct {
	// BBox is [x1, y1, x2, y2] in pixels of the submitted frame.
	BBox [4]float64 `json:"bbox"`

	// Class is the detected class label, e.g. "pothole".
	Class string `json:"class"`

	// Confidence is the detector score in [0, 1].
	Confidence float64 `json:"confidence"`
}

// Rect returns the bounding box rounded to whole pixels.
func (d Detection) Rect() image.Rectangle {
	return image.Rect(
		int(math.Round(d.BBox[0])), int(math.Round(d.BBox[1])),
		int(math.Round(d.BBox[2])), int(math.Round(d.BBox[3])),
	)
}

// Response is the detection service reply. An empty Detections slice is a
// valid outcome; Message then optionally explains it.
type Response struct {
	Detections []Detection `json:"detections"`
	Message    string      `json:"message,omitempty"`
}

// Latest is the most recent detection stored for a device.
type Latest struct {
	ID         ID       `json:"id"`
	City       string   `json:"city"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	ImageURL   string   `json:"image_url,omitempty"`
	DetectedAt string   `json:"detected_at,omitempty"`
}

// ID is a record identifier that the service may encode as a JSON number
// or string.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a number or string: %w", err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("invalid numeric id %s", n)
	}
	*id = ID(n.String())
	return nil
}

// ErrNotFound is returned by Latest when the device has no detections.
var ErrNotFound = errors.New("no detection found")

// NetworkError reports a failed exchange with the detection service:
// transport failure, non-2xx status, or an unreadable body.
type NetworkError struct {
	Op         string // "detect" or "latest"
	StatusCode int    // zero for transport failures
	Message    string // server-supplied error text, if any
	Err        error
}

func (e *NetworkError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
