package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// Constraints are the ideal stream properties requested from a camera.
// Implementations grant the closest mode the device supports.
type Constraints struct {
	// Width is the ideal frame width in pixels.
	Width int

	// Height is the ideal frame height in pixels.
	Height int

	// FrameRate is the ideal frame rate in frames per second.
	FrameRate float64

	// FacingMode selects the camera, "environment" for the rear camera.
	FacingMode string
}

// DefaultConstraints returns the constraints used for pothole capture:
// 1280x720 at 30fps from the rear camera.
func DefaultConstraints() Constraints {
	return Constraints{
		Width:      1280,
		Height:     720,
		FrameRate:  30,
		FacingMode: "environment",
	}
}

// Camera opens live video streams.
type Camera interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is an open video stream. Read returns the most recent frame; the
// returned image must not be modified by the caller.
type Stream interface {
	Read(ctx context.Context) (image.Image, error)
	Close() error
}

var (
	// ErrPermissionDenied is returned by cameras when access is refused.
	ErrPermissionDenied = errors.New("camera permission denied")

	// ErrNoDevice is returned by cameras when no capture device exists.
	ErrNoDevice = errors.New("no camera device")

	// ErrNotReady is returned by Capture when no stream is held.
	ErrNotReady = errors.New("camera not ready")

	// ErrFrozen is returned by Capture when a frame is already frozen or
	// another Capture is reading from the stream.
	ErrFrozen = errors.New("frame already frozen")

	// ErrAborted is returned by Capture when Reset, Release or Acquire ran
	// while the frame was being read. Nothing is frozen.
	ErrAborted = errors.New("capture aborted")

	// ErrStreamClosed is returned by Read on a closed stream.
	ErrStreamClosed = errors.New("stream closed")
)

// ErrorKind classifies camera acquisition failures.
type ErrorKind int

const (
	Unavailable ErrorKind = iota
	PermissionDenied
	NoDevice
)

func (k ErrorKind) String() string {
	switch k {
	case PermissionDenied:
		return "permission_denied"
	case NoDevice:
		return "no_device"
	default:
		return "unavailable"
	}
}

// CameraError reports why the camera could not be acquired.
type CameraError struct {
	Kind ErrorKind
	Err  error
}

func (e *CameraError) Error() string {
	return fmt.Sprintf("camera %s: %v", e.Kind, e.Err)
}

func (e *CameraError) Unwrap() error {
	return e.Err
}

// newCameraError classifies err by the sentinels it wraps.
func newCameraError(err error) *CameraError {
	var ce *CameraError
	if errors.As(err, &ce) {
		return ce
	}
	kind := Unavailable
	switch {
	case errors.Is(err, ErrPermissionDenied):
		kind = PermissionDenied
	case errors.Is(err, ErrNoDevice):
		kind = NoDevice
	}
	return &CameraError{Kind: kind, Err: err}
}
