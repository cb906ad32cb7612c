package capture

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/pothole-cam/internal/logger"
)

// State is the display state of the surface.
type State int

const (
	// Live shows the camera stream.
	Live State = iota
	// Frozen shows a captured frame.
	Frozen
)

func (s State) String() string {
	if s == Frozen {
		return "frozen"
	}
	return "live"
}

// Frame is a captured still at the stream's native resolution. Overlays are
// drawn directly onto Image.
type Frame struct {
	Image      *image.NRGBA
	CapturedAt time.Time
}

// Surface owns the camera stream and the frozen frame.
//
// At most one stream is held at a time. Acquire closes the previous stream
// before opening a new one, and Release must be called when the surface is
// no longer shown.
type Surface struct {
	camera      Camera
	constraints Constraints

	mu      sync.Mutex
	stream  Stream
	size    image.Point
	state   State
	frame   *Frame
	err     *CameraError
	reading bool
	gen     uint64 // bumped by Reset, Release and Acquire
}

// NewSurface creates a surface over camera. No stream is opened until
// Acquire is called.
func NewSurface(camera Camera, c Constraints) *Surface {
	return &Surface{camera: camera, constraints: c}
}

// Acquire opens the camera stream and waits for the first frame to learn
// the native size. Failures are returned as *CameraError and leave the
// surface in a camera-unavailable state.
func (s *Surface) Acquire(ctx context.Context) error {
	s.mu.Lock()
	old := s.stream
	s.stream = nil
	s.size = image.Point{}
	s.gen++
	s.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			logger.Warn("Capture", "closing previous stream: %v", err)
		}
	}

	if s.camera == nil {
		return s.fail(fmt.Errorf("no camera configured: %w", ErrNoDevice))
	}

	stream, err := s.camera.Open(ctx, s.constraints)
	if err != nil {
		return s.fail(err)
	}

	first, err := stream.Read(ctx)
	if err != nil {
		stream.Close()
		return s.fail(fmt.Errorf("read first frame: %w", err))
	}
	size := first.Bounds().Size()

	s.mu.Lock()
	if s.stream != nil {
		// A concurrent Acquire won; keep only one stream.
		s.stream.Close()
	}
	s.stream = stream
	s.size = size
	s.err = nil
	s.mu.Unlock()

	logger.Info("Capture", "camera stream ready at %dx%d", size.X, size.Y)
	return nil
}

func (s *Surface) fail(err error) error {
	ce := newCameraError(err)
	s.mu.Lock()
	s.err = ce
	s.mu.Unlock()
	logger.Warn("Capture", "camera unavailable: %v", ce)
	return ce
}

// Capture freezes the current stream frame at native resolution. The
// surface lock is not held while reading, so State, Ready and Reset stay
// responsive on a slow camera.
func (s *Surface) Capture(ctx context.Context) (*Frame, error) {
	s.mu.Lock()
	if s.stream == nil {
		s.mu.Unlock()
		return nil, ErrNotReady
	}
	if s.state == Frozen || s.reading {
		s.mu.Unlock()
		return nil, ErrFrozen
	}
	stream, gen := s.stream, s.gen
	s.reading = true
	s.mu.Unlock()

	img, err := stream.Read(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reading = false

	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	if s.gen != gen {
		return nil, ErrAborted
	}

	s.frame = &Frame{
		Image:      imaging.Clone(img),
		CapturedAt: time.Now(),
	}
	s.state = Frozen
	return s.frame, nil
}

// Reset discards the frozen frame and its overlays and returns to Live.
// The stream is kept.
func (s *Surface) Reset() {
	s.mu.Lock()
	s.frame = nil
	s.state = Live
	s.gen++
	s.mu.Unlock()
}

// Release closes the stream and discards any frozen frame.
func (s *Surface) Release() error {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.size = image.Point{}
	s.frame = nil
	s.state = Live
	s.gen++
	s.mu.Unlock()

	if stream == nil {
		return nil
	}
	logger.Debug("Capture", "releasing camera stream")
	return stream.Close()
}

// State returns the current display state.
func (s *Surface) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready reports whether a stream is held.
func (s *Surface) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

// Size returns the native stream size, or zero without a stream.
func (s *Surface) Size() image.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Frame returns the frozen frame, or nil when live.
func (s *Surface) Frame() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// Err returns the last acquisition failure, cleared by a successful Acquire.
func (s *Surface) Err() *CameraError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
