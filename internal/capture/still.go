package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"sync"

	"github.com/disintegration/imaging"
)

// StillCamera is a Camera that serves a single still image as its stream.
//
// It stands in for a physical camera on headless hosts and in demos. The
// image is decoded once, on the first Open, and cached for later streams.
//
// # Sizing
//
// Images larger than the requested constraints are scaled down to fit
// within Width x Height while preserving aspect ratio. Smaller images are
// served at their own size, the way a device grants the closest mode it
// supports rather than upscaling.
//
// # Example Usage
//
//	cam := capture.NewStillCamera("/path/to/road.jpg")
//	surface := capture.NewSurface(cam, capture.DefaultConstraints())
//	if err := surface.Acquire(ctx); err != nil {
//	    log.Fatal(err)
//	}
type StillCamera struct {
	path string

	mu  sync.RWMutex
	img image.Image
}

// NewStillCamera creates a camera serving the image file at path.
// Supported formats are PNG, JPEG, and GIF.
func NewStillCamera(path string) *StillCamera {
	return &StillCamera{path: path}
}

// NewStillCameraFromImage creates a camera serving img directly.
func NewStillCameraFromImage(img image.Image) *StillCamera {
	return &StillCamera{img: img}
}

// Open returns a stream of the still image fitted to c.
//
// # Errors
//
//   - Wraps ErrNoDevice if the file does not exist
//   - Returns error if the file is not a valid PNG, JPEG, or GIF image
func (c *StillCamera) Open(ctx context.Context, cons Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := c.load()
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	if cons.Width > 0 && cons.Height > 0 && (b.Dx() > cons.Width || b.Dy() > cons.Height) {
		img = imaging.Fit(img, cons.Width, cons.Height, imaging.Lanczos)
	}
	return &stillStream{img: img}, nil
}

func (c *StillCamera) load() (image.Image, error) {
	c.mu.RLock()
	if c.img != nil {
		img := c.img
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	img, err := imaging.Open(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("still image %s: %w", c.path, ErrNoDevice)
		}
		return nil, fmt.Errorf("failed to decode still image: %w", err)
	}

	c.mu.Lock()
	c.img = img
	c.mu.Unlock()
	return img, nil
}

type stillStream struct {
	mu     sync.Mutex
	img    image.Image
	closed bool
}

func (s *stillStream) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStreamClosed
	}
	return s.img, nil
}

func (s *stillStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
