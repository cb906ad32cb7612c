// Package webcam provides a capture.Camera backed by a local video device.
package webcam

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/prop"

	// Register the platform camera driver.
	_ "github.com/pion/mediadevices/pkg/driver/camera"

	"github.com/ironsheep/pothole-cam/internal/capture"
	"github.com/ironsheep/pothole-cam/internal/logger"
)

// Camera opens the first video input through mediadevices.
type Camera struct{}

// New creates a webcam Camera.
func New() *Camera {
	return &Camera{}
}

// Open requests a video track matching c as closely as the device allows.
func (c *Camera) Open(ctx context.Context, cons capture.Constraints) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !hasVideoInput(mediadevices.EnumerateDevices()) {
		return nil, capture.ErrNoDevice
	}
	if cons.FacingMode != "" {
		logger.Debug("Webcam", "facing mode %q not selectable, using first video input", cons.FacingMode)
	}

	media, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(mc *mediadevices.MediaTrackConstraints) {
			applyConstraints(mc, cons)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get user media: %w", err)
	}

	tracks := media.GetVideoTracks()
	if len(tracks) == 0 {
		closeTracks(media.GetTracks())
		return nil, capture.ErrNoDevice
	}
	track, ok := tracks[0].(*mediadevices.VideoTrack)
	if !ok {
		closeTracks(media.GetTracks())
		return nil, fmt.Errorf("unexpected track type %T", tracks[0])
	}

	return &stream{
		reader: track.NewReader(false),
		tracks: media.GetTracks(),
	}, nil
}

func hasVideoInput(devices []mediadevices.MediaDeviceInfo) bool {
	for _, d := range devices {
		if d.Kind == mediadevices.VideoInput {
			return true
		}
	}
	return false
}

// applyConstraints sets ideal, not exact, values so the driver can fall
// back to the nearest supported mode.
func applyConstraints(mc *mediadevices.MediaTrackConstraints, cons capture.Constraints) {
	if cons.Width > 0 {
		mc.Width = prop.Int(cons.Width)
	}
	if cons.Height > 0 {
		mc.Height = prop.Int(cons.Height)
	}
	if cons.FrameRate > 0 {
		mc.FrameRate = prop.Float(cons.FrameRate)
	}
}

func closeTracks(tracks []mediadevices.Track) {
	for _, t := range tracks {
		if err := t.Close(); err != nil {
			logger.Warn("Webcam", "closing track %s: %v", t.ID(), err)
		}
	}
}

// frameReader matches the mediadevices video reader.
type frameReader interface {
	Read() (img image.Image, release func(), err error)
}

type stream struct {
	reader frameReader
	tracks []mediadevices.Track

	mu     sync.Mutex
	closed bool
}

type readResult struct {
	img image.Image
	err error
}

// Read returns a copy of the next frame. The driver buffer is released
// before Read returns.
func (s *stream) Read(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, capture.ErrStreamClosed
	}

	done := make(chan readResult, 1)
	go func() {
		img, err := copyFrame(s.reader)
		done <- readResult{img, err}
	}()

	select {
	case r := <-done:
		return r.img, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func copyFrame(r frameReader) (image.Image, error) {
	img, release, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read video frame: %w", err)
	}
	defer release()
	return imaging.Clone(img), nil
}

func (s *stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	closeTracks(s.tracks)
	return nil
}
